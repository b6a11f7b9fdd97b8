package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/spf13/cobra"
)

func parseIDs(line string) ([]int, error) {
	fields := strings.Fields(strings.NewReplacer(",", " ", "[", " ", "]", " ").Replace(line))
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, common.Errorf(common.ErrConfiguration, "invalid token id %q", f)
		}
		ids[i] = id
	}
	return ids, nil
}

func newDecodeCmd(a *app) *cobra.Command {
	var keepSpecial bool

	cmd := &cobra.Command{
		Use:   "decode [id...]",
		Short: "Decode the ids given as arguments, or one id list per stdin line",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.loadTokenizer()
			if err != nil {
				return err
			}
			lines := []string{strings.Join(args, " ")}
			if len(args) == 0 {
				if lines, err = readInputs(cmd, nil); err != nil {
					return err
				}
			}

			batch := make([][]int, len(lines))
			for i, line := range lines {
				if batch[i], err = parseIDs(line); err != nil {
					return err
				}
			}
			texts, err := tok.DecodeBatch(batch, !keepSpecial)
			if err != nil {
				return err
			}
			for _, text := range texts {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), text); err != nil {
					return err
				}
			}
			a.log.Info().Int("sequences", len(texts)).Msg("decoded")
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepSpecial, "keep-special", false, "Keep special tokens in the output")
	return cmd
}
