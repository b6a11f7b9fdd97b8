package main

import (
	"encoding/json"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
	"github.com/ZanzyTHEbar/subword/subword/tokenizer"
	"github.com/ZanzyTHEbar/subword/subword/trainer"
	"github.com/spf13/cobra"
)

type encodingJSON struct {
	IDs               []int              `json:"ids"`
	Tokens            []string           `json:"tokens"`
	TypeIDs           []int              `json:"type_ids"`
	AttentionMask     []int              `json:"attention_mask"`
	SpecialTokensMask []int              `json:"special_tokens_mask"`
	Offsets           []encoding.Offsets `json:"offsets"`
	Overflowing       []encodingJSON     `json:"overflowing,omitempty"`
}

func toJSON(e *encoding.Encoding) encodingJSON {
	out := encodingJSON{
		IDs:               e.IDs,
		Tokens:            e.Tokens,
		TypeIDs:           e.TypeIDs,
		AttentionMask:     e.AttentionMask,
		SpecialTokensMask: e.SpecialTokensMask,
		Offsets:           e.Offsets,
	}
	for _, o := range e.Overflowing {
		out.Overflowing = append(out.Overflowing, toJSON(o))
	}
	return out
}

// readInputs returns args, or the lines of stdin when there are none.
func readInputs(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var lines []string
	for line, err := range trainer.Lines(cmd.InOrStdin()) {
		if err != nil {
			return nil, common.NewErrorUtils().WrapKind(err, common.ErrCorpusIO, "reading stdin")
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func newEncodeCmd(a *app) *cobra.Command {
	var (
		pair      string
		noSpecial bool
	)

	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Encode each argument, or each stdin line, as one JSON encoding per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.loadTokenizer()
			if err != nil {
				return err
			}
			texts, err := readInputs(cmd, args)
			if err != nil {
				return err
			}

			inputs := make([]tokenizer.EncodeInput, len(texts))
			for i, text := range texts {
				if cmd.Flags().Changed("pair") {
					inputs[i] = tokenizer.Pair(tokenizer.Text(text), tokenizer.Text(pair))
				} else {
					inputs[i] = tokenizer.Single(tokenizer.Text(text))
				}
			}
			encs, err := tok.EncodeBatch(inputs, !noSpecial)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range encs {
				if err := enc.Encode(toJSON(e)); err != nil {
					return err
				}
			}
			a.log.Info().Int("inputs", len(encs)).Int("tokens", totalTokens(encs)).Msg("encoded")
			return nil
		},
	}

	cmd.Flags().StringVar(&pair, "pair", "", "Second sequence paired with every input")
	cmd.Flags().BoolVar(&noSpecial, "no-special", false, "Do not add the post-processor special tokens")
	return cmd
}

func totalTokens(encs []*encoding.Encoding) int {
	n := 0
	for _, e := range encs {
		n += e.Len()
	}
	return n
}
