package main

import (
	"context"

	"github.com/ZanzyTHEbar/subword/subword/config"
	"github.com/ZanzyTHEbar/subword/subword/presets"
	"github.com/ZanzyTHEbar/subword/subword/tokenizer"
	"github.com/ZanzyTHEbar/subword/subword/trainer"
	"github.com/spf13/cobra"
)

// trainable is a preset that learns its vocabulary from corpus files.
type trainable interface {
	Train(ctx context.Context, files []string, ov trainer.Overrides) error
}

func newPreset(model string) (*tokenizer.Tokenizer, trainable, error) {
	if model == config.ModelBPE {
		s, err := presets.NewSentencePieceBPE(presets.DefaultSentencePieceBPEOptions())
		if err != nil {
			return nil, nil, err
		}
		return s.Tokenizer, s, nil
	}
	b, err := presets.NewBertWordPiece(presets.DefaultBertWordPieceOptions())
	if err != nil {
		return nil, nil, err
	}
	return b.Tokenizer, b, nil
}

func newTrainCmd(a *app) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "train file...",
		Short: "Train a tokenizer on corpus files and save it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			tc := a.cfg.Train
			tok, preset, err := newPreset(tc.Model)
			if err != nil {
				return err
			}
			if err := tok.WithWorkers(a.cfg.Batch.Workers); err != nil {
				return err
			}

			a.log.Info().Str("model", tc.Model).Strs("files", files).Int("vocab_size", tc.VocabSize).Msg("training started")
			if err := preset.Train(cmd.Context(), files, tc.Overrides()); err != nil {
				return err
			}
			if err := tok.Save(tc.Output, pretty); err != nil {
				return err
			}
			a.log.Info().Str("output", tc.Output).Int("vocab_size", tok.VocabSize(true)).Msg("tokenizer saved")
			return nil
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", true, "Indent the saved JSON")
	return cmd
}
