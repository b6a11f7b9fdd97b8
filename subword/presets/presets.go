// Package presets assembles ready-made pipelines for the two common subword
// families: BERT WordPiece and SentencePiece-style BPE.
package presets

import (
	"context"
	"iter"
	"log/slog"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/tokenizer"
	"github.com/ZanzyTHEbar/subword/subword/trainer"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
)

// Training defaults shared by both presets.
const (
	DefaultVocabSize     = 30000
	DefaultMinFrequency  = 2
	DefaultLimitAlphabet = 1000
)

func trainDefaults(specials []string, prefix string) trainer.Options {
	return trainer.Options{
		VocabSize:               DefaultVocabSize,
		MinFrequency:            DefaultMinFrequency,
		LimitAlphabet:           DefaultLimitAlphabet,
		SpecialTokens:           specials,
		ContinuingSubwordPrefix: prefix,
	}
}

// addPresentSpecials registers every token of specials that the model knows.
func addPresentSpecials(tok *tokenizer.Tokenizer, specials ...string) error {
	var present []vocab.AddedToken
	for _, s := range specials {
		if _, ok := tok.Model().TokenToID(s); ok {
			present = append(present, vocab.NewAddedToken(s, true))
		}
	}
	if len(present) == 0 {
		return nil
	}
	_, err := tok.AddSpecialTokens(present)
	return err
}

// singleTokenVocab is the vocabulary of an untrained preset.
func singleTokenVocab(token string) (*vocab.Vocabulary, error) {
	v, err := vocab.New([]string{token})
	if err != nil {
		return nil, common.NewErrorUtils().WrapError(err, "building empty vocabulary")
	}
	return v, nil
}

// train runs tr over files, or over lines when files is empty.
func train(ctx context.Context, tok *tokenizer.Tokenizer, tr trainer.Trainer, files []string, lines iter.Seq2[string, error]) error {
	opts := tr.Options()
	slog.Info("training preset", "vocab_size", opts.VocabSize, "min_frequency", opts.MinFrequency, "files", len(files))
	if lines != nil {
		return tok.TrainFromIterator(ctx, tr, lines)
	}
	return tok.Train(ctx, tr, files)
}
