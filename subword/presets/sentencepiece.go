package presets

import (
	"context"
	"iter"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/decoder"
	"github.com/ZanzyTHEbar/subword/subword/model"
	"github.com/ZanzyTHEbar/subword/subword/normalizer"
	"github.com/ZanzyTHEbar/subword/subword/pretokenizer"
	"github.com/ZanzyTHEbar/subword/subword/tokenizer"
	"github.com/ZanzyTHEbar/subword/subword/trainer"
)

// SentencePieceBPEOptions configures a SentencePieceBPE pipeline.
type SentencePieceBPEOptions struct {
	// VocabFile and MergesFile load a trained model. Both or neither must be
	// set.
	VocabFile      string
	MergesFile     string
	UnkToken       string
	Replacement    rune
	AddPrefixSpace bool
	Dropout        float64
}

// DefaultSentencePieceBPEOptions returns the usual SentencePiece setup.
func DefaultSentencePieceBPEOptions() SentencePieceBPEOptions {
	return SentencePieceBPEOptions{
		UnkToken:       "<unk>",
		Replacement:    pretokenizer.DefaultReplacement,
		AddPrefixSpace: true,
	}
}

// SentencePieceBPE is a BPE tokenizer that marks word boundaries with a
// visible glyph instead of splitting them away.
type SentencePieceBPE struct {
	*tokenizer.Tokenizer
	opts SentencePieceBPEOptions
}

// NewSentencePieceBPE builds the pipeline. Without model files the BPE model
// only knows UnkToken until trained.
func NewSentencePieceBPE(opts SentencePieceBPEOptions) (*SentencePieceBPE, error) {
	if (opts.VocabFile == "") != (opts.MergesFile == "") {
		return nil, common.Errorf(common.ErrConfiguration, "vocab and merges files must be given together")
	}
	cfg := model.BPEConfig{UnkToken: opts.UnkToken, Dropout: opts.Dropout}
	var (
		bpe *model.BPE
		err error
	)
	if opts.VocabFile != "" {
		bpe, err = model.NewBPEFromFiles(opts.VocabFile, opts.MergesFile, cfg)
	} else {
		if opts.UnkToken == "" {
			return nil, common.Errorf(common.ErrConfiguration, "an untrained sentencepiece tokenizer needs an unknown token")
		}
		v, verr := singleTokenVocab(opts.UnkToken)
		if verr != nil {
			return nil, verr
		}
		bpe, err = model.NewBPE(v, nil, cfg)
	}
	if err != nil {
		return nil, err
	}

	tok := tokenizer.New(bpe)
	if err := tok.WithNormalizer(normalizer.NFKC()); err != nil {
		return nil, err
	}
	if err := tok.WithPreTokenizer(&pretokenizer.Metaspace{
		Replacement:    opts.Replacement,
		AddPrefixSpace: opts.AddPrefixSpace,
	}); err != nil {
		return nil, err
	}
	if err := tok.WithDecoder(&decoder.Metaspace{
		Replacement:    opts.Replacement,
		AddPrefixSpace: opts.AddPrefixSpace,
	}); err != nil {
		return nil, err
	}
	if opts.UnkToken != "" {
		if err := addPresentSpecials(tok, opts.UnkToken); err != nil {
			return nil, err
		}
	}
	return &SentencePieceBPE{Tokenizer: tok, opts: opts}, nil
}

// TrainerOptions returns the preset training defaults with ov applied.
func (s *SentencePieceBPE) TrainerOptions(ov trainer.Overrides) trainer.Options {
	var specials []string
	if s.opts.UnkToken != "" {
		specials = []string{s.opts.UnkToken}
	}
	return trainDefaults(specials, "").Merge(ov)
}

// Train learns a new BPE vocabulary and merges from files.
func (s *SentencePieceBPE) Train(ctx context.Context, files []string, ov trainer.Overrides) error {
	return train(ctx, s.Tokenizer, trainer.NewBPETrainer(s.TrainerOptions(ov)), files, nil)
}

// TrainFromIterator is Train over a line iterator.
func (s *SentencePieceBPE) TrainFromIterator(ctx context.Context, lines iter.Seq2[string, error], ov trainer.Overrides) error {
	return train(ctx, s.Tokenizer, trainer.NewBPETrainer(s.TrainerOptions(ov)), nil, lines)
}
