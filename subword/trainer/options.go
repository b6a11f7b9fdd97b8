// Package trainer derives model vocabularies from corpus word counts.
package trainer

import (
	"slices"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/model"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
)

// Trainer turns word counts into a new model. base is the model currently
// attached to the tokenizer; trainers carry its unknown token and options
// over to the result. The returned tokens must be registered as special
// tokens on the tokenizer.
type Trainer interface {
	Train(counts *WordCounts, base model.Model) (model.Model, []vocab.AddedToken, error)
	Options() Options
}

// Options are shared by every trainer.
type Options struct {
	VocabSize    int `mapstructure:"vocab_size"`
	MinFrequency int `mapstructure:"min_frequency"`
	// LimitAlphabet caps the number of distinct characters; 0 means no cap.
	LimitAlphabet           int      `mapstructure:"limit_alphabet"`
	SpecialTokens           []string `mapstructure:"special_tokens"`
	InitialAlphabet         []rune   `mapstructure:"-"`
	ContinuingSubwordPrefix string   `mapstructure:"continuing_subword_prefix"`
	EndOfWordSuffix         string   `mapstructure:"end_of_word_suffix"`
}

// DefaultOptions returns the documented defaults: a 30000 token vocabulary
// and no frequency floor, alphabet cap or special tokens.
func DefaultOptions() Options {
	return Options{VocabSize: 30000}
}

// Overrides holds optional replacements for Options fields. Nil fields keep
// the base value.
type Overrides struct {
	VocabSize               *int
	MinFrequency            *int
	LimitAlphabet           *int
	SpecialTokens           []string
	InitialAlphabet         []rune
	ContinuingSubwordPrefix *string
	EndOfWordSuffix         *string
}

// Merge returns o with every field present in ov replaced.
func (o Options) Merge(ov Overrides) Options {
	if ov.VocabSize != nil {
		o.VocabSize = *ov.VocabSize
	}
	if ov.MinFrequency != nil {
		o.MinFrequency = *ov.MinFrequency
	}
	if ov.LimitAlphabet != nil {
		o.LimitAlphabet = *ov.LimitAlphabet
	}
	if ov.SpecialTokens != nil {
		o.SpecialTokens = slices.Clone(ov.SpecialTokens)
	}
	if ov.InitialAlphabet != nil {
		o.InitialAlphabet = slices.Clone(ov.InitialAlphabet)
	}
	if ov.ContinuingSubwordPrefix != nil {
		o.ContinuingSubwordPrefix = *ov.ContinuingSubwordPrefix
	}
	if ov.EndOfWordSuffix != nil {
		o.EndOfWordSuffix = *ov.EndOfWordSuffix
	}
	return o
}

// Validate rejects impossible option values.
func (o Options) Validate() error {
	switch {
	case o.VocabSize <= 0:
		return common.Errorf(common.ErrConfiguration, "vocab size must be positive, got %d", o.VocabSize)
	case o.MinFrequency < 0:
		return common.Errorf(common.ErrConfiguration, "min frequency must not be negative, got %d", o.MinFrequency)
	case o.LimitAlphabet < 0:
		return common.Errorf(common.ErrConfiguration, "limit alphabet must not be negative, got %d", o.LimitAlphabet)
	}
	seen := map[string]bool{}
	for _, s := range o.SpecialTokens {
		if s == "" {
			return common.Errorf(common.ErrConfiguration, "special tokens must not be empty")
		}
		if seen[s] {
			return common.Errorf(common.ErrConfiguration, "duplicate special token %q", s)
		}
		seen[s] = true
	}
	return nil
}

// Ptr returns a pointer to v, for building Overrides.
func Ptr[T any](v T) *T {
	return &v
}
