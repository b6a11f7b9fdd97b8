package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	internal "github.com/ZanzyTHEbar/subword/subword"
	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
	"github.com/ZanzyTHEbar/subword/subword/tokenizer"
	"github.com/ZanzyTHEbar/subword/subword/trainer"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from flags, environment variables or a config file.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Tokenizer  TokenizerConfig  `mapstructure:"tokenizer"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Train      TrainConfig      `mapstructure:"train"`
	Truncation TruncationConfig `mapstructure:"truncation"`
	Padding    PaddingConfig    `mapstructure:"padding"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TokenizerConfig points at the saved pipeline used by encode and decode.
type TokenizerConfig struct {
	Path string `mapstructure:"path"`
}

type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// TrainConfig selects the preset to train and the trainer options. Empty
// string and list fields keep the preset defaults.
type TrainConfig struct {
	Model                   string   `mapstructure:"model"`
	VocabSize               int      `mapstructure:"vocab_size"`
	MinFrequency            int      `mapstructure:"min_frequency"`
	LimitAlphabet           int      `mapstructure:"limit_alphabet"`
	SpecialTokens           []string `mapstructure:"special_tokens"`
	InitialAlphabet         string   `mapstructure:"initial_alphabet"`
	ContinuingSubwordPrefix string   `mapstructure:"continuing_subword_prefix"`
	EndOfWordSuffix         string   `mapstructure:"end_of_word_suffix"`
	Output                  string   `mapstructure:"output"`
}

// Train model names.
const (
	ModelWordPiece = "wordpiece"
	ModelBPE       = "bpe"
)

// TruncationConfig is disabled while MaxLength is zero.
type TruncationConfig struct {
	MaxLength int    `mapstructure:"max_length"`
	Strategy  string `mapstructure:"strategy"`
	Stride    int    `mapstructure:"stride"`
	Direction string `mapstructure:"direction"`
}

// PaddingConfig is disabled while Strategy is empty.
type PaddingConfig struct {
	Strategy        string `mapstructure:"strategy"`
	Length          int    `mapstructure:"length"`
	Direction       string `mapstructure:"direction"`
	PadID           int    `mapstructure:"pad_id"`
	PadTypeID       int    `mapstructure:"pad_type_id"`
	PadToken        string `mapstructure:"pad_token"`
	PadToMultipleOf int    `mapstructure:"pad_to_multiple_of"`
}

// LoadOptions controls where Load looks for values.
type LoadOptions struct {
	// Flags registered with RegisterFlags take precedence over everything else.
	Flags *pflag.FlagSet
	// ConfigFile replaces the search of the default locations.
	ConfigFile string
	Defaults   Config
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Log:       LogConfig{Level: internal.DefaultLogLevel},
		Tokenizer: TokenizerConfig{Path: internal.DefaultTokenizerFile},
		Batch:     BatchConfig{Workers: runtime.GOMAXPROCS(0)},
		Train: TrainConfig{
			Model:         ModelWordPiece,
			VocabSize:     30000,
			MinFrequency:  2,
			LimitAlphabet: 1000,
			Output:        internal.DefaultTokenizerFile,
		},
		Truncation: TruncationConfig{
			Strategy:  string(tokenizer.LongestFirst),
			Direction: string(encoding.Right),
		},
		Padding: PaddingConfig{
			Direction: string(encoding.Right),
			PadToken:  tokenizer.DefaultPadToken,
		},
	}
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"log-level":              "log.level",
	"tokenizer":              "tokenizer.path",
	"workers":                "batch.workers",
	"train-model":            "train.model",
	"train-vocab-size":       "train.vocab_size",
	"train-min-frequency":    "train.min_frequency",
	"train-limit-alphabet":   "train.limit_alphabet",
	"train-special-tokens":   "train.special_tokens",
	"train-initial-alphabet": "train.initial_alphabet",
	"train-prefix":           "train.continuing_subword_prefix",
	"train-suffix":           "train.end_of_word_suffix",
	"output":                 "train.output",
	"truncation-max-length":  "truncation.max_length",
	"truncation-strategy":    "truncation.strategy",
	"truncation-stride":      "truncation.stride",
	"truncation-direction":   "truncation.direction",
	"padding-strategy":       "padding.strategy",
	"padding-length":         "padding.length",
	"padding-direction":      "padding.direction",
	"padding-pad-id":         "padding.pad_id",
	"padding-pad-type-id":    "padding.pad_type_id",
	"padding-pad-token":      "padding.pad_token",
	"padding-multiple-of":    "padding.pad_to_multiple_of",
}

// RegisterFlags adds one flag per config key to fs.
func RegisterFlags(fs *pflag.FlagSet, d Config) {
	fs.String("log-level", d.Log.Level, "Log level (trace, debug, info, warn, error)")
	fs.String("tokenizer", d.Tokenizer.Path, "Path to a saved tokenizer JSON file")
	fs.Int("workers", d.Batch.Workers, "Goroutines used for batch encoding and corpus counting")
	fs.String("train-model", d.Train.Model, "Model to train: wordpiece or bpe")
	fs.Int("train-vocab-size", d.Train.VocabSize, "Target vocabulary size")
	fs.Int("train-min-frequency", d.Train.MinFrequency, "Minimum pair frequency for a merge")
	fs.Int("train-limit-alphabet", d.Train.LimitAlphabet, "Maximum number of initial characters, 0 for no limit")
	fs.StringSlice("train-special-tokens", d.Train.SpecialTokens, "Special tokens placed first in the vocabulary")
	fs.String("train-initial-alphabet", d.Train.InitialAlphabet, "Characters always kept in the alphabet")
	fs.String("train-prefix", d.Train.ContinuingSubwordPrefix, "Prefix of word-internal subwords")
	fs.String("train-suffix", d.Train.EndOfWordSuffix, "Suffix of word-final subwords")
	fs.String("output", d.Train.Output, "Where to save the trained tokenizer")
	fs.Int("truncation-max-length", d.Truncation.MaxLength, "Truncate encodings to this many tokens, 0 disables")
	fs.String("truncation-strategy", d.Truncation.Strategy, "longest_first, only_first or only_second")
	fs.Int("truncation-stride", d.Truncation.Stride, "Tokens repeated between overflowing pieces")
	fs.String("truncation-direction", d.Truncation.Direction, "Side that loses tokens: left or right")
	fs.String("padding-strategy", d.Padding.Strategy, "batch_longest or fixed, empty disables")
	fs.Int("padding-length", d.Padding.Length, "Target length of fixed padding")
	fs.String("padding-direction", d.Padding.Direction, "Side that receives padding: left or right")
	fs.Int("padding-pad-id", d.Padding.PadID, "Id of the padding token")
	fs.Int("padding-pad-type-id", d.Padding.PadTypeID, "Type id of padding tokens")
	fs.String("padding-pad-token", d.Padding.PadToken, "Padding token")
	fs.Int("padding-multiple-of", d.Padding.PadToMultipleOf, "Round padded lengths up to a multiple of this")
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("tokenizer.path", c.Tokenizer.Path)
	v.SetDefault("batch.workers", c.Batch.Workers)
	v.SetDefault("train.model", c.Train.Model)
	v.SetDefault("train.vocab_size", c.Train.VocabSize)
	v.SetDefault("train.min_frequency", c.Train.MinFrequency)
	v.SetDefault("train.limit_alphabet", c.Train.LimitAlphabet)
	v.SetDefault("train.special_tokens", c.Train.SpecialTokens)
	v.SetDefault("train.initial_alphabet", c.Train.InitialAlphabet)
	v.SetDefault("train.continuing_subword_prefix", c.Train.ContinuingSubwordPrefix)
	v.SetDefault("train.end_of_word_suffix", c.Train.EndOfWordSuffix)
	v.SetDefault("train.output", c.Train.Output)
	v.SetDefault("truncation.max_length", c.Truncation.MaxLength)
	v.SetDefault("truncation.strategy", c.Truncation.Strategy)
	v.SetDefault("truncation.stride", c.Truncation.Stride)
	v.SetDefault("truncation.direction", c.Truncation.Direction)
	v.SetDefault("padding.strategy", c.Padding.Strategy)
	v.SetDefault("padding.length", c.Padding.Length)
	v.SetDefault("padding.direction", c.Padding.Direction)
	v.SetDefault("padding.pad_id", c.Padding.PadID)
	v.SetDefault("padding.pad_type_id", c.Padding.PadTypeID)
	v.SetDefault("padding.pad_token", c.Padding.PadToken)
	v.SetDefault("padding.pad_to_multiple_of", c.Padding.PadToMultipleOf)
}

// Load reads configuration from flags, SUBWORD_* environment variables and
// subword.yaml, in that order of precedence, falling back to opts.Defaults.
// A missing config file in the default locations is not an error.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v, opts.Defaults)

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %v: %w", name, err, common.ErrConfiguration)
				}
			}
		}
	}

	v.SetEnvPrefix(strings.ToUpper(internal.DefaultAppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName(internal.DefaultConfigName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || opts.ConfigFile != "" {
			return nil, fmt.Errorf("reading config file: %v: %w", err, common.ErrConfiguration)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %v: %w", err, common.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return common.Errorf(common.ErrConfiguration, "unknown log level %q", c.Log.Level)
	}
	if c.Batch.Workers <= 0 {
		return common.Errorf(common.ErrConfiguration, "batch workers must be positive, got %d", c.Batch.Workers)
	}
	if c.Train.Model != ModelWordPiece && c.Train.Model != ModelBPE {
		return common.Errorf(common.ErrConfiguration, "unknown train model %q", c.Train.Model)
	}
	if err := trainer.DefaultOptions().Merge(c.Train.Overrides()).Validate(); err != nil {
		return err
	}
	if _, err := c.Truncation.Params(); err != nil {
		return err
	}
	_, err := c.Padding.Params()
	return err
}

// Overrides returns the trainer options this section sets explicitly.
func (c TrainConfig) Overrides() trainer.Overrides {
	ov := trainer.Overrides{
		VocabSize:     trainer.Ptr(c.VocabSize),
		MinFrequency:  trainer.Ptr(c.MinFrequency),
		LimitAlphabet: trainer.Ptr(c.LimitAlphabet),
	}
	if len(c.SpecialTokens) > 0 {
		ov.SpecialTokens = c.SpecialTokens
	}
	if c.InitialAlphabet != "" {
		ov.InitialAlphabet = []rune(c.InitialAlphabet)
	}
	if c.ContinuingSubwordPrefix != "" {
		ov.ContinuingSubwordPrefix = trainer.Ptr(c.ContinuingSubwordPrefix)
	}
	if c.EndOfWordSuffix != "" {
		ov.EndOfWordSuffix = trainer.Ptr(c.EndOfWordSuffix)
	}
	return ov
}

// Params returns the truncation params, nil when truncation is disabled.
func (c TruncationConfig) Params() (*tokenizer.TruncationParams, error) {
	if c.MaxLength == 0 {
		return nil, nil
	}
	p := tokenizer.TruncationParams{
		MaxLength: c.MaxLength,
		Strategy:  tokenizer.TruncationStrategy(c.Strategy),
		Stride:    c.Stride,
		Direction: encoding.Direction(c.Direction),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Params returns the padding params, nil when padding is disabled.
func (c PaddingConfig) Params() (*tokenizer.PaddingParams, error) {
	if c.Strategy == "" {
		return nil, nil
	}
	p := tokenizer.PaddingParams{
		Strategy:        tokenizer.PaddingStrategy(c.Strategy),
		Length:          c.Length,
		Direction:       encoding.Direction(c.Direction),
		PadID:           c.PadID,
		PadTypeID:       c.PadTypeID,
		PadToken:        c.PadToken,
		PadToMultipleOf: c.PadToMultipleOf,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
