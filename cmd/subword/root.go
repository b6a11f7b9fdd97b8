package main

import (
	"log/slog"
	"os"

	internal "github.com/ZanzyTHEbar/subword/subword"
	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/config"
	"github.com/ZanzyTHEbar/subword/subword/tokenizer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{log: internal.GetLogger()}
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           internal.DefaultAppCMDShortCut,
		Short:         "Subword tokenization: encode, decode and train vocabularies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{
				Flags:      cmd.Flags(),
				ConfigFile: a.cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = setupLogging(cfg.Log.Level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Config file (default ./subword.yaml or ~/.config/subword/subword.yaml)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newEncodeCmd(a))
	cmd.AddCommand(newDecodeCmd(a))
	cmd.AddCommand(newTrainCmd(a))
	return cmd
}

// setupLogging returns the command logger and points the library slog
// output at stderr with the same threshold.
func setupLogging(level string) zerolog.Logger {
	logger := internal.GetLoggerWithLevel(level)
	lvl := slog.LevelInfo
	switch logger.GetLevel() {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		lvl = slog.LevelDebug
	case zerolog.WarnLevel:
		lvl = slog.LevelWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel, zerolog.Disabled:
		lvl = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return logger
}

// loadTokenizer opens the configured tokenizer file and applies the batch,
// truncation and padding settings of the config on top of the saved ones.
func (a *app) loadTokenizer() (*tokenizer.Tokenizer, error) {
	path := a.cfg.Tokenizer.Path
	if err := common.NewValidationUtils().ValidateFileExists(path); err != nil {
		return nil, err
	}
	tok, err := tokenizer.FromFile(path)
	if err != nil {
		return nil, err
	}
	if err := tok.WithWorkers(a.cfg.Batch.Workers); err != nil {
		return nil, err
	}
	trunc, err := a.cfg.Truncation.Params()
	if err != nil {
		return nil, err
	}
	if trunc != nil {
		if _, err := tok.SetTruncation(*trunc); err != nil {
			return nil, err
		}
	}
	pad, err := a.cfg.Padding.Params()
	if err != nil {
		return nil, err
	}
	if pad != nil {
		if _, err := tok.SetPadding(*pad); err != nil {
			return nil, err
		}
	}
	a.log.Debug().Str("path", path).Int("vocab_size", tok.VocabSize(true)).Msg("tokenizer loaded")
	return tok, nil
}
