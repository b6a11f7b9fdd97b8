package internal

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName names the config directory, config file and env prefix.
	DefaultAppName        = "subword"
	DefaultAppCMDShortCut = "subword"
	DefaultConfigPath     = filepath.Join(userDir(), ".config", DefaultAppName)
	DefaultConfigName     = DefaultAppName

	DefaultTokenizerFile = "tokenizer.json"
	DefaultLogLevel      = "info"
)

// userDir is the home directory, or the working directory when there is none.
func userDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		log.Printf("no home directory, using %s", cwd)
		return cwd
	}
	return os.TempDir()
}

// GetLogger returns the application logger writing to stderr.
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// GetLoggerWithLevel returns the default logger filtered at the named level.
// Unknown level names fall back to info.
func GetLoggerWithLevel(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return GetLogger().Level(lvl)
}
