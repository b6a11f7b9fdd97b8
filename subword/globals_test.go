package internal

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestGetLoggerWithLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			logger := GetLoggerWithLevel(tt.in)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, "subword", DefaultAppName)
	assert.Contains(t, DefaultConfigPath, DefaultAppName)
	assert.Equal(t, "tokenizer.json", DefaultTokenizerFile)
}
