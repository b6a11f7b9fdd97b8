package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--log-level=error"))
	err := root.Execute()
	return out.String(), err
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	corpus := "hello world\nhello there world\nthe low lower lowest\nhello hello world\n"
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o644))
	return path
}

func train(t *testing.T, model string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "tokenizer.json")
	_, err := execute(t, "", "train", writeCorpus(t),
		"--train-model="+model,
		"--train-min-frequency=1",
		"--train-vocab-size=100",
		"--output="+out,
	)
	require.NoError(t, err)
	require.FileExists(t, out)
	return out
}

func encodeLines(t *testing.T, out string) []encodingJSON {
	t.Helper()
	var encs []encodingJSON
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var e encodingJSON
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		encs = append(encs, e)
	}
	return encs
}

func idArgs(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprint(id)
	}
	return out
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"encode", "decode", "train"} {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %q", name)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("tokenizer"))
}

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"not-a-level", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, setupLogging(tt.level).GetLevel())
		})
	}
}

func TestTrainEncodeDecode(t *testing.T) {
	t.Run("SentencePieceBPE", func(t *testing.T) {
		path := train(t, "bpe")

		out, err := execute(t, "", "encode", "--tokenizer="+path, "hello lower")
		require.NoError(t, err)
		encs := encodeLines(t, out)
		require.Len(t, encs, 1)
		assert.NotContains(t, encs[0].Tokens, "<unk>")

		args := append([]string{"decode", "--tokenizer=" + path}, idArgs(encs[0].IDs)...)
		out, err = execute(t, "", args...)
		require.NoError(t, err)
		assert.Equal(t, "hello lower\n", out)
	})

	t.Run("BertWordPiece", func(t *testing.T) {
		path := train(t, "wordpiece")

		out, err := execute(t, "", "encode", "--tokenizer="+path, "Hello world")
		require.NoError(t, err)
		encs := encodeLines(t, out)
		require.Len(t, encs, 1)
		ids := encs[0].IDs
		require.GreaterOrEqual(t, len(ids), 4)
		assert.Equal(t, 2, ids[0])
		assert.Equal(t, 3, ids[len(ids)-1])

		out, err = execute(t, strings.Join(idArgs(ids), " ")+"\n", "decode", "--tokenizer="+path)
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", out)
	})
}

func TestEncode(t *testing.T) {
	path := train(t, "wordpiece")

	t.Run("StdinLines", func(t *testing.T) {
		out, err := execute(t, "hello\nworld\n", "encode", "--tokenizer="+path)
		require.NoError(t, err)
		assert.Len(t, encodeLines(t, out), 2)
	})

	t.Run("NoSpecialTokens", func(t *testing.T) {
		out, err := execute(t, "", "encode", "--tokenizer="+path, "--no-special", "hello")
		require.NoError(t, err)
		encs := encodeLines(t, out)
		require.Len(t, encs, 1)
		assert.NotContains(t, encs[0].Tokens, "[CLS]")
	})

	t.Run("Pair", func(t *testing.T) {
		out, err := execute(t, "", "encode", "--tokenizer="+path, "--pair=world", "hello")
		require.NoError(t, err)
		encs := encodeLines(t, out)
		require.Len(t, encs, 1)
		assert.Contains(t, encs[0].TypeIDs, 1)
	})

	t.Run("TruncationFromFlags", func(t *testing.T) {
		out, err := execute(t, "", "encode", "--tokenizer="+path, "--truncation-max-length=3", "hello world lower")
		require.NoError(t, err)
		encs := encodeLines(t, out)
		require.Len(t, encs, 1)
		assert.Len(t, encs[0].IDs, 3)
		assert.NotEmpty(t, encs[0].Overflowing)
	})

	t.Run("FixedPaddingFromFlags", func(t *testing.T) {
		out, err := execute(t, "", "encode", "--tokenizer="+path, "--padding-strategy=fixed", "--padding-length=12", "hello")
		require.NoError(t, err)
		encs := encodeLines(t, out)
		require.Len(t, encs, 1)
		assert.Len(t, encs[0].IDs, 12)
		assert.Equal(t, 0, encs[0].AttentionMask[11])
	})
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind error
	}{
		{"MissingTokenizer", []string{"encode", "--tokenizer=" + filepath.Join(t.TempDir(), "absent.json"), "hi"}, common.ErrCorpusIO},
		{"InvalidWorkers", []string{"encode", "--workers=0", "hi"}, common.ErrConfiguration},
		{"UnknownModel", []string{"train", "--train-model=unigram", "corpus.txt"}, common.ErrConfiguration},
		{"MissingCorpus", []string{"train", "--output=" + filepath.Join(t.TempDir(), "tok.json"), filepath.Join(t.TempDir(), "absent.txt")}, common.ErrCorpusIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	t.Run("InvalidID", func(t *testing.T) {
		path := train(t, "wordpiece")
		_, err := execute(t, "", "decode", "--tokenizer="+path, "1", "x")
		assert.ErrorIs(t, err, common.ErrConfiguration)
	})

	t.Run("TrainNeedsFiles", func(t *testing.T) {
		_, err := execute(t, "", "train")
		assert.Error(t, err)
	})
}
