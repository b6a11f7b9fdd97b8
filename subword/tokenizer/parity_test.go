package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/subword/subword/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	sgnormalizer "github.com/sugarme/tokenizer/normalizer"
	sgpretokenizer "github.com/sugarme/tokenizer/pretokenizer"
	sgprocessor "github.com/sugarme/tokenizer/processor"
)

// TestSugarmeParity checks BERT encoding against the sugarme/tokenizer port
// of the same pipeline, built from the same vocab.txt.
func TestSugarmeParity(t *testing.T) {
	v, err := vocab.New(testTokens)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vocab.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, vocab.WriteTxt(f, v))
	require.NoError(t, f.Close())

	wp, err := wordpiece.NewWordPieceFromFile(path, "[UNK]")
	require.NoError(t, err)
	ref := tk.NewTokenizer(wp)
	ref.WithNormalizer(sgnormalizer.NewBertNormalizer(true, true, true, true))
	ref.WithPreTokenizer(sgpretokenizer.NewBertPreTokenizer())
	ref.WithPostProcessor(sgprocessor.NewBertProcessing(
		sgprocessor.PostToken{Value: sepToken.Token, Id: sepToken.ID},
		sgprocessor.PostToken{Value: clsToken.Token, Id: clsToken.ID},
	))

	tok := withBertProcessor(t, bertTokenizer(t))

	sentences := []string{
		"hello world",
		"Hello, unwanted running!",
		"a b c d e f",
		"unknown words here",
	}
	for _, s := range sentences {
		t.Run(s, func(t *testing.T) {
			want, err := ref.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(s)), true)
			require.NoError(t, err)
			got, err := tok.Encode(Single(Text(s)), true)
			require.NoError(t, err)
			assert.Equal(t, want.GetIds(), got.IDs)
		})
	}
}
