package trainer

import (
	"context"
	"errors"
	"iter"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/model"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(line string) ([]string, error) { return strings.Fields(line), nil }

func countsOf(pairs ...any) *WordCounts {
	wc := NewWordCounts()
	for i := 0; i+1 < len(pairs); i += 2 {
		wc.Add(pairs[i].(string), pairs[i+1].(int))
	}
	return wc
}

func TestWordCounts(t *testing.T) {
	t.Run("FirstSeenOrder", func(t *testing.T) {
		wc := NewWordCounts()
		require.NoError(t, wc.Feed(context.Background(), Strings([]string{"b a b", "c a"}), fields))
		var words []string
		for w := range wc.All() {
			words = append(words, w)
		}
		assert.Equal(t, []string{"b", "a", "c"}, words)
		assert.Equal(t, 2, wc.Count("a"))
		assert.Equal(t, 2, wc.Count("b"))
		assert.Equal(t, 1, wc.Count("c"))
	})

	t.Run("IgnoresEmptyAndNonPositive", func(t *testing.T) {
		wc := NewWordCounts()
		wc.Add("", 3)
		wc.Add("x", 0)
		assert.Equal(t, 0, wc.Len())
	})

	t.Run("ReadErrorIsCorpusIO", func(t *testing.T) {
		var lines iter.Seq2[string, error] = func(yield func(string, error) bool) {
			if !yield("a b", nil) {
				return
			}
			yield("", errors.New("disk gone"))
		}
		err := NewWordCounts().Feed(context.Background(), lines, fields)
		assert.ErrorIs(t, err, common.ErrCorpusIO)
	})

	t.Run("ProcessErrorPropagates", func(t *testing.T) {
		boom := errors.New("boom")
		err := NewWordCounts().Feed(context.Background(), Strings([]string{"x"}), func(string) ([]string, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Lines", func(t *testing.T) {
		wc := NewWordCounts()
		require.NoError(t, wc.Feed(context.Background(), Lines(strings.NewReader("one two\n\ntwo\n")), fields))
		assert.Equal(t, 1, wc.Count("one"))
		assert.Equal(t, 2, wc.Count("two"))
	})
}

func TestCountFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")
	require.NoError(t, os.WriteFile(first, []byte("a b\nb\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("c a\n"), 0o644))

	t.Run("MergedInFileOrder", func(t *testing.T) {
		for _, workers := range []int{1, 4} {
			wc, err := CountFiles(context.Background(), []string{first, second}, fields, workers)
			require.NoError(t, err)
			var words []string
			for w := range wc.All() {
				words = append(words, w)
			}
			assert.Equal(t, []string{"a", "b", "c"}, words)
			assert.Equal(t, 2, wc.Count("a"))
			assert.Equal(t, 2, wc.Count("b"))
			assert.Equal(t, 1, wc.Count("c"))
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := CountFiles(context.Background(), []string{first, filepath.Join(dir, "missing.txt")}, fields, 2)
		assert.ErrorIs(t, err, common.ErrCorpusIO)
	})
}

func TestAlphabet(t *testing.T) {
	counts := countsOf("aab", 1, "c", 1)

	tests := []struct {
		name    string
		initial []rune
		limit   int
		want    []rune
	}{
		{"NoLimit", nil, 0, []rune{'a', 'b', 'c'}},
		{"DropsRarestHighestFirst", nil, 2, []rune{'a', 'b'}},
		{"InitialAlwaysKept", []rune{'z'}, 2, []rune{'a', 'z'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, alphabet(counts, tt.initial, tt.limit))
		})
	}
}

func TestOptions(t *testing.T) {
	t.Run("Merge", func(t *testing.T) {
		base := DefaultOptions()
		got := base.Merge(Overrides{
			VocabSize:     Ptr(100),
			SpecialTokens: []string{"[PAD]"},
		})
		assert.Equal(t, 100, got.VocabSize)
		assert.Equal(t, []string{"[PAD]"}, got.SpecialTokens)
		assert.Equal(t, 0, got.MinFrequency)
		assert.Equal(t, 30000, base.VocabSize)
	})

	tests := []struct {
		name string
		opts Options
	}{
		{"ZeroVocab", Options{}},
		{"NegativeMinFrequency", Options{VocabSize: 10, MinFrequency: -1}},
		{"NegativeLimit", Options{VocabSize: 10, LimitAlphabet: -1}},
		{"EmptySpecial", Options{VocabSize: 10, SpecialTokens: []string{""}}},
		{"DuplicateSpecial", Options{VocabSize: 10, SpecialTokens: []string{"[PAD]", "[PAD]"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.opts.Validate(), common.ErrConfiguration)
		})
	}
	assert.NoError(t, DefaultOptions().Validate())
}

func tokensOf(t *testing.T, m model.Model) []string {
	t.Helper()
	return m.Vocab().Tokens()
}

func TestBPETrainer(t *testing.T) {
	t.Run("MergesMostFrequentFirst", func(t *testing.T) {
		tr := NewBPETrainer(Options{VocabSize: 100})
		m, specials, err := tr.Train(countsOf("ab", 3, "abc", 2), nil)
		require.NoError(t, err)
		assert.Empty(t, specials)
		assert.Equal(t, []string{"a", "b", "c", "ab", "abc"}, tokensOf(t, m))
		bpe := m.(*model.BPE)
		assert.Equal(t, []vocab.Merge{{Left: "a", Right: "b"}, {Left: "ab", Right: "c"}}, bpe.Merges())
	})

	t.Run("SpecialTokensFirst", func(t *testing.T) {
		tr := NewBPETrainer(Options{VocabSize: 100, SpecialTokens: []string{"[PAD]", "[MASK]"}})
		m, specials, err := tr.Train(countsOf("ab", 3), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"[PAD]", "[MASK]", "a", "b", "ab"}, tokensOf(t, m))
		require.Len(t, specials, 2)
		assert.True(t, specials[0].Special)
		assert.Equal(t, "[MASK]", specials[1].Content)
	})

	t.Run("MinFrequencyStops", func(t *testing.T) {
		tr := NewBPETrainer(Options{VocabSize: 100, MinFrequency: 3})
		m, _, err := tr.Train(countsOf("ab", 3, "abc", 2), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "ab"}, tokensOf(t, m))
	})

	t.Run("VocabSizeStops", func(t *testing.T) {
		tr := NewBPETrainer(Options{VocabSize: 4})
		m, _, err := tr.Train(countsOf("ab", 3, "abc", 2), nil)
		require.NoError(t, err)
		assert.Equal(t, 4, m.VocabSize())
	})

	t.Run("TiesGoToFirstSeen", func(t *testing.T) {
		tr := NewBPETrainer(Options{VocabSize: 5})
		m, _, err := tr.Train(countsOf("cd", 1, "ab", 1), nil)
		require.NoError(t, err)
		assert.True(t, m.Vocab().Contains("cd"))
		assert.False(t, m.Vocab().Contains("ab"))
	})

	t.Run("KeepsBaseUnknown", func(t *testing.T) {
		v, err := vocab.New([]string{"<unk>", "x"})
		require.NoError(t, err)
		base, err := model.NewBPE(v, nil, model.BPEConfig{UnkToken: "<unk>"})
		require.NoError(t, err)

		m, specials, err := NewBPETrainer(Options{VocabSize: 100}).Train(countsOf("ab", 2), base)
		require.NoError(t, err)
		assert.Equal(t, "<unk>", m.UnkToken())
		id, ok := m.TokenToID("<unk>")
		require.True(t, ok)
		assert.Equal(t, 0, id)
		require.Len(t, specials, 1)

		tokens, err := m.Tokenize("abz")
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		assert.Equal(t, "ab", tokens[0].Value)
		assert.Equal(t, "<unk>", tokens[1].Value)
	})

	t.Run("Deterministic", func(t *testing.T) {
		counts := countsOf("hug", 10, "pug", 5, "pun", 12, "bun", 4, "hugs", 5)
		tr := NewBPETrainer(Options{VocabSize: 20})
		first, _, err := tr.Train(counts, nil)
		require.NoError(t, err)
		second, _, err := tr.Train(counts, nil)
		require.NoError(t, err)
		assert.Equal(t, tokensOf(t, first), tokensOf(t, second))
		assert.Equal(t, first.(*model.BPE).Merges(), second.(*model.BPE).Merges())
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		_, _, err := NewBPETrainer(Options{}).Train(countsOf("ab", 1), nil)
		assert.ErrorIs(t, err, common.ErrConfiguration)
	})
}

func TestWordPieceTrainer(t *testing.T) {
	t.Run("Vocabulary", func(t *testing.T) {
		tr := NewWordPieceTrainer(Options{VocabSize: 100})
		m, specials, err := tr.Train(countsOf("ab", 3, "abc", 1), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"[UNK]", "a", "b", "c", "##a", "##b", "##c", "ab", "abc"}, tokensOf(t, m))
		require.Len(t, specials, 1)
		assert.Equal(t, "[UNK]", specials[0].Content)

		tokens, err := m.Tokenize("abca")
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		assert.Equal(t, "abc", tokens[0].Value)
		assert.Equal(t, "##a", tokens[1].Value)
	})

	t.Run("ScoreFavoursExclusivePairs", func(t *testing.T) {
		counts := countsOf("ab", 5, "ac", 5, "de", 2)
		// 1 special + 5 characters + 5 continuations leaves room for one merge.
		m, _, err := NewWordPieceTrainer(Options{VocabSize: 12}).Train(counts, nil)
		require.NoError(t, err)
		assert.True(t, m.Vocab().Contains("de"))
		assert.False(t, m.Vocab().Contains("ab"))
	})

	t.Run("MinFrequency", func(t *testing.T) {
		counts := countsOf("ab", 5, "ac", 5, "de", 2)
		m, _, err := NewWordPieceTrainer(Options{VocabSize: 12, MinFrequency: 3}).Train(counts, nil)
		require.NoError(t, err)
		assert.True(t, m.Vocab().Contains("ab"))
		assert.False(t, m.Vocab().Contains("de"))
	})

	t.Run("CustomPrefix", func(t *testing.T) {
		m, _, err := NewWordPieceTrainer(Options{VocabSize: 100, ContinuingSubwordPrefix: "@@"}).Train(countsOf("ab", 1), nil)
		require.NoError(t, err)
		assert.True(t, m.Vocab().Contains("@@b"))
		assert.Equal(t, "@@", m.(*model.WordPiece).Config().ContinuingSubwordPrefix)
	})

	t.Run("MatchesFullRecount", func(t *testing.T) {
		tests := []struct {
			name    string
			counts  *WordCounts
			options Options
		}{
			{"Small", countsOf("hello", 4, "hell", 2, "low", 5, "lower", 2, "lowest", 1, "aaaa", 3), Options{VocabSize: 60}},
			{"Repeats", countsOf("abab", 3, "aaa", 2, "baba", 1), Options{VocabSize: 40}},
			{"ManyWords", randomCounts(4000), Options{VocabSize: 300, MinFrequency: 2}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tr := NewWordPieceTrainer(tt.options)
				m, _, err := tr.Train(tt.counts, nil)
				require.NoError(t, err)
				assert.Equal(t, recountWordPiece(tr, tt.counts), tokensOf(t, m))
			})
		}
	})
}

func randomCounts(n int) *WordCounts {
	rng := rand.New(rand.NewPCG(7, 11))
	const letters = "abcdefghijklmnop"
	wc := NewWordCounts()
	for range n {
		b := make([]byte, 2+rng.IntN(7))
		for i := range b {
			b[i] = letters[rng.IntN(len(letters))]
		}
		wc.Add(string(b), 1+rng.IntN(20))
	}
	return wc
}

// recountWordPiece trains by recounting every word before each merge.
func recountWordPiece(tr *WordPieceTrainer, counts *WordCounts) []string {
	_, vb, _, words := tr.prepare(counts, nil)
	minFreq := max(tr.opts.MinFrequency, 1)
	order := map[pair]int{}
	for vb.len() < tr.opts.VocabSize {
		symbols := map[int]int{}
		pairs := map[pair]int{}
		for _, w := range words {
			for j, id := range w.ids {
				symbols[id] += w.count
				if j+1 < len(w.ids) {
					p := pair{id, w.ids[j+1]}
					if _, ok := order[p]; !ok {
						order[p] = len(order)
					}
					pairs[p] += w.count
				}
			}
		}
		var best pair
		var bestScore float64
		found := false
		for p, c := range pairs {
			if c < minFreq {
				continue
			}
			score := float64(c) / (float64(symbols[p[0]]) * float64(symbols[p[1]]))
			if !found || score > bestScore || (score == bestScore && order[p] < order[best]) {
				best, bestScore, found = p, score, true
			}
		}
		if !found {
			break
		}
		left, right := vb.tokens[best[0]], vb.tokens[best[1]]
		newID := vb.add(left + strings.TrimPrefix(right, tr.opts.ContinuingSubwordPrefix))
		for i := range words {
			words[i].merge(best[0], best[1], newID)
		}
	}
	return vb.tokens
}
