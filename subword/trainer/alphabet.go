package trainer

import (
	"cmp"
	"math"
	"slices"
)

// alphabet returns the characters kept for training, sorted by code point.
// Initial characters are always kept; beyond limit the least frequent
// characters go first, higher code points before lower ones on ties.
func alphabet(counts *WordCounts, initial []rune, limit int) []rune {
	freq := map[rune]int{}
	for word, n := range counts.All() {
		for _, r := range word {
			freq[r] += n
		}
	}
	for _, r := range initial {
		freq[r] = math.MaxInt
	}

	kept := make([]rune, 0, len(freq))
	for r := range freq {
		kept = append(kept, r)
	}
	if limit > 0 && len(kept) > limit {
		slices.SortFunc(kept, func(a, b rune) int {
			if c := cmp.Compare(freq[a], freq[b]); c != 0 {
				return c
			}
			return cmp.Compare(b, a)
		})
		kept = kept[len(kept)-limit:]
	}
	slices.Sort(kept)
	return kept
}

// vocabBuilder assigns dense ids in insertion order.
type vocabBuilder struct {
	tokens []string
	ids    map[string]int
}

func newVocabBuilder() *vocabBuilder {
	return &vocabBuilder{ids: map[string]int{}}
}

func (vb *vocabBuilder) add(token string) int {
	if id, ok := vb.ids[token]; ok {
		return id
	}
	id := len(vb.tokens)
	vb.tokens = append(vb.tokens, token)
	vb.ids[token] = id
	return id
}

func (vb *vocabBuilder) len() int { return len(vb.tokens) }

// specialList returns the special tokens to insert first, appending unk when
// it is set and missing.
func specialList(specials []string, unk string) []string {
	out := slices.Clone(specials)
	if unk != "" && !slices.Contains(out, unk) {
		out = append(out, unk)
	}
	return out
}
