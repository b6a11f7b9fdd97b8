package trainer

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/model"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
)

// BPETrainer learns a merge list by repeatedly merging the most frequent
// adjacent pair.
type BPETrainer struct {
	opts Options
}

// NewBPETrainer returns a trainer with opts. Invalid options fail on Train.
func NewBPETrainer(opts Options) *BPETrainer {
	return &BPETrainer{opts: opts}
}

func (t *BPETrainer) Options() Options { return t.opts }

type pair [2]int

type pairChange struct {
	pair  pair
	delta int
}

type trainWord struct {
	ids   []int
	count int
}

// merge replaces every (a, b) in w with merged and reports how the counts of
// the neighbouring pairs change.
func (w *trainWord) merge(a, b, merged int) []pairChange {
	var changes []pairChange
	out := make([]int, 0, len(w.ids))
	for i := 0; i < len(w.ids); {
		if i+1 < len(w.ids) && w.ids[i] == a && w.ids[i+1] == b {
			if len(out) > 0 {
				prev := out[len(out)-1]
				changes = append(changes, pairChange{pair{prev, a}, -1}, pairChange{pair{prev, merged}, 1})
			}
			if i+2 < len(w.ids) {
				next := w.ids[i+2]
				changes = append(changes, pairChange{pair{b, next}, -1}, pairChange{pair{merged, next}, 1})
			}
			out = append(out, merged)
			i += 2
			continue
		}
		out = append(out, w.ids[i])
		i++
	}
	w.ids = out
	return changes
}

// symbolize splits every counted word into vocabulary ids, dropping
// characters outside the alphabet. Non-initial characters carry prefix and
// the last one carries suffix.
func symbolize(counts *WordCounts, vb *vocabBuilder, keep map[rune]bool, prefix, suffix string) []trainWord {
	words := make([]trainWord, 0, counts.Len())
	for word, n := range counts.All() {
		runes := []rune(word)
		ids := make([]int, 0, len(runes))
		for i, r := range runes {
			if !keep[r] {
				continue
			}
			s := string(r)
			if i > 0 && prefix != "" {
				s = prefix + s
			}
			if i == len(runes)-1 && suffix != "" {
				s += suffix
			}
			ids = append(ids, vb.add(s))
		}
		words = append(words, trainWord{ids: ids, count: n})
	}
	return words
}

type queued struct {
	pair  pair
	count int
	order int
}

// Train implements Trainer. The unknown token of a BPE base model is kept
// and added to the special tokens when missing.
func (t *BPETrainer) Train(counts *WordCounts, base model.Model) (model.Model, []vocab.AddedToken, error) {
	if err := t.opts.Validate(); err != nil {
		return nil, nil, err
	}
	var cfg model.BPEConfig
	if b, ok := base.(*model.BPE); ok {
		cfg = b.Config()
	}
	if t.opts.ContinuingSubwordPrefix != "" {
		cfg.ContinuingSubwordPrefix = t.opts.ContinuingSubwordPrefix
	}
	if t.opts.EndOfWordSuffix != "" {
		cfg.EndOfWordSuffix = t.opts.EndOfWordSuffix
	}

	vb := newVocabBuilder()
	specials := specialList(t.opts.SpecialTokens, cfg.UnkToken)
	for _, s := range specials {
		vb.add(s)
	}
	chars := alphabet(counts, t.opts.InitialAlphabet, t.opts.LimitAlphabet)
	keep := make(map[rune]bool, len(chars))
	for _, r := range chars {
		keep[r] = true
		vb.add(string(r))
	}
	words := symbolize(counts, vb, keep, cfg.ContinuingSubwordPrefix, cfg.EndOfWordSuffix)

	pairCounts := map[pair]int{}
	firstSeen := map[pair]int{}
	where := map[pair]map[int]struct{}{}
	track := func(p pair, delta, word int) {
		if _, ok := firstSeen[p]; !ok {
			firstSeen[p] = len(firstSeen)
		}
		pairCounts[p] += delta
		if delta > 0 {
			if where[p] == nil {
				where[p] = map[int]struct{}{}
			}
			where[p][word] = struct{}{}
		}
	}
	for i, w := range words {
		for j := 0; j+1 < len(w.ids); j++ {
			track(pair{w.ids[j], w.ids[j+1]}, w.count, i)
		}
	}

	queue := heap.NewWith(func(x, y queued) int {
		if c := cmp.Compare(y.count, x.count); c != 0 {
			return c
		}
		return cmp.Compare(x.order, y.order)
	})
	for p, c := range pairCounts {
		if c > 0 {
			queue.Push(queued{pair: p, count: c, order: firstSeen[p]})
		}
	}

	var merges []vocab.Merge
	for vb.len() < t.opts.VocabSize && !queue.Empty() {
		top, _ := queue.Pop()
		if current := pairCounts[top.pair]; current != top.count {
			if current > 0 {
				top.count = current
				queue.Push(top)
			}
			continue
		}
		if top.count < max(t.opts.MinFrequency, 1) {
			break
		}

		left, right := vb.tokens[top.pair[0]], vb.tokens[top.pair[1]]
		merged := left + strings.TrimPrefix(right, cfg.ContinuingSubwordPrefix)
		newID := vb.add(merged)
		merges = append(merges, vocab.Merge{Left: left, Right: right})

		indices := make([]int, 0, len(where[top.pair]))
		for i := range where[top.pair] {
			indices = append(indices, i)
		}
		slices.Sort(indices)
		delete(where, top.pair)
		pairCounts[top.pair] = 0

		updated := map[pair]bool{}
		var updatedOrder []pair
		for _, i := range indices {
			for _, ch := range words[i].merge(top.pair[0], top.pair[1], newID) {
				track(ch.pair, ch.delta*words[i].count, i)
				if ch.delta > 0 && !updated[ch.pair] {
					updated[ch.pair] = true
					updatedOrder = append(updatedOrder, ch.pair)
				}
			}
		}
		for _, p := range updatedOrder {
			if c := pairCounts[p]; c > 0 {
				queue.Push(queued{pair: p, count: c, order: firstSeen[p]})
			}
		}
	}

	v, err := vocab.New(vb.tokens)
	if err != nil {
		return nil, nil, err
	}
	m, err := model.NewBPE(v, merges, cfg)
	if err != nil {
		return nil, nil, common.NewErrorUtils().WrapError(err, "building trained bpe model")
	}
	slog.Info("bpe training finished", "vocab_size", v.Size(), "merges", len(merges), "words", counts.Len())
	return m, specialTokens(specials), nil
}

func specialTokens(specials []string) []vocab.AddedToken {
	out := make([]vocab.AddedToken, len(specials))
	for i, s := range specials {
		out[i] = vocab.NewAddedToken(s, true)
	}
	return out
}
