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

// WordPieceTrainer builds a WordPiece vocabulary by likelihood-scored merges.
// Each round merges the adjacent pair (a, b) maximising
//
//	count(ab) / (count(a) * count(b))
//
// over pairs seen at least MinFrequency times, so pieces that mostly occur
// together win over pieces that are merely frequent. Ties go to the pair that
// first appeared in the corpus, or first appeared after a merge.
type WordPieceTrainer struct {
	opts Options
}

// NewWordPieceTrainer returns a trainer with opts. An empty continuation
// prefix defaults to "##".
func NewWordPieceTrainer(opts Options) *WordPieceTrainer {
	if opts.ContinuingSubwordPrefix == "" {
		opts.ContinuingSubwordPrefix = model.DefaultWordPieceConfig().ContinuingSubwordPrefix
	}
	return &WordPieceTrainer{opts: opts}
}

func (t *WordPieceTrainer) Options() Options { return t.opts }

type scored struct {
	pair  pair
	score float64
	order int
}

// prepare builds the initial vocabulary (specials, alphabet, continuation
// alphabet) and splits every word into symbols.
func (t *WordPieceTrainer) prepare(counts *WordCounts, base model.Model) (model.WordPieceConfig, *vocabBuilder, []string, []trainWord) {
	cfg := model.DefaultWordPieceConfig()
	if wp, ok := base.(*model.WordPiece); ok {
		cfg = wp.Config()
	}
	cfg.ContinuingSubwordPrefix = t.opts.ContinuingSubwordPrefix
	prefix := cfg.ContinuingSubwordPrefix

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
	for _, r := range chars {
		vb.add(prefix + string(r))
	}
	return cfg, vb, specials, symbolize(counts, vb, keep, prefix, "")
}

// Train implements Trainer. The unknown token of the base model, or "[UNK]",
// is added to the special tokens when missing.
func (t *WordPieceTrainer) Train(counts *WordCounts, base model.Model) (model.Model, []vocab.AddedToken, error) {
	if err := t.opts.Validate(); err != nil {
		return nil, nil, err
	}
	cfg, vb, specials, words := t.prepare(counts, base)
	minFreq := max(t.opts.MinFrequency, 1)
	stats := newPieceStats(words)

	// Entries go stale when a pair or one of its symbols changes count; the
	// changed pair is pushed again with its new score.
	queue := heap.NewWith(func(x, y scored) int {
		if c := cmp.Compare(y.score, x.score); c != 0 {
			return c
		}
		return cmp.Compare(x.order, y.order)
	})
	push := func(p pair) {
		if stats.pairs[p] >= minFreq {
			queue.Push(scored{pair: p, score: stats.score(p), order: stats.order[p]})
		}
	}
	for p := range stats.pairs {
		push(p)
	}

	rounds := 0
	for vb.len() < t.opts.VocabSize {
		top, ok := queue.Pop()
		if !ok {
			break
		}
		if stats.pairs[top.pair] < minFreq || stats.score(top.pair) != top.score {
			continue
		}
		left, right := vb.tokens[top.pair[0]], vb.tokens[top.pair[1]]
		newID := vb.add(left + strings.TrimPrefix(right, cfg.ContinuingSubwordPrefix))
		for _, p := range stats.merge(words, top.pair, newID) {
			push(p)
		}
		rounds++
	}

	v, err := vocab.New(vb.tokens)
	if err != nil {
		return nil, nil, err
	}
	m, err := model.NewWordPiece(v, cfg)
	if err != nil {
		return nil, nil, common.NewErrorUtils().WrapError(err, "building trained wordpiece model")
	}
	slog.Info("wordpiece training finished", "vocab_size", v.Size(), "rounds", rounds, "words", counts.Len())
	return m, specialTokens(specials), nil
}

// pieceStats keeps pair and symbol counts in step with the words as pairs
// are merged.
type pieceStats struct {
	pairs    map[pair]int
	symbols  map[int]int
	order    map[pair]int
	where    map[pair]map[int]struct{}
	bySymbol map[int]map[pair]struct{}
}

func newPieceStats(words []trainWord) *pieceStats {
	s := &pieceStats{
		pairs:    map[pair]int{},
		symbols:  map[int]int{},
		order:    map[pair]int{},
		where:    map[pair]map[int]struct{}{},
		bySymbol: map[int]map[pair]struct{}{},
	}
	for i, w := range words {
		for j, id := range w.ids {
			s.symbols[id] += w.count
			if j+1 < len(w.ids) {
				p := pair{id, w.ids[j+1]}
				s.note(p)
				s.add(p, w.count, i)
			}
		}
	}
	return s
}

func (s *pieceStats) score(p pair) float64 {
	return float64(s.pairs[p]) / (float64(s.symbols[p[0]]) * float64(s.symbols[p[1]]))
}

// note indexes p by its symbols. The first call fixes its tie-break order.
func (s *pieceStats) note(p pair) {
	if _, ok := s.order[p]; !ok {
		s.order[p] = len(s.order)
	}
	for _, id := range p {
		if s.bySymbol[id] == nil {
			s.bySymbol[id] = map[pair]struct{}{}
		}
		s.bySymbol[id][p] = struct{}{}
	}
}

func (s *pieceStats) add(p pair, delta, word int) {
	s.pairs[p] += delta
	if s.pairs[p] <= 0 {
		delete(s.pairs, p)
	}
	if delta > 0 {
		if s.where[p] == nil {
			s.where[p] = map[int]struct{}{}
		}
		s.where[p][word] = struct{}{}
	}
}

// merge rewrites the words holding best and returns every pair whose score
// may have changed.
func (s *pieceStats) merge(words []trainWord, best pair, newID int) []pair {
	indices := make([]int, 0, len(s.where[best]))
	for i := range s.where[best] {
		indices = append(indices, i)
	}
	slices.Sort(indices)
	delete(s.where, best)

	touched := map[pair]bool{}
	var out []pair
	mark := func(p pair) {
		if !touched[p] {
			touched[p] = true
			out = append(out, p)
		}
	}

	for _, i := range indices {
		w := &words[i]
		before := len(w.ids)
		changes := w.merge(best[0], best[1], newID)
		n := (before - len(w.ids)) * w.count
		if n == 0 {
			continue
		}
		s.symbols[best[0]] -= n
		s.symbols[best[1]] -= n
		s.symbols[newID] += n
		for j := 0; j+1 < len(w.ids); j++ {
			s.note(pair{w.ids[j], w.ids[j+1]})
		}
		for _, ch := range changes {
			if ch.pair == best {
				continue
			}
			s.add(ch.pair, ch.delta*w.count, i)
			mark(ch.pair)
		}
	}
	delete(s.pairs, best)

	for _, id := range []int{best[0], best[1], newID} {
		for p := range s.bySymbol[id] {
			if s.pairs[p] == 0 {
				delete(s.bySymbol[id], p)
				continue
			}
			mark(p)
		}
	}
	return out
}
