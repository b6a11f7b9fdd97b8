package model

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity is the number of words the BPE cache keeps.
const DefaultCacheCapacity = 10000

// BPEConfig holds the BPE options.
type BPEConfig struct {
	// UnkToken is optional; without it unknown symbols are dropped.
	UnkToken                string  `mapstructure:"unk_token"`
	ContinuingSubwordPrefix string  `mapstructure:"continuing_subword_prefix"`
	EndOfWordSuffix         string  `mapstructure:"end_of_word_suffix"`
	Dropout                 float64 `mapstructure:"dropout"`
	FuseUnk                 bool    `mapstructure:"fuse_unk"`
	// Seed drives dropout. Zero picks a random seed.
	Seed          uint64 `mapstructure:"seed"`
	CacheCapacity int    `mapstructure:"cache_capacity"`
}

type mergeRule struct {
	rank  int
	newID int
}

// BPE segments words by applying ranked merges, lowest rank first.
type BPE struct {
	vocab  *vocab.Vocabulary
	merges []vocab.Merge
	ranks  map[[2]int]mergeRule
	cfg    BPEConfig
	unkID  int
	cache  *lru.Cache[string, []encoding.Token]

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewBPE builds a BPE model. Every merge must reference tokens of v and its
// result must be in v.
func NewBPE(v *vocab.Vocabulary, merges []vocab.Merge, cfg BPEConfig) (*BPE, error) {
	if cfg.Dropout < 0 || cfg.Dropout > 1 {
		return nil, common.Errorf(common.ErrConfiguration, "dropout %v must be within [0, 1]", cfg.Dropout)
	}
	b := &BPE{
		vocab:  v,
		merges: slices.Clone(merges),
		ranks:  make(map[[2]int]mergeRule, len(merges)),
		cfg:    cfg,
		unkID:  -1,
	}
	if cfg.UnkToken != "" {
		id, ok := v.TokenToID(cfg.UnkToken)
		if !ok {
			return nil, common.Errorf(common.ErrVocabulary, "unknown token %q is not in the vocabulary", cfg.UnkToken)
		}
		b.unkID = id
	}
	for rank, m := range merges {
		left, ok := v.TokenToID(m.Left)
		if !ok {
			return nil, common.Errorf(common.ErrVocabulary, "merge %d references unknown token %q", rank, m.Left)
		}
		right, ok := v.TokenToID(m.Right)
		if !ok {
			return nil, common.Errorf(common.ErrVocabulary, "merge %d references unknown token %q", rank, m.Right)
		}
		merged := b.mergedToken(m)
		newID, ok := v.TokenToID(merged)
		if !ok {
			return nil, common.Errorf(common.ErrVocabulary, "merge %d produces %q which is not in the vocabulary", rank, merged)
		}
		key := [2]int{left, right}
		if _, dup := b.ranks[key]; dup {
			return nil, common.Errorf(common.ErrVocabulary, "duplicate merge %q", m.String())
		}
		b.ranks[key] = mergeRule{rank: rank, newID: newID}
	}

	capacity := cfg.CacheCapacity
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}
	if capacity > 0 {
		cache, err := lru.New[string, []encoding.Token](capacity)
		if err != nil {
			return nil, fmt.Errorf("creating bpe cache: %v: %w", err, common.ErrConfiguration)
		}
		b.cache = cache
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	b.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return b, nil
}

// NewBPEFromFiles loads a vocab file and a merges file.
func NewBPEFromFiles(vocabPath, mergesPath string, cfg BPEConfig) (*BPE, error) {
	v, err := vocab.Load(vocabPath)
	if err != nil {
		return nil, err
	}
	merges, err := vocab.LoadMerges(mergesPath)
	if err != nil {
		return nil, err
	}
	b, err := NewBPE(v, merges, cfg)
	if err != nil {
		if common.Kind(err) == common.ErrVocabulary {
			return nil, fmt.Errorf("inconsistent merges file %s: %v: %w", mergesPath, err, common.ErrCorpusIO)
		}
		return nil, err
	}
	return b, nil
}

// mergedToken is the token a merge produces: the right side loses its
// continuation prefix.
func (b *BPE) mergedToken(m vocab.Merge) string {
	right := m.Right
	if p := b.cfg.ContinuingSubwordPrefix; p != "" {
		right = strings.TrimPrefix(right, p)
	}
	return m.Left + right
}

// Config returns the model options.
func (b *BPE) Config() BPEConfig { return b.cfg }

// Merges returns the merge list in rank order.
func (b *BPE) Merges() []vocab.Merge { return slices.Clone(b.merges) }

func (b *BPE) TokenToID(token string) (int, bool) { return b.vocab.TokenToID(token) }
func (b *BPE) IDToToken(id int) (string, bool)    { return b.vocab.IDToToken(id) }
func (b *BPE) VocabSize() int                     { return b.vocab.Size() }
func (b *BPE) Vocab() *vocab.Vocabulary           { return b.vocab }
func (b *BPE) UnkToken() string                   { return b.cfg.UnkToken }

type symbol struct {
	id         int
	start, end int
	prev, next int
	removed    bool
}

type candidate struct {
	rank  int
	pos   int
	newID int
}

// Tokenize implements Model.
func (b *BPE) Tokenize(word string) ([]encoding.Token, error) {
	if word == "" {
		return nil, nil
	}
	useCache := b.cache != nil && b.cfg.Dropout == 0
	if useCache {
		if hit, ok := b.cache.Get(word); ok {
			return slices.Clone(hit), nil
		}
	}

	symbols := b.initialSymbols(word)
	b.mergeAll(symbols)

	tokens := make([]encoding.Token, 0, len(symbols))
	for _, s := range symbols {
		if s.removed {
			continue
		}
		value, _ := b.vocab.IDToToken(s.id)
		tokens = append(tokens, encoding.Token{ID: s.id, Value: value, Offsets: encoding.Offsets{Start: s.start, End: s.end}})
	}
	if useCache {
		b.cache.Add(word, slices.Clone(tokens))
	}
	return tokens, nil
}

func (b *BPE) initialSymbols(word string) []symbol {
	symbols := make([]symbol, 0, utf8.RuneCountInString(word))
	for i := 0; i < len(word); {
		_, size := utf8.DecodeRuneInString(word[i:])
		size = max(size, 1)
		piece := word[i : i+size]
		if i > 0 && b.cfg.ContinuingSubwordPrefix != "" {
			piece = b.cfg.ContinuingSubwordPrefix + piece
		}
		if i+size == len(word) && b.cfg.EndOfWordSuffix != "" {
			piece += b.cfg.EndOfWordSuffix
		}

		id, ok := b.vocab.TokenToID(piece)
		switch {
		case ok:
		case b.unkID < 0:
			slog.Debug("bpe dropped symbol missing from the vocabulary", "symbol", piece, "word", word)
			i += size
			continue
		case b.cfg.FuseUnk && len(symbols) > 0 && symbols[len(symbols)-1].id == b.unkID:
			symbols[len(symbols)-1].end = i + size
			i += size
			continue
		default:
			id = b.unkID
		}
		symbols = append(symbols, symbol{id: id, start: i, end: i + size, prev: len(symbols) - 1, next: len(symbols) + 1})
		i += size
	}
	if len(symbols) > 0 {
		symbols[len(symbols)-1].next = -1
	}
	return symbols
}

func (b *BPE) skipMerge() bool {
	if b.cfg.Dropout <= 0 {
		return false
	}
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Float64() < b.cfg.Dropout
}

// mergeAll applies merges in rank order, leftmost first among equal ranks.
// Merges skipped by dropout go back to the queue after the next merge is taken.
func (b *BPE) mergeAll(symbols []symbol) {
	queue := heap.NewWith(func(x, y candidate) int {
		if c := cmp.Compare(x.rank, y.rank); c != 0 {
			return c
		}
		return cmp.Compare(x.pos, y.pos)
	})
	push := func(pos int) {
		if pos < 0 || symbols[pos].next < 0 {
			return
		}
		if rule, ok := b.ranks[[2]int{symbols[pos].id, symbols[symbols[pos].next].id}]; ok {
			queue.Push(candidate{rank: rule.rank, pos: pos, newID: rule.newID})
		}
	}
	for i := range symbols {
		push(i)
	}

	var skipped []candidate
	for !queue.Empty() {
		top, _ := queue.Pop()
		if b.skipMerge() {
			skipped = append(skipped, top)
			continue
		}
		for _, s := range skipped {
			queue.Push(s)
		}
		skipped = skipped[:0]

		left := &symbols[top.pos]
		if left.removed || left.next < 0 {
			continue
		}
		right := &symbols[left.next]
		rule, ok := b.ranks[[2]int{left.id, right.id}]
		if !ok || rule.newID != top.newID {
			continue
		}

		left.id = top.newID
		left.end = right.end
		left.next = right.next
		right.removed = true
		if left.next >= 0 {
			symbols[left.next].prev = top.pos
		}
		push(left.prev)
		push(top.pos)
	}
}

// Save writes vocab.json and merges.txt.
func (b *BPE) Save(dir, prefix string) ([]string, error) {
	vocabPath, err := writeFile(dir, fileName(prefix, "vocab.json"), func(f *os.File) error {
		return vocab.WriteJSON(f, b.vocab)
	})
	if err != nil {
		return nil, err
	}
	mergesPath, err := writeFile(dir, fileName(prefix, "merges.txt"), func(f *os.File) error {
		return vocab.WriteMerges(f, b.merges)
	})
	if err != nil {
		return nil, err
	}
	return []string{vocabPath, mergesPath}, nil
}

type bpeJSON struct {
	Type                    string         `json:"type"`
	Dropout                 *float64       `json:"dropout"`
	UnkToken                *string        `json:"unk_token"`
	ContinuingSubwordPrefix *string        `json:"continuing_subword_prefix"`
	EndOfWordSuffix         *string        `json:"end_of_word_suffix"`
	FuseUnk                 bool           `json:"fuse_unk"`
	Vocab                   map[string]int `json:"vocab"`
	Merges                  []string       `json:"merges"`
}

func optional[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (b *BPE) MarshalJSON() ([]byte, error) {
	merges := make([]string, len(b.merges))
	for i, m := range b.merges {
		merges[i] = m.String()
	}
	return json.Marshal(bpeJSON{
		Type:                    "BPE",
		Dropout:                 optional(b.cfg.Dropout),
		UnkToken:                optional(b.cfg.UnkToken),
		ContinuingSubwordPrefix: optional(b.cfg.ContinuingSubwordPrefix),
		EndOfWordSuffix:         optional(b.cfg.EndOfWordSuffix),
		FuseUnk:                 b.cfg.FuseUnk,
		Vocab:                   b.vocab.Map(),
		Merges:                  merges,
	})
}

func bpeFromJSON(data []byte) (*BPE, error) {
	var doc bpeJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding bpe: %v: %w", err, common.ErrConfiguration)
	}
	v, err := vocab.FromMap(doc.Vocab)
	if err != nil {
		return nil, err
	}
	merges := make([]vocab.Merge, len(doc.Merges))
	for i, line := range doc.Merges {
		left, right, ok := strings.Cut(line, " ")
		if !ok || left == "" || right == "" || strings.Contains(right, " ") {
			return nil, common.Errorf(common.ErrConfiguration, "malformed merge %q", line)
		}
		merges[i] = vocab.Merge{Left: left, Right: right}
	}
	return NewBPE(v, merges, BPEConfig{
		UnkToken:                deref(doc.UnkToken),
		ContinuingSubwordPrefix: deref(doc.ContinuingSubwordPrefix),
		EndOfWordSuffix:         deref(doc.EndOfWordSuffix),
		Dropout:                 deref(doc.Dropout),
		FuseUnk:                 doc.FuseUnk,
	})
}
