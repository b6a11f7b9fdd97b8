// Package encoding holds the record threaded through every pipeline stage:
// ids plus the parallel per-token metadata, and the truncation and padding
// operations applied to it.
package encoding

import (
	"slices"

	"github.com/ZanzyTHEbar/subword/subword/common"
)

// Offsets is a byte span [Start, End) into an original input sequence.
type Offsets struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Token is a single model output: an id, its string and its offsets.
type Token struct {
	ID      int
	Value   string
	Offsets Offsets
}

// Direction selects which end truncation or padding acts on.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Left || d == Right
}

// Range is a half-open position range [Start, End) inside an Encoding.
type Range struct {
	Start int
	End   int
}

// Encoding is the output of the pipeline. All per-token slices have the same length.
type Encoding struct {
	IDs               []int
	TypeIDs           []int
	Tokens            []string
	Offsets           []Offsets
	Words             []int
	SpecialTokensMask []int
	AttentionMask     []int
	Overflowing       []*Encoding

	// SequenceRanges maps a sequence id (0 for the first input, 1 for the
	// pair) to the positions holding its tokens.
	SequenceRanges map[int]Range
}

// New builds an Encoding from model tokens. words gives the word index of each
// token and may be nil.
func New(tokens []Token, words []int, typeID int) *Encoding {
	n := len(tokens)
	e := &Encoding{
		IDs:               make([]int, n),
		TypeIDs:           make([]int, n),
		Tokens:            make([]string, n),
		Offsets:           make([]Offsets, n),
		Words:             make([]int, n),
		SpecialTokensMask: make([]int, n),
		AttentionMask:     make([]int, n),
	}
	for i, t := range tokens {
		e.IDs[i] = t.ID
		e.TypeIDs[i] = typeID
		e.Tokens[i] = t.Value
		e.Offsets[i] = t.Offsets
		e.Words[i] = -1
		if words != nil {
			e.Words[i] = words[i]
		}
		e.AttentionMask[i] = 1
	}
	return e
}

// Len returns the number of tokens.
func (e *Encoding) Len() int {
	return len(e.IDs)
}

// IsEmpty reports whether the encoding holds no tokens.
func (e *Encoding) IsEmpty() bool {
	return len(e.IDs) == 0
}

// Append adds one token with explicit metadata.
func (e *Encoding) Append(t Token, typeID, word, special int) {
	e.IDs = append(e.IDs, t.ID)
	e.TypeIDs = append(e.TypeIDs, typeID)
	e.Tokens = append(e.Tokens, t.Value)
	e.Offsets = append(e.Offsets, t.Offsets)
	e.Words = append(e.Words, word)
	e.SpecialTokensMask = append(e.SpecialTokensMask, special)
	e.AttentionMask = append(e.AttentionMask, 1)
}

// Clone returns a deep copy, overflowing encodings included.
func (e *Encoding) Clone() *Encoding {
	c := e.cloneFlat()
	if e.Overflowing != nil {
		c.Overflowing = make([]*Encoding, len(e.Overflowing))
		for i, o := range e.Overflowing {
			c.Overflowing[i] = o.Clone()
		}
	}
	return c
}

func (e *Encoding) cloneFlat() *Encoding {
	c := &Encoding{
		IDs:               slices.Clone(e.IDs),
		TypeIDs:           slices.Clone(e.TypeIDs),
		Tokens:            slices.Clone(e.Tokens),
		Offsets:           slices.Clone(e.Offsets),
		Words:             slices.Clone(e.Words),
		SpecialTokensMask: slices.Clone(e.SpecialTokensMask),
		AttentionMask:     slices.Clone(e.AttentionMask),
	}
	if e.SequenceRanges != nil {
		c.SequenceRanges = make(map[int]Range, len(e.SequenceRanges))
		for k, v := range e.SequenceRanges {
			c.SequenceRanges[k] = v
		}
	}
	return c
}

// slice copies positions [start, end) without overflowing encodings.
func (e *Encoding) slice(start, end int) *Encoding {
	s := &Encoding{
		IDs:               slices.Clone(e.IDs[start:end]),
		TypeIDs:           slices.Clone(e.TypeIDs[start:end]),
		Tokens:            slices.Clone(e.Tokens[start:end]),
		Offsets:           slices.Clone(e.Offsets[start:end]),
		Words:             slices.Clone(e.Words[start:end]),
		SpecialTokensMask: slices.Clone(e.SpecialTokensMask[start:end]),
		AttentionMask:     slices.Clone(e.AttentionMask[start:end]),
	}
	for seq, r := range e.SequenceRanges {
		lo, hi := max(r.Start, start), min(r.End, end)
		if lo < hi {
			if s.SequenceRanges == nil {
				s.SequenceRanges = map[int]Range{}
			}
			s.SequenceRanges[seq] = Range{Start: lo - start, End: hi - start}
		}
	}
	return s
}

// SetTypeID overwrites every type id.
func (e *Encoding) SetTypeID(typeID int) {
	for i := range e.TypeIDs {
		e.TypeIDs[i] = typeID
	}
	for _, o := range e.Overflowing {
		o.SetTypeID(typeID)
	}
}

// SetSequenceID marks the whole encoding as belonging to sequence id.
func (e *Encoding) SetSequenceID(id int) {
	e.SequenceRanges = map[int]Range{id: {Start: 0, End: e.Len()}}
	for _, o := range e.Overflowing {
		o.SetSequenceID(id)
	}
}

// SequenceIDs returns the sequence id of every position, -1 where the
// position belongs to no input sequence.
func (e *Encoding) SequenceIDs() []int {
	out := make([]int, e.Len())
	for i := range out {
		out[i] = -1
	}
	if len(e.SequenceRanges) == 0 {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	for seq, r := range e.SequenceRanges {
		for i := r.Start; i < r.End && i < len(out); i++ {
			out[i] = seq
		}
	}
	return out
}

// MergeWith appends other to e. Overflowing encodings are combined so that the
// result covers every pairing of the two sides: each overflow of e with other
// and each of other's overflows, and e with each overflow of other.
func (e *Encoding) MergeWith(other *Encoding) {
	var overflowing []*Encoding
	for _, o := range e.Overflowing {
		n := o.cloneFlat()
		n.mergeFlat(other)
		overflowing = append(overflowing, n)
		for _, po := range other.Overflowing {
			n := o.cloneFlat()
			n.mergeFlat(po)
			overflowing = append(overflowing, n)
		}
	}
	for _, po := range other.Overflowing {
		n := e.cloneFlat()
		n.mergeFlat(po)
		overflowing = append(overflowing, n)
	}
	e.mergeFlat(other)
	e.Overflowing = overflowing
}

func (e *Encoding) mergeFlat(other *Encoding) {
	shift := e.Len()
	for seq, r := range other.SequenceRanges {
		if e.SequenceRanges == nil {
			e.SequenceRanges = map[int]Range{}
		}
		e.SequenceRanges[seq] = Range{Start: r.Start + shift, End: r.End + shift}
	}
	e.IDs = append(e.IDs, other.IDs...)
	e.TypeIDs = append(e.TypeIDs, other.TypeIDs...)
	e.Tokens = append(e.Tokens, other.Tokens...)
	e.Offsets = append(e.Offsets, other.Offsets...)
	e.Words = append(e.Words, other.Words...)
	e.SpecialTokensMask = append(e.SpecialTokensMask, other.SpecialTokensMask...)
	e.AttentionMask = append(e.AttentionMask, other.AttentionMask...)
}

// Merge concatenates encodings into a new one.
func Merge(encodings []*Encoding) *Encoding {
	out := New(nil, nil, 0)
	for _, e := range encodings {
		out.MergeWith(e)
	}
	return out
}

// Truncate keeps at most maxLength tokens, taken from the end opposite to
// direction. Removed tokens are kept as overflowing encodings: consecutive
// windows of maxLength tokens that overlap their predecessor by stride.
func (e *Encoding) Truncate(maxLength, stride int, direction Direction) error {
	n := e.Len()
	if maxLength >= n {
		return nil
	}
	if !direction.Valid() {
		return common.Errorf(common.ErrConfiguration, "unknown truncation direction %q", direction)
	}
	if maxLength == 0 {
		whole := e.cloneFlat()
		*e = *e.slice(0, 0)
		e.Overflowing = []*Encoding{whole}
		return nil
	}
	if stride < 0 || stride >= maxLength {
		return common.Errorf(common.ErrConfiguration, "stride %d must be smaller than max length %d", stride, maxLength)
	}

	step := maxLength - stride
	var windows []Range
	switch direction {
	case Right:
		for start := 0; ; start += step {
			end := min(start+maxLength, n)
			windows = append(windows, Range{Start: start, End: end})
			if end == n {
				break
			}
		}
	case Left:
		for end := n; ; end -= step {
			start := max(end-maxLength, 0)
			windows = append(windows, Range{Start: start, End: end})
			if start == 0 {
				break
			}
		}
	}

	overflowing := make([]*Encoding, 0, len(windows)-1)
	for _, w := range windows[1:] {
		overflowing = append(overflowing, e.slice(w.Start, w.End))
	}
	main := e.slice(windows[0].Start, windows[0].End)
	main.Overflowing = overflowing
	*e = *main
	return nil
}

// Pad extends the encoding to targetLength. Encodings already at least that
// long are left unchanged. Overflowing encodings are padded too.
func (e *Encoding) Pad(targetLength, padID, padTypeID int, padToken string, direction Direction) {
	for _, o := range e.Overflowing {
		o.Pad(targetLength, padID, padTypeID, padToken, direction)
	}
	missing := targetLength - e.Len()
	if missing <= 0 {
		return
	}

	ids := repeat(padID, missing)
	typeIDs := repeat(padTypeID, missing)
	tokens := repeat(padToken, missing)
	offsets := repeat(Offsets{}, missing)
	words := repeat(-1, missing)
	special := repeat(1, missing)
	attention := repeat(0, missing)

	if direction == Left {
		e.IDs = append(ids, e.IDs...)
		e.TypeIDs = append(typeIDs, e.TypeIDs...)
		e.Tokens = append(tokens, e.Tokens...)
		e.Offsets = append(offsets, e.Offsets...)
		e.Words = append(words, e.Words...)
		e.SpecialTokensMask = append(special, e.SpecialTokensMask...)
		e.AttentionMask = append(attention, e.AttentionMask...)
		for seq, r := range e.SequenceRanges {
			e.SequenceRanges[seq] = Range{Start: r.Start + missing, End: r.End + missing}
		}
		return
	}
	e.IDs = append(e.IDs, ids...)
	e.TypeIDs = append(e.TypeIDs, typeIDs...)
	e.Tokens = append(e.Tokens, tokens...)
	e.Offsets = append(e.Offsets, offsets...)
	e.Words = append(e.Words, words...)
	e.SpecialTokensMask = append(e.SpecialTokensMask, special...)
	e.AttentionMask = append(e.AttentionMask, attention...)
}

func repeat[T any](v T, n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}
