// Package pretokenizer splits normalized text into the pieces the model
// segments one at a time.
package pretokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/subword/subword/normalizer"
)

// PreTokenizer splits a normalized string. Every returned piece is a slice
// aligned to the same original text as its input.
type PreTokenizer interface {
	PreTokenize(n *normalizer.NormalizedString) ([]*normalizer.NormalizedString, error)
}

type behavior int

const (
	keep behavior = iota
	removed
	isolated
	mergedWithNext
)

// split walks the runes of n and cuts it according to classify.
func split(n *normalizer.NormalizedString, classify func(r rune) behavior) []*normalizer.NormalizedString {
	s := n.Normalized()
	var pieces []*normalizer.NormalizedString
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			pieces = append(pieces, n.Slice(start, end))
		}
		start = -1
	}
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch classify(r) {
		case removed:
			flush(i)
		case isolated:
			flush(i)
			pieces = append(pieces, n.Slice(i, i+size))
		case mergedWithNext:
			flush(i)
			start = i
		default:
			if start < 0 {
				start = i
			}
		}
		i += size
	}
	flush(len(s))
	return pieces
}

// IsPunctuation reports ASCII symbol ranges and Unicode punctuation.
func IsPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// Bert splits on whitespace and isolates punctuation.
type Bert struct{}

// PreTokenize drops whitespace and keeps each punctuation character as its own piece.
func (Bert) PreTokenize(n *normalizer.NormalizedString) ([]*normalizer.NormalizedString, error) {
	return split(n, func(r rune) behavior {
		switch {
		case unicode.IsSpace(r):
			return removed
		case IsPunctuation(r):
			return isolated
		}
		return keep
	}), nil
}

// WhitespaceSplit splits on whitespace only.
type WhitespaceSplit struct{}

// PreTokenize returns the maximal non-whitespace runs of n.
func (WhitespaceSplit) PreTokenize(n *normalizer.NormalizedString) ([]*normalizer.NormalizedString, error) {
	return split(n, func(r rune) behavior {
		if unicode.IsSpace(r) {
			return removed
		}
		return keep
	}), nil
}

// DefaultReplacement is the SentencePiece word boundary glyph.
const DefaultReplacement = '▁'

// Metaspace replaces spaces with a visible glyph and starts a new piece at
// each glyph, so every word carries its own boundary marker.
type Metaspace struct {
	Replacement    rune
	AddPrefixSpace bool
}

// NewMetaspace returns a Metaspace with the default glyph.
func NewMetaspace(addPrefixSpace bool) *Metaspace {
	return &Metaspace{Replacement: DefaultReplacement, AddPrefixSpace: addPrefixSpace}
}

func (m *Metaspace) replacement() rune {
	if m.Replacement == 0 {
		return DefaultReplacement
	}
	return m.Replacement
}

// PreTokenize replaces spaces with the replacement glyph and splits before each one.
func (m *Metaspace) PreTokenize(n *normalizer.NormalizedString) ([]*normalizer.NormalizedString, error) {
	glyph := m.replacement()
	n.Replace(' ', string(glyph))
	if m.AddPrefixSpace && !strings.HasPrefix(n.Normalized(), string(glyph)) {
		n.Prepend(string(glyph))
	}
	return split(n, func(r rune) behavior {
		if r == glyph {
			return mergedWithNext
		}
		return keep
	}), nil
}

// Sequence applies pre-tokenizers in order, each to the pieces of the previous.
type Sequence []PreTokenizer

// PreTokenize runs each child over the pieces of the previous one.
func (s Sequence) PreTokenize(n *normalizer.NormalizedString) ([]*normalizer.NormalizedString, error) {
	pieces := []*normalizer.NormalizedString{n}
	for _, child := range s {
		var next []*normalizer.NormalizedString
		for _, p := range pieces {
			out, err := child.PreTokenize(p)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		pieces = next
	}
	return pieces, nil
}
