// Package normalizer implements the text normalization stage. Each normalizer
// rewrites a NormalizedString in place and keeps its alignments to the
// original text.
package normalizer

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalizer rewrites text before pre-tokenization.
type Normalizer interface {
	Normalize(n *NormalizedString) error
}

// Bert is the composite BERT normalizer. Steps run in the fixed order
// clean, CJK spacing, lowercase, strip accents.
type Bert struct {
	CleanText          bool
	HandleChineseChars bool
	Lowercase          bool
	// StripAccents follows Lowercase when nil.
	StripAccents *bool
}

// NewBert returns a Bert normalizer with every step enabled.
func NewBert() *Bert {
	return &Bert{CleanText: true, HandleChineseChars: true, Lowercase: true}
}

func (b *Bert) stripAccents() bool {
	if b.StripAccents != nil {
		return *b.StripAccents
	}
	return b.Lowercase
}

// Normalize implements Normalizer.
func (b *Bert) Normalize(n *NormalizedString) error {
	if b.CleanText {
		clean(n)
	}
	if b.HandleChineseChars {
		padCJK(n)
	}
	if b.Lowercase {
		n.Lowercase()
	}
	if b.stripAccents() {
		stripAccents(n)
	}
	return nil
}

func clean(n *NormalizedString) {
	n.Transform(func(r rune) string {
		switch {
		case r == 0 || r == unicode.ReplacementChar || IsControl(r):
			return ""
		case IsWhitespace(r):
			return " "
		}
		return string(r)
	})
}

func padCJK(n *NormalizedString) {
	n.Transform(func(r rune) string {
		if IsCJK(r) {
			return " " + string(r) + " "
		}
		return string(r)
	})
}

func stripAccents(n *NormalizedString) {
	n.NormalizeForm(norm.NFD)
	n.Filter(func(r rune) bool { return !unicode.Is(unicode.Mn, r) })
}

// IsWhitespace reports the characters BERT treats as word separators.
func IsWhitespace(r rune) bool {
	return unicode.IsSpace(r)
}

// IsControl reports control, format, private use and unassigned characters.
// Tab, newline and carriage return count as whitespace instead.
func IsControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	if unicode.In(r, unicode.Cc, unicode.Cf, unicode.Co) {
		return true
	}
	return !unicode.In(r, unicode.L, unicode.M, unicode.N, unicode.P, unicode.S, unicode.Z, unicode.C)
}

// IsCJK reports Han, Hiragana, Katakana and Hangul code points.
func IsCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Form applies one Unicode normalization form.
type Form struct {
	Form norm.Form
}

func (f Form) Normalize(n *NormalizedString) error {
	n.NormalizeForm(f.Form)
	return nil
}

// NFKC returns the compatibility composition normalizer.
func NFKC() Form { return Form{Form: norm.NFKC} }

// NFC returns the canonical composition normalizer.
func NFC() Form { return Form{Form: norm.NFC} }

// NFD returns the canonical decomposition normalizer.
func NFD() Form { return Form{Form: norm.NFD} }

// NFKD returns the compatibility decomposition normalizer.
func NFKD() Form { return Form{Form: norm.NFKD} }

// Lowercase folds text to lower case.
type Lowercase struct{}

func (Lowercase) Normalize(n *NormalizedString) error {
	n.Lowercase()
	return nil
}

// StripAccents removes combining marks after canonical decomposition.
type StripAccents struct{}

func (StripAccents) Normalize(n *NormalizedString) error {
	stripAccents(n)
	return nil
}

// Sequence applies normalizers in order.
type Sequence []Normalizer

func (s Sequence) Normalize(n *NormalizedString) error {
	for _, child := range s {
		if err := child.Normalize(n); err != nil {
			return err
		}
	}
	return nil
}
