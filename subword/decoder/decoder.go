// Package decoder turns token strings back into text.
package decoder

import (
	"strings"

	"github.com/ZanzyTHEbar/subword/subword/pretokenizer"
)

// Decoder joins tokens into a string. Decoding does not undo lossy
// normalization such as lowercasing.
type Decoder interface {
	Decode(tokens []string) (string, error)
}

// cleanup undoes the spaces WordPiece joining puts before punctuation and
// English contractions.
var cleanup = strings.NewReplacer(
	" .", ".",
	" ?", "?",
	" !", "!",
	" ,", ",",
	" ' ", "'",
	" n't", "n't",
	" 'm", "'m",
	" do not", " don't",
	" 's", "'s",
	" 've", "'ve",
	" 're", "'re",
)

// WordPiece strips the continuation prefix from non-initial pieces and puts
// a space before every other piece.
type WordPiece struct {
	Prefix  string
	Cleanup bool
}

// NewWordPiece returns a decoder for "##" pieces with cleanup enabled.
func NewWordPiece() *WordPiece {
	return &WordPiece{Prefix: "##", Cleanup: true}
}

func (d *WordPiece) Decode(tokens []string) (string, error) {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			if d.Prefix != "" && strings.HasPrefix(tok, d.Prefix) {
				tok = tok[len(d.Prefix):]
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(tok)
	}
	if d.Cleanup {
		return cleanup.Replace(b.String()), nil
	}
	return b.String(), nil
}

// Metaspace turns the SentencePiece boundary glyph back into spaces.
type Metaspace struct {
	Replacement    rune
	AddPrefixSpace bool
}

// NewMetaspace returns a decoder for the default glyph.
func NewMetaspace(addPrefixSpace bool) *Metaspace {
	return &Metaspace{Replacement: pretokenizer.DefaultReplacement, AddPrefixSpace: addPrefixSpace}
}

func (d *Metaspace) replacement() rune {
	if d.Replacement == 0 {
		return pretokenizer.DefaultReplacement
	}
	return d.Replacement
}

func (d *Metaspace) Decode(tokens []string) (string, error) {
	glyph := string(d.replacement())
	var b strings.Builder
	for i, tok := range tokens {
		tok = strings.ReplaceAll(tok, glyph, " ")
		if i == 0 && d.AddPrefixSpace {
			tok = strings.TrimPrefix(tok, " ")
		}
		b.WriteString(tok)
	}
	return b.String(), nil
}

// DefaultSuffix is the usual end-of-word marker of BPE vocabularies.
const DefaultSuffix = "</w>"

// BPE replaces the end-of-word suffix with a space, dropping the last one.
type BPE struct {
	Suffix string
}

func (d *BPE) Decode(tokens []string) (string, error) {
	suffix := d.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	var b strings.Builder
	for i, tok := range tokens {
		repl := " "
		if i == len(tokens)-1 {
			repl = ""
		}
		b.WriteString(strings.ReplaceAll(tok, suffix, repl))
	}
	return b.String(), nil
}
