package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
)

type pieceKind int

const (
	sequenceA pieceKind = iota
	sequenceB
	special
)

// piece is one element of a template: an input sequence or a special token,
// with the type id its tokens get.
type piece struct {
	kind   pieceKind
	token  string
	typeID int
}

func (p piece) String() string {
	switch p.kind {
	case sequenceA:
		return fmt.Sprintf("$A:%d", p.typeID)
	case sequenceB:
		return fmt.Sprintf("$B:%d", p.typeID)
	}
	return fmt.Sprintf("%s:%d", p.token, p.typeID)
}

type template []piece

func (t template) String() string {
	parts := make([]string, len(t))
	for i, p := range t {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}

func (t template) specials() int {
	n := 0
	for _, p := range t {
		if p.kind == special {
			n++
		}
	}
	return n
}

// parseTemplate reads a whitespace separated list of pieces: $A, $B or a
// special token, each optionally suffixed with :typeID.
func parseTemplate(s string, specials map[string]SpecialToken, pair bool) (template, error) {
	var out template
	var seenA, seenB int
	for _, field := range strings.Fields(s) {
		name, typeID := field, 0
		if i := strings.LastIndexByte(field, ':'); i > 0 {
			if n, err := strconv.Atoi(field[i+1:]); err == nil {
				name, typeID = field[:i], n
			}
		}
		if typeID < 0 {
			return nil, common.Errorf(common.ErrConfiguration, "negative type id in template piece %q", field)
		}
		switch name {
		case "$A", "$0", "$":
			seenA++
			out = append(out, piece{kind: sequenceA, typeID: typeID})
		case "$B", "$1":
			seenB++
			out = append(out, piece{kind: sequenceB, typeID: typeID})
		default:
			if strings.HasPrefix(name, "$") {
				return nil, common.Errorf(common.ErrConfiguration, "unknown sequence %q in template", name)
			}
			if _, ok := specials[name]; !ok {
				return nil, common.Errorf(common.ErrConfiguration, "template uses undeclared special token %q", name)
			}
			out = append(out, piece{kind: special, token: name, typeID: typeID})
		}
	}
	switch {
	case seenA != 1:
		return nil, common.Errorf(common.ErrConfiguration, "template %q must contain $A exactly once", s)
	case pair && seenB != 1:
		return nil, common.Errorf(common.ErrConfiguration, "pair template %q must contain $B exactly once", s)
	case !pair && seenB != 0:
		return nil, common.Errorf(common.ErrConfiguration, "single template %q must not contain $B", s)
	}
	return out, nil
}

// Template inserts special tokens according to a single-sequence template
// and a pair template, for example
//
//	single: "[CLS] $A [SEP]"
//	pair:   "[CLS] $A [SEP] $B:1 [SEP]:1"
type Template struct {
	ownership
	single   template
	pair     template
	specials []SpecialToken
	byToken  map[string]SpecialToken
}

// NewTemplate parses both templates. Every special token they name must be
// listed in specials. An empty pair template rejects pair inputs.
func NewTemplate(single, pair string, specials []SpecialToken) (*Template, error) {
	byToken := make(map[string]SpecialToken, len(specials))
	for _, s := range specials {
		if _, dup := byToken[s.Token]; dup {
			return nil, common.Errorf(common.ErrConfiguration, "duplicate special token %q", s.Token)
		}
		byToken[s.Token] = s
	}
	t := &Template{specials: specials, byToken: byToken}
	var err error
	if t.single, err = parseTemplate(single, byToken, false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(pair) != "" {
		if t.pair, err = parseTemplate(pair, byToken, true); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Single returns the single-sequence template in canonical form.
func (t *Template) Single() string { return t.single.String() }

// Pair returns the pair template in canonical form, empty when unset.
func (t *Template) Pair() string { return t.pair.String() }

// AddedTokens counts the special tokens the single or pair template inserts.
func (t *Template) AddedTokens(isPair bool) int {
	if isPair {
		return t.pair.specials()
	}
	return t.single.specials()
}

// SpecialTokens returns a copy of the template's special tokens.
func (t *Template) SpecialTokens() []SpecialToken {
	out := make([]SpecialToken, len(t.specials))
	copy(out, t.specials)
	return out
}

// Process lays the template over enc and pair, and over every overflow
// combination. Without special tokens the sequences are only concatenated.
func (t *Template) Process(enc, pair *encoding.Encoding, addSpecialTokens bool) (*encoding.Encoding, error) {
	if !addSpecialTokens {
		return concat(enc, pair), nil
	}
	if pair == nil {
		out := t.apply(t.single, enc, nil)
		for _, o := range enc.Overflowing {
			out.Overflowing = append(out.Overflowing, t.apply(t.single, o, nil))
		}
		return out, nil
	}
	if t.pair == nil {
		return nil, common.Errorf(common.ErrConfiguration, "post-processor has no pair template")
	}
	out := t.apply(t.pair, enc, pair)
	for _, o := range enc.Overflowing {
		out.Overflowing = append(out.Overflowing, t.apply(t.pair, o, pair))
		for _, po := range pair.Overflowing {
			out.Overflowing = append(out.Overflowing, t.apply(t.pair, o, po))
		}
	}
	for _, po := range pair.Overflowing {
		out.Overflowing = append(out.Overflowing, t.apply(t.pair, enc, po))
	}
	return out, nil
}

// apply lays out one template over a and b, ignoring their overflows.
func (t *Template) apply(tmpl template, a, b *encoding.Encoding) *encoding.Encoding {
	out := encoding.New(nil, nil, 0)
	for _, p := range tmpl {
		switch p.kind {
		case sequenceA, sequenceB:
			src, seq := a, 0
			if p.kind == sequenceB {
				src, seq = b, 1
			}
			part := src.Clone()
			part.Overflowing = nil
			part.SetTypeID(p.typeID)
			part.SetSequenceID(seq)
			out.MergeWith(part)
		case special:
			st := t.byToken[p.token]
			out.Append(encoding.Token{ID: st.ID, Value: st.Token}, p.typeID, -1, 1)
		}
	}
	return out
}
