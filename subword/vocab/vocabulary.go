// Package vocab holds the token string to id mapping of a model, its
// interchange file formats, and the added-token vocabulary layered on top.
package vocab

import (
	"slices"

	"github.com/ZanzyTHEbar/subword/subword/common"
)

// Vocabulary is an immutable bidirectional token mapping with dense ids
// starting at 0.
type Vocabulary struct {
	tokens []string
	ids    map[string]int
}

// New builds a vocabulary where a token's id is its index in tokens.
func New(tokens []string) (*Vocabulary, error) {
	v := &Vocabulary{tokens: slices.Clone(tokens), ids: make(map[string]int, len(tokens))}
	for i, t := range tokens {
		if t == "" {
			return nil, common.Errorf(common.ErrVocabulary, "empty token at id %d", i)
		}
		if prev, ok := v.ids[t]; ok {
			return nil, common.Errorf(common.ErrVocabulary, "duplicate token %q at ids %d and %d", t, prev, i)
		}
		v.ids[t] = i
	}
	return v, nil
}

// FromMap builds a vocabulary from a token to id mapping. Ids must be unique
// and cover 0..len(m)-1.
func FromMap(m map[string]int) (*Vocabulary, error) {
	tokens := make([]string, len(m))
	seen := make([]bool, len(m))
	for t, id := range m {
		if id < 0 || id >= len(m) {
			return nil, common.Errorf(common.ErrVocabulary, "token %q has id %d outside the dense range 0..%d", t, id, len(m)-1)
		}
		if seen[id] {
			return nil, common.Errorf(common.ErrVocabulary, "duplicate id %d for tokens %q and %q", id, tokens[id], t)
		}
		seen[id] = true
		tokens[id] = t
	}
	return New(tokens)
}

// TokenToID returns the id of token.
func (v *Vocabulary) TokenToID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// IDToToken returns the token with the given id.
func (v *Vocabulary) IDToToken(id int) (string, bool) {
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// Contains reports whether token is in the vocabulary.
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.ids[token]
	return ok
}

// Size returns the number of tokens.
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// Tokens returns the tokens ordered by id.
func (v *Vocabulary) Tokens() []string {
	return slices.Clone(v.tokens)
}

// Map returns a copy of the token to id mapping.
func (v *Vocabulary) Map() map[string]int {
	out := make(map[string]int, len(v.ids))
	for t, id := range v.ids {
		out[t] = id
	}
	return out
}
