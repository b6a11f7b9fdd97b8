package vocab

import (
	"log/slog"
	"slices"
	"unicode"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring"
	"github.com/armon/go-radix"
)

// AddedToken is a token injected into the text outside the trained model.
type AddedToken struct {
	Content string `json:"content"`
	// SingleWord only matches when the token is not part of a larger word.
	SingleWord bool `json:"single_word"`
	// LStrip also consumes whitespace to the left of a match.
	LStrip bool `json:"lstrip"`
	// RStrip also consumes whitespace to the right of a match.
	RStrip bool `json:"rstrip"`
	// Normalized tokens are matched against normalized text, others against
	// the raw input.
	Normalized bool `json:"normalized"`
	Special    bool `json:"special"`
}

// NewAddedToken returns a token with the defaults for its kind: special
// tokens match raw text, ordinary ones match normalized text.
func NewAddedToken(content string, special bool) AddedToken {
	return AddedToken{Content: content, Special: special, Normalized: !special}
}

// Lookup is the part of a model the added vocabulary needs to assign ids.
type Lookup interface {
	TokenToID(token string) (int, bool)
	VocabSize() int
}

// Entry is an added token with its assigned id.
type Entry struct {
	ID int
	AddedToken
}

// Split is a byte range of a text, either matched by an added token (ID >= 0)
// or left for the model (ID == -1).
type Split struct {
	Start int
	End   int
	ID    int
}

// AddedVocabulary is an immutable set of added tokens. Mutations return a new
// value so readers keep a consistent snapshot.
type AddedVocabulary struct {
	entries  []Entry
	byText   map[string]int
	byID     map[int]int
	special  *roaring.Bitmap
	raw      *radix.Tree
	normed   *radix.Tree
	maxAdded int
}

// NewAddedVocabulary returns an empty added vocabulary.
func NewAddedVocabulary() *AddedVocabulary {
	return build(nil, nil)
}

func build(model Lookup, tokens []AddedToken) *AddedVocabulary {
	av := &AddedVocabulary{
		entries:  make([]Entry, 0, len(tokens)),
		byText:   make(map[string]int, len(tokens)),
		byID:     make(map[int]int, len(tokens)),
		special:  roaring.New(),
		raw:      radix.New(),
		normed:   radix.New(),
		maxAdded: -1,
	}
	next := 0
	if model != nil {
		next = model.VocabSize()
	}
	for _, t := range tokens {
		id := -1
		if model != nil {
			if mid, ok := model.TokenToID(t.Content); ok {
				id = mid
			}
		}
		if id < 0 {
			id = next
			next++
		}
		idx := len(av.entries)
		av.entries = append(av.entries, Entry{ID: id, AddedToken: t})
		av.byText[t.Content] = idx
		av.byID[id] = idx
		av.maxAdded = max(av.maxAdded, id)
		if t.Special {
			av.special.Add(uint32(id))
		}
		if t.Normalized {
			av.normed.Insert(t.Content, idx)
		} else {
			av.raw.Insert(t.Content, idx)
		}
	}
	return av
}

// Add returns a vocabulary extended with tokens and the number of tokens that
// received a new id. Re-adding existing content replaces its flags in place;
// empty content is ignored.
func (av *AddedVocabulary) Add(model Lookup, tokens ...AddedToken) (*AddedVocabulary, int) {
	list := make([]AddedToken, len(av.entries), len(av.entries)+len(tokens))
	for i, e := range av.entries {
		list[i] = e.AddedToken
	}
	index := make(map[string]int, len(list))
	for i, t := range list {
		index[t.Content] = i
	}
	added := 0
	for _, t := range tokens {
		if t.Content == "" {
			continue
		}
		if i, ok := index[t.Content]; ok {
			list[i] = t
			continue
		}
		index[t.Content] = len(list)
		list = append(list, t)
		if model == nil {
			added++
		} else if _, ok := model.TokenToID(t.Content); !ok {
			added++
		}
	}
	out := build(model, list)
	slog.Debug("added vocabulary extended", "requested", len(tokens), "new_ids", added, "total", len(out.entries))
	return out, added
}

// Refresh reassigns ids against a new model, keeping token order.
func (av *AddedVocabulary) Refresh(model Lookup) *AddedVocabulary {
	list := make([]AddedToken, len(av.entries))
	for i, e := range av.entries {
		list[i] = e.AddedToken
	}
	return build(model, list)
}

// Len returns the number of added tokens.
func (av *AddedVocabulary) Len() int {
	return len(av.entries)
}

// Entries returns the added tokens in insertion order.
func (av *AddedVocabulary) Entries() []Entry {
	return slices.Clone(av.entries)
}

// TokenToID returns the id of an added token.
func (av *AddedVocabulary) TokenToID(content string) (int, bool) {
	i, ok := av.byText[content]
	if !ok {
		return 0, false
	}
	return av.entries[i].ID, true
}

// IDToToken returns the content of the added token with id.
func (av *AddedVocabulary) IDToToken(id int) (string, bool) {
	i, ok := av.byID[id]
	if !ok {
		return "", false
	}
	return av.entries[i].Content, true
}

// MaxID returns the largest id held by an added token, or -1.
func (av *AddedVocabulary) MaxID() int {
	return av.maxAdded
}

// IsSpecial reports whether id belongs to a special token.
func (av *AddedVocabulary) IsSpecial(id int) bool {
	return id >= 0 && av.special.Contains(uint32(id))
}

// SpecialIDs returns a copy of the special token id set.
func (av *AddedVocabulary) SpecialIDs() *roaring.Bitmap {
	return av.special.Clone()
}

// SplitRaw finds the non-normalized added tokens in raw text.
func (av *AddedVocabulary) SplitRaw(text string) []Split {
	return av.split(av.raw, text)
}

// SplitNormalized finds the normalized added tokens in normalized text.
func (av *AddedVocabulary) SplitNormalized(text string) []Split {
	return av.split(av.normed, text)
}

// split covers text with consecutive ranges, taking at each position the
// longest added token that satisfies its matching rules.
func (av *AddedVocabulary) split(tree *radix.Tree, text string) []Split {
	if tree.Len() == 0 || text == "" {
		return []Split{{Start: 0, End: len(text), ID: -1}}
	}
	var out []Split
	last := 0
	for i := 0; i < len(text); {
		start, end, idx, ok := av.matchAt(tree, text, i, last)
		if !ok {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += max(size, 1)
			continue
		}
		if start > last {
			out = append(out, Split{Start: last, End: start, ID: -1})
		}
		out = append(out, Split{Start: start, End: end, ID: av.entries[idx].ID})
		last = end
		i = end
	}
	if last < len(text) {
		out = append(out, Split{Start: last, End: len(text), ID: -1})
	}
	return out
}

func (av *AddedVocabulary) matchAt(tree *radix.Tree, text string, i, floor int) (int, int, int, bool) {
	// try progressively shorter prefixes so a rejected single-word match can
	// fall back to a shorter token at the same position
	probe := text[i:]
	for probe != "" {
		key, value, ok := tree.LongestPrefix(probe)
		if !ok || key == "" {
			return 0, 0, 0, false
		}
		idx := value.(int)
		t := av.entries[idx]
		start, end := i, i+len(key)
		if !t.SingleWord || isWordBoundary(text, start, end) {
			if t.LStrip {
				for start > floor {
					r, size := utf8.DecodeLastRuneInString(text[:start])
					if !unicode.IsSpace(r) {
						break
					}
					start -= size
				}
			}
			if t.RStrip {
				for end < len(text) {
					r, size := utf8.DecodeRuneInString(text[end:])
					if !unicode.IsSpace(r) {
						break
					}
					end += size
				}
			}
			return start, end, idx, true
		}
		probe = key[:len(key)-1]
	}
	return 0, 0, 0, false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}
