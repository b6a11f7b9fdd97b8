package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
	"github.com/armon/go-radix"
)

// WordPieceConfig holds the WordPiece options.
type WordPieceConfig struct {
	UnkToken                string `mapstructure:"unk_token"`
	ContinuingSubwordPrefix string `mapstructure:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int    `mapstructure:"max_input_chars_per_word"`
}

// DefaultWordPieceConfig returns the BERT defaults.
func DefaultWordPieceConfig() WordPieceConfig {
	return WordPieceConfig{
		UnkToken:                "[UNK]",
		ContinuingSubwordPrefix: "##",
		MaxInputCharsPerWord:    100,
	}
}

func (c WordPieceConfig) withDefaults() WordPieceConfig {
	d := DefaultWordPieceConfig()
	if c.UnkToken == "" {
		c.UnkToken = d.UnkToken
	}
	if c.MaxInputCharsPerWord <= 0 {
		c.MaxInputCharsPerWord = d.MaxInputCharsPerWord
	}
	return c
}

// WordPiece segments words by greedy longest-match-first lookup.
type WordPiece struct {
	vocab *vocab.Vocabulary
	cfg   WordPieceConfig
	trie  *radix.Tree
	unkID int
}

// NewWordPiece builds a WordPiece model. The unknown token must be in v.
// An empty ContinuingSubwordPrefix is kept as is; use DefaultWordPieceConfig
// for "##".
func NewWordPiece(v *vocab.Vocabulary, cfg WordPieceConfig) (*WordPiece, error) {
	cfg = cfg.withDefaults()
	unkID, ok := v.TokenToID(cfg.UnkToken)
	if !ok {
		return nil, common.Errorf(common.ErrVocabulary, "unknown token %q is not in the vocabulary", cfg.UnkToken)
	}
	trie := radix.New()
	for id, t := range v.Tokens() {
		trie.Insert(t, id)
	}
	return &WordPiece{vocab: v, cfg: cfg, trie: trie, unkID: unkID}, nil
}

// NewWordPieceFromFile loads a vocab.txt or vocab.json file.
func NewWordPieceFromFile(path string, cfg WordPieceConfig) (*WordPiece, error) {
	v, err := vocab.Load(path)
	if err != nil {
		return nil, err
	}
	return NewWordPiece(v, cfg)
}

// Config returns the model options.
func (wp *WordPiece) Config() WordPieceConfig { return wp.cfg }

func (wp *WordPiece) TokenToID(token string) (int, bool) { return wp.vocab.TokenToID(token) }
func (wp *WordPiece) IDToToken(id int) (string, bool)    { return wp.vocab.IDToToken(id) }
func (wp *WordPiece) VocabSize() int                     { return wp.vocab.Size() }
func (wp *WordPiece) Vocab() *vocab.Vocabulary           { return wp.vocab }
func (wp *WordPiece) UnkToken() string                   { return wp.cfg.UnkToken }

// Tokenize implements Model. A word with no complete decomposition, or one
// longer than MaxInputCharsPerWord, becomes a single unknown token.
func (wp *WordPiece) Tokenize(word string) ([]encoding.Token, error) {
	if word == "" {
		return nil, nil
	}
	unk := []encoding.Token{{ID: wp.unkID, Value: wp.cfg.UnkToken, Offsets: encoding.Offsets{Start: 0, End: len(word)}}}
	if utf8.RuneCountInString(word) > wp.cfg.MaxInputCharsPerWord {
		return unk, nil
	}

	prefix := wp.cfg.ContinuingSubwordPrefix
	var tokens []encoding.Token
	for start := 0; start < len(word); {
		query, skip := word[start:], 0
		if start > 0 {
			query, skip = prefix+word[start:], len(prefix)
		}
		key, value, ok := wp.trie.LongestPrefix(query)
		if !ok || len(key) <= skip {
			slog.Debug("wordpiece fallback to unknown token", "word", word, "position", start)
			return unk, nil
		}
		end := start + len(key) - skip
		tokens = append(tokens, encoding.Token{
			ID:      value.(int),
			Value:   key,
			Offsets: encoding.Offsets{Start: start, End: end},
		})
		start = end
	}
	return tokens, nil
}

// Save writes vocab.txt.
func (wp *WordPiece) Save(dir, prefix string) ([]string, error) {
	path, err := writeFile(dir, fileName(prefix, "vocab.txt"), func(f *os.File) error {
		return vocab.WriteTxt(f, wp.vocab)
	})
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

type wordPieceJSON struct {
	Type                    string         `json:"type"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix string         `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
	Vocab                   map[string]int `json:"vocab"`
}

func (wp *WordPiece) MarshalJSON() ([]byte, error) {
	return json.Marshal(wordPieceJSON{
		Type:                    "WordPiece",
		UnkToken:                wp.cfg.UnkToken,
		ContinuingSubwordPrefix: wp.cfg.ContinuingSubwordPrefix,
		MaxInputCharsPerWord:    wp.cfg.MaxInputCharsPerWord,
		Vocab:                   wp.vocab.Map(),
	})
}

func wordPieceFromJSON(data []byte) (*WordPiece, error) {
	var doc wordPieceJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding wordpiece: %v: %w", err, common.ErrConfiguration)
	}
	v, err := vocab.FromMap(doc.Vocab)
	if err != nil {
		return nil, err
	}
	return NewWordPiece(v, WordPieceConfig{
		UnkToken:                doc.UnkToken,
		ContinuingSubwordPrefix: doc.ContinuingSubwordPrefix,
		MaxInputCharsPerWord:    doc.MaxInputCharsPerWord,
	})
}
