// Package model implements the subword segmentation algorithms: WordPiece
// greedy longest match and BPE rank-ordered merges.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
)

// Model segments one pre-token into vocabulary entries. Token offsets are
// byte offsets into the word passed to Tokenize.
type Model interface {
	Tokenize(word string) ([]encoding.Token, error)
	TokenToID(token string) (int, bool)
	IDToToken(id int) (string, bool)
	VocabSize() int
	Vocab() *vocab.Vocabulary
	UnkToken() string
	// Save writes the interchange files into dir and returns their paths.
	Save(dir, prefix string) ([]string, error)
	json.Marshaler
}

type typeJSON struct {
	Type string `json:"type"`
}

// FromJSON decodes a model from its tagged JSON form.
func FromJSON(data []byte) (Model, error) {
	var head typeJSON
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding model: %v: %w", err, common.ErrConfiguration)
	}
	var (
		m   Model
		err error
	)
	switch head.Type {
	case "WordPiece":
		m, err = wordPieceFromJSON(data)
	case "BPE":
		m, err = bpeFromJSON(data)
	default:
		return nil, common.Errorf(common.ErrConfiguration, "unknown model type %q", head.Type)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func fileName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "-" + name
}

func writeFile(dir, name string, write func(f *os.File) error) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %v: %w", path, err, common.ErrCorpusIO)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %v: %w", path, err, common.ErrCorpusIO)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %v: %w", path, err, common.ErrCorpusIO)
	}
	return path, nil
}
