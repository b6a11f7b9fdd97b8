package vocab

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/subword/subword/common"
)

// ReadTxt reads a vocab.txt file: one token per line, line number = id.
func ReadTxt(r io.Reader) (*Vocabulary, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocab: %v: %w", err, common.ErrCorpusIO)
	}
	v, err := New(tokens)
	if err != nil {
		return nil, fmt.Errorf("malformed vocab file: %v: %w", err, common.ErrCorpusIO)
	}
	return v, nil
}

// ReadJSON reads a vocab.json file mapping tokens to ids.
func ReadJSON(r io.Reader) (*Vocabulary, error) {
	var m map[string]int
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding vocab json: %v: %w", err, common.ErrCorpusIO)
	}
	v, err := FromMap(m)
	if err != nil {
		return nil, fmt.Errorf("malformed vocab file: %v: %w", err, common.ErrCorpusIO)
	}
	return v, nil
}

// Load reads a vocabulary file, choosing the format by extension.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocab %s: %v: %w", path, err, common.ErrCorpusIO)
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ReadJSON(f)
	}
	return ReadTxt(f)
}

// WriteTxt writes v in vocab.txt form.
func WriteTxt(w io.Writer, v *Vocabulary) error {
	bw := bufio.NewWriter(w)
	for _, t := range v.tokens {
		if _, err := bw.WriteString(t + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteJSON writes v in vocab.json form.
func WriteJSON(w io.Writer, v *Vocabulary) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v.ids)
}

// Merge is one BPE merge rule; its rank is its position in the merge list.
type Merge struct {
	Left  string
	Right string
}

// String returns the merges.txt form of m.
func (m Merge) String() string {
	return m.Left + " " + m.Right
}

// ReadMerges reads a merges.txt file. A leading "#version" line is skipped,
// blank lines are ignored and line order gives the rank.
func ReadMerges(r io.Reader) ([]Merge, error) {
	var merges []Merge
	seen := map[Merge]int{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if line == 1 && strings.HasPrefix(text, "#version") {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts := strings.Split(text, " ")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, common.Errorf(common.ErrCorpusIO, "malformed merge on line %d: %q", line, text)
		}
		m := Merge{Left: parts[0], Right: parts[1]}
		if prev, ok := seen[m]; ok {
			return nil, common.Errorf(common.ErrCorpusIO, "duplicate merge %q on lines %d and %d", text, prev, line)
		}
		seen[m] = line
		merges = append(merges, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading merges: %v: %w", err, common.ErrCorpusIO)
	}
	return merges, nil
}

// LoadMerges reads a merges file from path.
func LoadMerges(path string) ([]Merge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening merges %s: %v: %w", path, err, common.ErrCorpusIO)
	}
	defer f.Close()
	return ReadMerges(f)
}

// WriteMerges writes merges in rank order with a version header.
func WriteMerges(w io.Writer, merges []Merge) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("#version: 0.2\n"); err != nil {
		return err
	}
	for _, m := range merges {
		if _, err := bw.WriteString(m.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
