package trainer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/sourcegraph/conc/pool"
)

// WordCounts is a word frequency table that remembers the order in which
// words were first seen, so training over it is deterministic.
type WordCounts struct {
	counts map[string]int
	order  []string
}

// NewWordCounts returns an empty table.
func NewWordCounts() *WordCounts {
	return &WordCounts{counts: map[string]int{}}
}

// Add increments the count of word by n.
func (wc *WordCounts) Add(word string, n int) {
	if word == "" || n <= 0 {
		return
	}
	if _, ok := wc.counts[word]; !ok {
		wc.order = append(wc.order, word)
	}
	wc.counts[word] += n
}

// Merge adds every count of other, keeping other's first-seen order for new words.
func (wc *WordCounts) Merge(other *WordCounts) {
	for _, w := range other.order {
		wc.Add(w, other.counts[w])
	}
}

// Count returns the count of word.
func (wc *WordCounts) Count(word string) int { return wc.counts[word] }

// Len returns the number of distinct words.
func (wc *WordCounts) Len() int { return len(wc.order) }

// All iterates words in first-seen order with their counts.
func (wc *WordCounts) All() iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		for _, w := range wc.order {
			if !yield(w, wc.counts[w]) {
				return
			}
		}
	}
}

// ProcessFunc turns one line of corpus into the words to count.
type ProcessFunc func(line string) ([]string, error)

// Feed counts the words of every line. A read error from lines aborts with
// ErrCorpusIO.
func (wc *WordCounts) Feed(ctx context.Context, lines iter.Seq2[string, error], process ProcessFunc) error {
	vu := common.NewValidationUtils()
	n := 0
	for line, err := range lines {
		if err != nil {
			return fmt.Errorf("reading corpus: %v: %w", err, common.ErrCorpusIO)
		}
		n++
		if n%4096 == 0 {
			if err := vu.ValidateContextCancellation(ctx); err != nil {
				return err
			}
		}
		words, err := process(line)
		if err != nil {
			return err
		}
		for _, w := range words {
			wc.Add(w, 1)
		}
	}
	return nil
}

// Lines iterates the lines of r.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}

// Strings iterates an in-memory line list.
func Strings(lines []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, l := range lines {
			if !yield(l, nil) {
				return
			}
		}
	}
}

// CountFiles counts every file on a bounded worker pool. Per-file tables are
// merged in file order, so the result does not depend on scheduling.
func CountFiles(ctx context.Context, files []string, process ProcessFunc, workers int) (*WordCounts, error) {
	if workers <= 0 {
		workers = 1
	}
	vu := common.NewValidationUtils()
	for _, f := range files {
		if err := vu.ValidateFileExists(f); err != nil {
			return nil, err
		}
	}

	perFile := make([]*WordCounts, len(files))
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for i, path := range files {
		p.Go(func(ctx context.Context) error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening corpus %s: %v: %w", path, err, common.ErrCorpusIO)
			}
			defer f.Close()
			wc := NewWordCounts()
			if err := wc.Feed(ctx, Lines(f), process); err != nil {
				return fmt.Errorf("counting %s: %w", path, err)
			}
			perFile[i] = wc
			slog.Debug("counted corpus file", "path", path, "words", wc.Len())
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	total := NewWordCounts()
	for _, wc := range perFile {
		total.Merge(wc)
	}
	return total, nil
}
