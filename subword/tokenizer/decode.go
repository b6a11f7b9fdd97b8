package tokenizer

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/sourcegraph/conc/pool"
)

// specialIDs returns the ids of added special tokens and of the tokens the
// post-processor inserts.
func (p *pipeline) specialIDs() *roaring.Bitmap {
	ids := p.added.SpecialIDs()
	if p.processor != nil {
		for _, st := range p.processor.SpecialTokens() {
			ids.Add(uint32(st.ID))
		}
	}
	return ids
}

func (p *pipeline) decode(ids []int, skipSpecialTokens bool) (string, error) {
	var skip *roaring.Bitmap
	if skipSpecialTokens {
		skip = p.specialIDs()
	}
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if skip != nil && id >= 0 && skip.Contains(uint32(id)) {
			continue
		}
		if tok, ok := p.idToToken(id); ok {
			tokens = append(tokens, tok)
		}
	}
	if p.decoder == nil {
		return strings.Join(tokens, " "), nil
	}
	return p.decoder.Decode(tokens)
}

// Decode turns ids back into text. Unknown ids are skipped.
func (t *Tokenizer) Decode(ids []int, skipSpecialTokens bool) (string, error) {
	defer t.begin()()
	return t.state.Load().decode(ids, skipSpecialTokens)
}

// DecodeBatch decodes every id list in parallel, keeping the input order.
func (t *Tokenizer) DecodeBatch(batch [][]int, skipSpecialTokens bool) ([]string, error) {
	defer t.begin()()
	p := t.state.Load()
	out := make([]string, len(batch))
	errs := make([]error, len(batch))
	wp := pool.New().WithMaxGoroutines(p.workers)
	for i, ids := range batch {
		wp.Go(func() {
			out[i], errs[i] = p.decode(ids, skipSpecialTokens)
		})
	}
	wp.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("decoding sequence %d: %w", i, err)
		}
	}
	return out, nil
}
