package tokenizer

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
	"github.com/ZanzyTHEbar/subword/subword/normalizer"
	"github.com/sourcegraph/conc/pool"
)

// section is one piece of input ready for the model, or an added token
// matched in the input (added >= 0).
type section struct {
	n     *normalizer.NormalizedString
	added int
}

// sections extracts raw added tokens from n, normalizes what is left,
// extracts normalized added tokens and pre-tokenizes the rest.
func (p *pipeline) sections(n *normalizer.NormalizedString) ([]section, error) {
	var out []section
	for _, raw := range p.added.SplitRaw(n.Normalized()) {
		slice := n.Slice(raw.Start, raw.End)
		if raw.ID >= 0 {
			out = append(out, section{n: slice, added: raw.ID})
			continue
		}
		if p.normalizer != nil {
			if err := p.normalizer.Normalize(slice); err != nil {
				return nil, fmt.Errorf("normalizing: %w", err)
			}
		}
		for _, sub := range p.added.SplitNormalized(slice.Normalized()) {
			part := slice.Slice(sub.Start, sub.End)
			if sub.ID >= 0 {
				out = append(out, section{n: part, added: sub.ID})
				continue
			}
			pieces := []*normalizer.NormalizedString{part}
			if p.preTokenizer != nil {
				var err error
				if pieces, err = p.preTokenizer.PreTokenize(part); err != nil {
					return nil, fmt.Errorf("pre-tokenizing: %w", err)
				}
			}
			for _, piece := range pieces {
				if !piece.IsEmpty() {
					out = append(out, section{n: piece, added: -1})
				}
			}
		}
	}
	return out, nil
}

// appendSections runs the model over sections and appends the tokens to enc.
// word returns the word index of the next section.
func (p *pipeline) appendSections(enc *encoding.Encoding, sections []section, typeID int, word func() int) error {
	for _, s := range sections {
		w := word()
		if s.added >= 0 {
			value, _ := p.idToToken(s.added)
			special := 0
			if p.added.IsSpecial(s.added) {
				special = 1
			}
			enc.Append(encoding.Token{ID: s.added, Value: value, Offsets: s.n.Offsets()}, typeID, w, special)
			continue
		}
		tokens, err := p.model.Tokenize(s.n.Normalized())
		if err != nil {
			return err
		}
		for _, tok := range tokens {
			tok.Offsets = s.n.OriginalOffsets(tok.Offsets.Start, tok.Offsets.End)
			enc.Append(tok, typeID, w, 0)
		}
	}
	return nil
}

// encodeSequence encodes one input sequence with every token typed typeID.
func (p *pipeline) encodeSequence(seq InputSequence, typeID int) (*encoding.Encoding, error) {
	enc := encoding.New(nil, nil, typeID)
	if !seq.IsPretokenized() {
		secs, err := p.sections(normalizer.New(seq.text))
		if err != nil {
			return nil, err
		}
		next := 0
		err = p.appendSections(enc, secs, typeID, func() int {
			next++
			return next - 1
		})
		return enc, err
	}

	root := normalizer.New(strings.Join(seq.words, " "))
	offset := 0
	for i, w := range seq.words {
		secs, err := p.sections(root.Slice(offset, offset+len(w)))
		if err != nil {
			return nil, err
		}
		if err := p.appendSections(enc, secs, typeID, func() int { return i }); err != nil {
			return nil, err
		}
		offset += len(w) + 1
	}
	return enc, nil
}

func (p *pipeline) encode(input EncodeInput, addSpecialTokens bool) (*encoding.Encoding, error) {
	enc, err := p.encodeSequence(input.First, 0)
	if err != nil {
		return nil, err
	}
	var pair *encoding.Encoding
	if input.Second != nil {
		if pair, err = p.encodeSequence(*input.Second, 1); err != nil {
			return nil, err
		}
	}
	return p.postProcess(enc, pair, addSpecialTokens)
}

// postProcess truncates, then adds special tokens. Padding is left to the caller.
func (p *pipeline) postProcess(enc, pair *encoding.Encoding, addSpecialTokens bool) (*encoding.Encoding, error) {
	if addSpecialTokens && p.staleProcessor != nil {
		return nil, common.NewErrorUtils().WrapError(p.staleProcessor, "post-processor must be set again after training")
	}
	if p.truncation != nil {
		added := 0
		if addSpecialTokens && p.processor != nil {
			added = p.processor.AddedTokens(pair != nil)
		}
		if err := p.truncation.apply(enc, pair, added); err != nil {
			return nil, err
		}
	}
	if p.processor != nil {
		return p.processor.Process(enc, pair, addSpecialTokens)
	}
	out := enc
	if pair != nil {
		out = enc.Clone()
		out.SetSequenceID(0)
		second := pair.Clone()
		second.SetSequenceID(1)
		out.MergeWith(second)
	}
	return out, nil
}

// Encode runs the whole pipeline on input.
func (t *Tokenizer) Encode(input EncodeInput, addSpecialTokens bool) (*encoding.Encoding, error) {
	defer t.begin()()
	p := t.state.Load()
	enc, err := p.encode(input, addSpecialTokens)
	if err != nil {
		return nil, err
	}
	if p.padding != nil {
		p.padding.apply([]*encoding.Encoding{enc})
	}
	return enc, nil
}

// EncodeBatch encodes inputs in parallel. Results keep the input order and are
// padded together, so batch_longest pads to the longest of the batch. The
// first failing input, by position, is reported.
func (t *Tokenizer) EncodeBatch(inputs []EncodeInput, addSpecialTokens bool) ([]*encoding.Encoding, error) {
	defer t.begin()()
	p := t.state.Load()
	out := make([]*encoding.Encoding, len(inputs))
	errs := make([]error, len(inputs))
	wp := pool.New().WithMaxGoroutines(p.workers)
	for i, input := range inputs {
		wp.Go(func() {
			out[i], errs[i] = p.encode(input, addSpecialTokens)
		})
	}
	wp.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("encoding input %d: %w", i, err)
		}
	}
	if p.padding != nil {
		p.padding.apply(out)
	}
	return out, nil
}

// PostProcess applies truncation, special tokens and padding to encodings
// produced elsewhere. enc and pair are modified by truncation.
func (t *Tokenizer) PostProcess(enc, pair *encoding.Encoding, addSpecialTokens bool) (*encoding.Encoding, error) {
	defer t.begin()()
	p := t.state.Load()
	out, err := p.postProcess(enc, pair, addSpecialTokens)
	if err != nil {
		return nil, err
	}
	if p.padding != nil {
		p.padding.apply([]*encoding.Encoding{out})
	}
	return out, nil
}
