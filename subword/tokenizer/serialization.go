package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/decoder"
	"github.com/ZanzyTHEbar/subword/subword/model"
	"github.com/ZanzyTHEbar/subword/subword/normalizer"
	"github.com/ZanzyTHEbar/subword/subword/pretokenizer"
	"github.com/ZanzyTHEbar/subword/subword/processor"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
)

// FormatVersion is written into every saved pipeline.
const FormatVersion = "1.0"

type addedTokenJSON struct {
	ID int `json:"id"`
	vocab.AddedToken
}

type document struct {
	Version       string            `json:"version"`
	Truncation    *TruncationParams `json:"truncation"`
	Padding       *PaddingParams    `json:"padding"`
	AddedTokens   []addedTokenJSON  `json:"added_tokens"`
	Normalizer    json.RawMessage   `json:"normalizer"`
	PreTokenizer  json.RawMessage   `json:"pre_tokenizer"`
	PostProcessor json.RawMessage   `json:"post_processor"`
	Decoder       json.RawMessage   `json:"decoder"`
	Model         json.RawMessage   `json:"model"`
}

func marshalStage(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding pipeline stage %T: %v: %w", v, err, common.ErrConfiguration)
	}
	return raw, nil
}

// ToJSON serializes the whole pipeline.
func (t *Tokenizer) ToJSON(pretty bool) ([]byte, error) {
	p := t.state.Load()
	doc := document{
		Version:     FormatVersion,
		Truncation:  p.truncation,
		Padding:     p.padding,
		AddedTokens: make([]addedTokenJSON, 0, p.added.Len()),
	}
	for _, e := range p.added.Entries() {
		doc.AddedTokens = append(doc.AddedTokens, addedTokenJSON{ID: e.ID, AddedToken: e.AddedToken})
	}

	var err error
	stages := []struct {
		dst *json.RawMessage
		v   any
	}{
		{&doc.Normalizer, p.normalizer},
		{&doc.PreTokenizer, p.preTokenizer},
		{&doc.PostProcessor, p.processor},
		{&doc.Decoder, p.decoder},
		{&doc.Model, p.model},
	}
	for _, s := range stages {
		if *s.dst, err = marshalStage(s.v); err != nil {
			return nil, err
		}
	}

	if pretty {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// Save writes the pipeline JSON to path.
func (t *Tokenizer) Save(path string, pretty bool) error {
	data, err := t.ToJSON(pretty)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing tokenizer %s: %v: %w", path, err, common.ErrCorpusIO)
	}
	return nil
}

// FromJSON rebuilds a tokenizer from ToJSON output. Added token ids must
// match the ids the rebuilt tokenizer assigns.
func FromJSON(data []byte) (*Tokenizer, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding tokenizer: %v: %w", err, common.ErrConfiguration)
	}
	if len(doc.Model) == 0 {
		return nil, common.Errorf(common.ErrConfiguration, "tokenizer document has no model")
	}
	m, err := model.FromJSON(doc.Model)
	if err != nil {
		return nil, err
	}
	t := New(m)

	n, err := normalizer.FromJSON(doc.Normalizer)
	if err != nil {
		return nil, err
	}
	pt, err := pretokenizer.FromJSON(doc.PreTokenizer)
	if err != nil {
		return nil, err
	}
	dec, err := decoder.FromJSON(doc.Decoder)
	if err != nil {
		return nil, err
	}
	pp, err := processor.FromJSON(doc.PostProcessor)
	if err != nil {
		return nil, err
	}

	tokens := make([]vocab.AddedToken, len(doc.AddedTokens))
	for i, a := range doc.AddedTokens {
		tokens[i] = a.AddedToken
	}
	if _, err := t.AddTokens(tokens); err != nil {
		return nil, err
	}
	for _, a := range doc.AddedTokens {
		if id, _ := t.TokenToID(a.Content); id != a.ID {
			return nil, common.Errorf(common.ErrVocabulary, "added token %q has id %d, expected %d", a.Content, id, a.ID)
		}
	}

	// nil interface values must stay untyped nil
	if n != nil {
		if err := t.WithNormalizer(n); err != nil {
			return nil, err
		}
	}
	if pt != nil {
		if err := t.WithPreTokenizer(pt); err != nil {
			return nil, err
		}
	}
	if dec != nil {
		if err := t.WithDecoder(dec); err != nil {
			return nil, err
		}
	}
	if pp != nil {
		if err := t.SetPostProcessor(pp); err != nil {
			return nil, err
		}
	}
	if doc.Truncation != nil {
		if _, err := t.SetTruncation(*doc.Truncation); err != nil {
			return nil, err
		}
	}
	if doc.Padding != nil {
		if _, err := t.SetPadding(*doc.Padding); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FromFile loads a tokenizer saved with Save.
func FromFile(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tokenizer %s: %v: %w", path, err, common.ErrCorpusIO)
	}
	return FromJSON(data)
}
