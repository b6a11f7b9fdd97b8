package processor

import (
	"encoding/json"
	"fmt"

	"github.com/ZanzyTHEbar/subword/subword/common"
)

// tokenPair is the ["[SEP]", 102] form BERT processors are stored in.
type tokenPair SpecialToken

func (p tokenPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Token, p.ID})
}

func (p *tokenPair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("expected [token, id], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Token); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.ID)
}

type bertJSON struct {
	Type string    `json:"type"`
	Sep  tokenPair `json:"sep"`
	Cls  tokenPair `json:"cls"`
}

type templateJSON struct {
	Type          string         `json:"type"`
	Single        string         `json:"single"`
	Pair          string         `json:"pair,omitempty"`
	SpecialTokens []SpecialToken `json:"special_tokens"`
}

func (b *Bert) MarshalJSON() ([]byte, error) {
	return json.Marshal(bertJSON{Type: "BertProcessing", Sep: tokenPair(b.Sep), Cls: tokenPair(b.Cls)})
}

func (t *Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(templateJSON{
		Type:          "TemplateProcessing",
		Single:        t.Single(),
		Pair:          t.Pair(),
		SpecialTokens: t.SpecialTokens(),
	})
}

// FromJSON decodes a post-processor from its tagged JSON form. A JSON null
// yields nil.
func FromJSON(data []byte) (PostProcessor, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding post-processor: %v: %w", err, common.ErrConfiguration)
	}
	switch head.Type {
	case "BertProcessing":
		var b bertJSON
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decoding bert processor: %v: %w", err, common.ErrConfiguration)
		}
		bert, err := NewBert(SpecialToken(b.Sep), SpecialToken(b.Cls))
		if err != nil {
			return nil, err
		}
		return bert, nil
	case "TemplateProcessing":
		var t templateJSON
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decoding template processor: %v: %w", err, common.ErrConfiguration)
		}
		tmpl, err := NewTemplate(t.Single, t.Pair, t.SpecialTokens)
		if err != nil {
			return nil, err
		}
		return tmpl, nil
	}
	return nil, common.Errorf(common.ErrConfiguration, "unknown post-processor type %q", head.Type)
}
