package pretokenizer

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/subword/subword/common"
)

type typeJSON struct {
	Type string `json:"type"`
}

type metaspaceJSON struct {
	Type           string `json:"type"`
	Replacement    string `json:"replacement"`
	AddPrefixSpace bool   `json:"add_prefix_space"`
}

type sequenceJSON struct {
	Type          string            `json:"type"`
	PreTokenizers []json.RawMessage `json:"pretokenizers"`
}

func (Bert) MarshalJSON() ([]byte, error) {
	return json.Marshal(typeJSON{Type: "BertPreTokenizer"})
}

func (WhitespaceSplit) MarshalJSON() ([]byte, error) {
	return json.Marshal(typeJSON{Type: "WhitespaceSplit"})
}

func (m *Metaspace) MarshalJSON() ([]byte, error) {
	return json.Marshal(metaspaceJSON{
		Type:           "Metaspace",
		Replacement:    string(m.replacement()),
		AddPrefixSpace: m.AddPrefixSpace,
	})
}

func (s Sequence) MarshalJSON() ([]byte, error) {
	out := sequenceJSON{Type: "Sequence", PreTokenizers: make([]json.RawMessage, 0, len(s))}
	for _, child := range s {
		raw, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		out.PreTokenizers = append(out.PreTokenizers, raw)
	}
	return json.Marshal(out)
}

// FromJSON decodes a pre-tokenizer from its tagged JSON form. A JSON null
// yields nil.
func FromJSON(data []byte) (PreTokenizer, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var head typeJSON
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding pre-tokenizer: %v: %w", err, common.ErrConfiguration)
	}
	switch head.Type {
	case "BertPreTokenizer":
		return Bert{}, nil
	case "WhitespaceSplit":
		return WhitespaceSplit{}, nil
	case "Metaspace":
		var m metaspaceJSON
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding metaspace: %v: %w", err, common.ErrConfiguration)
		}
		glyph, size := utf8.DecodeRuneInString(m.Replacement)
		if size == 0 || size != len(m.Replacement) {
			return nil, common.Errorf(common.ErrConfiguration, "metaspace replacement must be one character, got %q", m.Replacement)
		}
		return &Metaspace{Replacement: glyph, AddPrefixSpace: m.AddPrefixSpace}, nil
	case "Sequence":
		var s sequenceJSON
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decoding pre-tokenizer sequence: %v: %w", err, common.ErrConfiguration)
		}
		seq := make(Sequence, 0, len(s.PreTokenizers))
		for _, raw := range s.PreTokenizers {
			child, err := FromJSON(raw)
			if err != nil {
				return nil, err
			}
			if child != nil {
				seq = append(seq, child)
			}
		}
		return seq, nil
	}
	return nil, common.Errorf(common.ErrConfiguration, "unknown pre-tokenizer type %q", head.Type)
}
