package normalizer

import (
	"encoding/json"
	"fmt"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"golang.org/x/text/unicode/norm"
)

type bertJSON struct {
	Type               string `json:"type"`
	CleanText          bool   `json:"clean_text"`
	HandleChineseChars bool   `json:"handle_chinese_chars"`
	StripAccents       *bool  `json:"strip_accents"`
	Lowercase          bool   `json:"lowercase"`
}

type typeJSON struct {
	Type string `json:"type"`
}

type sequenceJSON struct {
	Type        string            `json:"type"`
	Normalizers []json.RawMessage `json:"normalizers"`
}

func (b *Bert) MarshalJSON() ([]byte, error) {
	return json.Marshal(bertJSON{
		Type:               "BertNormalizer",
		CleanText:          b.CleanText,
		HandleChineseChars: b.HandleChineseChars,
		StripAccents:       b.StripAccents,
		Lowercase:          b.Lowercase,
	})
}

var formNames = map[norm.Form]string{
	norm.NFC:  "NFC",
	norm.NFD:  "NFD",
	norm.NFKC: "NFKC",
	norm.NFKD: "NFKD",
}

func (f Form) MarshalJSON() ([]byte, error) {
	return json.Marshal(typeJSON{Type: formNames[f.Form]})
}

func (Lowercase) MarshalJSON() ([]byte, error) {
	return json.Marshal(typeJSON{Type: "Lowercase"})
}

func (StripAccents) MarshalJSON() ([]byte, error) {
	return json.Marshal(typeJSON{Type: "StripAccents"})
}

func (s Sequence) MarshalJSON() ([]byte, error) {
	out := sequenceJSON{Type: "Sequence", Normalizers: make([]json.RawMessage, 0, len(s))}
	for _, child := range s {
		raw, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		out.Normalizers = append(out.Normalizers, raw)
	}
	return json.Marshal(out)
}

// FromJSON decodes a normalizer from its tagged JSON form. A JSON null
// yields a nil Normalizer.
func FromJSON(data []byte) (Normalizer, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var head typeJSON
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding normalizer: %v: %w", err, common.ErrConfiguration)
	}
	switch head.Type {
	case "BertNormalizer":
		var b bertJSON
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decoding bert normalizer: %v: %w", err, common.ErrConfiguration)
		}
		return &Bert{
			CleanText:          b.CleanText,
			HandleChineseChars: b.HandleChineseChars,
			Lowercase:          b.Lowercase,
			StripAccents:       b.StripAccents,
		}, nil
	case "NFC":
		return NFC(), nil
	case "NFD":
		return NFD(), nil
	case "NFKC":
		return NFKC(), nil
	case "NFKD":
		return NFKD(), nil
	case "Lowercase":
		return Lowercase{}, nil
	case "StripAccents":
		return StripAccents{}, nil
	case "Sequence":
		var s sequenceJSON
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decoding normalizer sequence: %v: %w", err, common.ErrConfiguration)
		}
		seq := make(Sequence, 0, len(s.Normalizers))
		for _, raw := range s.Normalizers {
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
	return nil, common.Errorf(common.ErrConfiguration, "unknown normalizer type %q", head.Type)
}
