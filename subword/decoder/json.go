package decoder

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/subword/subword/common"
)

type wordPieceJSON struct {
	Type    string `json:"type"`
	Prefix  string `json:"prefix"`
	Cleanup bool   `json:"cleanup"`
}

type metaspaceJSON struct {
	Type           string `json:"type"`
	Replacement    string `json:"replacement"`
	AddPrefixSpace bool   `json:"add_prefix_space"`
}

type bpeJSON struct {
	Type   string `json:"type"`
	Suffix string `json:"suffix"`
}

func (d *WordPiece) MarshalJSON() ([]byte, error) {
	return json.Marshal(wordPieceJSON{Type: "WordPiece", Prefix: d.Prefix, Cleanup: d.Cleanup})
}

func (d *Metaspace) MarshalJSON() ([]byte, error) {
	return json.Marshal(metaspaceJSON{Type: "Metaspace", Replacement: string(d.replacement()), AddPrefixSpace: d.AddPrefixSpace})
}

func (d *BPE) MarshalJSON() ([]byte, error) {
	suffix := d.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return json.Marshal(bpeJSON{Type: "BPEDecoder", Suffix: suffix})
}

// FromJSON decodes a decoder from its tagged JSON form. A JSON null yields nil.
func FromJSON(data []byte) (Decoder, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding decoder: %v: %w", err, common.ErrConfiguration)
	}
	switch head.Type {
	case "WordPiece":
		var d wordPieceJSON
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding wordpiece decoder: %v: %w", err, common.ErrConfiguration)
		}
		return &WordPiece{Prefix: d.Prefix, Cleanup: d.Cleanup}, nil
	case "Metaspace":
		var d metaspaceJSON
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding metaspace decoder: %v: %w", err, common.ErrConfiguration)
		}
		glyph, size := utf8.DecodeRuneInString(d.Replacement)
		if size == 0 || size != len(d.Replacement) {
			return nil, common.Errorf(common.ErrConfiguration, "metaspace replacement must be one character, got %q", d.Replacement)
		}
		return &Metaspace{Replacement: glyph, AddPrefixSpace: d.AddPrefixSpace}, nil
	case "BPEDecoder":
		var d bpeJSON
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding bpe decoder: %v: %w", err, common.ErrConfiguration)
		}
		return &BPE{Suffix: d.Suffix}, nil
	}
	return nil, common.Errorf(common.ErrConfiguration, "unknown decoder type %q", head.Type)
}
