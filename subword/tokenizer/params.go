package tokenizer

import (
	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
)

// TruncationStrategy selects which sequence of a pair loses tokens.
type TruncationStrategy string

const (
	LongestFirst TruncationStrategy = "longest_first"
	OnlyFirst    TruncationStrategy = "only_first"
	OnlySecond   TruncationStrategy = "only_second"
)

// TruncationParams bound the length of every encoding. MaxLength counts the
// special tokens the post-processor adds.
type TruncationParams struct {
	MaxLength int                `json:"max_length" mapstructure:"max_length"`
	Strategy  TruncationStrategy `json:"strategy" mapstructure:"strategy"`
	Stride    int                `json:"stride" mapstructure:"stride"`
	Direction encoding.Direction `json:"direction" mapstructure:"direction"`
}

// validated fills defaults and rejects impossible values.
func (p TruncationParams) validated() (TruncationParams, error) {
	if p.Strategy == "" {
		p.Strategy = LongestFirst
	}
	if p.Direction == "" {
		p.Direction = encoding.Right
	}
	switch {
	case p.MaxLength <= 0:
		return p, common.Errorf(common.ErrConfiguration, "truncation max length must be positive, got %d", p.MaxLength)
	case p.Strategy != LongestFirst && p.Strategy != OnlyFirst && p.Strategy != OnlySecond:
		return p, common.Errorf(common.ErrConfiguration, "unknown truncation strategy %q", p.Strategy)
	case !p.Direction.Valid():
		return p, common.Errorf(common.ErrConfiguration, "unknown truncation direction %q", p.Direction)
	case p.Stride < 0 || p.Stride >= p.MaxLength:
		return p, common.Errorf(common.ErrConfiguration, "stride %d must be in [0, %d)", p.Stride, p.MaxLength)
	}
	return p, nil
}

// Validate reports whether SetTruncation would accept p.
func (p TruncationParams) Validate() error {
	_, err := p.validated()
	return err
}

// apply truncates enc and the optional pair so that together they fit in
// MaxLength minus the added special tokens.
func (p TruncationParams) apply(enc, pair *encoding.Encoding, added int) error {
	budget := max(p.MaxLength-added, 0)
	n1, n2 := enc.Len(), 0
	if pair != nil {
		n2 = pair.Len()
	}
	if n1+n2 <= budget {
		return nil
	}
	if budget == 0 {
		if err := enc.Truncate(0, 0, p.Direction); err != nil {
			return err
		}
		if pair != nil {
			return pair.Truncate(0, 0, p.Direction)
		}
		return nil
	}
	if p.Stride >= budget {
		return common.Errorf(common.ErrConfiguration, "stride %d must be smaller than the %d tokens left after special tokens", p.Stride, budget)
	}
	excess := n1 + n2 - budget

	switch p.Strategy {
	case LongestFirst:
		if pair == nil {
			return enc.Truncate(budget, p.Stride, p.Direction)
		}
		l1, l2 := splitBudget(n1, n2, budget)
		if err := enc.Truncate(l1, sideStride(p.Stride, l1), p.Direction); err != nil {
			return err
		}
		return pair.Truncate(l2, sideStride(p.Stride, l2), p.Direction)
	case OnlyFirst:
		if n1 <= excess {
			return common.Errorf(common.ErrConfiguration, "first sequence of %d tokens cannot absorb %d excess tokens", n1, excess)
		}
		return enc.Truncate(n1-excess, sideStride(p.Stride, n1-excess), p.Direction)
	case OnlySecond:
		if pair == nil {
			return common.Errorf(common.ErrConfiguration, "only_second truncation needs a second sequence")
		}
		if n2 <= excess {
			return common.Errorf(common.ErrConfiguration, "second sequence of %d tokens cannot absorb %d excess tokens", n2, excess)
		}
		return pair.Truncate(n2-excess, sideStride(p.Stride, n2-excess), p.Direction)
	}
	return common.Errorf(common.ErrConfiguration, "unknown truncation strategy %q", p.Strategy)
}

// splitBudget shares budget between two sides that do not fit together. A
// side strictly shorter than both the other side and the budget stays whole;
// otherwise each side gets half and the longer one, or the first on equal
// lengths, takes the odd token.
func splitBudget(n1, n2, budget int) (int, int) {
	if n1 == n2 {
		return budget/2 + budget%2, budget / 2
	}
	if n2 < n1 {
		if n2 < budget {
			return budget - n2, n2
		}
		return budget/2 + budget%2, budget / 2
	}
	if n1 < budget {
		return n1, budget - n1
	}
	return budget / 2, budget/2 + budget%2
}

// sideStride caps stride below the share a side was truncated to.
func sideStride(stride, limit int) int {
	return max(min(stride, limit-1), 0)
}

// PaddingStrategy selects the padded length.
type PaddingStrategy string

const (
	BatchLongest PaddingStrategy = "batch_longest"
	Fixed        PaddingStrategy = "fixed"
)

// PaddingParams describe how encodings are padded after post-processing.
type PaddingParams struct {
	Strategy PaddingStrategy `json:"strategy" mapstructure:"strategy"`
	// Length is the target of the fixed strategy.
	Length          int                `json:"length,omitempty" mapstructure:"length"`
	Direction       encoding.Direction `json:"direction" mapstructure:"direction"`
	PadID           int                `json:"pad_id" mapstructure:"pad_id"`
	PadTypeID       int                `json:"pad_type_id" mapstructure:"pad_type_id"`
	PadToken        string             `json:"pad_token" mapstructure:"pad_token"`
	PadToMultipleOf int                `json:"pad_to_multiple_of,omitempty" mapstructure:"pad_to_multiple_of"`
}

// DefaultPadToken is used when PaddingParams leave PadToken empty.
const DefaultPadToken = "[PAD]"

func (p PaddingParams) validated() (PaddingParams, error) {
	if p.Strategy == "" {
		p.Strategy = BatchLongest
	}
	if p.Direction == "" {
		p.Direction = encoding.Right
	}
	if p.PadToken == "" {
		p.PadToken = DefaultPadToken
	}
	switch {
	case p.Strategy != BatchLongest && p.Strategy != Fixed:
		return p, common.Errorf(common.ErrConfiguration, "unknown padding strategy %q", p.Strategy)
	case p.Strategy == Fixed && p.Length <= 0:
		return p, common.Errorf(common.ErrConfiguration, "fixed padding needs a positive length, got %d", p.Length)
	case !p.Direction.Valid():
		return p, common.Errorf(common.ErrConfiguration, "unknown padding direction %q", p.Direction)
	case p.PadToMultipleOf < 0:
		return p, common.Errorf(common.ErrConfiguration, "pad to multiple of must not be negative, got %d", p.PadToMultipleOf)
	case p.PadID < 0 || p.PadTypeID < 0:
		return p, common.Errorf(common.ErrConfiguration, "pad ids must not be negative")
	}
	return p, nil
}

// Validate reports whether SetPadding would accept p.
func (p PaddingParams) Validate() error {
	_, err := p.validated()
	return err
}

// apply pads every encoding to the same target. Encodings already longer
// than a fixed target are left as they are.
func (p PaddingParams) apply(encs []*encoding.Encoding) {
	target := p.Length
	if p.Strategy == BatchLongest {
		target = 0
		for _, e := range encs {
			target = max(target, e.Len())
		}
	}
	if m := p.PadToMultipleOf; m > 0 && target%m != 0 {
		target += m - target%m
	}
	for _, e := range encs {
		e.Pad(target, p.PadID, p.PadTypeID, p.PadToken, p.Direction)
	}
}
