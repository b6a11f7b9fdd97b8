package processor

import "fmt"

// Bert wraps inputs as "[CLS] A [SEP]" and "[CLS] A [SEP] B [SEP]", the
// second sequence and its separator taking type id 1.
type Bert struct {
	*Template
	Sep SpecialToken
	Cls SpecialToken
}

// NewBert builds the BERT processor from the separator and classifier tokens.
func NewBert(sep, cls SpecialToken) (*Bert, error) {
	single := fmt.Sprintf("%s:0 $A:0 %s:0", cls.Token, sep.Token)
	pair := fmt.Sprintf("%s:0 $A:0 %s:0 $B:1 %s:1", cls.Token, sep.Token, sep.Token)
	specials := []SpecialToken{cls, sep}
	if cls.Token == sep.Token {
		specials = specials[:1]
	}
	t, err := NewTemplate(single, pair, specials)
	if err != nil {
		return nil, err
	}
	return &Bert{Template: t, Sep: sep, Cls: cls}, nil
}
