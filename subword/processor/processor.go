// Package processor inserts special tokens around encoded sequences.
package processor

import (
	"encoding/json"
	"sync"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/encoding"
	"github.com/google/uuid"
)

// SpecialToken is a token a processor inserts, with its vocabulary id.
type SpecialToken struct {
	ID    int    `json:"id"`
	Token string `json:"token"`
}

// PostProcessor adds special tokens to a single encoding or a pair.
type PostProcessor interface {
	// AddedTokens returns how many tokens Process inserts.
	AddedTokens(isPair bool) int
	// Process combines enc and the optional pair into one encoding. Without
	// addSpecialTokens the two are only concatenated.
	Process(enc, pair *encoding.Encoding, addSpecialTokens bool) (*encoding.Encoding, error)
	SpecialTokens() []SpecialToken

	// Attach claims the processor for owner. It fails with ErrConcurrency
	// when another owner holds it.
	Attach(owner uuid.UUID) error
	// Detach releases the processor if owner holds it.
	Detach(owner uuid.UUID)

	json.Marshaler
}

type ownership struct {
	mu    sync.Mutex
	owner uuid.UUID
}

func (o *ownership) Attach(owner uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.owner != uuid.Nil && o.owner != owner {
		return common.Errorf(common.ErrConcurrency, "post-processor is owned by tokenizer %s", o.owner)
	}
	o.owner = owner
	return nil
}

func (o *ownership) Detach(owner uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.owner == owner {
		o.owner = uuid.Nil
	}
}

// Owner returns the current owner, uuid.Nil when free.
func (o *ownership) Owner() uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.owner
}

// concat joins enc and pair without inserting anything.
func concat(enc, pair *encoding.Encoding) *encoding.Encoding {
	out := enc.Clone()
	out.SetSequenceID(0)
	if pair != nil {
		p := pair.Clone()
		p.SetSequenceID(1)
		out.MergeWith(p)
	}
	return out
}
