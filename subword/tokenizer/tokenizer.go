// Package tokenizer wires normalization, pre-tokenization, the model,
// post-processing and decoding into one pipeline.
//
// A Tokenizer holds its configuration as an immutable snapshot. Encode and
// Decode load the snapshot once and never lock; setters build a new snapshot
// and fail with ErrConcurrency while any encode, decode or training task is
// running on the same Tokenizer.
package tokenizer

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/decoder"
	"github.com/ZanzyTHEbar/subword/subword/model"
	"github.com/ZanzyTHEbar/subword/subword/normalizer"
	"github.com/ZanzyTHEbar/subword/subword/pretokenizer"
	"github.com/ZanzyTHEbar/subword/subword/processor"
	"github.com/ZanzyTHEbar/subword/subword/vocab"
	"github.com/google/uuid"
)

// pipeline is one immutable configuration of a Tokenizer.
type pipeline struct {
	normalizer   normalizer.Normalizer
	preTokenizer pretokenizer.PreTokenizer
	model        model.Model
	processor    processor.PostProcessor
	decoder      decoder.Decoder
	added        *vocab.AddedVocabulary
	truncation   *TruncationParams
	padding      *PaddingParams
	workers      int

	// staleProcessor is set when training moved a processor special token.
	staleProcessor error
}

func (p *pipeline) clone() *pipeline {
	c := *p
	return &c
}

// Tokenizer is safe for concurrent Encode and Decode calls.
type Tokenizer struct {
	id       uuid.UUID
	mu       sync.Mutex
	state    atomic.Pointer[pipeline]
	running  atomic.Int32
	training atomic.Bool
}

// New returns a tokenizer around m with no other stage configured.
func New(m model.Model) *Tokenizer {
	t := &Tokenizer{id: uuid.New()}
	t.state.Store(&pipeline{
		model:   m,
		added:   vocab.NewAddedVocabulary(),
		workers: runtime.GOMAXPROCS(0),
	})
	return t
}

// ID identifies the tokenizer as a post-processor owner.
func (t *Tokenizer) ID() uuid.UUID { return t.id }

func (t *Tokenizer) begin() func() {
	t.running.Add(1)
	return func() { t.running.Add(-1) }
}

// mutate applies f to a copy of the current snapshot and publishes it.
func (t *Tokenizer) mutate(op string, f func(p *pipeline) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.running.Load(); n > 0 {
		return common.Errorf(common.ErrConcurrency, "%s: %d tasks in flight", op, n)
	}
	if t.training.Load() {
		return common.Errorf(common.ErrConcurrency, "%s: training in progress", op)
	}
	next := t.state.Load().clone()
	if err := f(next); err != nil {
		return err
	}
	t.state.Store(next)
	slog.Debug("tokenizer updated", "op", op, "tokenizer", t.id)
	return nil
}

// WithNormalizer sets the normalizer; nil disables normalization.
func (t *Tokenizer) WithNormalizer(n normalizer.Normalizer) error {
	return t.mutate("set normalizer", func(p *pipeline) error {
		p.normalizer = n
		return nil
	})
}

// WithPreTokenizer sets the pre-tokenizer; nil hands whole sections to the model.
func (t *Tokenizer) WithPreTokenizer(pt pretokenizer.PreTokenizer) error {
	return t.mutate("set pre-tokenizer", func(p *pipeline) error {
		p.preTokenizer = pt
		return nil
	})
}

// WithDecoder sets the decoder; nil joins tokens with spaces.
func (t *Tokenizer) WithDecoder(d decoder.Decoder) error {
	return t.mutate("set decoder", func(p *pipeline) error {
		p.decoder = d
		return nil
	})
}

// WithModel replaces the model. Added tokens are renumbered after it.
func (t *Tokenizer) WithModel(m model.Model) error {
	return t.mutate("set model", func(p *pipeline) error {
		p.model = m
		p.added = p.added.Refresh(m)
		return nil
	})
}

// WithWorkers bounds the goroutines used by batch calls and training.
func (t *Tokenizer) WithWorkers(n int) error {
	if n <= 0 {
		return common.Errorf(common.ErrConfiguration, "workers must be positive, got %d", n)
	}
	return t.mutate("set workers", func(p *pipeline) error {
		p.workers = n
		return nil
	})
}

// SetPostProcessor attaches pp to this tokenizer, releasing the previous
// processor. pp's special tokens must have the ids this tokenizer assigns
// them. A nil pp removes post-processing.
func (t *Tokenizer) SetPostProcessor(pp processor.PostProcessor) error {
	return t.mutate("set post-processor", func(p *pipeline) error {
		if pp != nil {
			if err := p.checkSpecials(pp); err != nil {
				return err
			}
			if err := pp.Attach(t.id); err != nil {
				return err
			}
		}
		if p.processor != nil && p.processor != pp {
			p.processor.Detach(t.id)
		}
		p.processor = pp
		p.staleProcessor = nil
		return nil
	})
}

// checkSpecials fails with ErrVocabulary unless every special token of pp has
// the id the pipeline assigns it.
func (p *pipeline) checkSpecials(pp processor.PostProcessor) error {
	for _, st := range pp.SpecialTokens() {
		id, ok := p.tokenToID(st.Token)
		if !ok {
			return common.Errorf(common.ErrVocabulary, "special token %q is not in the vocabulary", st.Token)
		}
		if id != st.ID {
			return common.Errorf(common.ErrVocabulary, "special token %q has id %d, processor expects %d", st.Token, id, st.ID)
		}
	}
	return nil
}

// SetTruncation enables truncation and returns the params with defaults filled.
func (t *Tokenizer) SetTruncation(params TruncationParams) (TruncationParams, error) {
	params, err := params.validated()
	if err != nil {
		return params, err
	}
	return params, t.mutate("set truncation", func(p *pipeline) error {
		p.truncation = &params
		return nil
	})
}

// DisableTruncation turns truncation off.
func (t *Tokenizer) DisableTruncation() error {
	return t.mutate("disable truncation", func(p *pipeline) error {
		p.truncation = nil
		return nil
	})
}

// SetPadding enables padding and returns the params with defaults filled.
func (t *Tokenizer) SetPadding(params PaddingParams) (PaddingParams, error) {
	params, err := params.validated()
	if err != nil {
		return params, err
	}
	return params, t.mutate("set padding", func(p *pipeline) error {
		p.padding = &params
		return nil
	})
}

// DisablePadding turns padding off.
func (t *Tokenizer) DisablePadding() error {
	return t.mutate("disable padding", func(p *pipeline) error {
		p.padding = nil
		return nil
	})
}

// AddTokens registers tokens matched in the input before the model runs and
// returns how many received a new id.
func (t *Tokenizer) AddTokens(tokens []vocab.AddedToken) (int, error) {
	var added int
	err := t.mutate("add tokens", func(p *pipeline) error {
		p.added, added = p.added.Add(p.model, tokens...)
		return nil
	})
	return added, err
}

// AddSpecialTokens registers tokens as special: they are matched on raw text
// and skipped by Decode when asked to.
func (t *Tokenizer) AddSpecialTokens(tokens []vocab.AddedToken) (int, error) {
	special := make([]vocab.AddedToken, len(tokens))
	for i, tok := range tokens {
		tok.Special = true
		special[i] = tok
	}
	return t.AddTokens(special)
}

// Truncation returns a copy of the truncation params, nil when disabled.
func (t *Tokenizer) Truncation() *TruncationParams {
	if p := t.state.Load().truncation; p != nil {
		c := *p
		return &c
	}
	return nil
}

// Padding returns a copy of the padding params, nil when disabled.
func (t *Tokenizer) Padding() *PaddingParams {
	if p := t.state.Load().padding; p != nil {
		c := *p
		return &c
	}
	return nil
}

// Model returns the current model.
func (t *Tokenizer) Model() model.Model { return t.state.Load().model }

// Normalizer returns the current normalizer, nil when disabled.
func (t *Tokenizer) Normalizer() normalizer.Normalizer { return t.state.Load().normalizer }

// PreTokenizer returns the current pre-tokenizer, nil when disabled.
func (t *Tokenizer) PreTokenizer() pretokenizer.PreTokenizer { return t.state.Load().preTokenizer }

// PostProcessor returns the attached post-processor, nil when none.
func (t *Tokenizer) PostProcessor() processor.PostProcessor { return t.state.Load().processor }

// Decoder returns the current decoder, nil when tokens are joined with spaces.
func (t *Tokenizer) Decoder() decoder.Decoder { return t.state.Load().decoder }

// AddedTokens returns the added tokens with their ids.
func (t *Tokenizer) AddedTokens() []vocab.Entry { return t.state.Load().added.Entries() }

// TokenToID looks token up in the added tokens, then in the model.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	return t.state.Load().tokenToID(token)
}

// IDToToken looks id up in the added tokens, then in the model.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	return t.state.Load().idToToken(id)
}

// VocabSize returns the model vocabulary size, counting added tokens when
// withAddedTokens is set.
func (t *Tokenizer) VocabSize(withAddedTokens bool) int {
	p := t.state.Load()
	n := p.model.VocabSize()
	if withAddedTokens {
		n = max(n, p.added.MaxID()+1)
	}
	return n
}

// Vocab returns the token to id map.
func (t *Tokenizer) Vocab(withAddedTokens bool) map[string]int {
	p := t.state.Load()
	m := p.model.Vocab().Map()
	if withAddedTokens {
		for _, e := range p.added.Entries() {
			m[e.Content] = e.ID
		}
	}
	return m
}

func (p *pipeline) tokenToID(token string) (int, bool) {
	if id, ok := p.added.TokenToID(token); ok {
		return id, true
	}
	return p.model.TokenToID(token)
}

func (p *pipeline) idToToken(id int) (string, bool) {
	if tok, ok := p.added.IDToToken(id); ok {
		return tok, true
	}
	return p.model.IDToToken(id)
}
