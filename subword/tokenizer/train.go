package tokenizer

import (
	"context"
	"iter"
	"log/slog"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/normalizer"
	"github.com/ZanzyTHEbar/subword/subword/trainer"
)

// words splits a corpus line the way Encode would, leaving out added tokens.
func (p *pipeline) words(line string) ([]string, error) {
	secs, err := p.sections(normalizer.New(line))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(secs))
	for _, s := range secs {
		if s.added < 0 {
			out = append(out, s.n.Normalized())
		}
	}
	return out, nil
}

// startTraining claims the tokenizer for one training run.
func (t *Tokenizer) startTraining() (func(), error) {
	if !t.training.CompareAndSwap(false, true) {
		return nil, common.Errorf(common.ErrConcurrency, "training already in progress")
	}
	if n := t.running.Load(); n > 0 {
		t.training.Store(false)
		return nil, common.Errorf(common.ErrConcurrency, "cannot train with %d tasks in flight", n)
	}
	return func() { t.training.Store(false) }, nil
}

// Train counts the words of files and replaces the model with the one tr
// learns from them. The current model stays in place if anything fails.
// Encodes running meanwhile use the model in place when they started.
func (t *Tokenizer) Train(ctx context.Context, tr trainer.Trainer, files []string) error {
	done, err := t.startTraining()
	if err != nil {
		return err
	}
	defer done()

	p := t.state.Load()
	counts, err := trainer.CountFiles(ctx, files, p.words, p.workers)
	if err != nil {
		return err
	}
	return t.finishTraining(ctx, tr, counts, p)
}

// TrainFromIterator is Train over an in-memory or streamed corpus.
func (t *Tokenizer) TrainFromIterator(ctx context.Context, tr trainer.Trainer, lines iter.Seq2[string, error]) error {
	done, err := t.startTraining()
	if err != nil {
		return err
	}
	defer done()

	p := t.state.Load()
	counts := trainer.NewWordCounts()
	if err := counts.Feed(ctx, lines, p.words); err != nil {
		return err
	}
	return t.finishTraining(ctx, tr, counts, p)
}

func (t *Tokenizer) finishTraining(ctx context.Context, tr trainer.Trainer, counts *trainer.WordCounts, p *pipeline) error {
	if err := common.NewValidationUtils().ValidateContextCancellation(ctx); err != nil {
		return err
	}
	m, specials, err := tr.Train(counts, p.model)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.state.Load().clone()
	next.model = m
	next.added, _ = next.added.Refresh(m).Add(m, specials...)
	if next.processor != nil {
		if err := next.checkSpecials(next.processor); err != nil {
			next.staleProcessor = err
			slog.Warn("post-processor no longer matches the trained vocabulary", "tokenizer", t.id, "error", err)
		}
	}
	t.state.Store(next)
	slog.Info("tokenizer trained", "tokenizer", t.id, "vocab_size", m.VocabSize(), "words", counts.Len())
	return nil
}
