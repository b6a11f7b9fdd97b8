package presets

import (
	"context"
	"iter"

	"github.com/ZanzyTHEbar/subword/subword/common"
	"github.com/ZanzyTHEbar/subword/subword/decoder"
	"github.com/ZanzyTHEbar/subword/subword/model"
	"github.com/ZanzyTHEbar/subword/subword/normalizer"
	"github.com/ZanzyTHEbar/subword/subword/pretokenizer"
	"github.com/ZanzyTHEbar/subword/subword/processor"
	"github.com/ZanzyTHEbar/subword/subword/tokenizer"
	"github.com/ZanzyTHEbar/subword/subword/trainer"
)

// BertWordPieceOptions configures a BertWordPiece pipeline.
type BertWordPieceOptions struct {
	// VocabFile is a vocab.txt or vocab.json file. Empty builds an untrained
	// tokenizer that only knows UnkToken.
	VocabFile          string
	CleanText          bool
	HandleChineseChars bool
	Lowercase          bool
	// StripAccents follows Lowercase when nil.
	StripAccents     *bool
	ClsToken         string
	SepToken         string
	UnkToken         string
	PadToken         string
	MaskToken        string
	WordpiecesPrefix string
}

// DefaultBertWordPieceOptions returns the uncased BERT setup.
func DefaultBertWordPieceOptions() BertWordPieceOptions {
	return BertWordPieceOptions{
		CleanText:          true,
		HandleChineseChars: true,
		Lowercase:          true,
		ClsToken:           "[CLS]",
		SepToken:           "[SEP]",
		UnkToken:           "[UNK]",
		PadToken:           "[PAD]",
		MaskToken:          "[MASK]",
		WordpiecesPrefix:   "##",
	}
}

func (o BertWordPieceOptions) specials() []string {
	return []string{o.PadToken, o.UnkToken, o.ClsToken, o.SepToken, o.MaskToken}
}

// BertWordPiece is a tokenizer with the BERT normalizer, pre-tokenizer,
// post-processor and decoder around a WordPiece model.
type BertWordPiece struct {
	*tokenizer.Tokenizer
	opts BertWordPieceOptions
}

// NewBertWordPiece builds the pipeline. With a vocab file, the special
// tokens present in it are registered and the [CLS]/[SEP] post-processor
// is attached; both tokens must then exist.
func NewBertWordPiece(opts BertWordPieceOptions) (*BertWordPiece, error) {
	cfg := model.WordPieceConfig{
		UnkToken:                opts.UnkToken,
		ContinuingSubwordPrefix: opts.WordpiecesPrefix,
	}
	var (
		wp  *model.WordPiece
		err error
	)
	if opts.VocabFile != "" {
		wp, err = model.NewWordPieceFromFile(opts.VocabFile, cfg)
	} else {
		v, verr := singleTokenVocab(unkOrDefault(cfg))
		if verr != nil {
			return nil, verr
		}
		wp, err = model.NewWordPiece(v, cfg)
	}
	if err != nil {
		return nil, err
	}

	tok := tokenizer.New(wp)
	b := &BertWordPiece{Tokenizer: tok, opts: opts}
	if err := tok.WithNormalizer(&normalizer.Bert{
		CleanText:          opts.CleanText,
		HandleChineseChars: opts.HandleChineseChars,
		Lowercase:          opts.Lowercase,
		StripAccents:       opts.StripAccents,
	}); err != nil {
		return nil, err
	}
	if err := tok.WithPreTokenizer(pretokenizer.Bert{}); err != nil {
		return nil, err
	}
	if err := tok.WithDecoder(&decoder.WordPiece{Prefix: opts.WordpiecesPrefix, Cleanup: true}); err != nil {
		return nil, err
	}
	if err := addPresentSpecials(tok, opts.specials()...); err != nil {
		return nil, err
	}
	if opts.VocabFile != "" {
		if err := b.attachProcessor(true); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// unkOrDefault is the unknown token an untrained model starts from.
func unkOrDefault(cfg model.WordPieceConfig) string {
	if cfg.UnkToken == "" {
		return model.DefaultWordPieceConfig().UnkToken
	}
	return cfg.UnkToken
}

// attachProcessor sets the BERT post-processor from the current ids of the
// separator and classifier tokens. When required is false, a missing token
// leaves the pipeline without post-processing.
func (b *BertWordPiece) attachProcessor(required bool) error {
	sep, sepOK := b.TokenToID(b.opts.SepToken)
	cls, clsOK := b.TokenToID(b.opts.ClsToken)
	switch {
	case !sepOK && required:
		return common.Errorf(common.ErrVocabulary, "separator token %q is not in the vocabulary", b.opts.SepToken)
	case !clsOK && required:
		return common.Errorf(common.ErrVocabulary, "classifier token %q is not in the vocabulary", b.opts.ClsToken)
	case !sepOK || !clsOK:
		return b.SetPostProcessor(nil)
	}
	pp, err := processor.NewBert(
		processor.SpecialToken{ID: sep, Token: b.opts.SepToken},
		processor.SpecialToken{ID: cls, Token: b.opts.ClsToken},
	)
	if err != nil {
		return err
	}
	return b.SetPostProcessor(pp)
}

// TrainerOptions returns the preset training defaults with ov applied.
func (b *BertWordPiece) TrainerOptions(ov trainer.Overrides) trainer.Options {
	return trainDefaults(b.opts.specials(), b.opts.WordpiecesPrefix).Merge(ov)
}

// Train learns a new WordPiece vocabulary from files and re-attaches the
// post-processor to the new ids.
func (b *BertWordPiece) Train(ctx context.Context, files []string, ov trainer.Overrides) error {
	return b.train(ctx, files, nil, ov)
}

// TrainFromIterator is Train over a line iterator.
func (b *BertWordPiece) TrainFromIterator(ctx context.Context, lines iter.Seq2[string, error], ov trainer.Overrides) error {
	return b.train(ctx, nil, lines, ov)
}

func (b *BertWordPiece) train(ctx context.Context, files []string, lines iter.Seq2[string, error], ov trainer.Overrides) error {
	tr := trainer.NewWordPieceTrainer(b.TrainerOptions(ov))
	if err := train(ctx, b.Tokenizer, tr, files, lines); err != nil {
		return err
	}
	return b.attachProcessor(false)
}
