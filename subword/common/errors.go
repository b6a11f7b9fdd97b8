package common

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Error kinds shared by every pipeline package. Failures wrap exactly one of
// these so callers can branch with errors.Is.
var (
	// ErrVocabulary reports a token referenced by configuration or a
	// post-processor that the vocabulary does not contain.
	ErrVocabulary = errors.New("vocabulary error")
	// ErrConfiguration reports invalid truncation, padding, model or trainer options.
	ErrConfiguration = errors.New("configuration error")
	// ErrConcurrency reports a mutation attempted while tasks are in flight,
	// or a post-processor already owned by another tokenizer.
	ErrConcurrency = errors.New("concurrency error")
	// ErrCorpusIO reports an unreadable corpus or a malformed vocab/merges file.
	ErrCorpusIO = errors.New("corpus io error")
)

// Kind returns the sentinel wrapped by err, or nil.
func Kind(err error) error {
	for _, kind := range []error{ErrVocabulary, ErrConfiguration, ErrConcurrency, ErrCorpusIO} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Errorf formats a message and wraps kind.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// ValidationUtils bundles the precondition checks run at package edges.
type ValidationUtils struct{}

func NewValidationUtils() *ValidationUtils {
	return &ValidationUtils{}
}

// ValidateContextCancellation returns ctx.Err() once ctx is done.
func (vu *ValidationUtils) ValidateContextCancellation(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// ValidateFileExists fails with ErrCorpusIO unless path is a regular file
// that can be stat'ed.
func (vu *ValidationUtils) ValidateFileExists(path string) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return fmt.Errorf("stat %s: %v: %w", path, err, ErrCorpusIO)
	case info.IsDir():
		return Errorf(ErrCorpusIO, "%s is a directory", path)
	}
	return nil
}

// ErrorUtils adds context to errors crossing package boundaries.
type ErrorUtils struct{}

func NewErrorUtils() *ErrorUtils {
	return &ErrorUtils{}
}

// WrapError prefixes err with a formatted message. A nil err stays nil.
func (eu *ErrorUtils) WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WrapKind is WrapError that also tags err with kind when err carries no
// kind yet.
func (eu *ErrorUtils) WrapKind(err error, kind error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case Kind(err) != nil:
		return eu.WrapError(err, format, args...)
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), kind, err)
}
