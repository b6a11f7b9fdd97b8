package tokenizer

import "slices"

// InputSequence is one sequence to encode: raw text, or text already split
// into words by the caller.
type InputSequence struct {
	text  string
	words []string
}

// Text returns a raw text sequence.
func Text(s string) InputSequence {
	return InputSequence{text: s}
}

// Words returns a pre-tokenized sequence. Token word indices refer to
// positions in words and offsets are measured as if the words were joined
// by single spaces.
func Words(words []string) InputSequence {
	if words == nil {
		words = []string{}
	}
	return InputSequence{words: slices.Clone(words)}
}

// IsPretokenized reports whether the sequence was built with Words.
func (s InputSequence) IsPretokenized() bool {
	return s.words != nil
}

// EncodeInput is a sequence with an optional second sequence.
type EncodeInput struct {
	First  InputSequence
	Second *InputSequence
}

// Single returns an input without a pair.
func Single(seq InputSequence) EncodeInput {
	return EncodeInput{First: seq}
}

// Pair returns an input of two sequences.
func Pair(first, second InputSequence) EncodeInput {
	return EncodeInput{First: first, Second: &second}
}
