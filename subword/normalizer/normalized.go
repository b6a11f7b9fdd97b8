package normalizer

import (
	"strings"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/subword/subword/encoding"
	"golang.org/x/text/unicode/norm"
)

// NormalizedString is a normalized text together with, for every byte of the
// normalized text, the span of the original text it came from. Slices of a
// NormalizedString share the same original, so offsets stay absolute.
type NormalizedString struct {
	original   string
	normalized string
	alignments []encoding.Offsets
	// anchor is the original position of an empty string.
	anchor int
}

// New wraps s. Every byte of a rune is aligned to the rune's full span.
func New(s string) *NormalizedString {
	n := &NormalizedString{original: s, normalized: s, alignments: make([]encoding.Offsets, len(s))}
	for i := 0; i < len(s); {
		size := runeSize(s[i:])
		for b := i; b < i+size; b++ {
			n.alignments[b] = encoding.Offsets{Start: i, End: i + size}
		}
		i += size
	}
	return n
}

// Original returns the full original text.
func (n *NormalizedString) Original() string { return n.original }

// Normalized returns the current normalized text.
func (n *NormalizedString) Normalized() string { return n.normalized }

// Len returns the byte length of the normalized text.
func (n *NormalizedString) Len() int { return len(n.normalized) }

// IsEmpty reports whether the normalized text is empty.
func (n *NormalizedString) IsEmpty() bool { return len(n.normalized) == 0 }

// Offsets returns the original span covered by the whole normalized text.
func (n *NormalizedString) Offsets() encoding.Offsets {
	return n.OriginalOffsets(0, n.Len())
}

// OriginalOffsets maps the normalized byte range [start, end) back to the
// original text.
func (n *NormalizedString) OriginalOffsets(start, end int) encoding.Offsets {
	if len(n.alignments) == 0 {
		return encoding.Offsets{Start: n.anchor, End: n.anchor}
	}
	start = min(max(start, 0), len(n.alignments))
	end = min(max(end, start), len(n.alignments))
	if start == end {
		if start < len(n.alignments) {
			p := n.alignments[start].Start
			return encoding.Offsets{Start: p, End: p}
		}
		p := n.alignments[len(n.alignments)-1].End
		return encoding.Offsets{Start: p, End: p}
	}
	return encoding.Offsets{Start: n.alignments[start].Start, End: n.alignments[end-1].End}
}

// Slice returns the normalized byte range [start, end) as its own
// NormalizedString, aligned to the same original.
func (n *NormalizedString) Slice(start, end int) *NormalizedString {
	start = min(max(start, 0), len(n.normalized))
	end = min(max(end, start), len(n.normalized))
	return &NormalizedString{
		original:   n.original,
		normalized: n.normalized[start:end],
		alignments: n.alignments[start:end:end],
		anchor:     n.OriginalOffsets(start, start).Start,
	}
}

// rebuild replaces the normalized text segment by segment. next returns the
// byte length of the segment at the head of its argument; f maps a segment to
// its replacement, and every replacement byte inherits the original span of
// the whole segment.
func (n *NormalizedString) rebuild(next func(s string) int, f func(seg string) string) {
	if n.IsEmpty() {
		return
	}
	var sb strings.Builder
	sb.Grow(len(n.normalized))
	alignments := make([]encoding.Offsets, 0, len(n.alignments))
	for i := 0; i < len(n.normalized); {
		size := next(n.normalized[i:])
		if size <= 0 {
			size = 1
		}
		end := min(i+size, len(n.normalized))
		seg := n.normalized[i:end]
		span := encoding.Offsets{Start: n.alignments[i].Start, End: n.alignments[end-1].End}
		out := f(seg)
		sb.WriteString(out)
		for range len(out) {
			alignments = append(alignments, span)
		}
		i = end
	}
	n.normalized = sb.String()
	if len(alignments) == 0 {
		n.anchor = n.alignments[0].Start
	}
	n.alignments = alignments
}

func runeSize(s string) int {
	_, size := utf8.DecodeRuneInString(s)
	return max(size, 1)
}

// Transform rewrites every rune with f. Returning "" drops the rune, longer
// results insert characters aligned to the source rune. Invalid UTF-8 bytes
// are kept as they are.
func (n *NormalizedString) Transform(f func(r rune) string) *NormalizedString {
	n.rebuild(runeSize, func(seg string) string {
		r, size := utf8.DecodeRuneInString(seg)
		if r == utf8.RuneError && size == 1 {
			return seg
		}
		return f(r)
	})
	return n
}

// Filter keeps only the runes for which keep returns true.
func (n *NormalizedString) Filter(keep func(r rune) bool) *NormalizedString {
	return n.Transform(func(r rune) string {
		if keep(r) {
			return string(r)
		}
		return ""
	})
}

// Lowercase folds the text to lower case.
func (n *NormalizedString) Lowercase() *NormalizedString {
	return n.Transform(func(r rune) string {
		return strings.ToLower(string(r))
	})
}

// Replace substitutes every occurrence of old with repl.
func (n *NormalizedString) Replace(old rune, repl string) *NormalizedString {
	return n.Transform(func(r rune) string {
		if r == old {
			return repl
		}
		return string(r)
	})
}

// NormalizeForm applies a Unicode normalization form. Each normalization
// segment is rewritten as a unit.
func (n *NormalizedString) NormalizeForm(form norm.Form) *NormalizedString {
	n.rebuild(func(s string) int {
		return form.NextBoundaryInString(s, true)
	}, form.String)
	return n
}

// Prepend inserts s before the text, aligned to the span of the first rune.
func (n *NormalizedString) Prepend(s string) *NormalizedString {
	if n.IsEmpty() || s == "" {
		return n
	}
	span := n.alignments[0]
	prefix := make([]encoding.Offsets, len(s), len(s)+len(n.alignments))
	for i := range prefix {
		prefix[i] = span
	}
	n.alignments = append(prefix, n.alignments...)
	n.normalized = s + n.normalized
	return n
}
