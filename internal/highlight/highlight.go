// Package highlight computes the byte-column highlight spans that mark
// substituted glyphs in a (possibly truncated) abbreviation.
//
// Character counts decide where truncation happens; byte counts (in the
// editor's own encoding) decide where spans start. The two are walked in
// lockstep over the printable slices of the untruncated word.
package highlight

import (
	"fmt"
	"unicode/utf8"

	"github.com/dshills/regcomp/internal/codec"
)

// Slice is one printable run of an encoded word. Bytes is measured by the
// editor, not assumed to be UTF-8.
type Slice struct {
	Chars int
	Bytes int
}

// Span marks Width bytes starting at byte column Col (0-based) of the
// abbreviation.
type Span struct {
	Col   int    `json:"col" msgpack:"col"`
	Width int    `json:"width" msgpack:"width"`
	Group string `json:"hl_group" msgpack:"hl_group"`
}

// NewSlice measures a printable run with a caller-supplied byte length.
func NewSlice(text string, bytes int) Slice {
	return Slice{Chars: utf8.RuneCountInString(text), Bytes: bytes}
}

// Compute returns the spans for abbr given the printable slices of the
// untruncated word. Exactly one substituted glyph follows every slice but
// the last. Adjacent glyphs coalesce into one span, and nothing past the
// end of abbr is highlighted.
func Compute(abbr string, slices []Slice, group string) []Span {
	limit := utf8.RuneCountInString(abbr)
	var spans []Span

	length, col := 0, 0
	for i, s := range slices {
		if length >= limit || i == len(slices)-1 {
			break
		}

		if s.Bytes == 0 && len(spans) > 0 && i > 0 {
			spans[len(spans)-1].Width += codec.SubstitutionWidth
		} else {
			length += s.Chars
			col += s.Bytes
			if length >= limit {
				break
			}
			spans = append(spans, Span{Col: col, Width: codec.SubstitutionWidth, Group: group})
		}

		length += codec.SubstitutionWidth
		col += codec.SubstitutionWidth
		if length > limit {
			// Truncation cut the glyph itself.
			spans[len(spans)-1].Width -= length - limit
			break
		}
	}
	return spans
}

// Extent returns the length in editor bytes of the part of abbr made of
// whole printable runs and glyphs. A run cut by truncation is not counted
// since no span starts inside it. Glyphs are ASCII, one byte per character.
func Extent(abbr string, slices []Slice) int {
	limit := utf8.RuneCountInString(abbr)
	length, bytes := 0, 0
	for i, s := range slices {
		if length+s.Chars > limit {
			break
		}
		length += s.Chars
		bytes += s.Bytes
		if i == len(slices)-1 || length >= limit {
			break
		}
		g := min(codec.SubstitutionWidth, limit-length)
		length += g
		bytes += g
	}
	return bytes
}

// InvariantError reports spans inconsistent with the abbreviation they
// decorate. It indicates a programming fault, never bad user input.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "highlight invariant violated: " + e.Reason
}

// Verify checks that spans are sorted, disjoint, and contained in an
// abbreviation of abbrBytes bytes.
func Verify(spans []Span, abbrBytes int) error {
	end := 0
	for i, s := range spans {
		if s.Width <= 0 {
			return &InvariantError{Reason: fmt.Sprintf("span %d has width %d", i, s.Width)}
		}
		if s.Col < end {
			return &InvariantError{Reason: fmt.Sprintf("span %d at %d overlaps previous ending at %d", i, s.Col, end)}
		}
		end = s.Col + s.Width
		if end > abbrBytes {
			return &InvariantError{Reason: fmt.Sprintf("span %d ends at %d past abbreviation length %d", i, end, abbrBytes)}
		}
	}
	return nil
}
