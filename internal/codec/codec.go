// Package codec converts register contents to a single completion line and
// back, and renders that line for display.
//
// Lines are joined with Separator; newlines already inside a line become
// Placeholder first so the join can be undone exactly. Whole-line and block
// registers get one trailing Separator.
package codec

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/regcomp/internal/register"
	"github.com/dshills/regcomp/internal/unprintable"
)

const (
	// Separator joins register lines in an encoded word.
	Separator = "\n"
	// Placeholder stands for a newline embedded inside one register line.
	Placeholder = "\x00"
)

// SubstitutionWidth is the display and byte width of every glyph.
const SubstitutionWidth = 2

// Encode joins register contents into one line.
func Encode(contents []string, mode register.Mode) string {
	var sb strings.Builder
	for i, line := range contents {
		if i > 0 {
			sb.WriteString(Separator)
		}
		sb.WriteString(strings.ReplaceAll(line, Separator, Placeholder))
	}
	if mode.EndsWithLine() {
		sb.WriteString(Separator)
	}
	return sb.String()
}

// Decode splits an encoded line back into lines. Whole-line encodings decode
// with an extra trailing empty line. Block width is not restored.
func Decode(text string) []string {
	lines := strings.Split(text, Separator)
	for i, line := range lines {
		lines[i] = strings.ReplaceAll(line, Placeholder, Separator)
	}
	return lines
}

// Glyph returns the two-character display form of an unprintable code point.
// It is defined for every rune.
func Glyph(r rune) string {
	switch {
	case r >= 0x00 && r <= 0x1F:
		return "^" + string(r+0x40)
	case r == 0x7F:
		return "^?"
	case r >= 0x80 && r <= 0x9F:
		return "~" + string(r-0x40)
	case r >= 0xA0 && r <= 0xFE:
		return "|" + string(r-0x80)
	default:
		return "~?"
	}
}

// Abbreviate replaces every unprintable code point of word with its glyph.
// Bytes that are not valid UTF-8 are copied through so the result keeps the
// byte layout of word's printable runs.
func Abbreviate(word string, set *unprintable.Set) string {
	if !set.MatchString(word) {
		return word
	}
	var sb strings.Builder
	sb.Grow(len(word) + set.Count(word))
	for i := 0; i < len(word); {
		r, size := utf8.DecodeRuneInString(word[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			sb.WriteByte(word[i])
		case set.Contains(r):
			sb.WriteString(Glyph(r))
		default:
			sb.WriteString(word[i : i+size])
		}
		i += size
	}
	return sb.String()
}
