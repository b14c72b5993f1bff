// Package unprintable builds the frozen set of code points that must never be
// shown verbatim in a completion menu.
//
// The set is built once from a printable oracle (usually the editor's own
// notion of printable characters in the active locale) over [0, GuardLimit).
// Control codes 0x00-0x1F are always in the set, whatever the oracle says.
// Code points at or above GuardLimit are never in the set.
package unprintable

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// GuardLimit is the exclusive upper bound of the oracle range. The oracle is
// also queried at GuardLimit itself so the final run always closes; that
// sentinel never becomes a member.
const GuardLimit = 256

// ControlFloor is the highest code point of the always-unprintable floor.
const ControlFloor = 0x1F

// Range is an inclusive run of unprintable code points.
type Range struct {
	Lo, Hi rune
}

// Single reports whether the range holds exactly one code point.
func (r Range) Single() bool { return r.Lo == r.Hi }

// Set is an immutable set of unprintable code points plus a compiled matcher.
// A Set is safe for concurrent use.
type Set struct {
	member [GuardLimit]bool
	ranges []Range
	re     *regexp.Regexp
}

// Build creates a Set from a printable oracle indexed by code point. The
// oracle normally has GuardLimit+1 entries; missing entries count as
// printable.
func Build(printable []bool) *Set {
	return BuildFunc(func(r rune) bool {
		if int(r) < len(printable) {
			return printable[r]
		}
		return true
	})
}

// BuildFunc creates a Set by scanning isPrintable over 0..GuardLimit.
func BuildFunc(isPrintable func(rune) bool) *Set {
	s := &Set{}

	start := rune(-1)
	for cp := rune(0); cp <= GuardLimit; cp++ {
		unprintable := cp <= ControlFloor || !isPrintable(cp)
		if cp == GuardLimit {
			unprintable = false
		}

		switch {
		case unprintable && start < 0:
			start = cp
		case !unprintable && start >= 0:
			s.ranges = append(s.ranges, Range{Lo: start, Hi: cp - 1})
			start = -1
		}
		if unprintable {
			s.member[cp] = true
		}
	}

	s.re = regexp.MustCompile(s.Pattern())
	return s
}

// Default builds a Set from Go's unicode.IsPrint. It is used when no editor
// oracle is available, e.g. by the in-process host.
func Default() *Set {
	return BuildFunc(unicode.IsPrint)
}

// Contains reports whether r is unprintable.
func (s *Set) Contains(r rune) bool {
	return r >= 0 && r < GuardLimit && s.member[r]
}

// Ranges returns the maximal unprintable runs in ascending order.
func (s *Set) Ranges() []Range {
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Pattern returns a regular expression character class matching exactly one
// unprintable code point.
func (s *Set) Pattern() string {
	var sb strings.Builder
	sb.WriteString("[")
	for _, r := range s.ranges {
		if r.Single() {
			fmt.Fprintf(&sb, `\x{%x}`, r.Lo)
		} else {
			fmt.Fprintf(&sb, `\x{%x}-\x{%x}`, r.Lo, r.Hi)
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// MatchString reports whether str contains any unprintable code point.
func (s *Set) MatchString(str string) bool {
	return s.re.MatchString(str)
}

// Split returns the maximal printable runs of str. A string holding n
// unprintable code points yields n+1 slices; adjacent unprintables yield an
// empty slice between them.
func (s *Set) Split(str string) []string {
	return s.re.Split(str, -1)
}

// Count returns the number of unprintable code points in str.
func (s *Set) Count(str string) int {
	n := 0
	for _, r := range str {
		if s.Contains(r) {
			n++
		}
	}
	return n
}
