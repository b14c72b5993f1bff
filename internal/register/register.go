// Package register models editor registers as seen by the completion
// source: the register alphabet, the working-set selector, and the
// arrangement mode attached to each register's contents.
package register

import (
	"strconv"
	"strings"
)

// Standard is the standard register alphabet in listing order.
const Standard = `"0123456789abcdefghijklmnopqrstuvwxyz-.:#%/=`

// Clipboard holds the clipboard register names. They are only part of the
// universe when the editor reports clipboard support.
const Clipboard = "*+"

// blockPrefix is the first byte of a blockwise register type ("\x16" + width).
const blockPrefix = '\x16'

// Kind is the arrangement of a register's contents.
type Kind uint8

const (
	// KindUnknown is used when the editor reports no type.
	KindUnknown Kind = iota
	// KindCharwise is a character run inserted inline.
	KindCharwise
	// KindLinewise is a set of whole lines.
	KindLinewise
	// KindBlockwise is a rectangular block.
	KindBlockwise
)

// Mode is a register's arrangement plus the block width for blockwise
// registers. The width is informational and is not restored on decode.
type Mode struct {
	Kind  Kind `json:"kind" msgpack:"kind"`
	Width int  `json:"width,omitempty" msgpack:"width,omitempty"`
}

var (
	// Charwise is the character-run mode.
	Charwise = Mode{Kind: KindCharwise}
	// Linewise is the whole-line mode.
	Linewise = Mode{Kind: KindLinewise}
)

// Blockwise returns a block mode with the given width.
func Blockwise(width int) Mode {
	return Mode{Kind: KindBlockwise, Width: width}
}

// ParseMode converts an editor register type ("v", "V", "\x16<width>") into
// a Mode. Unrecognized types yield KindUnknown.
func ParseMode(regtype string) Mode {
	switch {
	case regtype == "v":
		return Charwise
	case regtype == "V":
		return Linewise
	case len(regtype) > 0 && regtype[0] == blockPrefix:
		width, _ := strconv.Atoi(regtype[1:])
		return Blockwise(width)
	default:
		return Mode{}
	}
}

// RegType is the inverse of ParseMode.
func (m Mode) RegType() string {
	switch m.Kind {
	case KindCharwise:
		return "v"
	case KindLinewise:
		return "V"
	case KindBlockwise:
		return string(rune(blockPrefix)) + strconv.Itoa(m.Width)
	default:
		return ""
	}
}

// OperatorWise returns the short kind tag shown in the completion menu.
func (m Mode) OperatorWise() string {
	switch m.Kind {
	case KindCharwise:
		return "c"
	case KindLinewise:
		return "l"
	case KindBlockwise:
		return "b"
	default:
		return ""
	}
}

// EndsWithLine reports whether encoded contents carry a trailing line
// separator, which is the case for whole-line and block registers.
func (m Mode) EndsWithLine() bool {
	return m.Kind == KindLinewise || m.Kind == KindBlockwise
}

// Info is a register snapshot as reported by the editor.
type Info struct {
	Contents []string `json:"regcontents" msgpack:"regcontents"`
	Type     string   `json:"regtype" msgpack:"regtype"`
}

// Empty reports whether the register holds no content.
func (i Info) Empty() bool {
	return len(i.Contents) == 0
}

// Register is one named register snapshot for a rendering pass.
type Register struct {
	Name     rune
	Contents []string
	Mode     Mode
}

// FromInfo builds a Register from an editor snapshot. The contents are
// copied so the register owns them.
func FromInfo(name rune, info Info) Register {
	contents := make([]string, len(info.Contents))
	copy(contents, info.Contents)
	return Register{
		Name:     name,
		Contents: contents,
		Mode:     ParseMode(info.Type),
	}
}

// Universe returns every register name that can be collected.
func Universe(clipboard bool) []rune {
	names := make([]rune, 0, len(Standard)+len(Clipboard))
	if clipboard {
		names = append(names, []rune(Clipboard)...)
	}
	return append(names, []rune(Standard)...)
}

// Select resolves a filter string against the universe. An empty filter
// selects the whole universe. Otherwise the result holds the filter's
// characters that are in the universe, in filter order, without duplicates;
// unknown characters are ignored.
func Select(filter string, clipboard bool) []rune {
	universe := Universe(clipboard)
	if filter == "" {
		return universe
	}

	known := string(universe)
	seen := make(map[rune]bool, len(filter))
	names := make([]rune, 0, len(filter))
	for _, r := range filter {
		if seen[r] || !strings.ContainsRune(known, r) {
			continue
		}
		seen[r] = true
		names = append(names, r)
	}
	return names
}

// IsValid reports whether name is a collectable register name.
func IsValid(name rune) bool {
	return strings.ContainsRune(Standard, name) || strings.ContainsRune(Clipboard, name)
}
