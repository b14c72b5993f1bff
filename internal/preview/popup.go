// Package preview draws completion candidates in a terminal popup, the way
// an editor's completion menu would show them, with substituted glyphs
// highlighted by their spans.
package preview

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/regcomp/internal/highlight"
	"github.com/dshills/regcomp/internal/source"
)

// Theme maps popup parts and highlight groups to styles.
type Theme struct {
	Normal   tcell.Style
	Selected tcell.Style
	Kind     tcell.Style
	Menu     tcell.Style

	// Groups styles highlight groups by name. Unknown groups use Special.
	Groups  map[string]tcell.Style
	Special tcell.Style
}

// DefaultTheme resembles Vim's default popup menu colors.
func DefaultTheme() Theme {
	normal := tcell.StyleDefault.Background(tcell.ColorDarkMagenta).Foreground(tcell.ColorWhite)
	special := normal.Foreground(tcell.ColorAqua)
	return Theme{
		Normal:   normal,
		Selected: tcell.StyleDefault.Background(tcell.ColorGray).Foreground(tcell.ColorBlack),
		Kind:     normal.Foreground(tcell.ColorYellow),
		Menu:     normal.Foreground(tcell.ColorSilver),
		Groups:   map[string]tcell.Style{"SpecialKey": special},
		Special:  special,
	}
}

func (t Theme) group(name string) tcell.Style {
	if st, ok := t.Groups[name]; ok {
		return st
	}
	return t.Special
}

// Popup is a completion menu.
type Popup struct {
	Items    []source.Candidate
	Selected int
	Theme    Theme

	// ByteLen measures text in the encoding the spans were computed in.
	// Nil means UTF-8.
	ByteLen func(string) int
}

// NewPopup creates a popup with the default theme.
func NewPopup(items []source.Candidate) *Popup {
	return &Popup{Items: items, Theme: DefaultTheme()}
}

func (p *Popup) byteLen(s string) int {
	if p.ByteLen != nil {
		return p.ByteLen(s)
	}
	return len(s)
}

// Move shifts the selection by delta, wrapping around.
func (p *Popup) Move(delta int) {
	n := len(p.Items)
	if n == 0 {
		return
	}
	p.Selected = ((p.Selected+delta)%n + n) % n
}

// Size returns the popup's width and height in cells.
func (p *Popup) Size() (int, int) {
	abbrW, kindW, menuW := p.columns()
	return abbrW + 1 + kindW + 1 + menuW, len(p.Items)
}

func (p *Popup) columns() (abbr, kind, menu int) {
	for _, it := range p.Items {
		abbr = max(abbr, uniseg.StringWidth(it.Abbr))
		kind = max(kind, uniseg.StringWidth(it.Kind))
		menu = max(menu, uniseg.StringWidth(it.Menu))
	}
	return abbr, kind, menu
}

// Draw paints the popup with its top-left corner at x, y.
func (p *Popup) Draw(scr tcell.Screen, x, y int) {
	abbrW, kindW, menuW := p.columns()
	width := abbrW + 1 + kindW + 1 + menuW

	for i, it := range p.Items {
		row := y + i
		base, kindSt, menuSt := p.Theme.Normal, p.Theme.Kind, p.Theme.Menu
		if i == p.Selected {
			base, kindSt, menuSt = p.Theme.Selected, p.Theme.Selected, p.Theme.Selected
		}
		fill(scr, x, row, width, base)

		p.drawAbbr(scr, x, row, it.Abbr, it.Highlights, base)
		drawText(scr, x+abbrW+1, row, it.Kind, kindSt)
		drawText(scr, x+abbrW+1+kindW+1, row, it.Menu, menuSt)
	}
}

// drawAbbr draws abbr one grapheme at a time, styling graphemes whose byte
// offset falls inside a span.
func (p *Popup) drawAbbr(scr tcell.Screen, x, y int, abbr string, spans []highlight.Span, base tcell.Style) {
	col, off := 0, 0
	g := uniseg.NewGraphemes(abbr)
	for g.Next() {
		st := base
		if sp, ok := spanAt(spans, off); ok {
			st = p.Theme.group(sp.Group)
		}
		runes := g.Runes()
		scr.SetContent(x+col, y, runes[0], runes[1:], st)
		col += g.Width()
		off += p.byteLen(g.Str())
	}
}

func spanAt(spans []highlight.Span, off int) (highlight.Span, bool) {
	for _, s := range spans {
		if off >= s.Col && off < s.Col+s.Width {
			return s, true
		}
		if s.Col > off {
			break
		}
	}
	return highlight.Span{}, false
}

func drawText(scr tcell.Screen, x, y int, text string, st tcell.Style) {
	col := 0
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		runes := g.Runes()
		scr.SetContent(x+col, y, runes[0], runes[1:], st)
		col += g.Width()
	}
}

func fill(scr tcell.Screen, x, y, width int, st tcell.Style) {
	for i := 0; i < width; i++ {
		scr.SetContent(x+i, y, ' ', nil, st)
	}
}
