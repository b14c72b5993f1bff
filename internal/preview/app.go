package preview

import (
	"github.com/gdamore/tcell/v2"
)

// Run shows p on scr until a candidate is accepted or the popup is
// dismissed. It returns the accepted index, or -1. The screen must already
// be initialized; Run does not finalize it.
func Run(scr tcell.Screen, p *Popup, title string) int {
	draw := func() {
		scr.Clear()
		drawText(scr, 0, 0, title, tcell.StyleDefault.Bold(true))
		p.Draw(scr, 2, 2)
		scr.Show()
	}
	draw()

	for {
		ev := scr.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return -1
		case *tcell.EventResize:
			scr.Sync()
			draw()
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				return -1
			case tcell.KeyEnter:
				if len(p.Items) == 0 {
					return -1
				}
				return p.Selected
			case tcell.KeyDown, tcell.KeyCtrlN, tcell.KeyTab:
				p.Move(1)
			case tcell.KeyUp, tcell.KeyCtrlP, tcell.KeyBacktab:
				p.Move(-1)
			case tcell.KeyRune:
				switch ev.Rune() {
				case 'j':
					p.Move(1)
				case 'k':
					p.Move(-1)
				case 'q':
					return -1
				}
			}
			draw()
		}
	}
}
