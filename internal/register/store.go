package register

import (
	"sync"
	"unicode"
)

// Store is an in-memory register store. It backs the in-process host used by
// the preview and Lua front ends and by tests.
type Store struct {
	mu        sync.RWMutex
	registers map[rune]*Register

	// numbered holds 1-9, the rotating delete history.
	numbered [9]*Register

	clipboard bool
}

// NewStore creates a store with every standard register defined and empty.
// Clipboard registers exist only when clipboard is true.
func NewStore(clipboard bool) *Store {
	s := &Store{
		registers: make(map[rune]*Register),
		clipboard: clipboard,
	}
	for _, name := range Universe(clipboard) {
		s.registers[name] = &Register{Name: name}
	}
	for i := 1; i <= 9; i++ {
		s.numbered[i-1] = s.registers[rune('0'+i)]
	}
	return s
}

// HasClipboard reports whether clipboard registers are available.
func (s *Store) HasClipboard() bool {
	return s.clipboard
}

// Info returns the snapshot of a register. The second result is false for
// unknown names and for registers that hold nothing.
func (s *Store) Info(name rune) (Info, bool) {
	if unicode.IsUpper(name) {
		name = unicode.ToLower(name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.registers[name]
	if !ok || len(reg.Contents) == 0 {
		return Info{}, false
	}
	contents := make([]string, len(reg.Contents))
	copy(contents, reg.Contents)
	return Info{Contents: contents, Type: reg.Mode.RegType()}, true
}

// Set stores contents in a register. Uppercase names append to the
// lowercase register. Read-only and unknown registers are left unchanged.
func (s *Store) Set(name rune, contents []string, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appendMode := false
	if unicode.IsUpper(name) {
		name = unicode.ToLower(name)
		appendMode = true
	}

	reg, ok := s.registers[name]
	if !ok {
		return
	}

	if appendMode && len(reg.Contents) > 0 {
		if len(contents) == 0 {
			return
		}
		if reg.Mode.Kind == KindLinewise || mode.Kind == KindLinewise {
			reg.Contents = append(reg.Contents, contents...)
			reg.Mode = Linewise
		} else {
			last := len(reg.Contents) - 1
			reg.Contents[last] += contents[0]
			reg.Contents = append(reg.Contents, contents[1:]...)
		}
		return
	}

	reg.Contents = append([]string(nil), contents...)
	reg.Mode = mode
}

// SetYank stores a yank in register 0 and the unnamed register.
func (s *Store) SetYank(contents []string, mode Mode) {
	s.Set('0', contents, mode)
	s.Set('"', contents, mode)
}

// SetDelete stores a delete. Small deletes go to "-"; others rotate the
// numbered registers 1-9. Both update the unnamed register.
func (s *Store) SetDelete(contents []string, mode Mode, small bool) {
	if small {
		s.Set('-', contents, mode)
		s.Set('"', contents, mode)
		return
	}

	s.mu.Lock()
	for i := 8; i > 0; i-- {
		s.numbered[i].Contents = s.numbered[i-1].Contents
		s.numbered[i].Mode = s.numbered[i-1].Mode
	}
	s.numbered[0].Contents = append([]string(nil), contents...)
	s.numbered[0].Mode = mode
	s.mu.Unlock()

	s.Set('"', contents, mode)
}
