package register

import (
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Fixture is a TOML description of register contents:
//
//	clipboard = true
//
//	[[register]]
//	name = "a"
//	contents = ["foo", "bar"]
//	type = "V"
type Fixture struct {
	Clipboard bool           `toml:"clipboard"`
	Registers []FixtureEntry `toml:"register"`
}

// FixtureEntry is one register of a Fixture. Type uses Vim's regtype
// notation; "b<width>" is accepted for blockwise since the real prefix is a
// control character.
type FixtureEntry struct {
	Name     string   `toml:"name"`
	Contents []string `toml:"contents"`
	Type     string   `toml:"type"`
}

// ReadFixture decodes a fixture.
func ReadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode register fixture: %w", err)
	}
	for i, e := range f.Registers {
		runes := []rune(e.Name)
		if len(runes) != 1 || !IsValid(runes[0]) {
			return nil, fmt.Errorf("register fixture entry %d: invalid register name %q", i, e.Name)
		}
	}
	return &f, nil
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return ReadFixture(fh)
}

// Store builds a store holding the fixture's registers.
func (f *Fixture) Store() *Store {
	s := NewStore(f.Clipboard)
	for _, e := range f.Registers {
		s.Set([]rune(e.Name)[0], e.Contents, ParseTypeName(e.Type))
	}
	return s
}

// ParseTypeName is ParseMode for hand-written types: "b<width>" stands for
// blockwise and an empty type means charwise.
func ParseTypeName(t string) Mode {
	if len(t) > 1 && t[0] == 'b' {
		t = string(blockPrefix) + t[1:]
	}
	if t == "" {
		return Charwise
	}
	return ParseMode(t)
}
