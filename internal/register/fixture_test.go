package register

import (
	"reflect"
	"strings"
	"testing"
)

func TestReadFixture(t *testing.T) {
	src := `
clipboard = true

[[register]]
name = "a"
contents = ["foo", "bar"]
type = "V"

[[register]]
name = "+"
contents = ["clip"]

[[register]]
name = "b"
contents = ["ab", "cd"]
type = "b2"
`
	f, err := ReadFixture(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	s := f.Store()

	a, ok := s.Info('a')
	if !ok || !reflect.DeepEqual(a.Contents, []string{"foo", "bar"}) || a.Type != "V" {
		t.Errorf("a = %+v, %v", a, ok)
	}
	plus, ok := s.Info('+')
	if !ok || plus.Type != "v" {
		t.Errorf("+ = %+v, %v", plus, ok)
	}
	b, _ := s.Info('b')
	if got := ParseMode(b.Type); got != Blockwise(2) {
		t.Errorf("b mode = %+v, want blockwise width 2", got)
	}
}

func TestReadFixture_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad name", "[[register]]\nname = \"ab\"\n"},
		{"unknown register", "[[register]]\nname = \"!\"\n"},
		{"unknown key", "[[register]]\nname = \"a\"\ncolour = 1\n"},
		{"syntax", "[[register]\n"},
	}
	for _, tt := range tests {
		if _, err := ReadFixture(strings.NewReader(tt.src)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
