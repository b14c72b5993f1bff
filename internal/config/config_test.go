package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	s, ok := m[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(s), nil
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Source.HighlightGroup != DefaultHighlightGroup {
		t.Errorf("HighlightGroup = %q", cfg.Source.HighlightGroup)
	}
	if cfg.Source.Registers != "" || cfg.Source.MaxAbbrWidth != 0 {
		t.Errorf("unexpected source defaults: %+v", cfg.Source)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestParams_AbbrWidth(t *testing.T) {
	tests := []struct {
		max, columns, want int
	}{
		{0, 80, 80},
		{20, 80, 20},
		{200, 80, 80},
	}
	for _, tt := range tests {
		p := Params{MaxAbbrWidth: tt.max}
		if got := p.AbbrWidth(tt.columns); got != tt.want {
			t.Errorf("AbbrWidth(max=%d, columns=%d) = %d, want %d", tt.max, tt.columns, got, tt.want)
		}
	}
}

func TestLoader_Load(t *testing.T) {
	fsys := memFS{
		"/cfg.toml": `
[source]
registers = "ab"
max_abbr_width = 30
ctrl_char_hl_group = "Comment"

[log]
level = "debug"
`,
	}
	cfg, err := NewLoaderWith(fsys, nil).Load("/cfg.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Registers != "ab" || cfg.Source.MaxAbbrWidth != 30 || cfg.Source.HighlightGroup != "Comment" {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Host.Columns != 80 || cfg.Host.Encoding != "utf-8" {
		t.Errorf("Host = %+v", cfg.Host)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	cfg, err := NewLoaderWith(memFS{}, nil).Load("/absent.toml")
	if err != nil {
		t.Fatalf("Load() = %v, want nil for a missing file", err)
	}
	if cfg != Default() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoader_ParseError(t *testing.T) {
	fsys := memFS{"/bad.toml": "[source]\nregisters = \n"}
	_, err := NewLoaderWith(fsys, nil).Load("/bad.toml")

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Load() error = %v, want *ParseError", err)
	}
	if pe.Path != "/bad.toml" {
		t.Errorf("Path = %q", pe.Path)
	}
	if pe.Line != 2 {
		t.Errorf("Line = %d, want 2", pe.Line)
	}
}

func TestLoader_Invalid(t *testing.T) {
	fsys := memFS{"/neg.toml": "[source]\nmax_abbr_width = -1\n"}
	_, err := NewLoaderWith(fsys, nil).Load("/neg.toml")
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Load() error = %v, want ErrInvalid", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, env(map[string]string{
		EnvRegisters:      "0\"",
		EnvMaxAbbrWidth:   " 12 ",
		EnvHighlightGroup: "",
		EnvLogLevel:       "WARN",
		EnvColumns:        "120",
		EnvClipboard:      "true",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Registers != "0\"" || cfg.Source.MaxAbbrWidth != 12 {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Source.HighlightEnabled() {
		t.Error("empty REGCOMP_HL_GROUP should disable highlighting")
	}
	if cfg.Log.Level != "warn" || cfg.Host.Columns != 120 || !cfg.Host.Clipboard {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, env(map[string]string{EnvMaxAbbrWidth: "wide"}))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("ApplyEnv() = %v, want ErrInvalid", err)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	fsys := memFS{"/c.toml": "[source]\nregisters = \"abc\"\n"}
	cfg, err := NewLoaderWith(fsys, env(map[string]string{EnvRegisters: "z"})).Load("/c.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Registers != "z" {
		t.Errorf("Registers = %q, want env override", cfg.Source.Registers)
	}
}

func TestMergeParams(t *testing.T) {
	base := Default().Source

	tests := []struct {
		name    string
		raw     string
		want    Params
		wantErr bool
	}{
		{"empty", "", base, false},
		{"null", "null", base, false},
		{"registers only", `{"registers":"ab"}`, Params{Registers: "ab", HighlightGroup: DefaultHighlightGroup}, false},
		{"disable highlight", `{"ctrlCharHlGroup":""}`, Params{}, false},
		{"width", `{"maxAbbrWidth":10}`, Params{MaxAbbrWidth: 10, HighlightGroup: DefaultHighlightGroup}, false},
		{"negative width", `{"maxAbbrWidth":-3}`, base, true},
		{"malformed", `{`, base, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeParams(base, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("MergeParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("MergeParams() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("[host]\nencoding = \"latin1\"\ncolumns = 40\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host.Encoding != "latin1" || cfg.Host.Columns != 40 {
		t.Errorf("Host = %+v", cfg.Host)
	}
}

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"source"`, `"max_abbr_width"`, `"ctrl_char_hl_group"`, `"regcomp configuration"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %s", want)
		}
	}

	params, err := json.Marshal(ParamsSchema())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(params), `"ctrlCharHlGroup"`) {
		t.Error("params schema should use the editor-facing JSON names")
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regcomp.toml")
	if err := os.WriteFile(path, []byte("[source]\nregisters = \"a\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan Config, 4)
	w, err := NewWatcher(path, NewLoaderWith(OSFS{}, nil),
		WithDebounce(10*time.Millisecond),
		WithOnChange(func(c Config) { changed <- c }))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if got := w.Current().Source.Registers; got != "a" {
		t.Fatalf("initial Registers = %q", got)
	}

	if err := os.WriteFile(path, []byte("[source]\nregisters = \"b\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changed:
		if c.Source.Registers != "b" {
			t.Errorf("reloaded Registers = %q", c.Source.Registers)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	if got := w.Current().Source.Registers; got != "b" {
		t.Errorf("Current().Source.Registers = %q", got)
	}
}

func TestWatcher_BadReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regcomp.toml")
	if err := os.WriteFile(path, []byte("[source]\nregisters = \"a\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, NewLoaderWith(OSFS{}, nil), WithDebounce(5*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[source\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if got := w.Current().Source.Registers; got != "a" {
		t.Errorf("Current().Source.Registers = %q, want previous value", got)
	}
}

func TestWatcher_CloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	w, err := NewWatcher(path, NewLoaderWith(OSFS{}, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := w.Close(); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("second Close() = %v, want ErrWatcherClosed", err)
	}
}
