package nvimhost

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/neovim/go-client/nvim"

	"github.com/dshills/regcomp/internal/batch"
	"github.com/dshills/regcomp/internal/config"
	"github.com/dshills/regcomp/internal/host"
	"github.com/dshills/regcomp/internal/logging"
	"github.com/dshills/regcomp/internal/register"
)

type op struct {
	fname  string
	args   []any
	result any
}

// fakeBatch answers calls from a function, like nvim_call_atomic would.
type fakeBatch struct {
	ops     []op
	answer  func(fname string, args []any) (any, error)
	lines   [][]byte
	span    [2]int
	cursor  [2]int
	execErr error
}

func (f *fakeBatch) Call(fname string, result any, args ...any) {
	f.ops = append(f.ops, op{fname: fname, args: args, result: result})
}

func (f *fakeBatch) Eval(expr string, result any) {
	f.ops = append(f.ops, op{fname: "eval", args: []any{expr}, result: result})
}

func (f *fakeBatch) SetBufferLines(buffer nvim.Buffer, start, end int, strict bool, replacement [][]byte) {
	f.span = [2]int{start, end}
	f.lines = replacement
}

func (f *fakeBatch) SetWindowCursor(window nvim.Window, pos [2]int) {
	f.cursor = pos
}

func (f *fakeBatch) Execute() error {
	if f.execErr != nil {
		return f.execErr
	}
	for i, o := range f.ops {
		if f.answer == nil {
			continue
		}
		v, err := f.answer(o.fname, o.args)
		if err != nil {
			return &nvim.BatchError{Index: i, Err: err}
		}
		reflect.ValueOf(o.result).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func newTestHost(fb *fakeBatch) *Host {
	return &Host{newBatch: func() batcher { return fb }, log: logging.NullLogger}
}

func TestExecuteBatch_MethodMapping(t *testing.T) {
	fb := &fakeBatch{answer: func(fname string, args []any) (any, error) {
		switch fname {
		case "getreginfo":
			if args[0] == "a" {
				return register.Info{Contents: []string{"x"}, Type: "V"}, nil
			}
			return register.Info{}, nil
		case "has":
			return 1, nil
		case "strlen":
			return len(args[0].(string)), nil
		case "printf":
			s := args[2].(string)
			return s[:args[1].(int)], nil
		case "getline":
			return fmt.Sprintf("line %d", args[0]), nil
		case "eval":
			if args[0] == "&columns" {
				return 120, nil
			}
			return 0, nil
		}
		return nil, fmt.Errorf("unexpected %s", fname)
	}}
	h := newTestHost(fb)

	type res struct {
		a, z  *batch.Future[register.Info]
		clip  *batch.Future[bool]
		tab   *batch.Future[bool]
		cols  *batch.Future[int]
		blen  *batch.Future[int]
		trunc *batch.Future[string]
		line  *batch.Future[string]
	}
	r, err := batch.Defer(context.Background(), h, func(b *batch.Batch) res {
		return res{
			a:     host.RegisterInfo(b, 'a'),
			z:     host.RegisterInfo(b, 'z'),
			clip:  host.HasClipboard(b),
			tab:   host.IsPrintable(b, '\t'),
			cols:  host.Columns(b),
			blen:  host.ByteLength(b, "héllo"),
			trunc: host.Truncate(b, "abcdef", 3),
			line:  host.Line(b, 7),
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if info, err := r.a.Get(); err != nil || info.Type != "V" {
		t.Errorf("register a = %+v, %v", info, err)
	}
	if _, err := r.z.Get(); !errors.Is(err, host.ErrNoContent) {
		t.Errorf("register z error = %v, want ErrNoContent", err)
	}
	if !r.clip.Value() {
		t.Error("clipboard = false")
	}
	if r.tab.Value() {
		t.Error("tab reported printable")
	}
	if r.cols.Value() != 120 || r.blen.Value() != 6 || r.trunc.Value() != "abc" || r.line.Value() != "line 7" {
		t.Errorf("cols=%d blen=%d trunc=%q line=%q", r.cols.Value(), r.blen.Value(), r.trunc.Value(), r.line.Value())
	}

	if got := fb.ops[3].args[0]; got != printableExpr(9) {
		t.Errorf("isPrintable expr = %q", got)
	}
	if got := fb.ops[6].args[0]; got != "%.*S" {
		t.Errorf("truncate format = %q", got)
	}
}

func TestExecuteBatch_AtomicFailure(t *testing.T) {
	boom := errors.New("E5108")
	fb := &fakeBatch{answer: func(fname string, args []any) (any, error) {
		if args[0] == "&columns" {
			return nil, boom
		}
		return 3, nil
	}}
	h := newTestHost(fb)

	var first, failed, after *batch.Future[int]
	b := batch.New()
	first = host.ByteLength(b, "abc")
	failed = host.Columns(b)
	after = host.ByteLength(b, "def")
	if err := b.Flush(context.Background(), h); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if v, err := first.Get(); err != nil || v != 3 {
		t.Errorf("first = %d, %v", v, err)
	}
	if _, err := failed.Get(); !errors.Is(err, boom) {
		t.Errorf("failed error = %v, want %v", err, boom)
	}
	if _, err := after.Get(); !errors.Is(err, ErrAborted) {
		t.Errorf("after error = %v, want ErrAborted", err)
	}
}

func TestExecuteBatch_TransportFailure(t *testing.T) {
	down := errors.New("connection closed")
	h := newTestHost(&fakeBatch{execErr: down})

	_, err := batch.Defer(context.Background(), h, func(b *batch.Batch) *batch.Future[int] {
		return host.Columns(b)
	})
	if !errors.Is(err, down) {
		t.Errorf("Defer() error = %v, want %v", err, down)
	}
}

func TestExecuteBatch_UnknownMethod(t *testing.T) {
	fb := &fakeBatch{}
	h := newTestHost(fb)

	b := batch.New()
	f := batch.Enqueue[int](b, "bogus")
	if err := b.Flush(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Get(); !errors.Is(err, host.ErrUnknownMethod) {
		t.Errorf("error = %v, want ErrUnknownMethod", err)
	}
	if len(fb.ops) != 0 {
		t.Errorf("unknown method reached Neovim: %+v", fb.ops)
	}
}

func TestReplaceLines(t *testing.T) {
	fb := &fakeBatch{}
	h := newTestHost(fb)

	err := h.ReplaceLines(context.Background(), 4, []string{"foo", "bar)"}, host.Cursor{Line: 5, Column: 4})
	if err != nil {
		t.Fatal(err)
	}
	if fb.span != [2]int{3, 4} {
		t.Errorf("buffer span = %v, want [3 4]", fb.span)
	}
	if len(fb.lines) != 2 || string(fb.lines[1]) != "bar)" {
		t.Errorf("lines = %q", fb.lines)
	}
	if fb.cursor != [2]int{5, 3} {
		t.Errorf("cursor = %v, want 0-based column", fb.cursor)
	}
}

func TestMergeParams(t *testing.T) {
	base := config.Default().Source

	got, err := mergeParams(base, map[any]any{"registers": "ab", "maxAbbrWidth": int64(10)})
	if err != nil {
		t.Fatal(err)
	}
	want := config.Params{Registers: "ab", MaxAbbrWidth: 10, HighlightGroup: "SpecialKey"}
	if got != want {
		t.Errorf("mergeParams() = %+v, want %+v", got, want)
	}

	if got, _ := mergeParams(base, nil); got != base {
		t.Errorf("nil params = %+v", got)
	}
}

func TestDecode(t *testing.T) {
	raw := map[string]any{
		"contents": []any{"foo", []byte("bar")},
		"mode":     map[any]any{"kind": int64(register.KindLinewise)},
		"word":     "foo\nbar\n",
		"suffix":   ")",
	}
	var got struct {
		Contents []string      `json:"contents"`
		Mode     register.Mode `json:"mode"`
		Word     string        `json:"word"`
		Suffix   string        `json:"suffix"`
	}
	if err := decode(raw, &got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Contents, []string{"foo", "bar"}) || got.Mode != register.Linewise || got.Suffix != ")" {
		t.Errorf("decode() = %+v", got)
	}
}
