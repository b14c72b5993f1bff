package plugin

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/regcomp/internal/config"
	"github.com/dshills/regcomp/internal/host/localhost"
	"github.com/dshills/regcomp/internal/reconcile"
	"github.com/dshills/regcomp/internal/register"
	"github.com/dshills/regcomp/internal/source"
)

// RegModule implements the regcomp.reg API over an in-process editor.
type RegModule struct {
	ctx    context.Context
	src    *source.Source
	host   *localhost.Host
	params func() config.Params
}

// NewRegModule creates the module. params supplies the defaults that a
// script's gather options override.
func NewRegModule(ctx context.Context, src *source.Source, h *localhost.Host, params func() config.Params) *RegModule {
	return &RegModule{ctx: ctx, src: src, host: h, params: params}
}

// Name returns the module name.
func (m *RegModule) Name() string {
	return "reg"
}

// Register registers the module into the Lua state.
func (m *RegModule) Register(L *lua.LState) error {
	mod := L.NewTable()

	L.SetField(mod, "gather", L.NewFunction(m.gather))
	L.SetField(mod, "confirm", L.NewFunction(m.confirm))
	L.SetField(mod, "set", L.NewFunction(m.set))
	L.SetField(mod, "get", L.NewFunction(m.get))
	L.SetField(mod, "lines", L.NewFunction(m.lines))
	L.SetField(mod, "set_line", L.NewFunction(m.setLine))
	L.SetField(mod, "cursor", L.NewFunction(m.cursor))
	L.SetField(mod, "unprintable", L.NewFunction(m.unprintable))

	L.SetGlobal(globalPrefix+m.Name(), mod)
	return nil
}

// gather(opts?, next_input?) -> items
// opts may set registers, max_abbr_width and hl_group.
func (m *RegModule) gather(L *lua.LState) int {
	params := m.params()
	if opts := L.OptTable(1, nil); opts != nil {
		if v, ok := opts.RawGetString("registers").(lua.LString); ok {
			params.Registers = string(v)
		}
		if v, ok := opts.RawGetString("max_abbr_width").(lua.LNumber); ok {
			if v < 0 {
				L.ArgError(1, "max_abbr_width must be non-negative")
				return 0
			}
			params.MaxAbbrWidth = int(v)
		}
		if v, ok := opts.RawGetString("hl_group").(lua.LString); ok {
			params.HighlightGroup = string(v)
		}
	}
	next := L.OptString(2, "")

	cands, err := m.src.Gather(m.ctx, params, next)
	if err != nil {
		L.RaiseError("gather: %v", err)
		return 0
	}

	items := L.CreateTable(len(cands), 0)
	for _, c := range cands {
		items.Append(candidateTable(L, c))
	}
	L.Push(items)
	return 1
}

func candidateTable(L *lua.LState, c source.Candidate) *lua.LTable {
	t := L.CreateTable(0, 7)
	L.SetField(t, "word", lua.LString(c.Word))
	L.SetField(t, "abbr", lua.LString(c.Abbr))
	L.SetField(t, "info", lua.LString(c.Info))
	L.SetField(t, "menu", lua.LString(c.Menu))
	L.SetField(t, "kind", lua.LString(c.Kind))

	hl := L.CreateTable(len(c.Highlights), 0)
	for _, s := range c.Highlights {
		span := L.CreateTable(0, 3)
		L.SetField(span, "col", lua.LNumber(s.Col))
		L.SetField(span, "width", lua.LNumber(s.Width))
		L.SetField(span, "hl_group", lua.LString(s.Group))
		hl.Append(span)
	}
	L.SetField(t, "highlights", hl)

	ud := L.NewUserData()
	ud.Value = c.UserData
	L.SetField(t, "user_data", ud)
	return t
}

// confirm(item, line_nr?) -> changed
// line_nr defaults to the cursor line.
func (m *RegModule) confirm(L *lua.LState) int {
	item := L.CheckTable(1)
	ud, ok := item.RawGetString("user_data").(*lua.LUserData)
	if !ok {
		L.ArgError(1, "item has no user_data")
		return 0
	}
	pending, ok := ud.Value.(reconcile.Pending)
	if !ok {
		L.ArgError(1, "item user_data is not a register candidate")
		return 0
	}

	ev := reconcile.Event{LineNr: L.OptInt(2, m.host.Cursor().Line)}
	changed, err := m.src.OnCompleteDone(m.ctx, ev, pending)
	if err != nil {
		L.RaiseError("confirm: %v", err)
		return 0
	}
	L.Push(lua.LBool(changed))
	return 1
}

// set(name, contents, type?)
// contents is a string or a list of lines; type is "v", "V" or "b<width>".
func (m *RegModule) set(L *lua.LState) int {
	name := []rune(L.CheckString(1))
	if len(name) != 1 {
		L.ArgError(1, "register name must be one character")
		return 0
	}

	var contents []string
	switch v := L.CheckAny(2).(type) {
	case lua.LString:
		contents = []string{string(v)}
	case *lua.LTable:
		v.ForEach(func(_, line lua.LValue) {
			contents = append(contents, lua.LVAsString(line))
		})
	default:
		L.ArgError(2, "contents must be a string or a list of strings")
		return 0
	}

	mode := register.ParseTypeName(L.OptString(3, ""))
	m.host.Store().Set(name[0], contents, mode)
	return 0
}

// get(name) -> contents, type | nil
func (m *RegModule) get(L *lua.LState) int {
	name := []rune(L.CheckString(1))
	if len(name) != 1 {
		L.ArgError(1, "register name must be one character")
		return 0
	}
	info, ok := m.host.Store().Info(name[0])
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(stringList(L, info.Contents))
	L.Push(lua.LString(register.ParseMode(info.Type).OperatorWise()))
	return 2
}

// lines() -> buffer lines
func (m *RegModule) lines(L *lua.LState) int {
	L.Push(stringList(L, m.host.Lines()))
	return 1
}

// set_line(n, text)
func (m *RegModule) setLine(L *lua.LState) int {
	n := L.CheckInt(1)
	if n < 1 {
		L.ArgError(1, "line numbers start at 1")
		return 0
	}
	m.host.SetLine(n, L.CheckString(2))
	return 0
}

// cursor() -> line, column
func (m *RegModule) cursor(L *lua.LState) int {
	c := m.host.Cursor()
	L.Push(lua.LNumber(c.Line))
	L.Push(lua.LNumber(c.Column))
	return 2
}

// unprintable() -> character class pattern
func (m *RegModule) unprintable(L *lua.LState) int {
	L.Push(lua.LString(m.src.Unprintable().Pattern()))
	return 1
}

func stringList(L *lua.LState, items []string) *lua.LTable {
	t := L.CreateTable(len(items), 0)
	for _, s := range items {
		t.Append(lua.LString(s))
	}
	return t
}
