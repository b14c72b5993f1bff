package rpchost

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/regcomp/internal/batch"
	"github.com/dshills/regcomp/internal/config"
	"github.com/dshills/regcomp/internal/host"
	"github.com/dshills/regcomp/internal/host/localhost"
	"github.com/dshills/regcomp/internal/reconcile"
	"github.com/dshills/regcomp/internal/register"
	"github.com/dshills/regcomp/internal/source"
)

// rawPeer is the editor end of a connection, driven frame by frame.
type rawPeer struct {
	r *bufio.Reader
	w io.Writer
}

func (p *rawPeer) read(t *testing.T) gjson.Result {
	t.Helper()
	n := 0
	for {
		line, err := p.r.ReadString('\n')
		if err != nil {
			t.Errorf("peer read header: %v", err)
			return gjson.Result{}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(p.r, body); err != nil {
		t.Errorf("peer read body: %v", err)
	}
	return gjson.ParseBytes(body)
}

func (p *rawPeer) write(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Errorf("peer marshal: %v", err)
		return
	}
	if _, err := fmt.Fprintf(p.w, "Content-Length: %d\r\n\r\n%s", len(data), data); err != nil {
		t.Errorf("peer write: %v", err)
	}
}

// connect returns a started transport and the raw peer on its other end.
func connect(t *testing.T) (*Transport, *rawPeer) {
	t.Helper()
	toHost, fromPeer := io.Pipe()
	toPeer, fromHost := io.Pipe()

	tr := NewTransport(toHost, fromHost, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	tr.Start(ctx)
	t.Cleanup(func() {
		cancel()
		tr.Close()
		fromPeer.Close()
		toPeer.Close()
	})
	return tr, &rawPeer{r: bufio.NewReader(toPeer), w: fromPeer}
}

func TestHost_BatchRepliesOutOfOrder(t *testing.T) {
	tr, peer := connect(t)
	h := NewHost(tr)

	go func() {
		req := peer.read(t)
		if !req.IsArray() {
			t.Errorf("expected a batch array, got %s", req.Raw)
			return
		}
		items := req.Array()
		var resps []map[string]any
		for i := len(items) - 1; i >= 0; i-- {
			s := items[i].Get("params.0").String()
			resps = append(resps, map[string]any{
				"jsonrpc": "2.0",
				"id":      items[i].Get("id").Int(),
				"result":  len(s),
			})
		}
		peer.write(t, resps)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := batch.Defer(ctx, h, func(b *batch.Batch) []*batch.Future[int] {
		return []*batch.Future[int]{
			host.ByteLength(b, "a"),
			host.ByteLength(b, "bbb"),
			host.ByteLength(b, "cc"),
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, f := range res {
		got = append(got, f.Value())
	}
	if !reflect.DeepEqual(got, []int{1, 3, 2}) {
		t.Errorf("results = %v, want issuance order [1 3 2]", got)
	}
}

func TestHost_LenientReplies(t *testing.T) {
	tr, peer := connect(t)
	h := NewHost(tr)

	go func() {
		req := peer.read(t)
		items := req.Array()
		results := []any{
			map[string]any{"contents": "solo", "type": "v"},
			nil,
			1,
		}
		resps := make([]map[string]any, 0, len(items)+1)
		for i, it := range items {
			r := map[string]any{"jsonrpc": "2.0", "id": it.Get("id").Int()}
			if i == 3 {
				r["error"] = map[string]any{"code": CodeNoContent, "message": "empty"}
			} else {
				r["result"] = results[i]
			}
			resps = append(resps, r)
		}
		peer.write(t, resps)
	}()

	type res struct {
		solo, null, empty *batch.Future[register.Info]
		clip              *batch.Future[bool]
	}
	r, err := batch.Defer(context.Background(), h, func(b *batch.Batch) res {
		return res{
			solo:  host.RegisterInfo(b, 'a'),
			null:  host.RegisterInfo(b, 'b'),
			clip:  host.HasClipboard(b),
			empty: host.RegisterInfo(b, 'c'),
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if info, err := r.solo.Get(); err != nil || !reflect.DeepEqual(info, register.Info{Contents: []string{"solo"}, Type: "v"}) {
		t.Errorf("solo = %+v, %v", info, err)
	}
	if _, err := r.null.Get(); !errors.Is(err, host.ErrNoContent) {
		t.Errorf("null error = %v, want ErrNoContent", err)
	}
	if !r.clip.Value() {
		t.Error("numeric 1 should read as true")
	}
	if _, err := r.empty.Get(); !errors.Is(err, host.ErrNoContent) {
		t.Errorf("error reply = %v, want ErrNoContent", err)
	}
}

func TestHost_RejectedBatchFailsWholeBatch(t *testing.T) {
	tr, peer := connect(t)
	h := NewHost(tr)

	go func() {
		if req := peer.read(t); !req.IsArray() {
			t.Errorf("expected a batch array, got %s", req.Raw)
		}
		peer.write(t, map[string]any{
			"jsonrpc": "2.0",
			"id":      nil,
			"error":   map[string]any{"code": CodeInvalidRequest, "message": "invalid batch"},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := batch.Defer(ctx, h, func(b *batch.Batch) *batch.Future[int] {
		return host.ByteLength(b, "a")
	})
	var re *RPCError
	if !errors.As(err, &re) || re.Code != CodeInvalidRequest {
		t.Fatalf("Defer() error = %v, want the editor's RPCError", err)
	}
	if ctx.Err() != nil {
		t.Error("batch failed only because the context expired")
	}
}

func TestServer_RejectedBatchIsEmpty(t *testing.T) {
	toHost, fromPeer := io.Pipe()
	toPeer, fromHost := io.Pipe()
	tr := NewTransport(toHost, fromHost, nil, nil)
	peer := &rawPeer{r: bufio.NewReader(toPeer), w: fromPeer}
	defer func() {
		tr.Close()
		fromPeer.Close()
		toPeer.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := NewServer(tr, func() config.Params { return config.Default().Source }, nil)
	go srv.Serve(ctx)

	peer.write(t, map[string]any{"jsonrpc": "2.0", "id": 1, "method": MethodGather, "params": map[string]any{}})
	if req := peer.read(t); !req.IsArray() {
		t.Fatalf("expected the initialization batch, got %s", req.Raw)
	}
	peer.write(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error":   map[string]any{"code": CodeInvalidRequest, "message": "too many calls"},
	})

	reply := peer.read(t)
	if reply.Get("id").Int() != 1 || reply.Get("error").Exists() {
		t.Fatalf("gather reply = %s", reply.Raw)
	}
	if res := reply.Get("result"); !res.IsArray() || len(res.Array()) != 0 {
		t.Errorf("gather result = %s, want []", res.Raw)
	}
}

func TestTransport_ServesRequests(t *testing.T) {
	tr, peer := connect(t)
	tr.Handle("echo", func(_ context.Context, params json.RawMessage) (any, error) {
		return json.RawMessage(params), nil
	})
	tr.Handle("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("nope")
	})

	peer.write(t, []map[string]any{
		{"jsonrpc": "2.0", "id": "x1", "method": "echo", "params": []int{1, 2}},
		{"jsonrpc": "2.0", "id": 7, "method": "fail"},
		{"jsonrpc": "2.0", "id": 8, "method": "missing"},
	})

	reply := peer.read(t)
	if !reply.IsArray() || len(reply.Array()) != 3 {
		t.Fatalf("reply = %s, want array of 3", reply.Raw)
	}
	items := reply.Array()
	if items[0].Get("id").String() != "x1" || items[0].Get("result").Raw != "[1,2]" {
		t.Errorf("echo reply = %s", items[0].Raw)
	}
	if items[1].Get("error.code").Int() != CodeInternalError {
		t.Errorf("fail reply = %s", items[1].Raw)
	}
	if items[2].Get("error.code").Int() != CodeMethodNotFound {
		t.Errorf("missing reply = %s", items[2].Raw)
	}
}

func TestTransport_CloseFailsWaiters(t *testing.T) {
	tr, peer := connect(t)
	go func() {
		peer.read(t)
		tr.Close()
	}()

	err := tr.Call(context.Background(), "never", nil, nil)
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("Call() error = %v, want ErrShutdown", err)
	}
	if err := tr.Notify(context.Background(), "late", nil); !errors.Is(err, ErrShutdown) {
		t.Errorf("Notify() after close = %v", err)
	}
}

// editor serves host/* requests from an in-process host.
func editor(t *testing.T, tr *Transport, lh *localhost.Host) {
	t.Helper()
	for _, m := range []string{
		host.MethodRegisterInfo, host.MethodHasClipboard, host.MethodIsPrintable,
		host.MethodColumns, host.MethodByteLength, host.MethodTruncate, host.MethodLine,
	} {
		method := m
		tr.Handle(MethodPrefix+method, func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args []any
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			var out any
			c := &batch.Call{Method: method, Args: args, Result: &out}
			if err := lh.ExecuteBatch(ctx, []*batch.Call{c}); err != nil {
				return nil, err
			}
			if errors.Is(c.Err, host.ErrNoContent) {
				return nil, &RPCError{Code: CodeNoContent, Message: c.Err.Error()}
			}
			return out, c.Err
		})
	}
	tr.Handle(MethodReplaceLines, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p replaceParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return nil, lh.ReplaceLines(ctx, p.Start, p.Lines, p.Cursor)
	})
}

func TestServer_GatherAndConfirm(t *testing.T) {
	a2b, b2a := io.Pipe()
	c2d, d2c := io.Pipe()
	srvT := NewTransport(a2b, d2c, nil, nil)
	edT := NewTransport(c2d, b2a, nil, nil)

	store := register.NewStore(false)
	store.Set('a', []string{"foo", "bar"}, register.Linewise)
	lh, err := localhost.New(store)
	if err != nil {
		t.Fatal(err)
	}
	editor(t, edT, lh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	edT.Start(ctx)
	srv := NewServer(srvT, func() config.Params { return config.Default().Source }, nil)
	go srv.Serve(ctx)
	defer func() {
		srvT.Close()
		edT.Close()
		a2b.Close()
		c2d.Close()
	}()

	var cands []source.Candidate
	err = edT.Call(ctx, MethodGather, GatherParams{Params: json.RawMessage(`{"registers":"ab"}`)}, &cands)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].Abbr != "foo^Jbar^J" || len(cands[0].Highlights) != 2 {
		t.Fatalf("candidates = %+v", cands)
	}

	lh.SetLine(1, cands[0].Word)
	var res ConfirmResult
	err = edT.Call(ctx, MethodConfirm, ConfirmParams{
		Event:    reconcile.Event{LineNr: 1},
		UserData: cands[0].UserData,
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed {
		t.Error("Changed = false")
	}
	if got, want := lh.Lines(), []string{"foo", "bar", ""}; !reflect.DeepEqual(got, want) {
		t.Errorf("Lines() = %q, want %q", got, want)
	}
}

func TestServer_GatherFailureIsEmpty(t *testing.T) {
	a2b, b2a := io.Pipe()
	c2d, d2c := io.Pipe()
	srvT := NewTransport(a2b, d2c, nil, nil)
	edT := NewTransport(c2d, b2a, nil, nil)

	// The editor answers nothing but the gather call itself.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	edT.Start(ctx)
	srv := NewServer(srvT, func() config.Params { return config.Default().Source }, nil)
	go srv.Serve(ctx)
	defer func() {
		srvT.Close()
		edT.Close()
		a2b.Close()
		c2d.Close()
	}()

	var cands []source.Candidate
	if err := edT.Call(ctx, MethodGather, GatherParams{}, &cands); err != nil {
		t.Fatal(err)
	}
	if cands == nil || len(cands) != 0 {
		t.Errorf("candidates = %#v, want empty list", cands)
	}
}
