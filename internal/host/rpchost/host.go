// Package rpchost implements host.Host for editors that speak JSON-RPC 2.0
// over stdio with Content-Length framing, and serves the completion source
// to them.
//
// Host queries are sent as "host/<method>" requests whose params are the
// call's positional arguments. A batch of queries is one JSON batch array.
// Replies are read leniently: booleans may arrive as 0/1 and register infos
// may use either the Vim key names or shorter ones.
package rpchost

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/dshills/regcomp/internal/batch"
	"github.com/dshills/regcomp/internal/host"
	"github.com/dshills/regcomp/internal/register"
)

// MethodPrefix namespaces host queries.
const MethodPrefix = "host/"

// MethodReplaceLines is the buffer mutation request.
const MethodReplaceLines = MethodPrefix + "replaceLines"

// Host issues host queries over a Transport.
type Host struct {
	t *Transport
}

// NewHost creates a host over t.
func NewHost(t *Transport) *Host {
	return &Host{t: t}
}

// ExecuteBatch sends calls as one batch array.
func (h *Host) ExecuteBatch(ctx context.Context, calls []*batch.Call) error {
	reqs := make([]Outgoing, len(calls))
	for i, c := range calls {
		args := c.Args
		if args == nil {
			args = []any{}
		}
		reqs[i] = Outgoing{Method: MethodPrefix + c.Method, Params: args}
	}

	resps, err := h.t.CallBatch(ctx, reqs)
	if err != nil {
		return err
	}
	if len(resps) != len(calls) {
		return fmt.Errorf("%w: %d responses for %d calls", ErrInvalidResponse, len(resps), len(calls))
	}

	for i, c := range calls {
		if err := resolve(c, resps[i]); err != nil {
			c.Err = err
		}
	}
	return nil
}

func resolve(c *batch.Call, resp *Response) error {
	if resp.Error != nil {
		if resp.Error.Code == CodeNoContent {
			return fmt.Errorf("%w: %s", host.ErrNoContent, resp.Error.Message)
		}
		if resp.Error.Code == CodeMethodNotFound {
			return fmt.Errorf("%w: %s", host.ErrUnknownMethod, c.Method)
		}
		return resp.Error
	}

	r := gjson.ParseBytes(resp.Result)
	switch c.Method {
	case host.MethodRegisterInfo:
		info, ok := parseInfo(r)
		if !ok {
			return host.ErrNoContent
		}
		return c.Resolve(info)

	case host.MethodHasClipboard, host.MethodIsPrintable:
		return c.Resolve(r.Bool())

	case host.MethodColumns, host.MethodByteLength:
		if r.Type != gjson.Number {
			return fmt.Errorf("%w: %s returned %s", ErrInvalidResponse, c.Method, r.Raw)
		}
		return c.Resolve(int(r.Int()))

	case host.MethodTruncate, host.MethodLine:
		if r.Type != gjson.String {
			return fmt.Errorf("%w: %s returned %s", ErrInvalidResponse, c.Method, r.Raw)
		}
		return c.Resolve(r.String())

	default:
		return c.Resolve(r.Value())
	}
}

// parseInfo reads a register info. contents may be a list of lines or a
// single string; a null or empty reply means the register holds nothing.
func parseInfo(r gjson.Result) (register.Info, bool) {
	if !r.IsObject() {
		return register.Info{}, false
	}

	contents := r.Get("regcontents")
	if !contents.Exists() {
		contents = r.Get("contents")
	}
	var info register.Info
	switch {
	case contents.IsArray():
		for _, l := range contents.Array() {
			info.Contents = append(info.Contents, l.String())
		}
	case contents.Type == gjson.String:
		info.Contents = []string{contents.String()}
	}

	info.Type = r.Get("regtype").String()
	if info.Type == "" {
		info.Type = r.Get("type").String()
	}
	return info, !info.Empty()
}

type replaceParams struct {
	Start  int         `json:"start"`
	Lines  []string    `json:"lines"`
	Cursor host.Cursor `json:"cursor"`
}

// ReplaceLines sends a single replaceLines request.
func (h *Host) ReplaceLines(ctx context.Context, start int, lines []string, cursor host.Cursor) error {
	err := h.t.Call(ctx, MethodReplaceLines, replaceParams{Start: start, Lines: lines, Cursor: cursor}, nil)
	if err != nil {
		var re *RPCError
		if errors.As(err, &re) {
			return fmt.Errorf("editor rejected replaceLines: %w", err)
		}
		return err
	}
	return nil
}
