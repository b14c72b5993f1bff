package rpchost

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/dshills/regcomp/internal/logging"
)

// Transport handles JSON-RPC 2.0 communication over a byte stream framed
// with Content-Length headers. It issues requests singly or as batch arrays
// and serves requests the editor sends back.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	log    *logging.Logger

	mu       sync.Mutex
	writeMu  sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *Response
	handlers map[string]Handler

	closed atomic.Bool
	done   chan struct{}
}

// Handler serves a request or notification from the editor. The result of
// a notification is discarded.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Request represents an outgoing JSON-RPC request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response represents a JSON-RPC response. ID is kept raw because editors
// may use string ids for their own requests.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Outgoing is one request of a batch.
type Outgoing struct {
	Method string
	Params any
}

// NewTransport creates a transport over the given streams. c may be nil.
func NewTransport(r io.Reader, w io.Writer, c io.Closer, log *logging.Logger) *Transport {
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		log:      logging.OrNull(log).WithComponent("rpc"),
		pending:  make(map[int64]chan *Response),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// Start begins reading messages in a new goroutine.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// Done is closed when the transport closes.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Close closes the transport and fails every waiting call.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	// Waiters observe t.done; channels are not closed to avoid racing
	// handleResponse.
	t.mu.Lock()
	t.pending = make(map[int64]chan *Response)
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// Handle registers the handler for an incoming method.
func (t *Transport) Handle(method string, h Handler) {
	t.mu.Lock()
	t.handlers[method] = h
	t.mu.Unlock()
}

// Call sends one request and waits for its response.
func (t *Transport) Call(ctx context.Context, method string, params any, result any) error {
	resps, err := t.exchange(ctx, []Outgoing{{Method: method, Params: params}}, false)
	if err != nil {
		return err
	}
	resp := resps[0]
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// CallBatch sends reqs as a single batch array and waits for every
// response. Responses are returned in request order whatever order the
// editor answers in. Per-request errors are left on the responses.
func (t *Transport) CallBatch(ctx context.Context, reqs []Outgoing) ([]*Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	return t.exchange(ctx, reqs, true)
}

func (t *Transport) exchange(ctx context.Context, reqs []Outgoing, asArray bool) ([]*Response, error) {
	if t.closed.Load() {
		return nil, ErrShutdown
	}

	msgs := make([]*Request, len(reqs))
	chans := make([]chan *Response, len(reqs))
	t.mu.Lock()
	for i, r := range reqs {
		id := t.nextID.Add(1)
		msgs[i] = &Request{JSONRPC: "2.0", ID: id, Method: r.Method, Params: r.Params}
		chans[i] = make(chan *Response, 1)
		t.pending[id] = chans[i]
	}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		for _, m := range msgs {
			delete(t.pending, m.ID)
		}
		t.mu.Unlock()
	}()

	var payload any = msgs[0]
	if asArray {
		payload = msgs
	}
	if err := t.send(payload); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resps := make([]*Response, len(reqs))
	for i, ch := range chans {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.done:
			return nil, ErrShutdown
		case resp := <-ch:
			if resp.ID == nil {
				return nil, fmt.Errorf("request rejected: %w", resp.Error)
			}
			resps[i] = resp
		}
	}
	return resps, nil
}

// Notify sends a notification.
func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}
	return t.send(&Request{JSONRPC: "2.0", Method: method, Params: params})
}

// send writes a message with its Content-Length header.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	defer t.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		msg, err := t.readMessage()
		if err != nil {
			if t.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			t.log.Warn("read message: %v", err)
			continue
		}
		t.dispatch(ctx, msg)
	}
}

// readMessage reads a single framed message.
func (t *Transport) readMessage() ([]byte, error) {
	contentLength := -1
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "content-length") {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				contentLength = n
			}
		}
	}
	if contentLength <= 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// dispatch routes a message or batch array.
func (t *Transport) dispatch(ctx context.Context, data []byte) {
	if !gjson.ValidBytes(data) {
		t.log.Warn("dropping malformed message of %d bytes", len(data))
		return
	}
	msg := gjson.ParseBytes(data)
	if !msg.IsArray() {
		if reply := t.route(ctx, msg); reply != nil {
			go t.reply(ctx, []incoming{*reply}, false)
		}
		return
	}

	var reqs []incoming
	msg.ForEach(func(_, m gjson.Result) bool {
		if r := t.route(ctx, m); r != nil {
			reqs = append(reqs, *r)
		}
		return true
	})
	if len(reqs) > 0 {
		go t.reply(ctx, reqs, true)
	}
}

// incoming is a request from the editor awaiting a reply.
type incoming struct {
	id     json.RawMessage
	method string
	params json.RawMessage
}

// route handles responses and notifications inline and returns requests
// that need a reply.
func (t *Transport) route(ctx context.Context, m gjson.Result) *incoming {
	id := m.Get("id")
	method := m.Get("method")
	result, rpcErr := m.Get("result"), m.Get("error")

	switch {
	case !method.Exists() && rpcErr.Exists() && (!id.Exists() || id.Type == gjson.Null):
		// An error without an id rejects a whole request or batch; it
		// cannot be matched to one caller.
		t.failPending(parseError(rpcErr))
		return nil

	case id.Exists() && !method.Exists() && (result.Exists() || rpcErr.Exists()):
		resp := &Response{JSONRPC: "2.0", ID: json.RawMessage(id.Raw)}
		if result.Exists() {
			resp.Result = json.RawMessage(result.Raw)
		}
		if rpcErr.Exists() {
			resp.Error = parseError(rpcErr)
		}
		t.handleResponse(id.Int(), resp)
		return nil

	case method.Exists() && id.Exists():
		return &incoming{id: json.RawMessage(id.Raw), method: method.String(), params: rawOrNil(m.Get("params"))}

	case method.Exists():
		h := t.handler(method.String())
		if h != nil {
			go func() {
				if _, err := h(ctx, rawOrNil(m.Get("params"))); err != nil {
					t.log.Warn("notification %s: %v", method.String(), err)
				}
			}()
		}
		return nil

	default:
		t.log.Warn("dropping message that is neither request nor response")
		return nil
	}
}

func parseError(r gjson.Result) *RPCError {
	e := &RPCError{
		Code:    int(r.Get("code").Int()),
		Message: r.Get("message").String(),
	}
	if d := r.Get("data"); d.Exists() {
		e.Data = d.Value()
	}
	return e
}

func rawOrNil(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}

func (t *Transport) handler(method string) Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers[method]
}

// reply serves requests and writes their responses, as an array when the
// requests arrived as one.
func (t *Transport) reply(ctx context.Context, reqs []incoming, asArray bool) {
	resps := make([]*Response, len(reqs))
	for i, r := range reqs {
		resps[i] = t.serve(ctx, r)
	}

	var payload any = resps[0]
	if asArray {
		payload = resps
	}
	if err := t.send(payload); err != nil {
		t.log.Warn("send reply: %v", err)
	}
}

func (t *Transport) serve(ctx context.Context, r incoming) *Response {
	resp := &Response{JSONRPC: "2.0", ID: r.id}

	h := t.handler(r.method)
	if h == nil {
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + r.method}
		return resp
	}

	result, err := h(ctx, r.params)
	if err != nil {
		var re *RPCError
		if !errors.As(err, &re) {
			re = &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		resp.Error = re
		return resp
	}

	data, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		return resp
	}
	resp.Result = data
	return resp
}

// handleResponse routes a response to its waiting caller.
func (t *Transport) handleResponse(id int64, resp *Response) {
	if t.closed.Load() {
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug("response for unknown id %d", id)
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// failPending fails every waiting call with e. The response carries no id,
// which exchange reports as a failure of the whole request.
func (t *Transport) failPending(e *RPCError) {
	t.mu.Lock()
	waiters := make([]chan *Response, 0, len(t.pending))
	for id, ch := range t.pending {
		waiters = append(waiters, ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if len(waiters) == 0 {
		t.log.Warn("unmatched error response: %v", e)
		return
	}
	t.log.Warn("editor rejected request: %v", e)
	for _, ch := range waiters {
		select {
		case ch <- &Response{JSONRPC: "2.0", Error: e}:
		default:
		}
	}
}

// IsClosed reports whether the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}
