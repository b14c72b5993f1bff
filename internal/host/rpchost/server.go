package rpchost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dshills/regcomp/internal/config"
	"github.com/dshills/regcomp/internal/logging"
	"github.com/dshills/regcomp/internal/reconcile"
	"github.com/dshills/regcomp/internal/source"
)

// Methods the editor calls.
const (
	MethodGather   = "regcomp/gather"
	MethodConfirm  = "regcomp/confirm"
	MethodShutdown = "shutdown"
	MethodExit     = "exit"
)

// GatherParams are the params of regcomp/gather.
type GatherParams struct {
	Params    json.RawMessage `json:"params,omitempty"`
	NextInput string          `json:"nextInput"`
}

// ConfirmParams are the params of regcomp/confirm.
type ConfirmParams struct {
	Event    reconcile.Event   `json:"event"`
	UserData reconcile.Pending `json:"userData"`
}

// ConfirmResult is the result of regcomp/confirm.
type ConfirmResult struct {
	Changed bool `json:"changed"`
}

// Server exposes the completion source on a Transport.
type Server struct {
	t      *Transport
	host   *Host
	params func() config.Params
	log    *logging.Logger

	mu  sync.Mutex
	src *source.Source
}

// NewServer registers the source methods on t. params supplies the
// configured defaults for each gather.
func NewServer(t *Transport, params func() config.Params, log *logging.Logger) *Server {
	s := &Server{
		t:      t,
		host:   NewHost(t),
		params: params,
		log:    logging.OrNull(log).WithComponent("server"),
	}
	t.Handle(MethodGather, s.gather)
	t.Handle(MethodConfirm, s.confirm)
	t.Handle(MethodShutdown, func(context.Context, json.RawMessage) (any, error) { return nil, nil })
	t.Handle(MethodExit, func(context.Context, json.RawMessage) (any, error) {
		return nil, t.Close()
	})
	return s
}

// Serve reads until the transport closes or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	s.t.Start(ctx)
	select {
	case <-ctx.Done():
		_ = s.t.Close()
		return ctx.Err()
	case <-s.t.Done():
		return nil
	}
}

func (s *Server) source(ctx context.Context) (*source.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != nil {
		return s.src, nil
	}
	src, err := source.New(ctx, s.host, source.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	s.src = src
	return src, nil
}

// gather answers with the candidates, or an empty list if the pass failed.
func (s *Server) gather(ctx context.Context, raw json.RawMessage) (any, error) {
	var p GatherParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
	}
	params, err := config.MergeParams(s.params(), p.Params)
	if err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}

	empty := []source.Candidate{}
	src, err := s.source(ctx)
	if err != nil {
		s.log.Error("initialize source: %v", err)
		return empty, nil
	}
	cands, err := src.Gather(ctx, params, p.NextInput)
	if err != nil {
		return empty, nil
	}
	return cands, nil
}

func (s *Server) confirm(ctx context.Context, raw json.RawMessage) (any, error) {
	var p ConfirmParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	src, err := s.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize source: %w", err)
	}
	changed, err := src.OnCompleteDone(ctx, p.Event, p.UserData)
	if err != nil {
		s.log.Error("confirm: %v", err)
		return nil, err
	}
	return ConfirmResult{Changed: changed}, nil
}
