package rpchost

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown indicates the transport has been closed.
	ErrShutdown = errors.New("rpc transport shut down")

	// ErrInvalidResponse indicates a malformed or missing reply.
	ErrInvalidResponse = errors.New("invalid response from editor")
)

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeNoContent is returned by editors for a register that holds
	// nothing.
	CodeNoContent = -32001
)
