// Copyright 2025 Joseph Cumines

// Package transport carries JSON-RPC 2.0 messages between an MCP client and
// the tool server, over stdio or HTTP/SSE.
package transport

import (
	"context"
	"encoding/json"
)

// JSON-RPC 2.0 standard error codes.
// See: https://www.jsonrpc.org/specification#error_object
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Version is the only JSON-RPC version accepted.
const Version = "2.0"

// Message represents a JSON-RPC 2.0 request, notification or response.
// A request without an ID is a notification and gets no response.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Message struct {
	Error   *ErrorObj       `json:"error,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// IsNotification reports whether the message expects no response.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// ErrorObj represents a JSON-RPC 2.0 error object.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type ErrorObj struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    int             `json:"code"`
}

// NewError builds an error response for the given request ID.
func NewError(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error:   &ErrorObj{Code: code, Message: message},
	}
}

// Handler processes one inbound message. A nil response means nothing is
// written back. A non-nil error becomes an internal error response.
type Handler func(ctx context.Context, msg *Message) (*Message, error)

// Transport defines the interface for MCP message transport.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Serve blocks until the peer goes away, the context is cancelled, or Close
// is called.
type Transport interface {
	Serve(ctx context.Context, handler Handler) error

	// WriteMessage pushes an unsolicited message (a notification) to the peer.
	WriteMessage(msg *Message) error

	// Close is idempotent.
	Close() error

	IsClosed() bool
}

// respond runs handler and converts a handler error into a JSON-RPC error.
func respond(ctx context.Context, handler Handler, msg *Message) *Message {
	response, err := handler(ctx, msg)
	if err != nil {
		if msg.IsNotification() {
			return nil
		}
		return NewError(msg.ID, ErrCodeInternalError, err.Error())
	}
	return response
}

var (
	_ Transport = (*StdioTransport)(nil)
	_ Transport = (*HTTPTransport)(nil)
)
