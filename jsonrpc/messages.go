// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc implements the JSON-RPC 2.0 wire format used by MCP: the
// three frame shapes (request, notification, response), their classifier,
// and encode/decode helpers. It knows nothing about MCP's method vocabulary
// or typed params/results; that layer lives in package mcp.
package jsonrpc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Lab11HQ/conduit-mcp-sub000/internal/jsonrpc2"
	internaljson "github.com/Lab11HQ/conduit-mcp-sub000/internal/json"
)

const protocolVersion = "2.0"

// Well-known JSON-RPC / MCP error codes.
const (
	CodeMethodNotFound          = -32601
	CodeInvalidParams           = -32602
	CodeInternalError           = -32603
	CodeProtocolVersionMismatch = -32001
	CodeParseError              = -32700
	CodeInvalidRequest          = -32600
)

// A Message is one of *Request, *Notification, or *Response.
type Message interface {
	isMessage()
}

// A Request is a call that expects a Response carrying the same ID.
type Request struct {
	ID     ID
	Method string
	Params internaljson.RawMessage // raw JSON object or absent
}

func (*Request) isMessage() {}

// A Notification is a call that expects no reply.
type Notification struct {
	Method string
	Params internaljson.RawMessage
}

func (*Notification) isMessage() {}

// A Response carries exactly one of Result or Error, correlated by ID to the
// Request that produced it.
type Response struct {
	ID     ID
	Result internaljson.RawMessage
	Error  *WireError
}

func (*Response) isMessage() {}

// A WireError is the `error` member of a JSON-RPC response.
type WireError struct {
	Code    int                     `json:"code"`
	Message string                  `json:"message"`
	Data    internaljson.RawMessage `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError builds a *WireError, marshaling data if non-nil.
func NewError(code int, message string, data any) *WireError {
	we := &WireError{Code: code, Message: message}
	if data != nil {
		if raw, err := internaljson.Marshal(data); err == nil {
			we.Data = raw
		}
	}
	return we
}

// envelope is the superset shape used to classify and decode any frame.
type envelope struct {
	JSONRPC string                  `json:"jsonrpc"`
	ID      *ID                     `json:"id,omitempty"`
	Method  *string                 `json:"method,omitempty"`
	Params  internaljson.RawMessage `json:"params,omitempty"`
	Result  internaljson.RawMessage `json:"result,omitempty"`
	Error   *WireError              `json:"error,omitempty"`
}

// Classify reports which of request/notification/response data represents,
// without fully decoding it. It is mainly useful for diagnostics; most
// callers should use DecodeMessage directly.
func Classify(data []byte) (kind string, err error) {
	_, kind, err = decodeEnvelope(data)
	return kind, err
}

// strictEnvelope mirrors envelope but is decoded with jsonrpc2.StrictUnmarshal
// first, so that a frame using "Id" or "JSONRPC" (case-variant smuggling) to
// sneak past a case-insensitive decoder is rejected outright.
type strictEnvelope struct {
	JSONRPC string                  `json:"jsonrpc"`
	ID      *ID                     `json:"id,omitempty"`
	Method  *string                 `json:"method,omitempty"`
	Params  internaljson.RawMessage `json:"params,omitempty"`
	Result  internaljson.RawMessage `json:"result,omitempty"`
	Error   *WireError              `json:"error,omitempty"`
}

func decodeEnvelope(data []byte) (envelope, string, error) {
	var strict strictEnvelope
	if err := jsonrpc2.StrictUnmarshal(data, &strict); err != nil {
		return envelope{}, "", fmt.Errorf("jsonrpc: malformed frame: %w", err)
	}
	env := envelope(strict)
	if env.JSONRPC != "" && env.JSONRPC != protocolVersion {
		return env, "", fmt.Errorf("jsonrpc: unsupported jsonrpc version %q", env.JSONRPC)
	}

	hasID := env.ID != nil && env.ID.IsValid()
	hasMethod := env.Method != nil
	hasResult := len(env.Result) > 0 && !bytes.Equal(env.Result, []byte("null"))
	hasError := env.Error != nil

	switch {
	case hasMethod && hasID:
		return env, "request", nil
	case hasMethod && !hasID:
		return env, "notification", nil
	case hasID && (hasResult != hasError):
		// result XOR error, strictly.
		return env, "response", nil
	case hasID && hasResult && hasError:
		return env, "", errors.New("jsonrpc: response carries both result and error")
	case hasID && !hasResult && !hasError:
		return env, "", errors.New("jsonrpc: response carries neither result nor error")
	default:
		return env, "", errors.New("jsonrpc: frame is neither a request, a notification, nor a response")
	}
}

// DecodeMessage decodes a single JSON-RPC frame (not a batch array).
func DecodeMessage(data []byte) (Message, error) {
	env, kind, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "request":
		return &Request{ID: *env.ID, Method: *env.Method, Params: env.Params}, nil
	case "notification":
		return &Notification{Method: *env.Method, Params: env.Params}, nil
	case "response":
		return &Response{ID: *env.ID, Result: env.Result, Error: env.Error}, nil
	default:
		// Unreachable: decodeEnvelope returns an error for every other case.
		return nil, fmt.Errorf("jsonrpc: unclassifiable frame")
	}
}

// EncodeMessage serializes a single frame (never a batch).
func EncodeMessage(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		return internaljson.Marshal(struct {
			JSONRPC string                  `json:"jsonrpc"`
			ID      ID                      `json:"id"`
			Method  string                  `json:"method"`
			Params  internaljson.RawMessage `json:"params,omitempty"`
		}{protocolVersion, m.ID, m.Method, m.Params})
	case *Notification:
		return internaljson.Marshal(struct {
			JSONRPC string                  `json:"jsonrpc"`
			Method  string                  `json:"method"`
			Params  internaljson.RawMessage `json:"params,omitempty"`
		}{protocolVersion, m.Method, m.Params})
	case *Response:
		return internaljson.Marshal(struct {
			JSONRPC string                  `json:"jsonrpc"`
			ID      ID                      `json:"id"`
			Result  internaljson.RawMessage `json:"result,omitempty"`
			Error   *WireError              `json:"error,omitempty"`
		}{protocolVersion, m.ID, m.Result, m.Error})
	default:
		return nil, fmt.Errorf("jsonrpc: unknown message type %T", msg)
	}
}

// ReadBatch decodes data as either a single frame or a batch array of
// frames, per the JSON-RPC 2.0 batching extension. Batches are accepted on
// input (this package never emits one); each element is decoded
// independently, so one malformed element does not prevent the others from
// being returned. errs, if non-nil, reports the per-element decode failures
// via errors.Join; msgs still holds every element that decoded cleanly.
func ReadBatch(data []byte) (msgs []Message, batch bool, errs error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, errors.New("jsonrpc: empty payload")
	}
	if trimmed[0] != '[' {
		m, err := DecodeMessage(data)
		if err != nil {
			return nil, false, err
		}
		return []Message{m}, false, nil
	}

	var raw []internaljson.RawMessage
	if err := internaljson.Unmarshal(trimmed, &raw); err != nil {
		return nil, true, fmt.Errorf("jsonrpc: malformed batch: %w", err)
	}
	var all []error
	for i, item := range raw {
		m, err := DecodeMessage(item)
		if err != nil {
			all = append(all, fmt.Errorf("batch[%d]: %w", i, err))
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, true, errors.Join(all...)
}
