// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "github.com/Lab11HQ/conduit-mcp-sub000/jsonrpc"

// WireError is the typed protocol-level error MCP requests fail with: the
// `error` member of a JSON-RPC response. It shares its wire shape with
// jsonrpc.WireError so transports never need to convert.
type WireError jsonrpc.WireError

func (e *WireError) Error() string {
	return (*jsonrpc.WireError)(e).Error()
}

// Well-known error codes, per spec §6.
const (
	CodeMethodNotFound          = jsonrpc.CodeMethodNotFound
	CodeInvalidParams           = jsonrpc.CodeInvalidParams
	CodeInternalError           = jsonrpc.CodeInternalError
	CodeProtocolVersionMismatch = jsonrpc.CodeProtocolVersionMismatch
	// CodeResourceNotFound is an MCP-specific extension code used by
	// resources/read when the URI is unknown.
	CodeResourceNotFound = -32002
)

// NewWireError builds a *WireError, following the same shape as
// jsonrpc.NewError.
func NewWireError(code int, message string, data any) *WireError {
	return (*WireError)(jsonrpc.NewError(code, message, data))
}
