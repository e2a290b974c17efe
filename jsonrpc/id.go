// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc

import (
	"fmt"
	"strconv"

	internaljson "github.com/Lab11HQ/conduit-mcp-sub000/internal/json"
)

// An ID is a JSON-RPC request identifier: a string, an integer, or absent.
//
// The zero ID is invalid (absent); use [StringID] or [IntID] to construct a
// valid one. An ID of "" or of 0 is distinct from the absent ID and is
// valid.
type ID struct {
	value any // nil, string, or int64
}

// StringID returns a valid ID holding s.
func StringID(s string) ID { return ID{value: s} }

// IntID returns a valid ID holding i.
func IntID(i int64) ID { return ID{value: i} }

// IsValid reports whether id was present on the wire.
func (id ID) IsValid() bool { return id.value != nil }

// Raw returns the underlying string or int64, or nil if id is invalid.
func (id ID) Raw() any { return id.value }

// String renders the ID for logging. It is not a wire format.
func (id ID) String() string {
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return "<invalid>"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.IsValid() {
		return []byte("null"), nil
	}
	return internaljson.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		id.value = nil
		return nil
	}
	var s string
	if err := internaljson.Unmarshal(data, &s); err == nil {
		id.value = s
		return nil
	}
	var i int64
	if err := internaljson.Unmarshal(data, &i); err == nil {
		id.value = i
		return nil
	}
	return fmt.Errorf("jsonrpc: id %s is neither a string nor an integer", data)
}
