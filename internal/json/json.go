// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package json provides internal JSON utilities.
//
// Marshal and Unmarshal are backed by segmentio/encoding/json, which is a
// drop-in, allocation-lighter replacement for encoding/json used on every
// message the coordinator reads or writes. Unlike encoding/json, Unmarshal
// matches object keys to struct fields case-sensitively: a key that differs
// from a field's JSON name only in case is ignored.
package json

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// RawMessage is a raw encoded JSON value, re-exported so callers never need
// to import both this package and encoding/json for the same concept.
type RawMessage = json.RawMessage

func Unmarshal(data []byte, v any) error {
	rest, err := json.Parse(data, v, json.DontMatchCaseInsensitiveStructFields)
	if err == nil && len(rest) != 0 {
		err = fmt.Errorf("json: invalid character %q after top-level value", rest[0])
	}
	return err
}

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
