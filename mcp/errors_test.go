// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"errors"
	"testing"
)

func TestWireErrorSharesShapeWithJSONRPC(t *testing.T) {
	we := NewWireError(CodeInvalidParams, "bad params", map[string]string{"field": "name"})
	if we.Code != CodeInvalidParams {
		t.Errorf("Code = %d, want %d", we.Code, CodeInvalidParams)
	}
	if we.Message != "bad params" {
		t.Errorf("Message = %q, want %q", we.Message, "bad params")
	}
	if len(we.Data) == 0 {
		t.Error("Data was not populated")
	}
	var target error = we
	if errors.Unwrap(target) != nil {
		t.Error("WireError should not wrap another error")
	}
	if we.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func TestResourceNotFoundCodeIsMCPExtension(t *testing.T) {
	// CodeResourceNotFound must not collide with any JSON-RPC reserved code
	// (-32768 to -32000) used elsewhere in this package.
	reserved := map[int]bool{
		CodeMethodNotFound:          true,
		CodeInvalidParams:           true,
		CodeInternalError:           true,
		CodeProtocolVersionMismatch: true,
	}
	if reserved[CodeResourceNotFound] {
		t.Errorf("CodeResourceNotFound %d collides with a reserved code", CodeResourceNotFound)
	}
}
