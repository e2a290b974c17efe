// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "request", false},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification", false},
		{"response result", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response", false},
		{"response error", `{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"bad"}}`, "response", false},
		{"result and error both set", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":-32600,"message":"bad"}}`, "", true},
		{"neither result nor error", `{"jsonrpc":"2.0","id":1}`, "", true},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, "", true},
		{"case-variant id smuggling", `{"jsonrpc":"2.0","Id":1,"method":"ping"}`, "", true},
		{"malformed json", `{`, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify([]byte(tc.data))
			if (err != nil) != tc.wantErr {
				t.Fatalf("Classify(%q) error = %v, wantErr %v", tc.data, err, tc.wantErr)
			}
			if err == nil && got != tc.want {
				t.Errorf("Classify(%q) = %q, want %q", tc.data, got, tc.want)
			}
		})
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"request with params", `{"jsonrpc":"2.0","id":"abc","method":"tools/call","params":{"name":"x"}}`},
		{"request no params", `{"jsonrpc":"2.0","id":1,"method":"ping"}`},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":1}}`},
		{"response result", `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`},
		{"response error", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"not found"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tc.data))
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			encoded, err := EncodeMessage(msg)
			if err != nil {
				t.Fatalf("EncodeMessage: %v", err)
			}
			msg2, err := DecodeMessage(encoded)
			if err != nil {
				t.Fatalf("DecodeMessage(re-encoded): %v", err)
			}
			if diff := cmp.Diff(msg, msg2, cmp.AllowUnexported(ID{})); diff != "" {
				t.Errorf("round-trip mismatch (-original +reencoded):\n%s", diff)
			}
		})
	}
}

func TestReadBatch(t *testing.T) {
	t.Run("single message", func(t *testing.T) {
		msgs, batch, err := ReadBatch([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		if err != nil {
			t.Fatalf("ReadBatch: %v", err)
		}
		if batch {
			t.Error("batch = true for a lone frame")
		}
		if len(msgs) != 1 {
			t.Fatalf("len(msgs) = %d, want 1", len(msgs))
		}
	})

	t.Run("batch of frames", func(t *testing.T) {
		data := `[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/initialized"}]`
		msgs, batch, err := ReadBatch([]byte(data))
		if err != nil {
			t.Fatalf("ReadBatch: %v", err)
		}
		if !batch {
			t.Error("batch = false for an array payload")
		}
		if len(msgs) != 2 {
			t.Fatalf("len(msgs) = %d, want 2", len(msgs))
		}
	})

	t.Run("partial failure keeps good elements", func(t *testing.T) {
		data := `[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","id":2}]`
		msgs, _, err := ReadBatch([]byte(data))
		if err == nil {
			t.Fatal("expected a joined error for the malformed element")
		}
		if !strings.Contains(err.Error(), "batch[1]") {
			t.Errorf("error %v does not name the failing index", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("len(msgs) = %d, want 1 (the valid element)", len(msgs))
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		if _, _, err := ReadBatch([]byte("  ")); err == nil {
			t.Fatal("expected error for empty payload")
		}
	})
}

func TestWireError(t *testing.T) {
	we := NewError(CodeInvalidParams, "bad params", map[string]string{"field": "name"})
	if we.Code != CodeInvalidParams {
		t.Errorf("Code = %d, want %d", we.Code, CodeInvalidParams)
	}
	if we.Error() == "" {
		t.Error("Error() returned empty string")
	}
	if len(we.Data) == 0 {
		t.Error("Data was not populated from the data argument")
	}
}
