// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEffectiveMaxBodyBytes(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"zero uses default", 0, DefaultMaxBodyBytes},
		{"negative means unlimited", -1, 0},
		{"positive is used as-is", 4096, 4096},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := effectiveMaxBodyBytes(tc.in); got != tc.want {
				t.Errorf("effectiveMaxBodyBytes(%d) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsMaxBytesError(t *testing.T) {
	var mbe *http.MaxBytesError
	if !isMaxBytesError(mbe) {
		t.Error("isMaxBytesError(*http.MaxBytesError) = false, want true")
	}
	if isMaxBytesError(errStub("some other failure")) {
		t.Error("isMaxBytesError(unrelated error) = true, want false")
	}
}

type errStub string

func (e errStub) Error() string { return string(e) }

func TestWriteRequestBodyTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRequestBodyTooLarge(rec)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if rec.Header().Get("Connection") != "close" {
		t.Error("Connection header not set to close")
	}
}
