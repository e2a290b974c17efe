// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc

import "testing"

func TestIDValidity(t *testing.T) {
	var zero ID
	if zero.IsValid() {
		t.Error("zero ID reports valid")
	}

	tests := []struct {
		name string
		id   ID
	}{
		{"empty string id", StringID("")},
		{"zero int id", IntID(0)},
		{"nonempty string id", StringID("abc")},
		{"nonzero int id", IntID(42)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.id.IsValid() {
				t.Errorf("%#v reports invalid, want valid", tc.id)
			}
		})
	}
}

func TestIDMarshalUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		want string
	}{
		{"invalid", ID{}, "null"},
		{"string", StringID("req-1"), `"req-1"`},
		{"int", IntID(7), "7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.id.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON: %v", err)
			}
			if string(data) != tc.want {
				t.Errorf("MarshalJSON() = %s, want %s", data, tc.want)
			}
			var got ID
			if err := got.UnmarshalJSON(data); err != nil {
				t.Fatalf("UnmarshalJSON(%s): %v", data, err)
			}
			if got.IsValid() != tc.id.IsValid() || got.Raw() != tc.id.Raw() {
				t.Errorf("round trip: got %#v, want %#v", got, tc.id)
			}
		})
	}
}

func TestIDUnmarshalRejectsNonScalar(t *testing.T) {
	var id ID
	if err := id.UnmarshalJSON([]byte(`{"a":1}`)); err == nil {
		t.Error("expected error unmarshaling an object as an ID")
	}
}

func TestIDString(t *testing.T) {
	if StringID("x").String() != "x" {
		t.Errorf("StringID(%q).String() = %q", "x", StringID("x").String())
	}
	if IntID(9).String() != "9" {
		t.Errorf("IntID(9).String() = %q, want %q", IntID(9).String(), "9")
	}
	if ID{}.String() != "<invalid>" {
		t.Errorf("zero ID.String() = %q, want %q", ID{}.String(), "<invalid>")
	}
}
