// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func TestNewServerToolRequiresInputSchema(t *testing.T) {
	_, err := newServerTool(&Tool{Name: "t"}, func(ctx context.Context, req *CallToolRequest, args any) (*CallToolResult, error) {
		return nil, nil
	}, nil)
	if err == nil {
		t.Fatal("newServerTool with nil InputSchema: got nil error, want one")
	}
}

func TestUntypedToolRejectsWrongArgumentType(t *testing.T) {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"count": {Type: "integer"}},
		Required:   []string{"count"},
	}
	st, err := newServerTool(&Tool{Name: "counter", InputSchema: schema},
		func(ctx context.Context, req *CallToolRequest, args any) (*CallToolResult, error) {
			return &CallToolResult{}, nil
		}, nil)
	if err != nil {
		t.Fatalf("newServerTool: %v", err)
	}

	req := &CallToolRequest{Params: &CallToolParamsRaw{Name: "counter", Arguments: []byte(`{"count":"not-a-number"}`)}}
	if _, err := st.handler(context.Background(), req); err == nil {
		t.Error("handler with wrong-typed argument: got nil error, want a type-validation failure")
	}

	okReq := &CallToolRequest{Params: &CallToolParamsRaw{Name: "counter", Arguments: []byte(`{"count":3}`)}}
	if _, err := st.handler(context.Background(), okReq); err != nil {
		t.Errorf("handler with well-typed argument: %v", err)
	}
}

func TestSchemaCacheReusesResolvedSchemaByType(t *testing.T) {
	cache := NewSchemaCache()
	type args struct {
		Name string `json:"name"`
	}
	h := func(ctx context.Context, req *CallToolRequest, a args) (*CallToolResult, any, error) {
		return &CallToolResult{}, nil, nil
	}

	st1, err := newTypedServerTool[args, any](&Tool{Name: "one"}, h, cache)
	if err != nil {
		t.Fatalf("newTypedServerTool: %v", err)
	}
	st2, err := newTypedServerTool[args, any](&Tool{Name: "two"}, h, cache)
	if err != nil {
		t.Fatalf("newTypedServerTool: %v", err)
	}
	if st1.tool.InputSchema != st2.tool.InputSchema {
		t.Error("InputSchema pointers differ across calls sharing a schemaCache, want the cached instance reused")
	}
}
