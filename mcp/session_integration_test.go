// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

func connectedSession(t *testing.T, serverOpts *ServerOptions, configure func(*Server)) (*ClientSession, *ServerSession, func()) {
	t.Helper()
	ct, st := NewInMemoryTransports()

	server := NewServer(&Implementation{Name: "test-server", Version: "0.0.1"}, serverOpts)
	if configure != nil {
		configure(server)
	}
	if err := server.Start(st); err != nil {
		t.Fatalf("Server.Start: %v", err)
	}

	client := NewClient(&Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cs, err := client.Connect(ctx, ct, inMemoryPeer)
	if err != nil {
		t.Fatalf("Client.Connect: %v", err)
	}

	var ss *ServerSession
	for i := 0; i < 100 && ss == nil; i++ {
		ss = server.session(inMemoryPeer)
		if ss == nil {
			time.Sleep(time.Millisecond)
		}
	}
	if ss == nil {
		t.Fatal("server never recorded a session for the connected client")
	}

	return cs, ss, func() {
		cs.Close()
		server.Stop()
	}
}

func TestHandshakeNegotiatesLatestProtocolVersion(t *testing.T) {
	cs, ss, cleanup := connectedSession(t, nil, nil)
	defer cleanup()

	if cs.ServerInfo().Name != "test-server" {
		t.Errorf("ServerInfo().Name = %q, want %q", cs.ServerInfo().Name, "test-server")
	}
	if ss.ClientInfo().Name != "test-client" {
		t.Errorf("ClientInfo().Name = %q, want %q", ss.ClientInfo().Name, "test-client")
	}
	if got := cs.state.protocolVersion; got != latestProtocolVersion {
		t.Errorf("negotiated protocol version = %q, want %q", got, latestProtocolVersion)
	}
}

func TestCallTool(t *testing.T) {
	cs, _, cleanup := connectedSession(t, nil, func(s *Server) {
		err := s.AddTool(&Tool{
			Name:        "echo",
			Description: "echoes its input",
			InputSchema: &jsonschema.Schema{Type: "object"},
		},
			func(ctx context.Context, req *CallToolRequest, args any) (*CallToolResult, error) {
				return &CallToolResult{Content: []Content{&TextContent{Text: "pong"}}}, nil
			})
		if err != nil {
			t.Fatalf("AddTool: %v", err)
		}
	})
	defer cleanup()

	ctx := context.Background()
	res, err := cs.CallTool(ctx, &CallToolParams{Name: "echo", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("len(Content) = %d, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(*TextContent)
	if !ok || tc.Text != "pong" {
		t.Errorf("Content[0] = %#v, want TextContent{Text: \"pong\"}", res.Content[0])
	}
}

func TestCallUnknownToolReturnsInvalidParams(t *testing.T) {
	cs, _, cleanup := connectedSession(t, nil, nil)
	defer cleanup()

	_, err := cs.CallTool(context.Background(), &CallToolParams{Name: "nope"})
	var werr *WireError
	if !errors.As(err, &werr) {
		t.Fatalf("err = %v (%T), want *WireError", err, err)
	}
	if werr.Code != CodeInvalidParams {
		t.Errorf("Code = %d, want %d", werr.Code, CodeInvalidParams)
	}
}

func TestReadUnknownResourceReturnsResourceNotFound(t *testing.T) {
	cs, _, cleanup := connectedSession(t, nil, nil)
	defer cleanup()

	_, err := cs.ReadResource(context.Background(), &ReadResourceParams{URI: "file:///missing"})
	var werr *WireError
	if !errors.As(err, &werr) {
		t.Fatalf("err = %v (%T), want *WireError", err, err)
	}
	if werr.Code != CodeResourceNotFound {
		t.Errorf("Code = %d, want %d", werr.Code, CodeResourceNotFound)
	}
}

func TestSubscribeGatedByServerCapability(t *testing.T) {
	// Server has resource subscriptions disabled: client gates Subscribe
	// locally and never sends a request.
	cs, _, cleanup := connectedSession(t, &ServerOptions{ResourceSubscriptions: false}, nil)
	defer cleanup()

	err := cs.Subscribe(context.Background(), &SubscribeParams{URI: "file:///x"})
	var werr *WireError
	if !errors.As(err, &werr) || werr.Code != CodeMethodNotFound {
		t.Fatalf("err = %v, want *WireError{Code: CodeMethodNotFound}", err)
	}
}

func TestSubscribeSucceedsWhenEnabled(t *testing.T) {
	cs, _, cleanup := connectedSession(t, &ServerOptions{ResourceSubscriptions: true}, nil)
	defer cleanup()

	if err := cs.Subscribe(context.Background(), &SubscribeParams{URI: "file:///x"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := cs.Unsubscribe(context.Background(), &UnsubscribeParams{URI: "file:///x"}); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
}

func TestSetLevelGatedByServerCapability(t *testing.T) {
	cs, _, cleanup := connectedSession(t, &ServerOptions{Logging: false}, nil)
	defer cleanup()

	err := cs.SetLevel(context.Background(), "info")
	var werr *WireError
	if !errors.As(err, &werr) || werr.Code != CodeMethodNotFound {
		t.Fatalf("err = %v, want *WireError{Code: CodeMethodNotFound}", err)
	}
}

func TestServerLogFiltersBySeverity(t *testing.T) {
	cs, ss, cleanup := connectedSession(t, &ServerOptions{Logging: true}, nil)
	defer cleanup()

	received := make(chan *LoggingMessageParams, 4)
	cs.client.opts.LogHandler = func(_ *ClientSession, p *LoggingMessageParams) {
		received <- p
	}

	ctx := context.Background()
	if err := cs.SetLevel(ctx, "warning"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}

	// Below the requested threshold: must not arrive.
	if err := ss.server.Log(ctx, ss.peer, &LoggingMessageParams{Level: "info", Data: "ignored"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	// At the threshold: must arrive.
	if err := ss.server.Log(ctx, ss.peer, &LoggingMessageParams{Level: "warning", Data: "shown"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	select {
	case p := <-received:
		if p.Data != "shown" {
			t.Errorf("received Data = %v, want %q", p.Data, "shown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the at-threshold log message")
	}

	select {
	case p := <-received:
		t.Fatalf("received a second message %v, want only the at-threshold one", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPingRespondsRegardlessOfHandshakeState(t *testing.T) {
	cs, _, cleanup := connectedSession(t, nil, nil)
	defer cleanup()

	if err := cs.Ping(context.Background(), nil); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
