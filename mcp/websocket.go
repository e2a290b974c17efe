// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// A supplemental transport speaking raw JSON-RPC frames over a WebSocket,
// using the same Transport contract as stdio and streamable HTTP but none
// of the streamable invariants (no session cookie, no always-stream rule):
// each socket carries one full-duplex peer.

package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Lab11HQ/conduit-mcp-sub000/jsonrpc"
	"github.com/gorilla/websocket"
)

type websocketMessage struct {
	peer PeerID
	msg  jsonrpc.Message
	err  error
}

type websocketPeer struct {
	conn   *websocket.Conn
	sendMu sync.Mutex
}

// WebSocketClientTransport dials a single MCP endpoint over WebSocket and
// addresses it by a constant PeerID, since a client speaks to exactly one
// server per connection.
type WebSocketClientTransport struct {
	// URL is the WebSocket server URL (e.g. "ws://localhost:8080/mcp").
	URL string
	// Dialer is used to establish the connection. A nil Dialer uses
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header carries additional headers for the handshake request.
	Header http.Header

	connectOnce sync.Once
	connectErr  error
	peer        *websocketPeer

	queue  chan websocketMessage
	closed chan struct{}
	once   sync.Once
}

const websocketServerPeer PeerID = "server"

// connect lazily dials on the first Send/Receive.
func (t *WebSocketClientTransport) connect(ctx context.Context) error {
	t.connectOnce.Do(func() {
		dialer := t.Dialer
		if dialer == nil {
			dialer = websocket.DefaultDialer
		}
		dialer.Subprotocols = []string{"mcp"}

		conn, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
		if err != nil {
			if resp != nil {
				t.connectErr = fmt.Errorf("mcp: websocket dial: %w (status %d)", err, resp.StatusCode)
			} else {
				t.connectErr = fmt.Errorf("mcp: websocket dial: %w", err)
			}
			return
		}
		t.queue = make(chan websocketMessage, 64)
		t.closed = make(chan struct{})
		t.peer = &websocketPeer{conn: conn}
		go readLoopWS(websocketServerPeer, t.peer, t.queue, t.closed)
	})
	return t.connectErr
}

// Send implements [Transport].
func (t *WebSocketClientTransport) Send(ctx context.Context, peer PeerID, msg jsonrpc.Message) error {
	if err := t.connect(ctx); err != nil {
		return err
	}
	return writeWS(t.peer, msg)
}

// Receive implements [Transport].
func (t *WebSocketClientTransport) Receive(ctx context.Context) (PeerID, jsonrpc.Message, error) {
	if err := t.connect(ctx); err != nil {
		return "", nil, err
	}
	select {
	case m, ok := <-t.queue:
		if !ok {
			return "", nil, io.EOF
		}
		return m.peer, m.msg, m.err
	case <-t.closed:
		return "", nil, io.EOF
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Close implements [Transport].
func (t *WebSocketClientTransport) Close() error {
	t.once.Do(func() {
		// If no dial has happened yet, make every later Send/Receive fail
		// with io.EOF instead of dialing.
		t.connectOnce.Do(func() { t.connectErr = io.EOF })
		if t.peer != nil {
			t.peer.conn.Close()
		}
		if t.closed != nil {
			close(t.closed)
		}
	})
	return nil
}

// WebSocketServerTransport accepts many inbound WebSocket connections
// behind a single Transport, each assigned a fresh PeerID on upgrade.
type WebSocketServerTransport struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[PeerID]*websocketPeer

	queue  chan websocketMessage
	closed chan struct{}
	once   sync.Once
}

// NewWebSocketServerTransport returns a transport ready to accept
// connections via its ServeHTTP method.
func NewWebSocketServerTransport(checkOrigin func(*http.Request) bool) *WebSocketServerTransport {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketServerTransport{
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"mcp"},
			CheckOrigin:  checkOrigin,
		},
		peers:  make(map[PeerID]*websocketPeer),
		queue:  make(chan websocketMessage, 64),
		closed: make(chan struct{}),
	}
}

// ServeHTTP upgrades req to a WebSocket and registers it as a new peer.
func (t *WebSocketServerTransport) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := t.upgrader.Upgrade(w, req, nil)
	if err != nil {
		http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
		return
	}
	peer := PeerID(randText())
	p := &websocketPeer{conn: conn}
	t.mu.Lock()
	t.peers[peer] = p
	t.mu.Unlock()
	go readLoopWS(peer, p, t.queue, t.closed)
}

// Send implements [Transport].
func (t *WebSocketServerTransport) Send(ctx context.Context, peer PeerID, msg jsonrpc.Message) error {
	t.mu.Lock()
	p, ok := t.peers[peer]
	t.mu.Unlock()
	if !ok {
		return newConnectionError(fmt.Errorf("no peer %q", peer))
	}
	return writeWS(p, msg)
}

// Receive implements [Transport].
func (t *WebSocketServerTransport) Receive(ctx context.Context) (PeerID, jsonrpc.Message, error) {
	select {
	case m, ok := <-t.queue:
		if !ok {
			return "", nil, io.EOF
		}
		return m.peer, m.msg, m.err
	case <-t.closed:
		return "", nil, io.EOF
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Close implements [Transport], closing every accepted connection.
func (t *WebSocketServerTransport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		for peer, p := range t.peers {
			p.conn.Close()
			delete(t.peers, peer)
		}
		t.mu.Unlock()
		close(t.closed)
	})
	return nil
}

func writeWS(p *websocketPeer, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcp: encoding websocket message: %w", err)
	}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return newConnectionError(fmt.Errorf("websocket write: %w", err))
	}
	return nil
}

func readLoopWS(peer PeerID, p *websocketPeer, queue chan<- websocketMessage, closed <-chan struct{}) {
	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		msg, err := jsonrpc.DecodeMessage(data)
		select {
		case queue <- websocketMessage{peer: peer, msg: msg, err: err}:
		case <-closed:
			return
		}
	}
}
