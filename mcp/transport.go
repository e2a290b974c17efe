// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// The Transport contract: the abstract boundary between a coordinator and
// wire-level I/O. A Transport delivers and receives framed JSON-RPC
// messages tagged with a PeerID. The client-side stdio transport
// multiplexes many child processes behind one PeerID-tagged queue; the
// server-side Streamable HTTP transport multiplexes many connected clients
// the same way. A client-side Streamable HTTP transport, talking to exactly
// one server, still satisfies this contract with a constant PeerID.

package mcp

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Lab11HQ/conduit-mcp-sub000/jsonrpc"
)

// Transport is the boundary the coordinator drives. Receive must be safe to
// call concurrently with Send, and must keep returning messages (or a
// terminal error) in the order the underlying wire delivered them per peer.
type Transport interface {
	// Send writes msg addressed to peer. Concurrent calls from different
	// goroutines must not interleave partial frames.
	Send(ctx context.Context, peer PeerID, msg jsonrpc.Message) error

	// Receive blocks until the next inbound message is available, ctx is
	// done, or the transport is permanently closed (io.EOF).
	Receive(ctx context.Context) (PeerID, jsonrpc.Message, error)

	// Close releases all transport resources. After Close, Receive must
	// return io.EOF and Send must return an error.
	Close() error
}

// sseEvent is one `data: <json>\n\n` frame queued on an SSE stream, per
// spec §4.6. A nil payload with closed set true is the sentinel the stream
// generator uses to exit cleanly (spec: `{"__close__": true}`).
type sseEvent struct {
	id      string
	payload []byte
	closed  bool
}

// writeSSEEvent formats and writes one SSE event to w, assigning it id if
// non-empty (used for Last-Event-ID resumption).
func writeSSEEvent(w io.Writer, id string, payload []byte) error {
	var err error
	if id != "" {
		_, err = fmt.Fprintf(w, "id: %s\ndata: %s\n\n", id, payload)
	} else {
		_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	return err
}

// connectionError wraps failures originating in the transport layer (as
// opposed to request timeouts or protocol errors), per spec §7 item 5.
type connectionError struct {
	err error
}

func (e *connectionError) Error() string { return fmt.Sprintf("mcp: connection error: %v", e.err) }
func (e *connectionError) Unwrap() error  { return e.err }

func newConnectionError(err error) error { return &connectionError{err: err} }

// inMemoryPeer is the constant PeerID each half of an in-memory transport
// pair addresses the other by: there is exactly one remote endpoint on
// either side of the pipe.
const inMemoryPeer PeerID = "peer"

// inMemoryTransport connects to its twin via a pair of channels, one per
// direction. It implements Transport directly, with no framing or encoding
// step, since both ends live in the same process.
type inMemoryTransport struct {
	out    chan<- jsonrpc.Message
	in     <-chan jsonrpc.Message
	closed chan struct{}
	once   *onceCloser
}

// onceCloser lets both ends of a pair share one "closed" signal without
// either one double-closing the channel the other still reads from.
type onceCloser struct {
	closeCh chan struct{}
	once    sync.Once
}

// NewInMemoryTransports returns a connected pair of transports for testing a
// client and server against each other without any real I/O. Closing either
// half closes the pair.
func NewInMemoryTransports() (client, server Transport) {
	c2s := make(chan jsonrpc.Message, 16)
	s2c := make(chan jsonrpc.Message, 16)
	closed := make(chan struct{})
	closer := &onceCloser{closeCh: closed}

	client = &inMemoryTransport{out: c2s, in: s2c, closed: closed, once: closer}
	server = &inMemoryTransport{out: s2c, in: c2s, closed: closed, once: closer}
	return client, server
}

func (t *inMemoryTransport) Send(ctx context.Context, peer PeerID, msg jsonrpc.Message) error {
	select {
	case <-t.closed:
		return newConnectionError(io.ErrClosedPipe)
	default:
	}
	select {
	case t.out <- msg:
		return nil
	case <-t.closed:
		return newConnectionError(io.ErrClosedPipe)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *inMemoryTransport) Receive(ctx context.Context) (PeerID, jsonrpc.Message, error) {
	select {
	case msg, ok := <-t.in:
		if !ok {
			return "", nil, io.EOF
		}
		return inMemoryPeer, msg, nil
	case <-t.closed:
		return "", nil, io.EOF
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (t *inMemoryTransport) Close() error {
	t.once.once.Do(func() { close(t.once.closeCh) })
	return nil
}
