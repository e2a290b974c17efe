// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// The message coordinator: the bidirectional engine that owns the receive
// loop, classifies and dispatches every inbound JSON-RPC frame, and
// correlates responses with in-flight outbound requests. See spec §4.3.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	internaljson "github.com/Lab11HQ/conduit-mcp-sub000/internal/json"
	"github.com/Lab11HQ/conduit-mcp-sub000/jsonrpc"
)

// defaultRequestTimeout is the per-request timeout applied when a caller of
// sendRequest does not override it, per spec §5.
const defaultRequestTimeout = 30 * time.Second

// RequestHandlerFunc handles one inbound MCP request and returns its
// result, or an error. Returning a *WireError sends that error verbatim;
// any other non-nil error is reported as CodeInternalError.
type RequestHandlerFunc func(ctx context.Context, peer PeerID, params Params) (Result, error)

// NotificationHandlerFunc handles one inbound MCP notification. It has no
// reply channel; any error is logged and otherwise discarded.
type NotificationHandlerFunc func(ctx context.Context, peer PeerID, params Params)

type requestHandlerEntry struct {
	info variantInfo
	fn   RequestHandlerFunc
}

type notificationHandlerEntry struct {
	info variantInfo
	fn   NotificationHandlerFunc
}

// coordinator drives one Transport end, multiplexing by the PeerID the
// transport tags each frame with. A client session typically owns one
// coordinator per server connection; a server owns a single coordinator
// multiplexing every connected client, per spec §4.3.
type coordinator struct {
	transport Transport
	tracker   *tracker
	logger    *log.Logger
	metrics   *coordinatorMetrics

	// isInitialized reports whether peer has completed the handshake. A
	// nil func allows every peer (used in tests exercising the
	// coordinator without a session layer).
	isInitialized func(peer PeerID) bool

	// onPeerGone is invoked by stop after tracker.cleanupPeer, once per
	// tracked peer. It lets the session layer drop its own peerState
	// record.
	onPeerGone func(peer PeerID)

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	eg       errgroup.Group

	handlersMu           sync.RWMutex
	requestHandlers      map[string]requestHandlerEntry
	notificationHandlers map[string]notificationHandlerEntry
}

// coordinatorOption configures a coordinator at construction time.
type coordinatorOption func(*coordinator)

func withLogger(l *log.Logger) coordinatorOption {
	return func(c *coordinator) { c.logger = l }
}

func withMetrics(m *coordinatorMetrics) coordinatorOption {
	return func(c *coordinator) { c.metrics = m }
}

func newCoordinator(transport Transport, opts ...coordinatorOption) *coordinator {
	c := &coordinator{
		transport:            transport,
		tracker:              newTracker(),
		requestHandlers:      make(map[string]requestHandlerEntry),
		notificationHandlers: make(map[string]notificationHandlerEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *coordinator) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// registerRequestHandler binds fn to method, replacing the flat
// handler-registration table of spec §4.3.
func (c *coordinator) registerRequestHandler(method string, info variantInfo, fn RequestHandlerFunc) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.requestHandlers[method] = requestHandlerEntry{info: info, fn: fn}
}

func (c *coordinator) registerNotificationHandler(method string, info variantInfo, fn NotificationHandlerFunc) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.notificationHandlers[method] = notificationHandlerEntry{info: info, fn: fn}
}

// start spawns the background receive loop. It is idempotent; calling it
// again while already running is a no-op.
func (c *coordinator) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.running = true
	go func() {
		defer close(c.loopDone)
		c.receiveLoop(loopCtx)
	}()
	return nil
}

// stop cancels the receive loop, awaits its termination and every
// in-flight handler task, then runs cleanupPeer on the tracker for every
// tracked peer, calling onPeerGone after each.
func (c *coordinator) stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	done := c.loopDone
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
	_ = c.eg.Wait()
	c.tracker.mu.Lock()
	peers := make([]PeerID, 0, len(c.tracker.peers))
	for p := range c.tracker.peers {
		peers = append(peers, p)
	}
	c.tracker.mu.Unlock()
	for _, p := range peers {
		c.tracker.cleanupPeer(p)
		if c.onPeerGone != nil {
			c.onPeerGone(p)
		}
	}
	return nil
}

func (c *coordinator) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// receiveLoop is the coordinator's only long-lived task. It terminates
// when ctx is cancelled (normal shutdown) or the transport reports a
// terminal error (abnormal shutdown, also cleaned up by stop via the
// caller noticing loopDone closed — but since an abnormal exit doesn't go
// through stop, we run cleanup here too).
func (c *coordinator) receiveLoop(ctx context.Context) {
	for {
		peer, msg, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // normal shutdown; stop() will run cleanup_all.
			}
			if errors.Is(err, io.EOF) {
				c.logf("mcp: transport closed, ending receive loop")
			} else {
				c.logf("mcp: transport error, ending receive loop: %v", err)
			}
			c.tracker.cleanupAll()
			return
		}
		c.tracker.registerPeer(peer)
		c.dispatch(ctx, peer, msg)
	}
}

func (c *coordinator) dispatch(loopCtx context.Context, peer PeerID, msg jsonrpc.Message) {
	switch m := msg.(type) {
	case *jsonrpc.Request:
		c.dispatchRequest(loopCtx, peer, m)
	case *jsonrpc.Notification:
		c.dispatchNotification(peer, m)
	case *jsonrpc.Response:
		c.dispatchResponse(peer, m)
	default:
		c.logf("mcp: unclassifiable frame from %s, dropping", peer)
	}
}

func (c *coordinator) dispatchRequest(loopCtx context.Context, peer PeerID, req *jsonrpc.Request) {
	c.handlersMu.RLock()
	entry, ok := c.requestHandlers[req.Method]
	c.handlersMu.RUnlock()
	if !ok {
		c.sendErrorResponse(peer, req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
		return
	}

	params, err := entry.info.unmarshalParams(req.Params)
	if err != nil {
		c.sendErrorResponse(peer, req.ID, jsonrpc.CodeInvalidParams, "invalid params", map[string]any{
			"method":      req.Method,
			"rawPayload":  string(req.Params),
			"errorDetail": err.Error(),
		})
		return
	}

	c.metrics.receivedRequest()
	hctx, cancel := context.WithCancel(loopCtx)
	idStr := req.ID.String()
	if err := c.tracker.trackInbound(peer, idStr, req.Method, cancel); err != nil {
		cancel()
		c.logf("mcp: tracking inbound request %s from unknown peer %s: %v", idStr, peer, err)
		return
	}

	c.eg.Go(func() (retErr error) {
		defer c.tracker.removeInbound(peer, idStr)
		defer c.metrics.sentResponse()
		result, handlerErr := c.runRequestHandler(hctx, entry.fn, peer, params, req)
		if handlerErr != nil {
			var we *WireError
			if errors.As(handlerErr, &we) {
				c.sendWireErrorResponse(peer, req.ID, (*jsonrpc.WireError)(we))
			} else if errors.Is(handlerErr, context.Canceled) {
				c.sendErrorResponse(peer, req.ID, jsonrpc.CodeInternalError, fmt.Sprintf("Request %s cancelled", idStr), nil)
			} else {
				c.sendErrorResponse(peer, req.ID, jsonrpc.CodeInternalError, handlerErr.Error(), map[string]any{
					"method": req.Method,
					"id":     idStr,
				})
			}
			return nil
		}
		c.sendResultResponse(peer, req.ID, result)
		return nil
	})
}

// runRequestHandler invokes fn, converting a panic into an internal error
// response rather than crashing the coordinator (spec §4.3: "uncaught
// exceptions ... become an INTERNAL_ERROR response").
func (c *coordinator) runRequestHandler(ctx context.Context, fn RequestHandlerFunc, peer PeerID, params Params, req *jsonrpc.Request) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", req.Method, r)
		}
	}()
	return fn(ctx, peer, params)
}

func (c *coordinator) dispatchNotification(peer PeerID, note *jsonrpc.Notification) {
	c.handlersMu.RLock()
	entry, ok := c.notificationHandlers[note.Method]
	c.handlersMu.RUnlock()
	if !ok {
		c.logf("mcp: unknown notification method %q from %s, dropping", note.Method, peer)
		return
	}
	params, err := entry.info.unmarshalParams(note.Params)
	if err != nil {
		c.logf("mcp: malformed notification %q from %s, dropping: %v", note.Method, peer, err)
		return
	}
	// Detached: never tracked, never awaited by stop, never blocks the
	// receive loop, per spec §4.3.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logf("mcp: notification handler for %q panicked: %v", note.Method, r)
			}
		}()
		entry.fn(context.Background(), peer, params)
	}()
}

func (c *coordinator) dispatchResponse(peer PeerID, resp *jsonrpc.Response) {
	idStr := resp.ID.String()
	pending := c.tracker.getOutbound(peer, idStr)
	if pending == nil {
		c.logf("mcp: unmatched response id=%s from %s, dropping", idStr, peer)
		return
	}
	var outcome outboundOutcome
	if resp.Error != nil {
		outcome.wireErr = WireErrorFromWire(resp.Error)
	} else {
		result, err := pending.info.unmarshalResult(resp.Result)
		if err != nil {
			outcome.err = fmt.Errorf("mcp: malformed response for %s: %w", idStr, err)
		} else {
			outcome.result = result
		}
	}
	c.tracker.resolveOutbound(peer, idStr, outcome)
}

func (c *coordinator) sendResultResponse(peer PeerID, id jsonrpc.ID, result Result) {
	raw, err := internaljson.Marshal(result)
	if err != nil {
		c.sendErrorResponse(peer, id, jsonrpc.CodeInternalError, fmt.Sprintf("marshaling result: %v", err), nil)
		return
	}
	c.send(peer, &jsonrpc.Response{ID: id, Result: raw})
}

func (c *coordinator) sendErrorResponse(peer PeerID, id jsonrpc.ID, code int, message string, data any) {
	c.send(peer, &jsonrpc.Response{ID: id, Error: jsonrpc.NewError(code, message, data)})
}

func (c *coordinator) sendWireErrorResponse(peer PeerID, id jsonrpc.ID, we *jsonrpc.WireError) {
	c.send(peer, &jsonrpc.Response{ID: id, Error: we})
}

func (c *coordinator) send(peer PeerID, msg jsonrpc.Message) {
	if err := c.transport.Send(context.Background(), peer, msg); err != nil {
		c.logf("mcp: sending to %s: %v", peer, err)
	}
}

// sendRequest implements spec §4.3's send_request: start-if-needed,
// initialization gating, tracking, send, wait with timeout.
func (c *coordinator) sendRequest(ctx context.Context, peer PeerID, method string, params Params, info variantInfo, timeout time.Duration) (Result, *WireError, error) {
	if !c.isRunning() {
		if err := c.start(); err != nil {
			return nil, nil, newConnectionError(err)
		}
	}
	if method != "ping" && method != "initialize" {
		if c.isInitialized != nil && !c.isInitialized(peer) {
			return nil, nil, fmt.Errorf("mcp: peer %s is not initialized", peer)
		}
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	id := uuid.NewString()
	pending, err := c.tracker.trackOutbound(peer, id, method, info)
	if err != nil {
		return nil, nil, newConnectionError(err)
	}

	raw, err := marshalParamsWithMeta(params)
	if err != nil {
		c.tracker.removeOutbound(peer, id)
		return nil, nil, fmt.Errorf("mcp: marshaling params for %s: %w", method, err)
	}
	req := &jsonrpc.Request{ID: jsonrpc.StringID(id), Method: method, Params: raw}
	if err := c.transport.Send(ctx, peer, req); err != nil {
		c.tracker.removeOutbound(peer, id)
		return nil, nil, newConnectionError(err)
	}
	c.metrics.sentRequest()
	defer c.metrics.finishedOutbound()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case outcome := <-pending.done:
		return outcome.result, outcome.wireErr, outcome.err
	case <-timer.C:
		c.metrics.timedOut()
		c.tracker.removeOutbound(peer, id)
		if method != "initialize" {
			cancelParams := &CancelledParams{RequestID: id, Reason: "Request timed out"}
			if sendErr := c.sendNotification(context.Background(), peer, "notifications/cancelled", cancelParams); sendErr != nil {
				c.logf("mcp: sending cancelled notification for timed-out request %s: %v", id, sendErr)
			}
		}
		return nil, nil, fmt.Errorf("mcp: request %s (%s) timed out after %s", id, method, timeout)
	case <-ctx.Done():
		c.tracker.removeOutbound(peer, id)
		return nil, nil, ctx.Err()
	}
}

// sendNotification implements spec §4.3's send_notification: start-if-
// needed, send, no tracking.
func (c *coordinator) sendNotification(ctx context.Context, peer PeerID, method string, params Params) error {
	if !c.isRunning() {
		if err := c.start(); err != nil {
			return newConnectionError(err)
		}
	}
	raw, err := marshalParamsWithMeta(params)
	if err != nil {
		return fmt.Errorf("mcp: marshaling params for %s: %w", method, err)
	}
	note := &jsonrpc.Notification{Method: method, Params: raw}
	if err := c.transport.Send(ctx, peer, note); err != nil {
		return newConnectionError(err)
	}
	return nil
}

// cancelInbound is the coordinator's public entry point used by the
// notifications/cancelled handler (spec §4.3).
func (c *coordinator) cancelInbound(peer PeerID, id string) bool {
	return c.tracker.cancelInbound(peer, id)
}

func marshalParamsWithMeta(params Params) (internaljson.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return internaljson.Marshal(params)
}

// WireErrorFromWire adapts a *jsonrpc.WireError into the mcp package's
// *WireError alias, which is defined in errors.go.
func WireErrorFromWire(we *jsonrpc.WireError) *WireError {
	return (*WireError)(we)
}
