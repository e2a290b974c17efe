// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// The Streamable HTTP transport, per spec §4.6 (server) and §4.7 (client):
// a single POST/GET/DELETE endpoint, keyed by an Mcp-Session-Id header, that
// always answers with a stream so a handler may emit progress notifications
// or nested requests before its final response.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Lab11HQ/conduit-mcp-sub000/internal/util"
	"github.com/Lab11HQ/conduit-mcp-sub000/jsonrpc"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// StreamableServerTransportOptions configures [NewStreamableServerTransport].
type StreamableServerTransportOptions struct {
	// RateLimit, if positive, caps the rate of incoming HTTP requests per
	// remote address using a token-bucket limiter; a zero value disables
	// rate limiting.
	RateLimit rate.Limit
	// RateBurst is the token-bucket burst size paired with RateLimit.
	// Ignored if RateLimit is zero.
	RateBurst int

	// RequireLoopbackOrigin rejects requests whose Origin header is set and
	// does not resolve to a loopback address, guarding the local,
	// unauthenticated deployments spec §4.6 assumes by default.
	RequireLoopbackOrigin bool

	// MaxBodyBytes caps the size of a POST body. Zero uses
	// DefaultMaxBodyBytes; negative disables the limit.
	MaxBodyBytes int64
}

// StreamableServerTransport implements [Transport] for the server side of
// the streamable HTTP wire protocol, multiplexing every connected client
// behind a single PeerID-tagged queue, the session ID doubling as PeerID.
type StreamableServerTransport struct {
	opts StreamableServerTransportOptions

	mu       sync.Mutex
	sessions map[PeerID]*streamableSession
	limiters map[string]*rate.Limiter

	incoming chan streamableInbound
	closed   chan struct{}
	once     sync.Once
}

type streamableInbound struct {
	peer PeerID
	msg  jsonrpc.Message
	err  error
}

// streamableSession is the live SSE/response-routing state for one
// Mcp-Session-Id.
type streamableSession struct {
	mu sync.Mutex
	// outbox holds the events published on each stream, keyed by stream
	// name (the empty key is the session-wide stream used for
	// server-initiated traffic); readers track their own position in it.
	outbox map[string][]sseEvent
	// waiters are 1-buffered wake channels for an HTTP handler blocked
	// waiting for outbox to grow.
	waiters map[string]chan struct{}
	// live tracks open streams so Send knows who remains reachable; a
	// stream with no reader falls back to the default (empty) stream so
	// messages are never dropped.
	live map[string]bool
}

func newStreamableSession() *streamableSession {
	return &streamableSession{
		outbox:  make(map[string][]sseEvent),
		waiters: make(map[string]chan struct{}),
		live:    make(map[string]bool),
	}
}

// NewStreamableServerTransport returns a server transport ready to be
// wrapped in an http.Handler via [StreamableServerTransport.ServeHTTP].
func NewStreamableServerTransport(opts *StreamableServerTransportOptions) *StreamableServerTransport {
	t := &StreamableServerTransport{
		sessions: make(map[PeerID]*streamableSession),
		limiters: make(map[string]*rate.Limiter),
		incoming: make(chan streamableInbound, 64),
		closed:   make(chan struct{}),
	}
	if opts != nil {
		t.opts = *opts
	}
	return t
}

// Router builds a [mux.Router] serving the streamable endpoint at path on
// every method the protocol uses.
func (t *StreamableServerTransport) Router(path string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(path, t.ServeHTTP).Methods(http.MethodPost, http.MethodGet, http.MethodDelete)
	return r
}

func (t *StreamableServerTransport) limiterFor(remoteAddr string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[remoteAddr]
	if !ok {
		l = rate.NewLimiter(t.opts.RateLimit, t.opts.RateBurst)
		t.limiters[remoteAddr] = l
	}
	return l
}

// ServeHTTP implements spec §4.6's request routing.
func (t *StreamableServerTransport) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if t.opts.RequireLoopbackOrigin {
		if origin := req.Header.Get("Origin"); origin != "" {
			host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
			if !util.IsLoopback(host) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
		}
	}
	if t.opts.RateLimit > 0 && !t.limiterFor(req.RemoteAddr).Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	switch req.Method {
	case http.MethodDelete:
		t.serveDELETE(w, req)
	case http.MethodGet:
		t.serveGET(w, req)
	case http.MethodPost:
		t.servePOST(w, req)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
	}
}

func (t *StreamableServerTransport) serveDELETE(w http.ResponseWriter, req *http.Request) {
	id := req.Header.Get("Mcp-Session-Id")
	if id == "" {
		http.Error(w, "DELETE requires an Mcp-Session-Id header", http.StatusBadRequest)
		return
	}
	t.mu.Lock()
	delete(t.sessions, PeerID(id))
	t.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (t *StreamableServerTransport) serveGET(w http.ResponseWriter, req *http.Request) {
	id := req.Header.Get("Mcp-Session-Id")
	if id == "" {
		http.Error(w, "GET requires an Mcp-Session-Id header", http.StatusBadRequest)
		return
	}
	t.mu.Lock()
	sess, ok := t.sessions[PeerID(id)]
	t.mu.Unlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	streamKey, startIdx := "", 0
	if last := req.Header.Get("Last-Event-ID"); last != "" {
		var ok bool
		streamKey, startIdx, ok = parseStreamableEventID(last)
		if !ok {
			http.Error(w, "malformed Last-Event-ID", http.StatusBadRequest)
			return
		}
		startIdx++
	}
	t.streamEvents(w, req, sess, streamKey, startIdx)
}

func (t *StreamableServerTransport) servePOST(w http.ResponseWriter, req *http.Request) {
	maxBytes := effectiveMaxBodyBytes(t.opts.MaxBodyBytes)
	if maxBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, maxBytes)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeRequestBodyTooLarge(w)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	msgs, _, err := jsonrpc.ReadBatch(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("malformed payload: %v", err), http.StatusBadRequest)
		return
	}

	id := req.Header.Get("Mcp-Session-Id")
	isInit := len(msgs) == 1 && isInitializeRequest(msgs[0])
	if id == "" {
		if !isInit {
			http.Error(w, "missing Mcp-Session-Id header", http.StatusBadRequest)
			return
		}
		id = randText()
	}
	peer := PeerID(id)

	t.mu.Lock()
	sess, ok := t.sessions[peer]
	if !ok {
		sess = newStreamableSession()
		t.sessions[peer] = sess
	}
	t.mu.Unlock()

	streamKey := randText()
	pendingReplies := 0
	for _, msg := range msgs {
		if r, ok := msg.(*jsonrpc.Request); ok && r.ID.IsValid() {
			pendingReplies++
		}
		t.enqueue(streamableInbound{peer: peer, msg: msg})
	}

	w.Header().Set("Mcp-Session-Id", id)
	if pendingReplies == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	t.streamRepliesThenClose(w, req, sess, streamKey, pendingReplies)
}

// isInitializeRequest reports whether msg is the initialize request,
// spec §4.6's one exception to the "Mcp-Session-Id required" rule.
func isInitializeRequest(msg jsonrpc.Message) bool {
	r, ok := msg.(*jsonrpc.Request)
	return ok && r.Method == methodInitialize
}

func (t *StreamableServerTransport) enqueue(m streamableInbound) {
	select {
	case t.incoming <- m:
	case <-t.closed:
	}
}

// streamRepliesThenClose serves the always-stream invariant for a POST: it
// holds the response open as an SSE stream until every reply the request
// generated has been written, then ends the stream.
func (t *StreamableServerTransport) streamRepliesThenClose(w http.ResponseWriter, req *http.Request, sess *streamableSession, streamKey string, wantReplies int) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	idx := 0
	written := 0
	for written < wantReplies {
		events, wait := sess.take(streamKey, idx)
		for _, ev := range events {
			if ev.closed {
				return
			}
			if err := writeSSEEvent(w, ev.id, ev.payload); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			idx++
			written++
		}
		if written >= wantReplies {
			return
		}
		select {
		case <-wait:
		case <-req.Context().Done():
			return
		case <-t.closed:
			return
		}
	}
}

// streamEvents serves the long-lived GET stream used for server-initiated
// traffic outside any particular request.
func (t *StreamableServerTransport) streamEvents(w http.ResponseWriter, req *http.Request, sess *streamableSession, streamKey string, startIdx int) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	sess.markLive(streamKey, true)
	defer sess.markLive(streamKey, false)

	idx := startIdx
	for {
		events, wait := sess.take(streamKey, idx)
		for _, ev := range events {
			if ev.closed {
				return
			}
			if err := writeSSEEvent(w, ev.id, ev.payload); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			idx++
		}
		select {
		case <-wait:
		case <-req.Context().Done():
			return
		case <-t.closed:
			return
		}
	}
}

func (s *streamableSession) markLive(key string, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[key] = live
}

// take returns any buffered events for key at or after idx, plus a channel
// that fires when more may have arrived.
func (s *streamableSession) take(key string, idx int) ([]sseEvent, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.outbox[key]
	var out []sseEvent
	if idx < len(all) {
		out = append(out, all[idx:]...)
	}
	wait, ok := s.waiters[key]
	if !ok {
		wait = make(chan struct{}, 1)
		s.waiters[key] = wait
	}
	return out, wait
}

// publish appends an event to key's stream and wakes any waiting reader.
func (s *streamableSession) publish(key string, ev sseEvent) {
	s.mu.Lock()
	s.outbox[key] = append(s.outbox[key], ev)
	wait, ok := s.waiters[key]
	s.mu.Unlock()
	if ok {
		select {
		case wait <- struct{}{}:
		default:
		}
	}
}

func formatStreamableEventID(key string, idx int) string { return fmt.Sprintf("%s_%d", key, idx) }

func parseStreamableEventID(id string) (key string, idx int, ok bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

// Send implements [Transport]: it appends msg to peer's default stream,
// where it is picked up by whichever HTTP response (the originating POST's
// stream, or the standing GET stream) is currently reading it.
func (t *StreamableServerTransport) Send(ctx context.Context, peer PeerID, msg jsonrpc.Message) error {
	t.mu.Lock()
	sess, ok := t.sessions[peer]
	t.mu.Unlock()
	if !ok {
		return newConnectionError(fmt.Errorf("no session %q", peer))
	}
	raw, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcp: encoding message for %s: %w", peer, err)
	}
	key := ""
	sess.mu.Lock()
	idx := len(sess.outbox[key])
	sess.mu.Unlock()
	sess.publish(key, sseEvent{id: formatStreamableEventID(key, idx), payload: raw})
	return nil
}

// Receive implements [Transport].
func (t *StreamableServerTransport) Receive(ctx context.Context) (PeerID, jsonrpc.Message, error) {
	select {
	case m, ok := <-t.incoming:
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

// Close implements [Transport], ending every open SSE stream.
func (t *StreamableServerTransport) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.mu.Lock()
		for _, sess := range t.sessions {
			sess.publish("", sseEvent{closed: true})
		}
		t.sessions = nil
		t.mu.Unlock()
	})
	return nil
}

// StreamableClientTransportOptions configures
// [NewStreamableClientTransport].
type StreamableClientTransportOptions struct {
	// HTTPClient sends requests; http.DefaultClient if nil.
	HTTPClient *http.Client
	// TokenSource, if set, authorizes every request with a bearer token
	// per spec §4.7's optional authorization.
	TokenSource oauth2.TokenSource
}

// StreamableClientTransport implements [Transport] for a client speaking
// to exactly one streamable HTTP server, under a single constant PeerID.
type StreamableClientTransport struct {
	url    string
	client *http.Client
	tokens oauth2.TokenSource

	mu        sync.Mutex
	sessionID string

	peer     PeerID
	incoming chan streamableInbound
	closed   chan struct{}
	once     sync.Once
	getDone  chan struct{}
}

// streamableServerPeer is the constant PeerID a StreamableClientTransport
// addresses; it has exactly one remote endpoint.
const streamableServerPeer PeerID = "server"

// NewStreamableClientTransport returns a client transport that talks to the
// streamable HTTP server at url.
func NewStreamableClientTransport(url string, opts *StreamableClientTransportOptions) *StreamableClientTransport {
	t := &StreamableClientTransport{
		url:      url,
		client:   http.DefaultClient,
		peer:     streamableServerPeer,
		incoming: make(chan streamableInbound, 64),
		closed:   make(chan struct{}),
	}
	if opts != nil {
		if opts.HTTPClient != nil {
			t.client = opts.HTTPClient
		}
		t.tokens = opts.TokenSource
	}
	return t
}

func (t *StreamableClientTransport) authorize(req *http.Request) error {
	if t.tokens == nil {
		return nil
	}
	tok, err := t.tokens.Token()
	if err != nil {
		return fmt.Errorf("mcp: obtaining token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

// Send implements [Transport] by POSTing msg and streaming any replies it
// produces back onto the incoming queue.
func (t *StreamableClientTransport) Send(ctx context.Context, peer PeerID, msg jsonrpc.Message) error {
	select {
	case <-t.closed:
		return newConnectionError(fmt.Errorf("transport closed"))
	default:
	}
	raw, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcp: encoding message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, newByteReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	t.mu.Lock()
	id := t.sessionID
	t.mu.Unlock()
	if id != "" {
		req.Header.Set("Mcp-Session-Id", id)
	}
	if err := t.authorize(req); err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return newConnectionError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mcp: POST returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if newID := resp.Header.Get("Mcp-Session-Id"); newID != "" {
		t.mu.Lock()
		t.sessionID = newID
		t.mu.Unlock()
	}
	if resp.StatusCode == http.StatusAccepted {
		return nil
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.consumeSSE(resp.Body)
	}
	return nil
}

func (t *StreamableClientTransport) consumeSSE(r io.Reader) {
	for ev, err := range scanSSE(r) {
		if err != nil {
			return
		}
		msg, err := jsonrpc.DecodeMessage(ev)
		if err != nil {
			t.enqueue(streamableInbound{peer: t.peer, err: fmt.Errorf("mcp: decoding SSE payload: %w", err)})
			continue
		}
		t.enqueue(streamableInbound{peer: t.peer, msg: msg})
	}
}

func (t *StreamableClientTransport) enqueue(m streamableInbound) {
	select {
	case t.incoming <- m:
	case <-t.closed:
	}
}

// StartServerStream opens the optional long-lived GET stream spec §4.7
// describes for receiving server-initiated requests and notifications
// outside the context of any particular POST.
func (t *StreamableClientTransport) StartServerStream(ctx context.Context) error {
	t.mu.Lock()
	id := t.sessionID
	t.mu.Unlock()
	if id == "" {
		return fmt.Errorf("mcp: no session established yet")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Mcp-Session-Id", id)
	req.Header.Set("Accept", "text/event-stream")
	if err := t.authorize(req); err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return newConnectionError(err)
	}
	t.getDone = make(chan struct{})
	go func() {
		defer close(t.getDone)
		defer resp.Body.Close()
		t.consumeSSE(resp.Body)
	}()
	return nil
}

// Receive implements [Transport].
func (t *StreamableClientTransport) Receive(ctx context.Context) (PeerID, jsonrpc.Message, error) {
	select {
	case m, ok := <-t.incoming:
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

// Close implements [Transport], issuing a DELETE to terminate the logical
// session per spec §4.7.
func (t *StreamableClientTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		t.mu.Lock()
		id := t.sessionID
		t.mu.Unlock()
		if id != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			req, rerr := http.NewRequestWithContext(ctx, http.MethodDelete, t.url, nil)
			if rerr == nil {
				req.Header.Set("Mcp-Session-Id", id)
				if aerr := t.authorize(req); aerr == nil {
					if resp, derr := t.client.Do(req); derr == nil {
						resp.Body.Close()
					} else {
						err = derr
					}
				}
			}
		}
	})
	return err
}

func newByteReader(b []byte) io.Reader { return bytes.NewReader(b) }

// scanSSE yields the `data:` payload of each event in an SSE byte stream,
// ignoring `id:`/`event:`/comment lines and blank-line-delimited framing.
func scanSSE(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		var data bytes.Buffer
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if data.Len() > 0 {
					if !yield(bytes.TrimSuffix(data.Bytes(), []byte("\n")), nil) {
						return
					}
					data.Reset()
				}
			case strings.HasPrefix(line, "data:"):
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
				data.WriteByte('\n')
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
			return
		}
		if data.Len() > 0 {
			yield(bytes.TrimSuffix(data.Bytes(), []byte("\n")), nil)
		}
	}
}
