// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file contains code shared between client and server sessions: the
// Params/Result vocabulary, the method-variant registry the coordinator
// uses to parse requests and responses, and small helpers used on both
// sides of a connection.

package mcp

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"time"

	internaljson "github.com/Lab11HQ/conduit-mcp-sub000/internal/json"
)

// latestProtocolVersion is the version this module negotiates by default.
const latestProtocolVersion = "2025-06-18"

// supportedProtocolVersions lists versions this module can still parse,
// newest first. Only latestProtocolVersion is ever offered by a client built
// on this package. A server answers a client's requested version with that
// same version when it appears in this list, and with latestProtocolVersion
// otherwise; a client built on this package reports PROTOCOL_VERSION_MISMATCH
// for any answer other than latestProtocolVersion.
var supportedProtocolVersions = []string{
	latestProtocolVersion,
	"2025-03-26",
	"2024-11-05",
}

// Meta is additional metadata attached to requests, notifications, and
// results under the reserved "_meta" wire key.
type Meta map[string]any

// GetMeta returns the metadata map, which may be nil.
func (m Meta) GetMeta() map[string]any { return m }

// SetMeta replaces the metadata map.
func (m *Meta) SetMeta(x map[string]any) { *m = x }

const progressTokenKey = "progressToken"

// getProgressToken returns the progress token embedded in p's metadata, or
// nil if there is none.
func getProgressToken(p Params) any {
	if p == nil {
		return nil
	}
	return p.GetMeta()[progressTokenKey]
}

// setProgressToken embeds a progress token into p's metadata. It panics if
// pt is not an int-like value or a string.
func setProgressToken(p Params, pt any) {
	switch pt.(type) {
	case int, int32, int64, string:
	default:
		panic(fmt.Sprintf("progress token %v is of type %[1]T, not int or string", pt))
	}
	m := p.GetMeta()
	if m == nil {
		m = map[string]any{}
	}
	m[progressTokenKey] = pt
	p.SetMeta(m)
}

// Params is the parameter (input) type for an MCP request or notification.
// isParams is a closed-set marker: only types declared in this module may
// satisfy Params.
type Params interface {
	GetMeta() map[string]any
	SetMeta(map[string]any)
	isParams()
}

// RequestParams is a Params type that additionally carries a progress
// token, as every MCP request (but not notification) does.
type RequestParams interface {
	Params
	GetProgressToken() any
	SetProgressToken(any)
}

// Result is the result type for an MCP request.
type Result interface {
	GetMeta() map[string]any
	SetMeta(map[string]any)
	isResult()
}

// emptyResult is the result of methods that carry no payload, such as ping.
type emptyResult struct{}

func (*emptyResult) GetMeta() map[string]any { return nil }
func (*emptyResult) SetMeta(map[string]any)  {}
func (*emptyResult) isResult()               {}

// ServerRequest wraps an inbound request on a ServerSession with the typed
// params a registered handler expects, plus the session and peer it arrived
// on, so the handler can call back (e.g. to report progress).
type ServerRequest[P Params] struct {
	Session *ServerSession
	Peer    PeerID
	Params  P
}

// ClientRequest is ServerRequest's mirror for requests a ClientSession
// receives from a server.
type ClientRequest[P Params] struct {
	Session *ClientSession
	Peer    PeerID
	Params  P
}

// PeerID identifies one remote endpoint within a coordinator's purview: the
// server on the client side, or one connected client on the server side.
// It is opaque outside this package's transports.
type PeerID string

// variantInfo describes one method's wire shape: how to construct a zero
// Params value to unmarshal a request into, and a zero Result value to
// unmarshal a matching response into. The coordinator consults this
// registry to implement spec §4.1's typed-request parsing.
type variantInfo struct {
	newParams func() Params
	newResult func() Result
}

// variantRegistry maps method name to its variantInfo. Client and server
// sessions each populate their own registry (the method vocabularies differ
// by direction), consulted by the coordinator for both inbound request
// parsing and outbound response-in-context parsing.
type variantRegistry map[string]variantInfo

func newVariant[P paramsPtr[T], R Result, T any]() variantInfo {
	return variantInfo{
		newParams: func() Params { var p P = new(T); return p },
		newResult: func() Result {
			// R is a pointer type; allocate the value it points to so the
			// result can be unmarshaled into.
			var r R
			return reflect.New(reflect.TypeOf(r).Elem()).Interface().(Result)
		},
	}
}

type paramsPtr[T any] interface {
	*T
	Params
}

// unmarshalParams decodes raw into a fresh Params value for info, or
// returns an error suitable for wrapping as INVALID_PARAMS.
func (info variantInfo) unmarshalParams(raw internaljson.RawMessage) (Params, error) {
	p := info.newParams()
	if len(raw) == 0 {
		return p, nil
	}
	if err := internaljson.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("unmarshaling %s into %T: %w", raw, p, err)
	}
	return p, nil
}

// unmarshalResult decodes raw into a fresh Result value for info.
func (info variantInfo) unmarshalResult(raw internaljson.RawMessage) (Result, error) {
	r := info.newResult()
	if len(raw) == 0 {
		return r, nil
	}
	if err := internaljson.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("unmarshaling %s into %T: %w", raw, r, err)
	}
	return r, nil
}

// registerTypedRequest adapts a handler written against concrete Params/
// Result types into the coordinator's untyped RequestHandlerFunc. The
// registered variant guarantees params arrives as P, so the type assertion
// here can never fail in practice.
func registerTypedRequest[P Params, R Result](coord *coordinator, method string, info variantInfo, fn func(context.Context, PeerID, P) (R, error)) {
	coord.registerRequestHandler(method, info, func(ctx context.Context, peer PeerID, params Params) (Result, error) {
		p, ok := params.(P)
		if !ok {
			return nil, fmt.Errorf("mcp: %s: unexpected params type %T", method, params)
		}
		res, err := fn(ctx, peer, p)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}

// registerTypedNotification is registerTypedRequest's notification-side
// counterpart.
func registerTypedNotification[P Params](coord *coordinator, method string, info variantInfo, fn func(context.Context, PeerID, P)) {
	coord.registerNotificationHandler(method, info, func(ctx context.Context, peer PeerID, params Params) {
		p, ok := params.(P)
		if !ok {
			return
		}
		fn(ctx, peer, p)
	})
}

// normalizeCancelledID renders a notifications/cancelled RequestID (which
// arrives as a string or, via JSON numbers, a float64) the same way
// jsonrpc.ID.String renders the id the tracker stored it under.
func normalizeCancelledID(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%d", int64(x))
	default:
		return fmt.Sprint(x)
	}
}

// keepaliveSession is the narrow surface startKeepalive needs from either a
// ClientSession or a ServerSession.
type keepaliveSession interface {
	Ping(ctx context.Context, params *PingParams) error
	Close() error
}

// startKeepalive runs a background ping loop against session, closing it if
// a ping ever fails. The returned context.CancelFunc (assigned through
// cancelPtr before the goroutine starts, so a caller racing to cancel
// immediately after calling this never observes a nil func) stops the loop.
func startKeepalive(session keepaliveSession, interval time.Duration, cancelPtr *context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	*cancelPtr = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(context.Background(), interval/2)
				err := session.Ping(pingCtx, nil)
				pingCancel()
				if err != nil {
					log.Printf("mcp: keepalive ping failed, closing session: %v", err)
					_ = session.Close()
					return
				}
			}
		}
	}()
}
