// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package-internal request bookkeeping: for every peer, the pair of tables
// the coordinator uses to correlate outbound requests with their eventual
// replies, and to track inbound handler tasks so they can be cancelled.

package mcp

import (
	"fmt"
	"sync"
)

// outboundOutcome is what completes a pending outbound request: exactly one
// of result, wireErr, or err is set. err covers local conditions (timeout,
// tracker-internal resolution, transport failure) that never reached the
// wire as a JSON-RPC error object.
type outboundOutcome struct {
	result  Result
	wireErr *WireError
	err     error
}

// pendingOutbound is one entry in a peer's outbound table: the request that
// was sent, its expected result variant, and a one-shot channel the tracker
// completes exactly once.
type pendingOutbound struct {
	method string
	info   variantInfo
	done   chan outboundOutcome

	mu       sync.Mutex
	resolved bool
}

// resolve completes p with outcome unless it is already resolved. It
// reports whether this call was the one that resolved it.
func (p *pendingOutbound) resolve(outcome outboundOutcome) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return false
	}
	p.resolved = true
	p.done <- outcome
	return true
}

// pendingInbound is one entry in a peer's inbound table: the handler task
// running for an in-flight request, and the means to cancel it.
type pendingInbound struct {
	method string
	cancel func()
}

// peerTables holds one peer's outbound and inbound request tables, guarded
// by a single mutex. Per spec §4.2, operations are serialized per peer only;
// there is no cross-peer contention.
type peerTables struct {
	mu       sync.Mutex
	outbound map[string]*pendingOutbound
	inbound  map[string]*pendingInbound
}

// tracker is the request tracker of spec §4.2: per-peer outbound/inbound
// tables plus the registration of peers themselves.
type tracker struct {
	mu    sync.Mutex
	peers map[PeerID]*peerTables
}

func newTracker() *tracker {
	return &tracker{peers: make(map[PeerID]*peerTables)}
}

// registerPeer creates peer's tables if they do not already exist. It is
// idempotent and safe to call from the receive loop whenever a new peer
// identity appears.
func (t *tracker) registerPeer(peer PeerID) *peerTables {
	t.mu.Lock()
	defer t.mu.Unlock()
	pt, ok := t.peers[peer]
	if !ok {
		pt = &peerTables{
			outbound: make(map[string]*pendingOutbound),
			inbound:  make(map[string]*pendingInbound),
		}
		t.peers[peer] = pt
	}
	return pt
}

func (t *tracker) tables(peer PeerID) (*peerTables, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pt, ok := t.peers[peer]
	return pt, ok
}

// trackOutbound inserts a new outbound entry. It fails if peer is unknown.
func (t *tracker) trackOutbound(peer PeerID, id string, method string, info variantInfo) (*pendingOutbound, error) {
	pt, ok := t.tables(peer)
	if !ok {
		return nil, fmt.Errorf("mcp: tracker: unknown peer %q", peer)
	}
	entry := &pendingOutbound{method: method, info: info, done: make(chan outboundOutcome, 1)}
	pt.mu.Lock()
	pt.outbound[id] = entry
	pt.mu.Unlock()
	return entry, nil
}

// getOutbound returns the pending entry for (peer, id), or nil if there is
// none.
func (t *tracker) getOutbound(peer PeerID, id string) *pendingOutbound {
	pt, ok := t.tables(peer)
	if !ok {
		return nil
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.outbound[id]
}

// resolveOutbound completes the future for (peer, id) if it is still
// pending and removes the entry. An unknown id is a silent no-op, per spec
// §4.2 ("safe race").
func (t *tracker) resolveOutbound(peer PeerID, id string, outcome outboundOutcome) {
	pt, ok := t.tables(peer)
	if !ok {
		return
	}
	pt.mu.Lock()
	entry, ok := pt.outbound[id]
	if ok {
		delete(pt.outbound, id)
	}
	pt.mu.Unlock()
	if ok {
		entry.resolve(outcome)
	}
}

// removeOutbound removes (peer, id) if still pending, completing its future
// with an internal "resolved internally by tracker" error first. Used by
// send_request on timeout, before any cancelled notification is sent.
func (t *tracker) removeOutbound(peer PeerID, id string) {
	pt, ok := t.tables(peer)
	if !ok {
		return
	}
	pt.mu.Lock()
	entry, ok := pt.outbound[id]
	if ok {
		delete(pt.outbound, id)
	}
	pt.mu.Unlock()
	if ok {
		entry.resolve(outboundOutcome{err: fmt.Errorf("mcp: request %s resolved internally by tracker", id)})
	}
}

// trackInbound inserts a new inbound handler-task entry. It fails if peer
// is unknown.
func (t *tracker) trackInbound(peer PeerID, id string, method string, cancel func()) error {
	pt, ok := t.tables(peer)
	if !ok {
		return fmt.Errorf("mcp: tracker: unknown peer %q", peer)
	}
	pt.mu.Lock()
	pt.inbound[id] = &pendingInbound{method: method, cancel: cancel}
	pt.mu.Unlock()
	return nil
}

// cancelInbound cancels the handler task for (peer, id) and removes the
// entry. It reports whether the id was known.
func (t *tracker) cancelInbound(peer PeerID, id string) bool {
	pt, ok := t.tables(peer)
	if !ok {
		return false
	}
	pt.mu.Lock()
	entry, ok := pt.inbound[id]
	if ok {
		delete(pt.inbound, id)
	}
	pt.mu.Unlock()
	if ok {
		entry.cancel()
	}
	return ok
}

// removeInbound removes (peer, id) without asserting prior existence. Per
// spec §4.2 it behaves the same as cancelInbound and is idempotent.
func (t *tracker) removeInbound(peer PeerID, id string) {
	t.cancelInbound(peer, id)
}

// cleanupPeer cancels every inbound task and fails every outbound future
// for peer, then clears both tables. The peer record itself (and any
// peerState kept alongside it by the session layer) is left in place.
func (t *tracker) cleanupPeer(peer PeerID) {
	pt, ok := t.tables(peer)
	if !ok {
		return
	}
	pt.mu.Lock()
	inbound := pt.inbound
	outbound := pt.outbound
	pt.inbound = make(map[string]*pendingInbound)
	pt.outbound = make(map[string]*pendingOutbound)
	pt.mu.Unlock()

	for _, entry := range inbound {
		entry.cancel()
	}
	for id, entry := range outbound {
		entry.resolve(outboundOutcome{err: fmt.Errorf("mcp: request %s cancelled: peer disconnected", id)})
	}
}

// cleanupAll applies cleanupPeer to every registered peer.
func (t *tracker) cleanupAll() {
	t.mu.Lock()
	peers := make([]PeerID, 0, len(t.peers))
	for p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()
	for _, p := range peers {
		t.cleanupPeer(p)
	}
}
