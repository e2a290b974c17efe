// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "sync"

// peerState is the per-peer record the coordinator and session layer share:
// negotiated capabilities, implementation info, and the domain-state
// projections a session's built-in notification handlers keep current. The
// coordinator never reads or writes the projections; it only owns the
// request tables embedded in tracker.
type peerState struct {
	mu sync.Mutex

	// protocolVersion is the version this peer negotiated during
	// initialize. It is set once and never changes.
	protocolVersion string

	// initialized is set once the initialize/initialized handshake has
	// fully completed for this peer (see spec §4.4 step 4). Until then,
	// only ping and initialize may cross the wire to or from this peer.
	initialized bool

	// capabilities holds whatever the peer advertised in its half of the
	// handshake: *ClientCapabilities on a ServerSession's peer, or
	// *ServerCapabilities on a ClientSession's peer.
	capabilities any

	// info holds the peer's self-reported implementation identity:
	// *Implementation in both directions.
	info *Implementation

	// Domain-state projections, updated only by built-in notification
	// handlers in client.go/server.go, per spec §4.4.
	tools     []*Tool
	resources []*Resource
	prompts   []*Prompt
	roots     []*Root
	logLevel  LoggingLevel
}

func newPeerState() *peerState {
	return &peerState{}
}

func (p *peerState) isInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

func (p *peerState) setInitialized() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = true
}

func (p *peerState) setTools(tools []*Tool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tools = tools
}

func (p *peerState) setResources(resources []*Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources = resources
}

func (p *peerState) setPrompts(prompts []*Prompt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = prompts
}

func (p *peerState) setRoots(roots []*Root) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roots = roots
}

func (p *peerState) setLogLevel(level LoggingLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logLevel = level
}
