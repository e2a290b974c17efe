// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"sync"
	"testing"
)

func TestPeerStateInitialized(t *testing.T) {
	p := newPeerState()
	if p.isInitialized() {
		t.Fatal("fresh peerState reports initialized")
	}
	p.setInitialized()
	if !p.isInitialized() {
		t.Fatal("setInitialized did not stick")
	}
}

func TestPeerStateSetters(t *testing.T) {
	p := newPeerState()

	tools := []*Tool{{Name: "t1"}}
	p.setTools(tools)
	if len(p.tools) != 1 || p.tools[0].Name != "t1" {
		t.Errorf("setTools: got %+v", p.tools)
	}

	resources := []*Resource{{URI: "file:///a"}}
	p.setResources(resources)
	if len(p.resources) != 1 || p.resources[0].URI != "file:///a" {
		t.Errorf("setResources: got %+v", p.resources)
	}

	prompts := []*Prompt{{Name: "p1"}}
	p.setPrompts(prompts)
	if len(p.prompts) != 1 || p.prompts[0].Name != "p1" {
		t.Errorf("setPrompts: got %+v", p.prompts)
	}

	roots := []*Root{{URI: "file:///root"}}
	p.setRoots(roots)
	if len(p.roots) != 1 || p.roots[0].URI != "file:///root" {
		t.Errorf("setRoots: got %+v", p.roots)
	}

	p.setLogLevel("warning")
	if p.logLevel != "warning" {
		t.Errorf("setLogLevel: got %q, want %q", p.logLevel, "warning")
	}
}

// Every setter takes the same mutex isInitialized reads, so concurrent
// writers from different notification handlers must never race.
func TestPeerStateConcurrentSetters(t *testing.T) {
	p := newPeerState()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(4)
		go func() { defer wg.Done(); p.setTools([]*Tool{{Name: "x"}}) }()
		go func() { defer wg.Done(); p.setResources([]*Resource{{URI: "x"}}) }()
		go func() { defer wg.Done(); p.setLogLevel("info") }()
		go func() { defer wg.Done(); p.isInitialized() }()
	}
	wg.Wait()
}
