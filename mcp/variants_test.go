// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "testing"

// Every variantRegistry must be able to construct a fresh Params and Result
// value for each of its entries without panicking, since the coordinator
// calls newParams/newResult on the hot path with no recovery.
func TestVariantRegistriesConstructValues(t *testing.T) {
	registries := map[string]variantRegistry{
		"clientSendVariants":    clientSendVariants,
		"clientReceiveVariants": clientReceiveVariants,
		"serverReceiveVariants": serverReceiveVariants,
		"serverSendVariants":    serverSendVariants,
	}
	for name, reg := range registries {
		for method, info := range reg {
			if p := info.newParams(); p == nil {
				t.Errorf("%s[%q].newParams() returned nil", name, method)
			}
			if r := info.newResult(); r == nil {
				t.Errorf("%s[%q].newResult() returned nil", name, method)
			}
		}
	}
}

// The methods a server sends to a client must be exactly the methods a
// client declares it can receive, and vice versa: the two halves of a
// connection are built from registries that describe the same wire.
func TestVariantRegistriesAgreeAcrossDirections(t *testing.T) {
	assertSameMethods(t, "server sends / client receives", serverSendVariants, clientReceiveVariants)
	assertSameMethods(t, "client sends / server receives", clientSendVariants, serverReceiveVariants)
}

func assertSameMethods(t *testing.T, label string, a, b variantRegistry) {
	t.Helper()
	for method := range a {
		if _, ok := b[method]; !ok {
			t.Errorf("%s: method %q present on one side but not the other", label, method)
		}
	}
	for method := range b {
		if _, ok := a[method]; !ok {
			t.Errorf("%s: method %q present on one side but not the other", label, method)
		}
	}
}

// notifications/roots/list_changed must be routable: it needs both a
// defined method constant and a registry entry (a gap that once existed
// silently dropped the notification on the floor instead of failing loudly).
func TestRootsListChangedIsRegistered(t *testing.T) {
	if _, ok := clientSendVariants[notificationRootsListChanged]; !ok {
		t.Error("notificationRootsListChanged missing from clientSendVariants")
	}
	if _, ok := serverReceiveVariants[notificationRootsListChanged]; !ok {
		t.Error("notificationRootsListChanged missing from serverReceiveVariants")
	}
}
