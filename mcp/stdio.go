// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// The stdio client transport: addresses peers by a client-chosen server id,
// lazily spawning one child process per id and speaking line-delimited
// JSON over its stdin/stdout. See spec §4.5.

package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/Lab11HQ/conduit-mcp-sub000/jsonrpc"
)

// StdioServerCommand is the spawn recipe for one stdio-addressed peer.
type StdioServerCommand struct {
	// Command is argv: Command[0] is the executable, the rest are its
	// arguments.
	Command []string
	// Env, if non-nil, replaces the child's environment entirely
	// (following exec.Cmd.Env semantics); nil inherits this process's
	// environment.
	Env []string
	// Dir is the child's working directory; empty inherits ours.
	Dir string
}

type stdioMessage struct {
	peer PeerID
	msg  jsonrpc.Message
	err  error
}

// stdioChild is the live state of one spawned server: its process handle
// and the goroutine reading its stdout.
type stdioChild struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	sendMu sync.Mutex
}

// StdioClientTransport multiplexes many child-process servers behind a
// single Transport, addressing each by a caller-chosen PeerID (spec's
// server_id). It implements Transport.
type StdioClientTransport struct {
	mu       sync.Mutex
	recipes  map[PeerID]StdioServerCommand
	children map[PeerID]*stdioChild

	queue  chan stdioMessage
	closed chan struct{}
	once   sync.Once
}

// NewStdioClientTransport returns a transport with no registered servers.
// Use AddServer before the first Send to a given peer.
func NewStdioClientTransport() *StdioClientTransport {
	return &StdioClientTransport{
		recipes:  make(map[PeerID]StdioServerCommand),
		children: make(map[PeerID]*stdioChild),
		queue:    make(chan stdioMessage, 64),
		closed:   make(chan struct{}),
	}
}

// AddServer registers a spawn recipe for peer without launching it.
func (t *StdioClientTransport) AddServer(peer PeerID, cmd StdioServerCommand) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recipes[peer] = cmd
}

// Send performs lazy spawn: if no live process exists for peer, a child is
// forked from its recorded recipe before the message is written to stdin.
func (t *StdioClientTransport) Send(ctx context.Context, peer PeerID, msg jsonrpc.Message) error {
	select {
	case <-t.closed:
		return newConnectionError(fmt.Errorf("transport closed"))
	default:
	}
	child, err := t.childFor(peer)
	if err != nil {
		return err
	}
	raw, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		// Serialization errors are reported to the caller without
		// touching the child, per spec §4.5.
		return fmt.Errorf("mcp: encoding message for %s: %w", peer, err)
	}
	child.sendMu.Lock()
	defer child.sendMu.Unlock()
	if _, err := child.stdin.Write(append(raw, '\n')); err != nil {
		return newConnectionError(fmt.Errorf("writing to %s: %w", peer, err))
	}
	return nil
}

func (t *StdioClientTransport) childFor(peer PeerID) (*stdioChild, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.children[peer]; ok {
		return c, nil
	}
	recipe, ok := t.recipes[peer]
	if !ok {
		return nil, fmt.Errorf("mcp: no server registered for peer %q", peer)
	}
	if len(recipe.Command) == 0 {
		return nil, fmt.Errorf("mcp: empty command for peer %q", peer)
	}
	cmd := exec.Command(recipe.Command[0], recipe.Command[1:]...)
	cmd.Dir = recipe.Dir
	cmd.Env = recipe.Env
	cmd.Stderr = os.Stderr // pass the child's stderr through to ours

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: creating stdin pipe for %q: %w", peer, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: creating stdout pipe for %q: %w", peer, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: starting %q: %w", peer, err)
	}

	child := &stdioChild{cmd: cmd, stdin: stdin}
	t.children[peer] = child
	go t.readLoop(peer, child, stdout)
	return child, nil
}

// readLoop continuously reads lines from the child's stdout, decoding each
// as a JSON-RPC frame and enqueueing it. Its exit (EOF, fatal parse error,
// process death) marks the server dead without removing its registration,
// per spec §4.5: the next Send may respawn.
func (t *StdioClientTransport) readLoop(peer PeerID, child *stdioChild, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// scanner.Bytes() aliases an internal buffer reused by the next
		// Scan call; copy before any slice of it can escape via a
		// RawMessage field in the decoded message.
		cp := make([]byte, len(line))
		copy(cp, line)
		msg, err := jsonrpc.DecodeMessage(cp)
		if err != nil {
			t.enqueue(stdioMessage{peer: peer, err: fmt.Errorf("mcp: decoding line from %s: %w", peer, err)})
			continue
		}
		t.enqueue(stdioMessage{peer: peer, msg: msg})
	}
	t.markDead(peer)
}

func (t *StdioClientTransport) enqueue(m stdioMessage) {
	select {
	case t.queue <- m:
	case <-t.closed:
	}
}

func (t *StdioClientTransport) markDead(peer PeerID) {
	t.mu.Lock()
	delete(t.children, peer)
	t.mu.Unlock()
}

// Receive returns the next message from any child's stdout, tagged with
// its originating peer.
func (t *StdioClientTransport) Receive(ctx context.Context) (PeerID, jsonrpc.Message, error) {
	select {
	case m, ok := <-t.queue:
		if !ok {
			return "", nil, io.EOF
		}
		if m.err != nil {
			return m.peer, nil, m.err
		}
		return m.peer, m.msg, nil
	case <-t.closed:
		return "", nil, io.EOF
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Close gracefully shuts down every live child in parallel and stops
// accepting new sends.
func (t *StdioClientTransport) Close() error {
	t.once.Do(func() { close(t.closed) })

	t.mu.Lock()
	children := make([]*stdioChild, 0, len(t.children))
	for _, c := range t.children {
		children = append(children, c)
	}
	t.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range children {
		wg.Add(1)
		go func(c *stdioChild) {
			defer wg.Done()
			gracefulShutdown(c)
		}(c)
	}
	wg.Wait()
	return nil
}

// gracefulShutdown implements spec §4.5's three-stage teardown: close
// stdin and wait up to 5s, then terminate and wait up to 5s, then kill and
// wait up to 2s. Each stage is skipped if the process already exited.
func gracefulShutdown(c *stdioChild) {
	if c.cmd.ProcessState != nil {
		return
	}
	exited := make(chan struct{})
	go func() {
		c.cmd.Wait()
		close(exited)
	}()

	c.stdin.Close()
	if waitFor(exited, 5*time.Second) {
		return
	}

	if c.cmd.Process != nil {
		terminate(c.cmd)
	}
	if waitFor(exited, 5*time.Second) {
		return
	}

	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	waitFor(exited, 2*time.Second)
}

func terminate(cmd *exec.Cmd) {
	cmd.Process.Signal(syscall.SIGTERM)
}

func waitFor(done <-chan struct{}, d time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
