// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// The client side of the session protocol: Client holds an application's
// identity and the handlers it offers a server, and Connect runs the
// initialize/initialized handshake of spec §4.4 to produce a ClientSession.

package mcp

import (
	"context"
	"fmt"
	"time"
)

// ClientOptions configures a Client's identity, declared capabilities, and
// the handlers it registers for requests and notifications a server may
// send it. A nil handler means the corresponding capability is not
// advertised during the handshake.
type ClientOptions struct {
	// KeepaliveInterval, if positive, starts a background ping loop against
	// a session once its handshake completes, closing the session if a
	// ping ever fails.
	KeepaliveInterval time.Duration

	// CreateMessageHandler serves sampling/createMessage requests from a
	// server. A nil handler means this client does not advertise sampling.
	CreateMessageHandler func(context.Context, *CreateMessageRequest) (*CreateMessageResult, error)
	// ElicitHandler serves elicitation/create requests from a server. A nil
	// handler means this client does not advertise elicitation.
	ElicitHandler func(context.Context, *ElicitRequest) (*ElicitResult, error)
	// ListRootsHandler serves roots/list requests from a server. A nil
	// handler means this client does not advertise roots.
	ListRootsHandler func(context.Context, *ListRootsRequest) (*ListRootsResult, error)

	// ToolListChangedHandler is invoked, with the peer state's tools
	// projection already refreshed, after a tools/list_changed
	// notification successfully re-lists tools.
	ToolListChangedHandler func(*ClientSession)
	// ResourceListChangedHandler is the resources/list_changed analogue;
	// it fires if at least one of resources/list or
	// resources/templates/list succeeded.
	ResourceListChangedHandler func(*ClientSession)
	// ResourceUpdatedHandler fires after a resources/updated notification
	// successfully re-reads the affected URI.
	ResourceUpdatedHandler func(*ClientSession, *ResourceUpdatedNotificationParams)
	// PromptListChangedHandler is the prompts/list_changed analogue.
	PromptListChangedHandler func(*ClientSession)
	// LogHandler forwards logging/message notifications from a server.
	LogHandler func(*ClientSession, *LoggingMessageParams)
	// ProgressHandler forwards progress notifications from a server.
	ProgressHandler func(*ClientSession, *ProgressNotificationParams)
	// CancelledHandler is invoked after a cancelled notification has
	// cancelled the corresponding inbound handler task, if any.
	CancelledHandler func(*ClientSession, *CancelledParams)
}

// Client is the local configuration shared by every session it establishes
// with a server: its identity, the capabilities it advertises, and the
// handlers that serve requests a server sends back.
type Client struct {
	impl *Implementation
	opts ClientOptions
}

// NewClient returns a Client identifying itself to servers as impl. A nil
// opts is equivalent to a zero ClientOptions.
func NewClient(impl *Implementation, opts *ClientOptions) *Client {
	c := &Client{impl: impl}
	if opts != nil {
		c.opts = *opts
	}
	return c
}

func (c *Client) capabilities() *ClientCapabilities {
	caps := &ClientCapabilities{}
	if c.opts.ListRootsHandler != nil {
		caps.RootsV2 = &RootCapabilities{ListChanged: true}
	}
	if c.opts.CreateMessageHandler != nil {
		caps.Sampling = &SamplingCapabilities{}
	}
	if c.opts.ElicitHandler != nil {
		caps.Elicitation = &ElicitationCapabilities{}
	}
	return caps
}

// ClientSession is one handshake-complete connection to a server, reached
// over a Transport and addressed by peer.
type ClientSession struct {
	client *Client
	peer   PeerID
	coord  *coordinator
	state  *peerState

	keepaliveCancel context.CancelFunc
}

// Connect drives the full spec §4.4 handshake with peer over transport:
// initialize, protocol-version verification, and initialized. It blocks
// until the handshake completes or fails; on failure the coordinator is
// stopped and no goroutines are left running.
func (c *Client) Connect(ctx context.Context, transport Transport, peer PeerID) (*ClientSession, error) {
	state := newPeerState()
	coord := newCoordinator(transport)
	sess := &ClientSession{client: c, peer: peer, coord: coord, state: state}
	coord.isInitialized = func(p PeerID) bool {
		return p == peer && state.isInitialized()
	}
	sess.registerHandlers()

	if err := coord.start(); err != nil {
		return nil, err
	}

	initParams := &InitializeParams{
		ProtocolVersion: latestProtocolVersion,
		ClientInfo:      c.impl,
		Capabilities:    c.capabilities(),
	}
	res, werr, err := coord.sendRequest(ctx, peer, methodInitialize, initParams, clientSendVariants[methodInitialize], 0)
	if err != nil {
		coord.stop()
		return nil, err
	}
	if werr != nil {
		coord.stop()
		return nil, werr
	}
	initResult, ok := res.(*InitializeResult)
	if !ok {
		coord.stop()
		return nil, fmt.Errorf("mcp: initialize: unexpected result type %T", res)
	}
	if initResult.ProtocolVersion != latestProtocolVersion {
		coord.stop()
		return nil, NewWireError(CodeProtocolVersionMismatch,
			fmt.Sprintf("server negotiated protocol version %q, this client supports %q", initResult.ProtocolVersion, latestProtocolVersion),
			nil)
	}
	state.protocolVersion = initResult.ProtocolVersion
	state.capabilities = initResult.Capabilities
	state.info = initResult.ServerInfo

	if err := coord.sendNotification(ctx, peer, notificationInitialized, &InitializedParams{}); err != nil {
		coord.stop()
		return nil, err
	}
	state.setInitialized()

	if c.opts.KeepaliveInterval > 0 {
		startKeepalive(sess, c.opts.KeepaliveInterval, &sess.keepaliveCancel)
	}

	return sess, nil
}

func (s *ClientSession) registerHandlers() {
	registerTypedRequest(s.coord, methodPing, clientReceiveVariants[methodPing],
		func(ctx context.Context, peer PeerID, p *PingParams) (*emptyResult, error) {
			return &emptyResult{}, nil
		})
	registerTypedRequest(s.coord, methodListRoots, clientReceiveVariants[methodListRoots],
		func(ctx context.Context, peer PeerID, p *ListRootsParams) (*ListRootsResult, error) {
			if s.client.opts.ListRootsHandler == nil {
				return nil, NewWireError(CodeMethodNotFound, "roots/list not supported", nil)
			}
			return s.client.opts.ListRootsHandler(ctx, &ListRootsRequest{Session: s, Peer: peer, Params: p})
		})
	registerTypedRequest(s.coord, methodCreateMessage, clientReceiveVariants[methodCreateMessage],
		func(ctx context.Context, peer PeerID, p *CreateMessageParams) (*CreateMessageResult, error) {
			if s.client.opts.CreateMessageHandler == nil {
				return nil, NewWireError(CodeMethodNotFound, "sampling/createMessage not supported", nil)
			}
			return s.client.opts.CreateMessageHandler(ctx, &CreateMessageRequest{Session: s, Peer: peer, Params: p})
		})
	registerTypedRequest(s.coord, methodElicit, clientReceiveVariants[methodElicit],
		func(ctx context.Context, peer PeerID, p *ElicitParams) (*ElicitResult, error) {
			if s.client.opts.ElicitHandler == nil {
				return nil, NewWireError(CodeMethodNotFound, "elicitation/create not supported", nil)
			}
			return s.client.opts.ElicitHandler(ctx, &ElicitRequest{Session: s, Peer: peer, Params: p})
		})

	registerTypedNotification(s.coord, notificationCancelled, clientReceiveVariants[notificationCancelled],
		func(ctx context.Context, peer PeerID, p *CancelledParams) {
			s.coord.cancelInbound(peer, normalizeCancelledID(p.RequestID))
			if s.client.opts.CancelledHandler != nil {
				s.client.opts.CancelledHandler(s, p)
			}
		})
	registerTypedNotification(s.coord, notificationProgress, clientReceiveVariants[notificationProgress],
		func(ctx context.Context, peer PeerID, p *ProgressNotificationParams) {
			if s.client.opts.ProgressHandler != nil {
				s.client.opts.ProgressHandler(s, p)
			}
		})
	registerTypedNotification(s.coord, notificationLoggingMessage, clientReceiveVariants[notificationLoggingMessage],
		func(ctx context.Context, peer PeerID, p *LoggingMessageParams) {
			if s.client.opts.LogHandler != nil {
				s.client.opts.LogHandler(s, p)
			}
		})
	registerTypedNotification(s.coord, notificationToolListChanged, clientReceiveVariants[notificationToolListChanged],
		func(ctx context.Context, peer PeerID, p *ToolListChangedParams) {
			res, werr, err := s.coord.sendRequest(ctx, peer, methodListTools, &ListToolsParams{}, clientSendVariants[methodListTools], 0)
			if err != nil || werr != nil {
				return
			}
			lr, ok := res.(*ListToolsResult)
			if !ok {
				return
			}
			s.state.setTools(lr.Tools)
			if s.client.opts.ToolListChangedHandler != nil {
				s.client.opts.ToolListChangedHandler(s)
			}
		})
	registerTypedNotification(s.coord, notificationResourceListChanged, clientReceiveVariants[notificationResourceListChanged],
		func(ctx context.Context, peer PeerID, p *ResourceListChangedParams) {
			ok := false
			if res, werr, err := s.coord.sendRequest(ctx, peer, methodListResources, &ListResourcesParams{}, clientSendVariants[methodListResources], 0); err == nil && werr == nil {
				if lr, isOK := res.(*ListResourcesResult); isOK {
					s.state.setResources(lr.Resources)
					ok = true
				}
			}
			// Best-effort: resources/templates/list has no dedicated peer
			// projection field, so only its success contributes to ok.
			if _, werr, err := s.coord.sendRequest(ctx, peer, methodListResourceTemplates, &ListResourceTemplatesParams{}, clientSendVariants[methodListResourceTemplates], 0); err == nil && werr == nil {
				ok = true
			}
			if ok && s.client.opts.ResourceListChangedHandler != nil {
				s.client.opts.ResourceListChangedHandler(s)
			}
		})
	registerTypedNotification(s.coord, notificationResourceUpdated, clientReceiveVariants[notificationResourceUpdated],
		func(ctx context.Context, peer PeerID, p *ResourceUpdatedNotificationParams) {
			_, werr, err := s.coord.sendRequest(ctx, peer, methodReadResource, &ReadResourceParams{URI: p.URI}, clientSendVariants[methodReadResource], 0)
			if err != nil || werr != nil {
				return
			}
			if s.client.opts.ResourceUpdatedHandler != nil {
				s.client.opts.ResourceUpdatedHandler(s, p)
			}
		})
	registerTypedNotification(s.coord, notificationPromptListChanged, clientReceiveVariants[notificationPromptListChanged],
		func(ctx context.Context, peer PeerID, p *PromptListChangedParams) {
			res, werr, err := s.coord.sendRequest(ctx, peer, methodListPrompts, &ListPromptsParams{}, clientSendVariants[methodListPrompts], 0)
			if err != nil || werr != nil {
				return
			}
			lr, ok := res.(*ListPromptsResult)
			if !ok {
				return
			}
			s.state.setPrompts(lr.Prompts)
			if s.client.opts.PromptListChangedHandler != nil {
				s.client.opts.PromptListChangedHandler(s)
			}
		})
}

// serverCapabilities returns the capabilities the server advertised during
// the handshake, which s.call's capability-gated methods check before
// sending anything on the wire.
func (s *ClientSession) serverCapabilities() *ServerCapabilities {
	caps, _ := s.state.capabilities.(*ServerCapabilities)
	return caps
}

func (s *ClientSession) call(ctx context.Context, method string, params Params) (Result, error) {
	res, werr, err := s.coord.sendRequest(ctx, s.peer, method, params, clientSendVariants[method], 0)
	if err != nil {
		return nil, err
	}
	if werr != nil {
		return nil, werr
	}
	return res, nil
}

// CallTool invokes a tool on the server.
func (s *ClientSession) CallTool(ctx context.Context, params *CallToolParams) (*CallToolResult, error) {
	res, err := s.call(ctx, methodCallTool, params)
	if err != nil {
		return nil, err
	}
	return res.(*CallToolResult), nil
}

// ListTools lists the tools the server currently exposes.
func (s *ClientSession) ListTools(ctx context.Context, params *ListToolsParams) (*ListToolsResult, error) {
	if params == nil {
		params = &ListToolsParams{}
	}
	res, err := s.call(ctx, methodListTools, params)
	if err != nil {
		return nil, err
	}
	return res.(*ListToolsResult), nil
}

// ListResources lists the resources the server currently exposes.
func (s *ClientSession) ListResources(ctx context.Context, params *ListResourcesParams) (*ListResourcesResult, error) {
	if params == nil {
		params = &ListResourcesParams{}
	}
	res, err := s.call(ctx, methodListResources, params)
	if err != nil {
		return nil, err
	}
	return res.(*ListResourcesResult), nil
}

// ListResourceTemplates lists the server's resource templates.
func (s *ClientSession) ListResourceTemplates(ctx context.Context, params *ListResourceTemplatesParams) (*ListResourceTemplatesResult, error) {
	if params == nil {
		params = &ListResourceTemplatesParams{}
	}
	res, err := s.call(ctx, methodListResourceTemplates, params)
	if err != nil {
		return nil, err
	}
	return res.(*ListResourceTemplatesResult), nil
}

// ReadResource reads the content of one resource.
func (s *ClientSession) ReadResource(ctx context.Context, params *ReadResourceParams) (*ReadResourceResult, error) {
	res, err := s.call(ctx, methodReadResource, params)
	if err != nil {
		return nil, err
	}
	return res.(*ReadResourceResult), nil
}

// Subscribe asks the server to notify this client of updates to a resource.
func (s *ClientSession) Subscribe(ctx context.Context, params *SubscribeParams) error {
	caps := s.serverCapabilities()
	if caps == nil || caps.Resources == nil || !caps.Resources.Subscribe {
		return NewWireError(CodeMethodNotFound, "server does not support resources/subscribe", nil)
	}
	_, err := s.call(ctx, methodSubscribe, params)
	return err
}

// Unsubscribe cancels a prior Subscribe.
func (s *ClientSession) Unsubscribe(ctx context.Context, params *UnsubscribeParams) error {
	_, err := s.call(ctx, methodUnsubscribe, params)
	return err
}

// ListPrompts lists the prompts the server currently exposes.
func (s *ClientSession) ListPrompts(ctx context.Context, params *ListPromptsParams) (*ListPromptsResult, error) {
	if params == nil {
		params = &ListPromptsParams{}
	}
	res, err := s.call(ctx, methodListPrompts, params)
	if err != nil {
		return nil, err
	}
	return res.(*ListPromptsResult), nil
}

// GetPrompt renders one prompt.
func (s *ClientSession) GetPrompt(ctx context.Context, params *GetPromptParams) (*GetPromptResult, error) {
	res, err := s.call(ctx, methodGetPrompt, params)
	if err != nil {
		return nil, err
	}
	return res.(*GetPromptResult), nil
}

// Complete requests completion suggestions for a prompt or resource
// argument.
func (s *ClientSession) Complete(ctx context.Context, params *CompleteParams) (*CompleteResult, error) {
	caps := s.serverCapabilities()
	if caps == nil || caps.Completions == nil {
		return nil, NewWireError(CodeMethodNotFound, "server does not support completion/complete", nil)
	}
	res, err := s.call(ctx, methodComplete, params)
	if err != nil {
		return nil, err
	}
	return res.(*CompleteResult), nil
}

// SetLevel asks the server to only send log messages at or above level.
func (s *ClientSession) SetLevel(ctx context.Context, level LoggingLevel) error {
	caps := s.serverCapabilities()
	if caps == nil || caps.Logging == nil {
		return NewWireError(CodeMethodNotFound, "server does not support logging/setLevel", nil)
	}
	_, err := s.call(ctx, methodSetLevel, &SetLoggingLevelParams{Level: level})
	return err
}

// Ping sends a liveness check to the server. It is always answered
// regardless of handshake state, on both ends.
func (s *ClientSession) Ping(ctx context.Context, params *PingParams) error {
	if params == nil {
		params = &PingParams{}
	}
	_, err := s.call(ctx, methodPing, params)
	return err
}

// ServerInfo returns the server's self-reported implementation identity,
// populated once the handshake has completed.
func (s *ClientSession) ServerInfo() *Implementation {
	return s.state.info
}

// Close implements the client half of spec §4.4's disconnect ordering: stop
// the coordinator (cancelling the receive loop and cleaning up the
// tracker), then drop local keepalive state. A client session owns no
// per-peer domain managers, so step 2 is a no-op here.
func (s *ClientSession) Close() error {
	if s.keepaliveCancel != nil {
		s.keepaliveCancel()
	}
	return s.coord.stop()
}
