// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// The server side of the session protocol: Server owns the tool/resource/
// prompt registries and the single coordinator multiplexing every connected
// client; ServerSession is the per-peer facade spec §4.4 describes.

package mcp

import (
	"context"
	"fmt"
	"sync"
)

// A ResourceHandler reads one resource (or one match of a resource
// template) identified by its URI.
type ResourceHandler func(ctx context.Context, req *ReadResourceRequest) (*ReadResourceResult, error)

// A PromptHandler renders one prompt.
type PromptHandler func(ctx context.Context, req *GetPromptRequest) (*GetPromptResult, error)

// A CompletionHandler serves completion/complete.
type CompletionHandler func(ctx context.Context, req *CompleteRequest) (*CompleteResult, error)

type serverResource struct {
	resource *Resource
	handler  ResourceHandler
}

type serverResourceTemplate struct {
	template *ResourceTemplate
	handler  ResourceHandler
}

type serverPrompt struct {
	prompt  *Prompt
	handler PromptHandler
}

// ServerOptions configures a Server's identity and the capabilities not
// otherwise implied by a registered tool, resource, or prompt.
type ServerOptions struct {
	// Instructions describes how to use the server; sent in InitializeResult.
	Instructions string
	// ResourceSubscriptions enables resources/subscribe and
	// resources/unsubscribe.
	ResourceSubscriptions bool
	// Logging enables logging/setLevel and Server.Log.
	Logging bool
	// CompletionHandler, if set, enables completion/complete.
	CompletionHandler CompletionHandler
	// SchemaCache, if set, caches resolved tool schemas across AddTool and
	// AddTypedTool calls. Useful for stateless deployments that re-register
	// the same tools on every request. A nil cache disables caching.
	SchemaCache *schemaCache
}

// Server hosts one application's tools, resources, and prompts and
// multiplexes every connected client through a single coordinator, per
// spec §4.3.
type Server struct {
	impl *Implementation
	opts ServerOptions

	coord *coordinator

	mu                sync.RWMutex
	tools             map[string]*serverTool
	resources         map[string]*serverResource
	resourceTemplates map[string]*serverResourceTemplate
	prompts           map[string]*serverPrompt
	sessions          map[PeerID]*ServerSession
	subscriptions     map[string]map[PeerID]bool
}

// NewServer returns a server identifying itself as impl. A nil opts is
// equivalent to a zero ServerOptions.
func NewServer(impl *Implementation, opts *ServerOptions) *Server {
	s := &Server{
		impl:              impl,
		tools:             make(map[string]*serverTool),
		resources:         make(map[string]*serverResource),
		resourceTemplates: make(map[string]*serverResourceTemplate),
		prompts:           make(map[string]*serverPrompt),
		sessions:          make(map[PeerID]*ServerSession),
		subscriptions:     make(map[string]map[PeerID]bool),
	}
	if opts != nil {
		s.opts = *opts
	}
	return s
}

// AddTool registers a tool with an untyped handler. It replaces any
// previously-registered tool of the same name.
func (s *Server) AddTool(t *Tool, h ToolHandler) error {
	st, err := newServerTool(t, h, s.opts.SchemaCache)
	if err != nil {
		return fmt.Errorf("mcp: adding tool %q: %w", t.Name, err)
	}
	s.mu.Lock()
	s.tools[t.Name] = st
	s.mu.Unlock()
	s.notifyAll(notificationToolListChanged, &ToolListChangedParams{})
	return nil
}

// AddTypedTool registers a tool whose input (and optionally output) schema
// is inferred from In and Out unless t already sets it.
func AddTypedTool[In, Out any](s *Server, t *Tool, h TypedToolHandler[In, Out]) error {
	st, err := newTypedServerTool(t, h, s.opts.SchemaCache)
	if err != nil {
		return fmt.Errorf("mcp: adding tool %q: %w", t.Name, err)
	}
	s.mu.Lock()
	s.tools[t.Name] = st
	s.mu.Unlock()
	s.notifyAll(notificationToolListChanged, &ToolListChangedParams{})
	return nil
}

// AddResource registers a concrete (non-templated) resource.
func (s *Server) AddResource(r *Resource, h ResourceHandler) {
	s.mu.Lock()
	s.resources[r.URI] = &serverResource{resource: r, handler: h}
	s.mu.Unlock()
	s.notifyAll(notificationResourceListChanged, &ResourceListChangedParams{})
}

// AddResourceTemplate registers a resource template; reads of any URI
// matching it (per [ResourceTemplate.Match]) are served by h.
func (s *Server) AddResourceTemplate(t *ResourceTemplate, h ResourceHandler) {
	s.mu.Lock()
	s.resourceTemplates[t.URITemplate] = &serverResourceTemplate{template: t, handler: h}
	s.mu.Unlock()
	s.notifyAll(notificationResourceListChanged, &ResourceListChangedParams{})
}

// AddPrompt registers a prompt.
func (s *Server) AddPrompt(p *Prompt, h PromptHandler) {
	s.mu.Lock()
	s.prompts[p.Name] = &serverPrompt{prompt: p, handler: h}
	s.mu.Unlock()
	s.notifyAll(notificationPromptListChanged, &PromptListChangedParams{})
}

func (s *Server) capabilities() *ServerCapabilities {
	caps := &ServerCapabilities{
		Tools:     &ToolCapabilities{ListChanged: true},
		Prompts:   &PromptCapabilities{ListChanged: true},
		Resources: &ResourceCapabilities{ListChanged: true, Subscribe: s.opts.ResourceSubscriptions},
	}
	if s.opts.Logging {
		caps.Logging = &LoggingCapabilities{}
	}
	if s.opts.CompletionHandler != nil {
		caps.Completions = &CompletionCapabilities{}
	}
	return caps
}

func (s *Server) session(peer PeerID) *ServerSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[peer]
}

// Start binds the server's handlers to transport and begins serving
// connected clients. It does not block.
func (s *Server) Start(transport Transport) error {
	s.coord = newCoordinator(transport)
	s.coord.isInitialized = func(peer PeerID) bool {
		sess := s.session(peer)
		return sess != nil && sess.state.isInitialized()
	}
	s.coord.onPeerGone = func(peer PeerID) {
		s.mu.Lock()
		delete(s.sessions, peer)
		for uri, peers := range s.subscriptions {
			delete(peers, peer)
			if len(peers) == 0 {
				delete(s.subscriptions, uri)
			}
		}
		s.mu.Unlock()
	}
	s.registerHandlers()
	return s.coord.start()
}

// Stop implements the server half of spec §4.4's disconnect ordering: stop
// the coordinator, then drop every per-peer session record. There is no
// separate domain-manager cleanup step beyond the subscription bookkeeping
// onPeerGone already performs as each peer is forgotten.
func (s *Server) Stop() error {
	if s.coord == nil {
		return nil
	}
	return s.coord.stop()
}

func (s *Server) registerHandlers() {
	registerTypedRequest(s.coord, methodInitialize, serverReceiveVariants[methodInitialize], s.handleInitialize)
	registerTypedNotification(s.coord, notificationInitialized, serverReceiveVariants[notificationInitialized], s.handleInitialized)
	registerTypedRequest(s.coord, methodPing, serverReceiveVariants[methodPing],
		func(ctx context.Context, peer PeerID, p *PingParams) (*emptyResult, error) {
			return &emptyResult{}, nil
		})
	registerTypedRequest(s.coord, methodListTools, serverReceiveVariants[methodListTools], s.handleListTools)
	registerTypedRequest(s.coord, methodCallTool, serverReceiveVariants[methodCallTool], s.handleCallTool)
	registerTypedRequest(s.coord, methodListResources, serverReceiveVariants[methodListResources], s.handleListResources)
	registerTypedRequest(s.coord, methodListResourceTemplates, serverReceiveVariants[methodListResourceTemplates], s.handleListResourceTemplates)
	registerTypedRequest(s.coord, methodReadResource, serverReceiveVariants[methodReadResource], s.handleReadResource)
	registerTypedRequest(s.coord, methodSubscribe, serverReceiveVariants[methodSubscribe], s.handleSubscribe)
	registerTypedRequest(s.coord, methodUnsubscribe, serverReceiveVariants[methodUnsubscribe], s.handleUnsubscribe)
	registerTypedRequest(s.coord, methodListPrompts, serverReceiveVariants[methodListPrompts], s.handleListPrompts)
	registerTypedRequest(s.coord, methodGetPrompt, serverReceiveVariants[methodGetPrompt], s.handleGetPrompt)
	registerTypedRequest(s.coord, methodComplete, serverReceiveVariants[methodComplete], s.handleComplete)
	registerTypedRequest(s.coord, methodSetLevel, serverReceiveVariants[methodSetLevel], s.handleSetLevel)

	registerTypedNotification(s.coord, notificationCancelled, serverReceiveVariants[notificationCancelled],
		func(ctx context.Context, peer PeerID, p *CancelledParams) {
			s.coord.cancelInbound(peer, normalizeCancelledID(p.RequestID))
		})
	registerTypedNotification(s.coord, notificationRootsListChanged, serverReceiveVariants[notificationRootsListChanged],
		func(ctx context.Context, peer PeerID, p *RootsListChangedParams) {
			sess := s.session(peer)
			if sess == nil {
				return
			}
			res, werr, err := sess.coord.sendRequest(ctx, peer, methodListRoots, &ListRootsParams{}, serverSendVariants[methodListRoots], 0)
			if err != nil || werr != nil {
				return
			}
			if lr, ok := res.(*ListRootsResult); ok {
				sess.state.setRoots(lr.Roots)
			}
		})
}

func (s *Server) handleInitialize(ctx context.Context, peer PeerID, p *InitializeParams) (*InitializeResult, error) {
	state := newPeerState()
	state.protocolVersion = p.ProtocolVersion
	state.capabilities = p.Capabilities
	state.info = p.ClientInfo

	sess := &ServerSession{server: s, peer: peer, coord: s.coord, state: state}
	s.mu.Lock()
	s.sessions[peer] = sess
	s.mu.Unlock()

	version := latestProtocolVersion
	for _, v := range supportedProtocolVersions {
		if v == p.ProtocolVersion {
			version = v
			break
		}
	}
	return &InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      s.impl,
		Capabilities:    s.capabilities(),
		Instructions:    s.opts.Instructions,
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, peer PeerID, p *InitializedParams) {
	if sess := s.session(peer); sess != nil {
		sess.state.setInitialized()
	}
}

func (s *Server) handleListTools(ctx context.Context, peer PeerID, p *ListToolsParams) (*ListToolsResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tools := make([]*Tool, 0, len(s.tools))
	for _, st := range s.tools {
		tools = append(tools, st.tool)
	}
	return &ListToolsResult{Tools: tools}, nil
}

func (s *Server) handleCallTool(ctx context.Context, peer PeerID, p *CallToolParamsRaw) (*CallToolResult, error) {
	s.mu.RLock()
	st, ok := s.tools[p.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, NewWireError(CodeInvalidParams, fmt.Sprintf("unknown tool %q", p.Name), nil)
	}
	sess := s.session(peer)
	req := &CallToolRequest{Session: sess, Peer: peer, Params: p}
	return st.handler(ctx, req)
}

func (s *Server) handleListResources(ctx context.Context, peer PeerID, p *ListResourcesParams) (*ListResourcesResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resources := make([]*Resource, 0, len(s.resources))
	for _, r := range s.resources {
		resources = append(resources, r.resource)
	}
	return &ListResourcesResult{Resources: resources}, nil
}

func (s *Server) handleListResourceTemplates(ctx context.Context, peer PeerID, p *ListResourceTemplatesParams) (*ListResourceTemplatesResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	templates := make([]*ResourceTemplate, 0, len(s.resourceTemplates))
	for _, t := range s.resourceTemplates {
		templates = append(templates, t.template)
	}
	return &ListResourceTemplatesResult{ResourceTemplates: templates}, nil
}

func (s *Server) handleReadResource(ctx context.Context, peer PeerID, p *ReadResourceParams) (*ReadResourceResult, error) {
	s.mu.RLock()
	r, ok := s.resources[p.URI]
	s.mu.RUnlock()
	sess := s.session(peer)
	if ok {
		return r.handler(ctx, &ReadResourceRequest{Session: sess, Peer: peer, Params: p})
	}

	s.mu.RLock()
	templates := make([]*serverResourceTemplate, 0, len(s.resourceTemplates))
	for _, t := range s.resourceTemplates {
		templates = append(templates, t)
	}
	s.mu.RUnlock()
	for _, t := range templates {
		if _, ok := t.template.Match(p.URI); ok {
			return t.handler(ctx, &ReadResourceRequest{Session: sess, Peer: peer, Params: p})
		}
	}
	return nil, NewWireError(CodeResourceNotFound, fmt.Sprintf("unknown resource %q", p.URI), nil)
}

func (s *Server) handleSubscribe(ctx context.Context, peer PeerID, p *SubscribeParams) (*emptyResult, error) {
	if !s.opts.ResourceSubscriptions {
		return nil, NewWireError(CodeMethodNotFound, "resources/subscribe not supported", nil)
	}
	s.mu.Lock()
	peers, ok := s.subscriptions[p.URI]
	if !ok {
		peers = make(map[PeerID]bool)
		s.subscriptions[p.URI] = peers
	}
	peers[peer] = true
	s.mu.Unlock()
	return &emptyResult{}, nil
}

func (s *Server) handleUnsubscribe(ctx context.Context, peer PeerID, p *UnsubscribeParams) (*emptyResult, error) {
	s.mu.Lock()
	if peers, ok := s.subscriptions[p.URI]; ok {
		delete(peers, peer)
		if len(peers) == 0 {
			delete(s.subscriptions, p.URI)
		}
	}
	s.mu.Unlock()
	return &emptyResult{}, nil
}

func (s *Server) handleListPrompts(ctx context.Context, peer PeerID, p *ListPromptsParams) (*ListPromptsResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prompts := make([]*Prompt, 0, len(s.prompts))
	for _, pr := range s.prompts {
		prompts = append(prompts, pr.prompt)
	}
	return &ListPromptsResult{Prompts: prompts}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, peer PeerID, p *GetPromptParams) (*GetPromptResult, error) {
	s.mu.RLock()
	pr, ok := s.prompts[p.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, NewWireError(CodeInvalidParams, fmt.Sprintf("unknown prompt %q", p.Name), nil)
	}
	sess := s.session(peer)
	return pr.handler(ctx, &GetPromptRequest{Session: sess, Peer: peer, Params: p})
}

func (s *Server) handleComplete(ctx context.Context, peer PeerID, p *CompleteParams) (*CompleteResult, error) {
	if s.opts.CompletionHandler == nil {
		return nil, NewWireError(CodeMethodNotFound, "completion/complete not supported", nil)
	}
	sess := s.session(peer)
	return s.opts.CompletionHandler(ctx, &CompleteRequest{Session: sess, Peer: peer, Params: p})
}

func (s *Server) handleSetLevel(ctx context.Context, peer PeerID, p *SetLoggingLevelParams) (*emptyResult, error) {
	if !s.opts.Logging {
		return nil, NewWireError(CodeMethodNotFound, "logging/setLevel not supported", nil)
	}
	if sess := s.session(peer); sess != nil {
		sess.state.setLogLevel(p.Level)
	}
	return &emptyResult{}, nil
}

// notifyAll sends a fire-and-forget notification to every initialized
// peer. Send errors are not reported back to the caller that triggered the
// registry change; spec's notification semantics never block on delivery.
func (s *Server) notifyAll(method string, params Params) {
	if s.coord == nil {
		return
	}
	s.mu.RLock()
	peers := make([]PeerID, 0, len(s.sessions))
	for peer, sess := range s.sessions {
		if sess.state.isInitialized() {
			peers = append(peers, peer)
		}
	}
	s.mu.RUnlock()
	for _, peer := range peers {
		_ = s.coord.sendNotification(context.Background(), peer, method, params)
	}
}

// NotifyResourceUpdated pushes a resources/updated notification to every
// peer subscribed to uri.
func (s *Server) NotifyResourceUpdated(uri string) {
	if s.coord == nil {
		return
	}
	s.mu.RLock()
	peers := make([]PeerID, 0, len(s.subscriptions[uri]))
	for peer := range s.subscriptions[uri] {
		peers = append(peers, peer)
	}
	s.mu.RUnlock()
	params := &ResourceUpdatedNotificationParams{URI: uri}
	for _, peer := range peers {
		_ = s.coord.sendNotification(context.Background(), peer, notificationResourceUpdated, params)
	}
}

// loggingSeverity ranks the RFC 5424 levels MCP logging uses, lowest first.
var loggingSeverity = map[LoggingLevel]int{
	"debug":     0,
	"info":      1,
	"notice":    2,
	"warning":   3,
	"error":     4,
	"critical":  5,
	"alert":     6,
	"emergency": 7,
}

// Log sends a logging/message notification to peer if it is at or above
// the level that peer last requested via logging/setLevel. A peer that
// never called logging/setLevel receives nothing, matching the handler's
// zero-value default of the lowest severity being treated as "unset".
func (s *Server) Log(ctx context.Context, peer PeerID, params *LoggingMessageParams) error {
	sess := s.session(peer)
	if sess == nil {
		return nil
	}
	sess.state.mu.Lock()
	want := sess.state.logLevel
	sess.state.mu.Unlock()
	if want == "" || loggingSeverity[params.Level] < loggingSeverity[want] {
		return nil
	}
	return s.coord.sendNotification(ctx, peer, notificationLoggingMessage, params)
}

// ServerSession is one connected, handshake-complete client, reached
// through its server's shared coordinator and addressed by peer.
type ServerSession struct {
	server *Server
	peer   PeerID
	coord  *coordinator
	state  *peerState
}

// ClientInfo returns the client's self-reported implementation identity.
func (s *ServerSession) ClientInfo() *Implementation {
	return s.state.info
}

func (s *ServerSession) clientCapabilities() *ClientCapabilities {
	caps, _ := s.state.capabilities.(*ClientCapabilities)
	return caps
}

// NotifyProgress reports progress on an in-flight request this session
// issued to the client, per progress.go's Progress helper.
func (s *ServerSession) NotifyProgress(ctx context.Context, params *ProgressNotificationParams) error {
	return s.coord.sendNotification(ctx, s.peer, notificationProgress, params)
}

// ListRoots asks the client to list its roots. It fails locally, without
// going over the wire, if the client never advertised the roots
// capability.
func (s *ServerSession) ListRoots(ctx context.Context, params *ListRootsParams) (*ListRootsResult, error) {
	caps := s.clientCapabilities()
	if caps == nil || caps.RootsV2 == nil {
		return nil, NewWireError(CodeMethodNotFound, "client does not support roots", nil)
	}
	if params == nil {
		params = &ListRootsParams{}
	}
	res, werr, err := s.coord.sendRequest(ctx, s.peer, methodListRoots, params, serverSendVariants[methodListRoots], 0)
	if err != nil {
		return nil, err
	}
	if werr != nil {
		return nil, werr
	}
	return res.(*ListRootsResult), nil
}

// CreateMessage asks the client to sample from an LLM on this server's
// behalf. It fails locally if the client never advertised sampling.
func (s *ServerSession) CreateMessage(ctx context.Context, params *CreateMessageParams) (*CreateMessageResult, error) {
	caps := s.clientCapabilities()
	if caps == nil || caps.Sampling == nil {
		return nil, NewWireError(CodeMethodNotFound, "client does not support sampling", nil)
	}
	res, werr, err := s.coord.sendRequest(ctx, s.peer, methodCreateMessage, params, serverSendVariants[methodCreateMessage], 0)
	if err != nil {
		return nil, err
	}
	if werr != nil {
		return nil, werr
	}
	return res.(*CreateMessageResult), nil
}

// Elicit asks the client to gather additional information from its user.
// It fails locally if the client never advertised elicitation.
func (s *ServerSession) Elicit(ctx context.Context, params *ElicitParams) (*ElicitResult, error) {
	caps := s.clientCapabilities()
	if caps == nil || caps.Elicitation == nil {
		return nil, NewWireError(CodeMethodNotFound, "client does not support elicitation", nil)
	}
	res, werr, err := s.coord.sendRequest(ctx, s.peer, methodElicit, params, serverSendVariants[methodElicit], 0)
	if err != nil {
		return nil, err
	}
	if werr != nil {
		return nil, werr
	}
	return res.(*ElicitResult), nil
}

// Ping sends a liveness check to the client.
func (s *ServerSession) Ping(ctx context.Context, params *PingParams) error {
	if params == nil {
		params = &PingParams{}
	}
	_, werr, err := s.coord.sendRequest(ctx, s.peer, methodPing, params, serverSendVariants[methodPing], 0)
	if err != nil {
		return err
	}
	if werr != nil {
		return werr
	}
	return nil
}

// Close disconnects this one client: it cancels its in-flight requests via
// the shared tracker and drops its session record, without stopping the
// server's coordinator (other clients remain connected).
func (s *ServerSession) Close() error {
	s.coord.tracker.cleanupPeer(s.peer)
	s.server.mu.Lock()
	delete(s.server.sessions, s.peer)
	s.server.mu.Unlock()
	return nil
}
