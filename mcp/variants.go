// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// The static method → variant tables the coordinator consults for typed
// parsing, per spec §4.1 ("parsing chooses a variant from the method string
// via a static map"). Four tables exist, a send and a receive table for each
// side, because the vocabulary a server sends/receives differs from a
// client's.

package mcp

// clientSendVariants describes requests/notifications a client sends to a
// server: the params type it marshals, and the result type it expects back.
var clientSendVariants = variantRegistry{
	methodInitialize:        newVariant[*InitializeParams, *InitializeResult](),
	methodPing:              newVariant[*PingParams, *emptyResult](),
	notificationInitialized: newVariant[*InitializedParams, *emptyResult](),
	methodListTools:         newVariant[*ListToolsParams, *ListToolsResult](),
	methodCallTool:          newVariant[*CallToolParams, *CallToolResult](),
	methodListResources:     newVariant[*ListResourcesParams, *ListResourcesResult](),
	methodListResourceTemplates: newVariant[*ListResourceTemplatesParams, *ListResourceTemplatesResult](),
	methodReadResource:      newVariant[*ReadResourceParams, *ReadResourceResult](),
	methodSubscribe:         newVariant[*SubscribeParams, *emptyResult](),
	methodUnsubscribe:       newVariant[*UnsubscribeParams, *emptyResult](),
	methodListPrompts:       newVariant[*ListPromptsParams, *ListPromptsResult](),
	methodGetPrompt:         newVariant[*GetPromptParams, *GetPromptResult](),
	methodComplete:          newVariant[*CompleteParams, *CompleteResult](),
	methodSetLevel:          newVariant[*SetLoggingLevelParams, *emptyResult](),
	notificationCancelled:   newVariant[*CancelledParams, *emptyResult](),
	notificationRootsListChanged: newVariant[*RootsListChangedParams, *emptyResult](),
}

// clientReceiveVariants describes requests/notifications a client accepts
// from a server.
var clientReceiveVariants = variantRegistry{
	methodPing:                      newVariant[*PingParams, *emptyResult](),
	methodListRoots:                 newVariant[*ListRootsParams, *ListRootsResult](),
	methodCreateMessage:             newVariant[*CreateMessageParams, *CreateMessageResult](),
	methodElicit:                    newVariant[*ElicitParams, *ElicitResult](),
	notificationCancelled:           newVariant[*CancelledParams, *emptyResult](),
	notificationProgress:            newVariant[*ProgressNotificationParams, *emptyResult](),
	notificationLoggingMessage:      newVariant[*LoggingMessageParams, *emptyResult](),
	notificationToolListChanged:     newVariant[*ToolListChangedParams, *emptyResult](),
	notificationResourceListChanged: newVariant[*ResourceListChangedParams, *emptyResult](),
	notificationResourceUpdated:     newVariant[*ResourceUpdatedNotificationParams, *emptyResult](),
	notificationPromptListChanged:   newVariant[*PromptListChangedParams, *emptyResult](),
	notificationElicitationComplete: newVariant[*ElicitationCompleteParams, *emptyResult](),
}

// serverReceiveVariants describes requests/notifications a server accepts
// from a client.
var serverReceiveVariants = variantRegistry{
	methodInitialize:        newVariant[*InitializeParams, *InitializeResult](),
	methodPing:              newVariant[*PingParams, *emptyResult](),
	notificationInitialized: newVariant[*InitializedParams, *emptyResult](),
	methodListTools:         newVariant[*ListToolsParams, *ListToolsResult](),
	methodCallTool:          newVariant[*CallToolParamsRaw, *CallToolResult](),
	methodListResources:     newVariant[*ListResourcesParams, *ListResourcesResult](),
	methodListResourceTemplates: newVariant[*ListResourceTemplatesParams, *ListResourceTemplatesResult](),
	methodReadResource:      newVariant[*ReadResourceParams, *ReadResourceResult](),
	methodSubscribe:         newVariant[*SubscribeParams, *emptyResult](),
	methodUnsubscribe:       newVariant[*UnsubscribeParams, *emptyResult](),
	methodListPrompts:       newVariant[*ListPromptsParams, *ListPromptsResult](),
	methodGetPrompt:         newVariant[*GetPromptParams, *GetPromptResult](),
	methodComplete:          newVariant[*CompleteParams, *CompleteResult](),
	methodSetLevel:          newVariant[*SetLoggingLevelParams, *emptyResult](),
	notificationCancelled:   newVariant[*CancelledParams, *emptyResult](),
	notificationRootsListChanged: newVariant[*RootsListChangedParams, *emptyResult](),
}

// serverSendVariants describes requests/notifications a server sends to a
// client.
var serverSendVariants = variantRegistry{
	methodPing:                      newVariant[*PingParams, *emptyResult](),
	methodListRoots:                 newVariant[*ListRootsParams, *ListRootsResult](),
	methodCreateMessage:             newVariant[*CreateMessageParams, *CreateMessageResult](),
	methodElicit:                    newVariant[*ElicitParams, *ElicitResult](),
	notificationCancelled:           newVariant[*CancelledParams, *emptyResult](),
	notificationProgress:            newVariant[*ProgressNotificationParams, *emptyResult](),
	notificationLoggingMessage:      newVariant[*LoggingMessageParams, *emptyResult](),
	notificationToolListChanged:     newVariant[*ToolListChangedParams, *emptyResult](),
	notificationResourceListChanged: newVariant[*ResourceListChangedParams, *emptyResult](),
	notificationResourceUpdated:     newVariant[*ResourceUpdatedNotificationParams, *emptyResult](),
	notificationPromptListChanged:   newVariant[*PromptListChangedParams, *emptyResult](),
	notificationElicitationComplete: newVariant[*ElicitationCompleteParams, *emptyResult](),
}
