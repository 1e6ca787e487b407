package mcp

import (
	"encoding/json"
)

// ProtocolVersion is the MCP revision this client speaks.
const ProtocolVersion = "2025-03-26"

// Method names of the logical message types carried by both transports.
const (
	MethodInitialize = "initialize"
	MethodListTools  = "tools/list"
	MethodCallTool   = "tools/call"
	MethodPing       = "ping"

	notificationInitialized = "notifications/initialized"
)

// ContentTypeText marks a plain text result block.
const ContentTypeText = "text"

// Implementation identifies one side of the connection during the handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeRequest is the params of the initialize handshake.
type InitializeRequest struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResponse is the server's half of the handshake.
type InitializeResponse struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ServerInfo      Implementation `json:"serverInfo"`
}

// Tool is a remote server's declaration of one callable tool. InputSchema is
// an arbitrary, possibly malformed JSON-Schema-like document; it is handed to
// the schema translator untrusted and unmodified.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// ListToolsRequest pages through the server's tool catalog.
type ListToolsRequest struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResponse is one page of the tool catalog.
type ListToolsResponse struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolRequest invokes a named tool with an argument object.
type CallToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content is one block of a tool result. Type is commonly "text"; other
// block kinds keep their payload in Raw for JSON stringification.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw block alongside the decoded fields so that
// non-text blocks can be rendered without knowing their shape.
func (c *Content) UnmarshalJSON(data []byte) error {
	type plain Content
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	c.Raw = append(c.Raw[:0], data...)
	return nil
}

// CallToolResult is the remote outcome of a tool call. When IsError is set
// the content carries the failure description rather than a result.
//
// Servers disagree on the result shape: a content-block list, a bare JSON
// string, or an arbitrary object. Exactly one of Content, Text, or Raw is
// populated after decoding.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`

	// Text holds the result when the server returned a bare JSON string.
	Text string `json:"-"`
	// Raw holds the result when the server returned an object without a
	// content list.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the result as a tagged variant: bare string, object
// with a content list, or any other object kept raw for stringification.
func (r *CallToolResult) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Text = s
		return nil
	}

	type plain CallToolResult
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return err
	}
	if r.Content == nil {
		r.Raw = append(r.Raw[:0], data...)
	}
	return nil
}
