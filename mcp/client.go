// Package mcp implements the client side of the Model Context Protocol: the
// handshake, tool catalog discovery, and remote tool invocation over a
// pluggable transport.
package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/internal/protocol"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "mcp")

var clientInfo = Implementation{
	Name:    "mcpbridge",
	Version: "1.0.0",
}

// IClient is the surface the pool, discovery, and bridge depend on.
type IClient interface {
	ListTools(ctx context.Context, cursor string) (*ListToolsResponse, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

//go:generate mockgen -source=client.go -destination=../mocks/mockmcp/client_mock.gen.go -package mockmcp

// Client speaks MCP over one transport. It is safe for concurrent use; the
// protocol layer preserves request/response pairing per connection.
type Client struct {
	protocol       *protocol.Protocol
	requestTimeout time.Duration

	serverInfo Implementation
}

var _ IClient = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithRequestTimeout bounds every request issued by the client.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// NewClient connects the protocol layer to the given transport and performs
// the initialize handshake. On failure the transport is closed before
// returning; no OS resources leak.
func NewClient(ctx context.Context, tr transport.Transport, opts ...ClientOption) (*Client, error) {
	c := &Client{
		protocol: protocol.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.protocol.Connect(ctx, tr); err != nil {
		_ = tr.Close()
		return nil, errors.Wrap(err, "failed to start transport")
	}

	if err := c.initialize(ctx); err != nil {
		_ = c.protocol.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) initialize(ctx context.Context) error {
	req := &InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo,
	}

	raw, err := c.request(ctx, MethodInitialize, req)
	if err != nil {
		return errors.Wrap(err, "initialize failed")
	}

	var resp InitializeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errors.Wrap(err, "failed to unmarshal initialize response")
	}
	c.serverInfo = resp.ServerInfo

	logger.ContextKV(ctx, xlog.DEBUG,
		"server", resp.ServerInfo.Name,
		"version", resp.ServerInfo.Version,
		"protocol", resp.ProtocolVersion,
	)

	return c.protocol.Notification(ctx, notificationInitialized, map[string]any{})
}

// ServerInfo returns the server identity reported during the handshake.
func (c *Client) ServerInfo() Implementation {
	return c.serverInfo
}

// ListTools requests one page of the remote tool catalog. The order of the
// returned descriptors is the server's; no priority is implied.
func (c *Client) ListTools(ctx context.Context, cursor string) (*ListToolsResponse, error) {
	req := &ListToolsRequest{Cursor: cursor}
	raw, err := c.request(ctx, MethodListTools, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tools")
	}

	var resp ListToolsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tools list")
	}
	return &resp, nil
}

// CallTool invokes the named remote procedure with the given argument object.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*CallToolResult, error) {
	req := &CallToolRequest{
		Name:      name,
		Arguments: arguments,
	}
	raw, err := c.request(ctx, MethodCallTool, req)
	if err != nil {
		return nil, err
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal result of %q", name)
	}
	return &result, nil
}

// Ping probes connection liveness.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, MethodPing, map[string]any{})
	return err
}

// Close closes the protocol and its transport.
func (c *Client) Close() error {
	return c.protocol.Close()
}

func (c *Client) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var opts *protocol.RequestOptions
	if c.requestTimeout > 0 {
		opts = &protocol.RequestOptions{Timeout: c.requestTimeout}
	}
	return c.protocol.Request(ctx, method, params, opts)
}
