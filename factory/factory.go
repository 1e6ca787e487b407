// Package factory assembles agent-facing tools from configured capability
// servers: it resolves credentials, draws connections from the pool,
// discovers remote tools, and wraps each one behind the invocation bridge.
package factory

import (
	"context"

	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/pool"
	"github.com/effective-security/mcpbridge/schema"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "factory")

// CredentialProvider resolves the access token a principal uses with a
// capability server. Tokens are opaque to this package; they are passed to
// the transport and never persisted or logged.
type CredentialProvider interface {
	AccessToken(ctx context.Context, principalID, serverID string) (string, error)
}

// StaticCredentials is a CredentialProvider backed by a serverID-keyed map,
// for deployments where tokens come from the environment.
type StaticCredentials map[string]string

// AccessToken returns the configured token for the server, empty when none.
func (s StaticCredentials) AccessToken(_ context.Context, _, serverID string) (string, error) {
	return s[serverID], nil
}

// Factory produces ready-to-call tools for capability servers. Safe for
// concurrent use.
type Factory struct {
	cfg        *Config
	pool       *pool.Pool
	creds      CredentialProvider
	translator *schema.Translator
	callbacks  []tools.Callback
	strict     bool
}

// Option customizes a Factory.
type Option func(*Factory)

// WithCredentialProvider sets the token source for server connections.
func WithCredentialProvider(creds CredentialProvider) Option {
	return func(f *Factory) {
		f.creds = creds
	}
}

// WithPool overrides the connection pool.
func WithPool(p *pool.Pool) Option {
	return func(f *Factory) {
		f.pool = p
	}
}

// WithTranslator overrides the schema translator, e.g. to share a Redis
// cache across replicas.
func WithTranslator(tr *schema.Translator) Option {
	return func(f *Factory) {
		f.translator = tr
	}
}

// WithCallbacks registers invocation observers on every produced tool.
func WithCallbacks(cbs ...tools.Callback) Option {
	return func(f *Factory) {
		f.callbacks = append(f.callbacks, cbs...)
	}
}

// WithStrictSchemas enables the nullability pass for consumers that feed
// tool schemas to strict structured-output validators.
func WithStrictSchemas() Option {
	return func(f *Factory) {
		f.strict = true
	}
}

// New creates a Factory over the given server configuration.
func New(cfg *Config, opts ...Option) *Factory {
	f := &Factory{
		cfg:        cfg,
		translator: schema.NewTranslator(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.pool == nil {
		f.pool = pool.New()
	}
	return f
}

// Load creates a Factory from a configuration file.
func Load(location string, opts ...Option) (*Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...), nil
}

// ToolsForServer returns the callable tools the named server offers to the
// principal. It never returns an error: configuration problems, connect
// failures, and discovery failures all degrade to an empty slice so one
// broken integration cannot take down tool assembly.
func (f *Factory) ToolsForServer(ctx context.Context, serverName, principalID, sessionID string) []tools.ITool {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	desc := f.cfg.Lookup(serverName)
	if desc == nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "unknown_server",
			"server", serverName,
			"session", sessionID,
		)
		return nil
	}
	if !desc.Enabled {
		logger.ContextKV(ctx, xlog.DEBUG,
			"reason", "server_disabled",
			"server", serverName,
			"session", sessionID,
		)
		return nil
	}

	credential := ""
	if f.creds != nil {
		var err error
		credential, err = f.creds.AccessToken(ctx, principalID, desc.ID)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "credential_lookup_failed",
				"server", serverName,
				"session", sessionID,
				"err", err.Error(),
			)
			return nil
		}
	}

	client, err := f.pool.Acquire(ctx, desc, principalID, credential)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "connect_failed",
			"server", serverName,
			"session", sessionID,
			"err", err.Error(),
		)
		return nil
	}

	discovered := mcp.Discover(ctx, client)
	out := make([]tools.ITool, 0, len(discovered))
	for _, tool := range discovered {
		translation := f.translate(ctx, tool.InputSchema)
		rt, err := bridge.New(client, tool, translation, bridge.WithCallbacks(f.callbacks...))
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "tool_rejected",
				"server", serverName,
				"tool", tool.Name,
				"err", err.Error(),
			)
			continue
		}
		out = append(out, rt)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"server", serverName,
		"session", sessionID,
		"tools", len(out),
	)
	return out
}

func (f *Factory) translate(ctx context.Context, raw any) *schema.Translation {
	if f.strict {
		return f.translator.Strict(ctx, raw)
	}
	return f.translator.Translate(ctx, raw)
}

// Release drops the pooled connection for the given server and principal.
func (f *Factory) Release(ctx context.Context, serverName, principalID string) {
	if desc := f.cfg.Lookup(serverName); desc != nil {
		f.pool.Release(ctx, desc, principalID)
	}
}

// Shutdown closes the pool and all its connections.
func (f *Factory) Shutdown(ctx context.Context) {
	f.pool.Shutdown(ctx)
}
