// Package pool owns the lifecycle of MCP client connections: transport
// selection, one live client per (server, principal) pair, idle eviction,
// and shutdown.
package pool

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/mcp/transport/stdio"
	"github.com/effective-security/mcpbridge/mcp/transport/streamhttp"
)

// ErrUnsupportedScheme is a configuration error: the endpoint matches
// neither recognized transport. It is fatal and must not be retried.
var ErrUnsupportedScheme = errors.New("unsupported endpoint scheme")

// TransportKind identifies the transport binding for a server endpoint.
type TransportKind string

const (
	// TransportStdio spawns a local capability-server subprocess.
	TransportStdio TransportKind = "stdio"
	// TransportStreamHTTP connects over HTTP with bearer-token auth.
	TransportStreamHTTP TransportKind = "streamhttp"
)

// Descriptor identifies one capability server. Immutable once loaded;
// supplied by the configuration collaborator.
type Descriptor struct {
	// ID is the unique server identity used in connection keys.
	ID string `json:"id" yaml:"id" validate:"required"`
	// Name is the human-facing server name used for lookup.
	Name string `json:"name" yaml:"name" validate:"required"`
	// Endpoint is either an http(s) URL or a stdio: subprocess reference,
	// e.g. "stdio:npx?arg=-y&arg=@corp/tracker-server".
	Endpoint string `json:"endpoint" yaml:"endpoint" validate:"required"`
	// Enabled servers are the only ones the pool will connect to.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// CredentialEnvVar overrides the env var carrying the token to a
	// subprocess server. Empty means stdio.DefaultCredentialEnvVar.
	CredentialEnvVar string `json:"credential_env_var,omitempty" yaml:"credential_env_var,omitempty"`
}

// TransportKindOf derives the transport binding from the endpoint scheme.
func TransportKindOf(endpoint string) (TransportKind, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.WithMessagef(ErrUnsupportedScheme, "endpoint %q", endpoint)
	}
	switch u.Scheme {
	case "http", "https":
		return TransportStreamHTTP, nil
	case "stdio":
		return TransportStdio, nil
	default:
		return "", errors.WithMessagef(ErrUnsupportedScheme, "endpoint %q", endpoint)
	}
}

// subprocessSpec extracts the command and arguments from a stdio: endpoint.
// The opaque part is the command; repeated "arg" query values are its argv.
func subprocessSpec(endpoint string) (command string, args []string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "stdio" {
		return "", nil, errors.WithMessagef(ErrUnsupportedScheme, "endpoint %q", endpoint)
	}
	command = u.Opaque
	if command == "" {
		// "stdio://cmd" parses as host, "stdio:/abs/path" as path.
		command = u.Host + u.Path
	}
	if command == "" {
		return "", nil, errors.WithMessagef(ErrUnsupportedScheme, "endpoint %q has no command", endpoint)
	}
	if i := strings.IndexByte(command, '?'); i >= 0 {
		command = command[:i]
	}
	args = u.Query()["arg"]
	return command, args, nil
}

// Dialer constructs a connected client for a descriptor. The pool uses
// DialServer unless a test injects its own.
type Dialer func(ctx context.Context, desc *Descriptor, credential string, opts ...mcp.ClientOption) (mcp.IClient, error)

// DialServer selects the transport for the descriptor's endpoint and opens a
// connected client. The credential is attached as a bearer header for HTTP
// endpoints and injected as a child-process environment variable for stdio
// endpoints; it is never logged or written to disk.
func DialServer(ctx context.Context, desc *Descriptor, credential string, opts ...mcp.ClientOption) (mcp.IClient, error) {
	kind, err := TransportKindOf(desc.Endpoint)
	if err != nil {
		return nil, err
	}

	switch kind {
	case TransportStreamHTTP:
		tr := streamhttp.New(desc.Endpoint, credential)
		return mcp.NewClient(ctx, tr, opts...)
	default:
		command, args, err := subprocessSpec(desc.Endpoint)
		if err != nil {
			return nil, err
		}
		tr := stdio.New(command, args...).
			WithCredential(desc.CredentialEnvVar, credential)
		return mcp.NewClient(ctx, tr, opts...)
	}
}
