// Package streamhttp implements the HTTP binding of the MCP transport.
// Each message is POSTed to the server endpoint with a bearer credential;
// the response body carries the correlated JSON-RPC reply.
package streamhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/mcp/transport", "streamhttp")

const contentType = "application/json"

// DefaultRequestTimeout bounds a single HTTP exchange when the caller's
// context carries no deadline of its own.
const DefaultRequestTimeout = 2 * time.Minute

// Transport is the client-side streaming-HTTP binding. It holds no OS
// resources beyond the http.Client socket pool.
type Transport struct {
	endpoint string
	token    string
	client   *http.Client
	headers  map[string]string

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
}

var _ transport.Transport = (*Transport)(nil)

// New creates an HTTP transport for the given endpoint URL. The token is
// attached as an Authorization bearer header on every request.
func New(endpoint, token string) *Transport {
	return &Transport{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: DefaultRequestTimeout},
		headers:  make(map[string]string),
	}
}

// WithHTTPClient overrides the underlying HTTP client, e.g. to tune the
// request timeout or to use a test server's client.
func (t *Transport) WithHTTPClient(client *http.Client) *Transport {
	t.client = client
	return t
}

// WithHeader adds a fixed header to every request.
func (t *Transport) WithHeader(key, value string) *Transport {
	t.headers[key] = value
	return t
}

// Start implements transport.Transport. The HTTP binding is stateless, so
// there is nothing to spin up.
func (t *Transport) Start(ctx context.Context) error {
	return nil
}

// Send posts the message and dispatches the server's reply to the message
// handler. Cancelling ctx aborts the in-flight request, not merely the wait.
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		logger.ContextKV(ctx, xlog.DEBUG,
			"endpoint", t.endpoint,
			"status", resp.StatusCode,
		)
		return errors.Errorf("server returned status %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	// Notifications receive no body; nothing to dispatch.
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	parsed, err := transport.ParseMessage(body)
	if err != nil {
		return errors.Wrap(err, "received invalid response")
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(ctx, parsed)
	}
	return nil
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	t.mu.RLock()
	closeHandler := t.closeHandler
	t.mu.RUnlock()
	if closeHandler != nil {
		closeHandler()
	}
	return nil
}

// SetCloseHandler implements transport.Transport.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements transport.Transport.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}
