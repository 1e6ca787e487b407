// Package protocol implements JSON-RPC framing for the MCP client on top of
// a pluggable transport: request/response correlation, per-request timeouts,
// cancellation notifications, and progress updates.
package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/mcp/internal", "protocol")

// DefaultRequestTimeout applies when a request carries no explicit timeout.
const DefaultRequestTimeout = 60 * time.Second

// Progress represents a progress update for a long-running remote call.
type Progress struct {
	Progress int64 `json:"progress"`
	Total    int64 `json:"total"`
}

// ProgressCallback is invoked for progress notifications tied to a request.
type ProgressCallback func(progress Progress)

// RequestOptions customize a single outgoing request.
type RequestOptions struct {
	// OnProgress is called when progress notifications arrive for this request.
	OnProgress ProgressCallback
	// Timeout bounds the wait for a response. Zero means DefaultRequestTimeout.
	Timeout time.Duration
}

// Protocol correlates outgoing requests with incoming responses over one
// transport. The remote side may send notifications at any time; requests
// from the server are rejected, this is a pure client.
type Protocol struct {
	transport transport.Transport

	requestMessageID transport.RequestId
	mu               sync.RWMutex

	notificationHandlers map[string]func(notification *transport.BaseJSONRPCNotification) error
	responseHandlers     map[transport.RequestId]chan *responseEnvelope
	progressHandlers     map[transport.RequestId]ProgressCallback

	// OnClose is called when the connection is closed for any reason.
	OnClose func()
	// OnError is called for transport-level errors not tied to a request.
	OnError func(error)
}

type responseEnvelope struct {
	response json.RawMessage
	err      error
}

// New creates a Protocol with the default notification handlers installed.
func New() *Protocol {
	p := &Protocol{
		notificationHandlers: make(map[string]func(*transport.BaseJSONRPCNotification) error),
		responseHandlers:     make(map[transport.RequestId]chan *responseEnvelope),
		progressHandlers:     make(map[transport.RequestId]ProgressCallback),
	}

	p.SetNotificationHandler("notifications/progress", p.handleProgressNotification)

	return p
}

// Connect attaches to the given transport, starts it, and begins dispatching
// incoming messages.
func (p *Protocol) Connect(ctx context.Context, tr transport.Transport) error {
	p.transport = tr

	tr.SetCloseHandler(func() {
		p.handleClose()
	})

	tr.SetErrorHandler(func(err error) {
		p.handleError(err)
	})

	tr.SetMessageHandler(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		switch message.Type {
		case transport.BaseMessageTypeJSONRPCRequestType:
			p.rejectRequest(ctx, message.JsonRpcRequest)
		case transport.BaseMessageTypeJSONRPCNotificationType:
			p.handleNotification(message.JsonRpcNotification)
		case transport.BaseMessageTypeJSONRPCResponseType:
			p.handleResponse(message.JsonRpcResponse, nil)
		case transport.BaseMessageTypeJSONRPCErrorType:
			p.handleResponse(nil, message.JsonRpcError)
		}
	})

	return tr.Start(ctx)
}

// Close closes the underlying transport. Pending requests fail with a
// connection-closed error.
func (p *Protocol) Close() error {
	if p.transport != nil {
		return p.transport.Close()
	}
	return nil
}

// Request sends a request and waits for the matching response. The wait ends
// on response, context cancellation, or timeout; on the latter two a
// cancellation notification is sent so the server can abandon the work.
func (p *Protocol) Request(ctx context.Context, method string, params any, opts *RequestOptions) (json.RawMessage, error) {
	if p.transport == nil {
		return nil, errors.New("not connected")
	}

	if opts == nil {
		opts = &RequestOptions{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	p.mu.Lock()
	id := p.requestMessageID
	p.requestMessageID++
	ch := make(chan *responseEnvelope, 1)
	p.responseHandlers[id] = ch
	if opts.OnProgress != nil {
		p.progressHandlers[id] = opts.OnProgress
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.responseHandlers, id)
		delete(p.progressHandlers, id)
		p.mu.Unlock()
	}()

	marshalledParams, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal params")
	}

	request := &transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalledParams,
		Id:      id,
	}

	if err := p.transport.Send(ctx, transport.NewBaseMessageRequest(request)); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	select {
	case envelope := <-ch:
		if envelope.err != nil {
			return nil, envelope.err
		}
		return envelope.response, nil
	case <-ctx.Done():
		p.sendCancelNotification(id, ctx.Err().Error())
		return nil, ctx.Err()
	case <-time.After(timeout):
		p.sendCancelNotification(id, "request timeout")
		return nil, errors.Errorf("request timeout after %v: %s", timeout, method)
	}
}

// Notification emits a one-way message that expects no response.
func (p *Protocol) Notification(ctx context.Context, method string, params any) error {
	if p.transport == nil {
		return errors.New("not connected")
	}

	marshalled, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification params")
	}

	notification := &transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalled,
	}

	return p.transport.Send(ctx, transport.NewBaseMessageNotification(notification))
}

// SetNotificationHandler registers a handler for the given method.
func (p *Protocol) SetNotificationHandler(method string, handler func(notification *transport.BaseJSONRPCNotification) error) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Channels are buffered and never closed, so a late response racing this
	// shutdown cannot panic the dispatcher. The send is non-blocking: if a
	// response is already buffered but the requester left via the timeout or
	// cancel arm, a plain send would hold p.mu forever.
	for id, ch := range p.responseHandlers {
		select {
		case ch <- &responseEnvelope{err: errors.New("connection closed")}:
		default:
		}
		delete(p.responseHandlers, id)
	}
	p.progressHandlers = make(map[transport.RequestId]ProgressCallback)

	if p.OnClose != nil {
		p.OnClose()
	}
}

func (p *Protocol) handleError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) handleNotification(notification *transport.BaseJSONRPCNotification) {
	logger.KV(xlog.DEBUG, "method", notification.Method)

	p.mu.RLock()
	handler := p.notificationHandlers[notification.Method]
	p.mu.RUnlock()

	if handler == nil {
		return
	}

	go func() {
		if err := handler(notification); err != nil {
			p.handleError(errors.Wrap(err, "notification handler error"))
		}
	}()
}

// rejectRequest answers server-to-client requests with method-not-found.
// Capabilities like sampling are not offered by this client.
func (p *Protocol) rejectRequest(ctx context.Context, request *transport.BaseJSONRPCRequest) {
	logger.KV(xlog.DEBUG,
		"reason", "unsupported_server_request",
		"method", request.Method,
		"id", request.Id,
	)
	response := &transport.BaseJSONRPCError{
		Jsonrpc: "2.0",
		Id:      request.Id,
		Error: transport.BaseJSONRPCErrorInner{
			Code:    -32601,
			Message: "method not found: " + request.Method,
		},
	}
	if err := p.transport.Send(ctx, transport.NewBaseMessageError(response)); err != nil {
		p.handleError(errors.Wrap(err, "failed to reject request"))
	}
}

func (p *Protocol) handleProgressNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		Progress      int64               `json:"progress"`
		Total         int64               `json:"total"`
		ProgressToken transport.RequestId `json:"progressToken"`
	}
	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal progress params")
	}

	p.mu.RLock()
	handler := p.progressHandlers[params.ProgressToken]
	p.mu.RUnlock()

	if handler != nil {
		handler(Progress{
			Progress: params.Progress,
			Total:    params.Total,
		})
	}
	return nil
}

func (p *Protocol) handleResponse(response *transport.BaseJSONRPCResponse, errResp *transport.BaseJSONRPCError) {
	var id transport.RequestId
	var result json.RawMessage
	var err error

	if errResp != nil {
		id = errResp.Id
		err = errors.Errorf("RPC error %d: %s", errResp.Error.Code, errResp.Error.Message)
	} else {
		id = response.Id
		result = response.Result
	}

	p.mu.RLock()
	ch := p.responseHandlers[id]
	p.mu.RUnlock()

	if ch != nil {
		// Non-blocking: a duplicate reply for an id whose buffer is already
		// full is dropped rather than wedging the transport's read loop.
		select {
		case ch <- &responseEnvelope{
			response: result,
			err:      err,
		}:
		default:
		}
	}
}

func (p *Protocol) sendCancelNotification(requestID transport.RequestId, reason string) {
	params := map[string]any{
		"requestId": requestID,
		"reason":    reason,
	}
	// Best effort; the request already failed from the caller's view.
	if err := p.Notification(context.Background(), "notifications/cancelled", params); err != nil {
		p.handleError(errors.Wrap(err, "failed to send cancel notification"))
	}
}
