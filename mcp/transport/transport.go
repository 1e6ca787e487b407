// Package transport defines the byte-level channel abstraction for the MCP
// client and the JSON-RPC message envelopes carried over it.
package transport

import (
	"context"
)

// RequestId is a unique identifier for a request within one connection.
type RequestId int64

// JsonRpcBody is the result payload of a request or response.
type JsonRpcBody any

// Transport is implemented by the stdio and streaming-HTTP bindings.
// Implementations must preserve per-connection request/response pairing,
// but give no cross-request ordering guarantee.
type Transport interface {
	// Start begins processing messages, possibly spawning OS resources.
	Start(ctx context.Context) error

	// Send transmits a message over the channel. The context bounds the
	// attempt; cancellation must abort the in-flight exchange.
	Send(ctx context.Context, message *BaseJsonRpcMessage) error

	// Close releases the channel and any OS resources it holds.
	// It must be safe to call more than once.
	Close() error

	// SetCloseHandler registers a callback for when the connection is closed.
	SetCloseHandler(handler func())

	// SetErrorHandler registers a callback for transport-level errors that
	// do not belong to a particular request.
	SetErrorHandler(handler func(err error))

	// SetMessageHandler registers the callback invoked for every incoming
	// message.
	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))
}
