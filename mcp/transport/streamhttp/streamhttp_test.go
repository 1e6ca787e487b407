package streamhttp_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/mcpbridge/mcp/transport/streamhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingRequest(id transport.RequestId) *transport.BaseJsonRpcMessage {
	return transport.NewBaseMessageRequest(&transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  "ping",
		Params:  json.RawMessage(`{}`),
		Id:      id,
	})
}

func Test_Send_HeadersAndDispatch(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		msg, err := transport.ParseMessage(body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		id := strconv.FormatInt(int64(msg.JsonRpcRequest.Id), 10)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + id + `,"result":{}}`))
	}))
	defer srv.Close()

	tr := streamhttp.New(srv.URL, "tok-123")
	require.NoError(t, tr.Start(context.Background()))

	var received *transport.BaseJsonRpcMessage
	tr.SetMessageHandler(func(_ context.Context, msg *transport.BaseJsonRpcMessage) {
		received = msg
	})

	err := tr.Send(context.Background(), pingRequest(11))
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	require.NotNil(t, received)
	assert.Equal(t, transport.BaseMessageTypeJSONRPCResponseType, received.Type)
	assert.Equal(t, transport.RequestId(11), received.MessageID())
}

func Test_Send_NoAuthHeaderWithoutToken(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := streamhttp.New(srv.URL, "")
	err := tr.Send(context.Background(), pingRequest(1))
	require.NoError(t, err)
	assert.False(t, sawAuth)
}

func Test_Send_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := streamhttp.New(srv.URL, "expired")
	err := tr.Send(context.Background(), pingRequest(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func Test_Send_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel r.Context().
		_, _ = io.ReadAll(r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr := streamhttp.New(srv.URL, "tok")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := tr.Send(ctx, pingRequest(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_Send_EmptyBodyIsNotification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := streamhttp.New(srv.URL, "tok")
	dispatched := false
	tr.SetMessageHandler(func(context.Context, *transport.BaseJsonRpcMessage) {
		dispatched = true
	})

	msg := transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "notifications/initialized",
	})
	require.NoError(t, tr.Send(context.Background(), msg))
	assert.False(t, dispatched)
}

func Test_Close_InvokesHandler(t *testing.T) {
	tr := streamhttp.New("http://127.0.0.1:0", "tok").
		WithHTTPClient(&http.Client{Timeout: time.Second})

	closed := false
	tr.SetCloseHandler(func() {
		closed = true
	})
	require.NoError(t, tr.Close())
	assert.True(t, closed)
}
