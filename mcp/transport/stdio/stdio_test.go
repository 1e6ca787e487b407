package stdio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/mcpbridge/mcp/transport/stdio"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EchoRoundTrip(t *testing.T) {
	// cat echoes each framed line back, exercising framing and the read
	// loop without a real capability server.
	tr := stdio.New("cat")

	received := make(chan *transport.BaseJsonRpcMessage, 1)
	tr.SetMessageHandler(func(_ context.Context, msg *transport.BaseJsonRpcMessage) {
		received <- msg
	})

	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))
	t.Cleanup(func() { _ = tr.Close() })
	assert.NotZero(t, tr.Pid())

	msg := transport.NewBaseMessageRequest(&transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  "tools/list",
		Params:  json.RawMessage(`{"cursor":""}`),
		Id:      42,
	})
	require.NoError(t, tr.Send(ctx, msg))

	select {
	case echoed := <-received:
		require.Equal(t, transport.BaseMessageTypeJSONRPCRequestType, echoed.Type)
		assert.Equal(t, "tools/list", echoed.JsonRpcRequest.Method)
		assert.Equal(t, transport.RequestId(42), echoed.JsonRpcRequest.Id)
	case <-time.After(5 * time.Second):
		t.Fatal("no message echoed from subprocess")
	}
}

func Test_Start_LogsRedactedEnv(t *testing.T) {
	var buf bytes.Buffer
	xlog.SetFormatter(xlog.NewStringFormatter(&buf))
	xlog.SetGlobalLogLevel(xlog.DEBUG)
	t.Cleanup(func() {
		xlog.SetFormatter(xlog.NewStringFormatter(io.Discard))
	})

	tr := stdio.New("cat").WithCredential("", "sk-spawn-secret")
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })

	out := buf.String()
	assert.NotContains(t, out, "sk-spawn-secret")
	assert.Contains(t, out, "MCP_ACCESS_TOKEN=[REDACTED]")
}

func Test_CredentialInjectedIntoChildEnv(t *testing.T) {
	tr := stdio.New("sh", "-c",
		`printf '{"jsonrpc":"2.0","id":1,"result":{"token":"%s"}}\n' "$MCP_ACCESS_TOKEN"`).
		WithCredential("", "sk-test-credential")

	received := make(chan *transport.BaseJsonRpcMessage, 1)
	tr.SetMessageHandler(func(_ context.Context, msg *transport.BaseJsonRpcMessage) {
		received <- msg
	})

	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })

	select {
	case msg := <-received:
		require.Equal(t, transport.BaseMessageTypeJSONRPCResponseType, msg.Type)
		assert.Contains(t, string(msg.JsonRpcResponse.Result), "sk-test-credential")
	case <-time.After(5 * time.Second):
		t.Fatal("child did not report its environment")
	}
}

func Test_Close_Idempotent(t *testing.T) {
	tr := stdio.New("cat")
	require.NoError(t, tr.Start(context.Background()))

	closes := 0
	tr.SetCloseHandler(func() {
		closes++
	})

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, closes)

	err := tr.Send(context.Background(), transport.NewBaseMessageNotification(
		&transport.BaseJSONRPCNotification{Jsonrpc: "2.0", Method: "ping"}))
	require.Error(t, err)
}

func Test_Start_CommandNotFound(t *testing.T) {
	tr := stdio.New("/no/such/binary")
	err := tr.Start(context.Background())
	require.Error(t, err)
}

func Test_InvalidFrameSurfacesError(t *testing.T) {
	tr := stdio.New("sh", "-c", `printf 'not json at all\n'`)

	errs := make(chan error, 1)
	tr.SetErrorHandler(func(err error) {
		errs <- err
	})

	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "parse")
	case <-time.After(5 * time.Second):
		t.Fatal("invalid frame not reported")
	}
}
