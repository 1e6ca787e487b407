package bridge

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Normalize(t *testing.T) {
	assert.Equal(t, resultPlaceholder, Normalize(nil))
	assert.Equal(t, resultPlaceholder, Normalize(&mcp.CallToolResult{}))

	res := &mcp.CallToolResult{
		Content: []mcp.Content{
			{Type: mcp.ContentTypeText, Text: "line one"},
			{Type: mcp.ContentTypeText, Text: "line two"},
		},
	}
	assert.Equal(t, "line one\nline two", Normalize(res))
}

func Test_Normalize_BareStringResult(t *testing.T) {
	var res mcp.CallToolResult
	err := json.Unmarshal([]byte(`"42 results"`), &res)
	require.NoError(t, err)

	assert.Equal(t, "42 results", Normalize(&res))
}

func Test_Normalize_GenericObjectResult(t *testing.T) {
	var res mcp.CallToolResult
	err := json.Unmarshal([]byte(`{"status":"ok","count":3}`), &res)
	require.NoError(t, err)

	out := Normalize(&res)
	assert.JSONEq(t, `{"status":"ok","count":3}`, out)
	assert.Contains(t, out, "\n", "expected indented JSON")
}

func Test_Normalize_NonTextBlock(t *testing.T) {
	var res mcp.CallToolResult
	err := json.Unmarshal([]byte(`{
		"content": [
			{"type": "text", "text": "summary"},
			{"type": "resource", "resource": {"uri": "file:///tmp/report.txt"}}
		]
	}`), &res)
	require.NoError(t, err)

	out := Normalize(&res)
	assert.Contains(t, out, "summary")
	assert.Contains(t, out, "file:///tmp/report.txt")
}

func Test_Classify(t *testing.T) {
	tcases := []struct {
		message string
		exp     Class
	}{
		{"request failed: 401 Unauthorized", ClassAuthentication},
		{"server error: permission denied", ClassAuthentication},
		{"tool not found", ClassNotFound},
		{"unknown tool: frobnicate", ClassNotFound},
		{"429 Too Many Requests", ClassRateLimited},
		{"quota exceeded for project", ClassRateLimited},
		{"jsonrpc error -32602: invalid params", ClassValidation},
		{"connection reset by peer", ClassGeneric},
	}
	for _, tc := range tcases {
		err := classify("mytool", tc.message, errors.New(tc.message))
		assert.Equal(t, tc.exp, ClassOf(err), tc.message)
	}
}

func Test_ClassOf_Wrapped(t *testing.T) {
	inner := &Error{Class: ClassNotFound, Message: "tool missing"}
	wrapped := errors.WithMessage(inner, "outer context")
	assert.Equal(t, ClassNotFound, ClassOf(wrapped))
	assert.Equal(t, ClassGeneric, ClassOf(errors.New("plain")))
	assert.Equal(t, Class(""), ClassOf(nil))
}
