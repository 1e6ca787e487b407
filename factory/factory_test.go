package factory_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/factory"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/mocks/mockmcp"
	"github.com/effective-security/mcpbridge/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testConfig() *factory.Config {
	return &factory.Config{
		Servers: []*pool.Descriptor{
			{
				ID:       "tracker",
				Name:     "issue-tracker",
				Endpoint: "https://tracker.example.com/mcp",
				Enabled:  true,
			},
			{
				ID:       "legacy",
				Name:     "legacy-crm",
				Endpoint: "https://crm.example.com/mcp",
				Enabled:  false,
			},
		},
	}
}

func Test_LoadConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "servers.yaml")
	err := os.WriteFile(file, []byte(`
servers:
  - id: tracker
    name: issue-tracker
    endpoint: https://tracker.example.com/mcp
    enabled: true
`), 0644)
	require.NoError(t, err)

	cfg, err := factory.LoadConfig(file)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "issue-tracker", cfg.Servers[0].Name)
	assert.NotNil(t, cfg.Lookup("issue-tracker"))
	assert.Nil(t, cfg.Lookup("nope"))

	empty, err := factory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, empty.Servers)
}

func Test_Config_Validate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.Servers = append(cfg.Servers, &pool.Descriptor{
		ID:       "dup",
		Name:     "issue-tracker",
		Endpoint: "https://other.example.com/mcp",
	})
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate server name")

	cfg = &factory.Config{Servers: []*pool.Descriptor{{Name: "no-endpoint"}}}
	assert.Error(t, cfg.Validate())
}

func Test_ToolsForServer_UnknownOrDisabled(t *testing.T) {
	ctx := context.Background()
	var dials atomic.Int32
	p := pool.New(pool.WithDialer(func(ctx context.Context, desc *pool.Descriptor, credential string, opts ...mcp.ClientOption) (mcp.IClient, error) {
		dials.Add(1)
		return nil, errors.New("should not dial")
	}))
	t.Cleanup(func() { p.Shutdown(ctx) })

	f := factory.New(testConfig(), factory.WithPool(p))

	assert.Empty(t, f.ToolsForServer(ctx, "no-such-server", "alice", "s1"))
	assert.Empty(t, f.ToolsForServer(ctx, "legacy-crm", "alice", "s1"))
	assert.Equal(t, int32(0), dials.Load())
}

func Test_ToolsForServer_ConnectFailure(t *testing.T) {
	ctx := context.Background()
	p := pool.New(pool.WithDialer(func(ctx context.Context, desc *pool.Descriptor, credential string, opts ...mcp.ClientOption) (mcp.IClient, error) {
		return nil, errors.New("connection refused")
	}))
	t.Cleanup(func() { p.Shutdown(ctx) })

	f := factory.New(testConfig(), factory.WithPool(p))
	assert.Empty(t, f.ToolsForServer(ctx, "issue-tracker", "alice", ""))
}

func Test_ToolsForServer_DiscoveryFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	client := mockmcp.NewMockIClient(ctrl)
	client.EXPECT().
		ListTools(gomock.Any(), "").
		Return(nil, errors.New("500 internal error"))
	client.EXPECT().Close().Return(nil).AnyTimes()

	p := pool.New(pool.WithDialer(func(ctx context.Context, desc *pool.Descriptor, credential string, opts ...mcp.ClientOption) (mcp.IClient, error) {
		return client, nil
	}))
	t.Cleanup(func() { p.Shutdown(ctx) })

	f := factory.New(testConfig(), factory.WithPool(p))
	assert.Empty(t, f.ToolsForServer(ctx, "issue-tracker", "alice", "s1"))
}

func Test_ToolsForServer_Assembly(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	client := mockmcp.NewMockIClient(ctrl)
	client.EXPECT().
		ListTools(gomock.Any(), "").
		Return(&mcp.ListToolsResponse{
			Tools: []mcp.Tool{
				{
					Name:        "create_issue",
					Description: "Create a tracker issue.",
					InputSchema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"title": map[string]any{"type": "string"},
						},
						"required": []any{"title"},
					},
				},
				{Name: ""}, // dropped by discovery
				{Name: "list_issues"},
			},
		}, nil)
	client.EXPECT().Close().Return(nil).AnyTimes()

	var gotCredential string
	p := pool.New(pool.WithDialer(func(ctx context.Context, desc *pool.Descriptor, credential string, opts ...mcp.ClientOption) (mcp.IClient, error) {
		gotCredential = credential
		return client, nil
	}))
	t.Cleanup(func() { p.Shutdown(ctx) })

	f := factory.New(testConfig(),
		factory.WithPool(p),
		factory.WithCredentialProvider(factory.StaticCredentials{"tracker": "tok-123"}),
	)

	list := f.ToolsForServer(ctx, "issue-tracker", "alice", "s1")
	require.Len(t, list, 2)
	assert.Equal(t, "tok-123", gotCredential)
	assert.Equal(t, "create_issue", list[0].Name())
	assert.Equal(t, "list_issues", list[1].Name())
	assert.NotNil(t, list[1].Parameters())
}

func Test_ToolsForServer_CredentialFailure(t *testing.T) {
	ctx := context.Background()
	var dials atomic.Int32
	p := pool.New(pool.WithDialer(func(ctx context.Context, desc *pool.Descriptor, credential string, opts ...mcp.ClientOption) (mcp.IClient, error) {
		dials.Add(1)
		return nil, errors.New("should not dial")
	}))
	t.Cleanup(func() { p.Shutdown(ctx) })

	f := factory.New(testConfig(),
		factory.WithPool(p),
		factory.WithCredentialProvider(failingCredentials{}),
	)
	assert.Empty(t, f.ToolsForServer(ctx, "issue-tracker", "alice", "s1"))
	assert.Equal(t, int32(0), dials.Load())
}

type failingCredentials struct{}

func (failingCredentials) AccessToken(context.Context, string, string) (string, error) {
	return "", errors.New("vault unavailable")
}
