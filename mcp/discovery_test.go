package mcp_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/mocks/mockmcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func Test_Discover_Pagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mockmcp.NewMockIClient(ctrl)

	client.EXPECT().ListTools(gomock.Any(), "").Return(&mcp.ListToolsResponse{
		Tools:      []mcp.Tool{{Name: "create_issue"}, {Name: "list_issues"}},
		NextCursor: "page-2",
	}, nil)
	client.EXPECT().ListTools(gomock.Any(), "page-2").Return(&mcp.ListToolsResponse{
		Tools: []mcp.Tool{{Name: "close_issue"}},
	}, nil)

	tools := mcp.Discover(context.Background(), client)
	require.Len(t, tools, 3)
	assert.Equal(t, "create_issue", tools[0].Name)
	assert.Equal(t, "close_issue", tools[2].Name)
}

func Test_Discover_FiltersUnusable(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mockmcp.NewMockIClient(ctrl)

	client.EXPECT().ListTools(gomock.Any(), "").Return(&mcp.ListToolsResponse{
		Tools: []mcp.Tool{
			{Name: "search"},
			{Name: ""},
			{Name: "search"}, // duplicate
			{Name: "fetch"},
		},
	}, nil)

	tools := mcp.Discover(context.Background(), client)
	require.Len(t, tools, 2)
	assert.Equal(t, "search", tools[0].Name)
	assert.Equal(t, "fetch", tools[1].Name)
}

func Test_Discover_TransportFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mockmcp.NewMockIClient(ctrl)

	client.EXPECT().ListTools(gomock.Any(), "").Return(nil, errors.New("connection reset"))
	assert.Empty(t, mcp.Discover(context.Background(), client))
}

func Test_Discover_FailureMidPagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mockmcp.NewMockIClient(ctrl)

	client.EXPECT().ListTools(gomock.Any(), "").Return(&mcp.ListToolsResponse{
		Tools:      []mcp.Tool{{Name: "search"}},
		NextCursor: "page-2",
	}, nil)
	client.EXPECT().ListTools(gomock.Any(), "page-2").Return(nil, errors.New("timeout"))

	assert.Empty(t, mcp.Discover(context.Background(), client))
}
