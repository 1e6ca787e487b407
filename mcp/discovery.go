package mcp

import (
	"context"

	"github.com/effective-security/xlog"
)

// Discover pages through the connected server's tool catalog and returns the
// usable descriptors in server order. Transport failures degrade to an empty
// list rather than an error, so one broken integration never blocks the
// caller's remaining toolset.
//
// Descriptors without a name, and descriptors whose name repeats an earlier
// one in the same batch, are dropped; downstream consumers rely on names
// being unique per server.
func Discover(ctx context.Context, client IClient) []Tool {
	var tools []Tool
	seen := map[string]bool{}

	cursor := ""
	for {
		resp, err := client.ListTools(ctx, cursor)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "list_tools_failed",
				"err", err.Error(),
			)
			return nil
		}

		for _, tool := range resp.Tools {
			if tool.Name == "" {
				logger.ContextKV(ctx, xlog.WARNING, "reason", "unnamed_tool_skipped")
				continue
			}
			if seen[tool.Name] {
				logger.ContextKV(ctx, xlog.WARNING,
					"reason", "duplicate_tool_skipped",
					"tool", tool.Name,
				)
				continue
			}
			seen[tool.Name] = true
			tools = append(tools, tool)
		}

		if resp.NextCursor == "" {
			return tools
		}
		cursor = resp.NextCursor
	}
}
