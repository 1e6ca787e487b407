package bridge

import (
	"strings"

	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
)

// resultPlaceholder is returned when the remote result cannot be rendered.
// Normalization never fails the call.
const resultPlaceholder = "The tool completed, but the result could not be formatted."

// Normalize flattens a remote call result into the single string an agent
// consumes. Bare-string results pass through as-is; objects without a
// content list are rendered as indented JSON; text blocks are joined by
// newlines and non-text blocks rendered as indented JSON of their raw form.
func Normalize(result *mcp.CallToolResult) string {
	if result == nil {
		return resultPlaceholder
	}
	if result.Text != "" {
		return result.Text
	}
	if len(result.Content) == 0 {
		if len(result.Raw) > 0 {
			return llmutils.JSONIndent(string(result.Raw))
		}
		return resultPlaceholder
	}

	parts := make([]string, 0, len(result.Content))
	for _, block := range result.Content {
		switch {
		case block.Type == mcp.ContentTypeText || block.Type == "":
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case len(block.Raw) > 0:
			parts = append(parts, llmutils.JSONIndent(string(block.Raw)))
		}
	}
	if len(parts) == 0 {
		return resultPlaceholder
	}
	return strings.Join(parts, "\n")
}

// firstText returns the first text block, used for classifying IsError
// results.
func firstText(result *mcp.CallToolResult) string {
	if result.Text != "" {
		return result.Text
	}
	for _, block := range result.Content {
		if block.Type == mcp.ContentTypeText || block.Type == "" {
			if block.Text != "" {
				return block.Text
			}
		}
	}
	return ""
}
