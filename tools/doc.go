// Package tools defines the Tool interface consumed by LLM agents, including
// parameter schemas and invocation callbacks. Remote tools discovered from
// MCP servers and native tools share this surface.
package tools
