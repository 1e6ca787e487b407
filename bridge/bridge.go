// Package bridge adapts tools discovered on remote MCP servers to the
// tools.ITool surface consumed by agents. Arguments are validated against
// the translated schema before any network call; remote results and errors
// are normalized into plain text and a small error taxonomy.
package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/schema"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/xlog"
	gcschema "github.com/google/jsonschema-go/jsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "bridge")

// RemoteTool exposes one remote tool as tools.ITool. It is safe for
// concurrent use.
type RemoteTool struct {
	client      mcp.IClient
	name        string
	description string
	translation *schema.Translation
	resolved    *gcschema.Resolved
	callbacks   []tools.Callback
}

// Option customizes a RemoteTool.
type Option func(*RemoteTool)

// WithCallbacks registers invocation observers.
func WithCallbacks(cbs ...tools.Callback) Option {
	return func(rt *RemoteTool) {
		rt.callbacks = append(rt.callbacks, cbs...)
	}
}

// New builds a RemoteTool from a discovered descriptor and its schema
// translation. The translated schema is compiled once here so every Call
// validates without re-resolving.
func New(client mcp.IClient, tool mcp.Tool, translation *schema.Translation, opts ...Option) (*RemoteTool, error) {
	if tool.Name == "" {
		return nil, errors.New("tool name is required")
	}

	rt := &RemoteTool{
		client:      client,
		name:        tool.Name,
		description: tool.Description,
		translation: translation,
	}
	for _, opt := range opts {
		opt(rt)
	}

	if translation != nil && translation.Usable() {
		var sc gcschema.Schema
		if err := json.Unmarshal(translation.JSON(), &sc); err != nil {
			return nil, errors.Wrapf(err, "tool %q: failed to load translated schema", tool.Name)
		}
		resolved, err := sc.Resolve(nil)
		if err != nil {
			return nil, errors.Wrapf(err, "tool %q: failed to resolve translated schema", tool.Name)
		}
		rt.resolved = resolved
	}
	return rt, nil
}

var _ tools.ITool = (*RemoteTool)(nil)

// Name returns the remote tool's name.
func (rt *RemoteTool) Name() string {
	return rt.name
}

// Description returns the remote tool's description.
func (rt *RemoteTool) Description() string {
	return rt.description
}

// Parameters returns the translated parameter schema, or the permissive
// fallback when the server declared no usable schema.
func (rt *RemoteTool) Parameters() any {
	if rt.translation == nil {
		return schema.PermissiveSchema()
	}
	return rt.translation.Parameters()
}

// Call validates the JSON input against the translated schema and invokes
// the remote tool. Validation failures never reach the network.
func (rt *RemoteTool) Call(ctx context.Context, input string) (string, error) {
	for _, cb := range rt.callbacks {
		cb.OnToolStart(ctx, rt, input)
	}

	out, err := rt.call(ctx, input)
	if err != nil {
		for _, cb := range rt.callbacks {
			cb.OnToolError(ctx, rt, input, err)
		}
		metricskey.StatsToolCallsFailed.IncrCounter(1, rt.name, string(ClassOf(err)))
		return "", err
	}

	for _, cb := range rt.callbacks {
		cb.OnToolEnd(ctx, rt, input, out)
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, rt.name)
	return out, nil
}

func (rt *RemoteTool) call(ctx context.Context, input string) (string, error) {
	args, err := rt.parseArguments(input)
	if err != nil {
		return "", err
	}

	started := time.Now()
	result, err := rt.client.CallTool(ctx, rt.name, args)
	metricskey.PerfToolCall.MeasureSince(started, rt.name)
	if err != nil {
		return "", classify(rt.name, err.Error(), errors.WithMessagef(err, "tool %q failed", rt.name))
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", rt.name,
		"elapsed", time.Since(started).String(),
	)

	if result != nil && result.IsError {
		msg := firstText(result)
		if msg == "" {
			msg = "remote tool reported an error"
		}
		return "", classify(rt.name, msg, errors.Errorf("tool %q failed: %s", rt.name, msg))
	}

	return Normalize(result), nil
}

// parseArguments decodes the input JSON and validates it against the
// compiled schema. Empty input means no arguments.
func (rt *RemoteTool) parseArguments(input string) (map[string]any, error) {
	args := map[string]any{}
	if input != "" {
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return nil, &Error{
				Class:   ClassValidation,
				Message: "tool " + rt.name + ": arguments are not a JSON object",
				Cause:   err,
			}
		}
	}

	if rt.resolved != nil {
		if err := rt.resolved.Validate(args); err != nil {
			return nil, &Error{
				Class:   ClassValidation,
				Message: "tool " + rt.name + ": invalid arguments: " + err.Error(),
				Cause:   err,
			}
		}
	}
	return args, nil
}
