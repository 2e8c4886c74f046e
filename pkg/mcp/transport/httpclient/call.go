package client

import (
	"context"
	"encoding/json"
	"fmt"

	jsonschema "github.com/google/jsonschema-go/jsonschema"

	mcp "github.com/mutablelogic/go-mcp"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
)

////////////////////////////////////////////////////////////////////////////
// TOOLS

// ListTools fetches and caches the server's tool list, so CallTool can
// validate arguments client-side before round-tripping to the server
// (spec.md §4.6).
func (c *Client) ListTools(ctx context.Context) (*schema.ListToolsResult, error) {
	raw, err := c.peer.SendRequest(ctx, schema.MethodListTools, &schema.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	var result schema.ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}

	tools := make(map[string]*schema.Tool, len(result.Tools))
	for _, t := range result.Tools {
		tools[t.Name] = t
	}
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return &result, nil
}

// CallTool validates name/args against the cached tool schema (fetching the
// tool list first if not yet cached) and invokes tools/call.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*schema.CallToolResult, error) {
	if err := c.validateToolCall(ctx, name, args); err != nil {
		return nil, err
	}

	raw, err := c.peer.SendRequest(ctx, schema.MethodCallTool, &schema.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}
	var result schema.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) validateToolCall(ctx context.Context, name string, args json.RawMessage) error {
	c.mu.Lock()
	tools := c.tools
	c.mu.Unlock()
	if tools == nil {
		if _, err := c.ListTools(ctx); err != nil {
			return fmt.Errorf("fetch tools: %w", err)
		}
		c.mu.Lock()
		tools = c.tools
		c.mu.Unlock()
	}

	tool, ok := tools[name]
	if !ok {
		return mcp.ErrNotFound.Withf("tool %q", name)
	}
	if tool.InputSchema == nil {
		return nil
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(tool.InputSchema, &s); err != nil {
		return mcp.ErrInternal.Withf("invalid input schema for tool %q: %v", name, err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return mcp.ErrInternal.Withf("invalid input schema for tool %q: %v", name, err)
	}

	var argsValue any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsValue); err != nil {
			return mcp.ErrInvalidParams.Withf("invalid arguments JSON: %v", err)
		}
	} else {
		argsValue = map[string]any{}
	}
	if err := resolved.Validate(argsValue); err != nil {
		return mcp.ErrInvalidParams.Withf("argument validation failed: %v", err)
	}
	return nil
}
