package handler

import (
	"context"
	"encoding/json"

	mcp "github.com/mutablelogic/go-mcp"
	peer "github.com/mutablelogic/go-mcp/pkg/mcp/peer"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
	tool "github.com/mutablelogic/go-mcp/pkg/tool"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// ToolkitAdapter implements ToolLister and ToolCaller over a *tool.Toolkit
// (the collaborator interface spec.md §4.3 calls "a tuple of (attribute
// record, invoker)"): tool.Tool.Schema() fills the Tool.inputSchema field
// and tool.Toolkit.Run is the invoker, already validating arguments against
// that schema before the tool body runs.
type ToolkitAdapter struct {
	Toolkit *tool.Toolkit
}

var (
	_ ToolLister = (*ToolkitAdapter)(nil)
	_ ToolCaller = (*ToolkitAdapter)(nil)
)

func NewToolkitAdapter(tk *tool.Toolkit) *ToolkitAdapter {
	return &ToolkitAdapter{Toolkit: tk}
}

////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (a *ToolkitAdapter) ListTools(_ context.Context, _ *peer.RequestContext, _ *schema.ListToolsParams) (*schema.ListToolsResult, error) {
	tools := a.Toolkit.Tools()
	result := &schema.ListToolsResult{Tools: make([]*schema.Tool, 0, len(tools))}
	for _, t := range tools {
		s, err := t.Schema()
		if err != nil {
			return nil, mcp.ErrInternal.Withf("tool %q: schema generation failed: %v", t.Name(), err)
		}
		var inputSchema json.RawMessage
		if s != nil {
			data, err := json.Marshal(s)
			if err != nil {
				return nil, mcp.ErrInternal.Withf("tool %q: marshal schema: %v", t.Name(), err)
			}
			inputSchema = data
		}
		result.Tools = append(result.Tools, &schema.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: inputSchema,
		})
	}
	return result, nil
}

// CallTool invokes the named tool. A failure to find/validate/run the tool
// is returned as a CallToolResult with isError=true (spec.md §7
// "user-visible behavior": the tool call succeeded as a JSON-RPC method,
// but reports a domain error in content form) rather than as a JSON-RPC
// error — method-level failure is reserved for malformed requests (e.g. a
// missing "name" field), which the caller never reaches this deep.
func (a *ToolkitAdapter) CallTool(ctx context.Context, _ *peer.RequestContext, params *schema.CallToolParams) (*schema.CallToolResult, error) {
	if params.Name == "" {
		return nil, mcp.ErrInvalidParams.With("tool name is required")
	}

	result, err := a.Toolkit.Run(ctx, params.Name, params.Arguments)
	if err != nil {
		return schema.NewCallToolError(schema.NewTextContent(err.Error())), nil
	}

	switch v := result.(type) {
	case *schema.CallToolResult:
		return v, nil
	case json.RawMessage:
		return &schema.CallToolResult{StructuredContent: v, Content: []*schema.Content{schema.NewTextContent(string(v))}}, nil
	default:
		data, err := json.Marshal(result)
		if err != nil {
			return schema.NewCallToolError(schema.NewTextContent(err.Error())), nil
		}
		return &schema.CallToolResult{StructuredContent: data, Content: []*schema.Content{schema.NewTextContent(string(data))}}, nil
	}
}
