package schema

import "encoding/json"

////////////////////////////////////////////////////////////////////////////
// TYPES

// ToolAnnotations are optional client-facing hints about tool behavior.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint,omitempty"`
	DestructiveHint bool   `json:"destructiveHint,omitempty"`
	IdempotentHint  bool   `json:"idempotentHint,omitempty"`
	OpenWorldHint   bool   `json:"openWorldHint,omitempty"`
}

// Icon is a client-displayable icon reference for a tool, prompt or resource.
type Icon struct {
	Src      string `json:"src"`
	MimeType string `json:"mimeType,omitempty"`
	Sizes    string `json:"sizes,omitempty"`
}

// Tool is the attribute record from spec.md §3: the schemas are opaque
// objects the client uses to construct arguments; the runtime itself does
// not validate against them (validation against inputSchema, when it
// happens, is a collaborator concern upstream of the handler — see
// pkg/tool.Toolkit.Run in this repository, which does perform it before
// invoking the registered tool).
type Tool struct {
	Name         string           `json:"name"`
	Title        string           `json:"title,omitempty"`
	Description  string           `json:"description,omitempty"`
	InputSchema  json.RawMessage  `json:"inputSchema"`
	OutputSchema json.RawMessage  `json:"outputSchema,omitempty"`
	Annotations  *ToolAnnotations `json:"annotations,omitempty"`
	Icons        []Icon           `json:"icons,omitempty"`
	Meta         map[string]any   `json:"_meta,omitempty"`
}

// CallToolResult is the result of tools/call. isError=true means the tool
// itself decided to report a domain error in content form (spec.md §7
// "user-visible behavior") rather than failing the JSON-RPC call.
type CallToolResult struct {
	Content           []*Content     `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

func NewCallToolResult(content ...*Content) *CallToolResult {
	return &CallToolResult{Content: content}
}

func NewCallToolError(content ...*Content) *CallToolResult {
	return &CallToolResult{Content: content, IsError: true}
}

////////////////////////////////////////////////////////////////////////////
// PARAMS

type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type ListToolsResult struct {
	Tools      []*Tool `json:"tools"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Meta      *Meta           `json:"_meta,omitempty"`
}
