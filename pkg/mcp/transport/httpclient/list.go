package client

import (
	"context"
	"encoding/json"

	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
)

////////////////////////////////////////////////////////////////////////////
// RESOURCES

func (c *Client) ListResources(ctx context.Context, cursor string) (*schema.ListResourcesResult, error) {
	raw, err := c.peer.SendRequest(ctx, schema.MethodListResources, &schema.ListResourcesParams{Cursor: cursor})
	if err != nil {
		return nil, err
	}
	var result schema.ListResourcesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListResourceTemplates(ctx context.Context, cursor string) (*schema.ListResourceTemplatesResult, error) {
	raw, err := c.peer.SendRequest(ctx, schema.MethodListResourceTemplates, &schema.ListResourceTemplatesParams{Cursor: cursor})
	if err != nil {
		return nil, err
	}
	var result schema.ListResourceTemplatesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ReadResource(ctx context.Context, uri string) (*schema.ReadResourceResult, error) {
	raw, err := c.peer.SendRequest(ctx, schema.MethodReadResource, &schema.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}
	var result schema.ReadResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Subscribe(ctx context.Context, uri string) error {
	_, err := c.peer.SendRequest(ctx, schema.MethodSubscribe, &schema.SubscribeParams{URI: uri})
	return err
}

func (c *Client) Unsubscribe(ctx context.Context, uri string) error {
	_, err := c.peer.SendRequest(ctx, schema.MethodUnsubscribe, &schema.SubscribeParams{URI: uri})
	return err
}

////////////////////////////////////////////////////////////////////////////
// PROMPTS

func (c *Client) ListPrompts(ctx context.Context, cursor string) (*schema.ListPromptsResult, error) {
	raw, err := c.peer.SendRequest(ctx, schema.MethodListPrompts, &schema.ListPromptsParams{Cursor: cursor})
	if err != nil {
		return nil, err
	}
	var result schema.ListPromptsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*schema.GetPromptResult, error) {
	raw, err := c.peer.SendRequest(ctx, schema.MethodGetPrompt, &schema.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result schema.GetPromptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

////////////////////////////////////////////////////////////////////////////
// COMPLETION

func (c *Client) Complete(ctx context.Context, params *schema.CompleteParams) (*schema.CompleteResult, error) {
	raw, err := c.peer.SendRequest(ctx, schema.MethodComplete, params)
	if err != nil {
		return nil, err
	}
	var result schema.CompleteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
