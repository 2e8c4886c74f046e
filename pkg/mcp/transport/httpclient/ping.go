package client

import (
	"context"

	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
)

// Ping round-trips a no-op request to confirm the connection is live.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.peer.SendRequest(ctx, schema.MethodPing, nil)
	return err
}
