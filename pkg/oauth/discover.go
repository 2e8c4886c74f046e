package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	goclient "github.com/mutablelogic/go-client"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"

	schema "github.com/mutablelogic/go-mcp/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// DiscoverServerMetadata fetches the OAuth 2.0 Authorization Server
// Metadata (RFC 8414) reachable from endpoint. It tries the RFC 8414/OIDC
// well-known paths at the origin first, then walks up path-relative
// candidates (e.g. Keycloak realm-scoped issuers) per spec.md §4.7.
func (c *Client) DiscoverServerMetadata(ctx context.Context, endpoint string) (*schema.OAuthMetadata, error) {
	v, err, _ := c.discover.Do("metadata:"+endpoint, func() (any, error) {
		return c.discoverServerMetadata(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.OAuthMetadata), nil
}

func (c *Client) discoverServerMetadata(ctx context.Context, endpoint string) (*schema.OAuthMetadata, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	u.RawQuery = ""
	u.Fragment = ""

	base := fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	suffixes := []string{schema.OAuthWellKnownPath, schema.OIDCWellKnownPath}
	candidates := make([]string, 0, len(suffixes)*4)
	for _, suffix := range suffixes {
		candidates = append(candidates, base+suffix)
	}

	basePath := strings.TrimRight(u.Path, "/")
	for basePath != "" && basePath != "/" && basePath != "." {
		for _, suffix := range suffixes {
			candidates = append(candidates, base+basePath+suffix)
		}
		basePath = path.Dir(basePath)
	}

	for _, candidateURL := range candidates {
		var metadata schema.OAuthMetadata
		if err := c.DoWithContext(ctx, nil, &metadata, goclient.OptReqEndpoint(candidateURL)); err != nil {
			var httpErr httpresponse.Err
			if errors.As(err, &httpErr) {
				switch int(httpErr) {
				case http.StatusNotFound, http.StatusUnauthorized,
					http.StatusForbidden, http.StatusMethodNotAllowed:
					continue
				}
			}
			return nil, fmt.Errorf("%s: OAuth discovery failed: %w", endpoint, err)
		}
		return &metadata, nil
	}
	return nil, fmt.Errorf("%s does not support OAuth discovery", endpoint)
}

// DiscoverProtectedResource fetches the Protected Resource Metadata (RFC
// 9728) an MCP server publishes at /.well-known/oauth-protected-resource,
// which in turn names the authorization server(s) it accepts tokens from
// (spec.md §4.7).
func (c *Client) DiscoverProtectedResource(ctx context.Context, endpoint string) (*schema.ProtectedResourceMetadata, error) {
	v, err, _ := c.discover.Do("resource:"+endpoint, func() (any, error) {
		return c.discoverProtectedResource(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.ProtectedResourceMetadata), nil
}

func (c *Client) discoverProtectedResource(ctx context.Context, endpoint string) (*schema.ProtectedResourceMetadata, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	wellKnown := fmt.Sprintf("%s://%s/.well-known/oauth-protected-resource", u.Scheme, u.Host)

	var metadata schema.ProtectedResourceMetadata
	if err := c.DoWithContext(ctx, nil, &metadata, goclient.OptReqEndpoint(wellKnown)); err != nil {
		return nil, fmt.Errorf("%s: protected resource discovery failed: %w", endpoint, err)
	}
	return &metadata, nil
}
