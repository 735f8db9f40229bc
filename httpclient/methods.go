// httpclient/methods.go
package httpclient

import (
	"context"
	"net/http"

	"github.com/deploymenttheory/go-api-auth-client/response"
)

// RequestOption adjusts a single call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	module *string
	header http.Header
}

// WithModule overrides the configured module for one call. An empty module drops the
// module segment from the path.
func WithModule(module string) RequestOption {
	return func(o *requestOptions) { o.module = &module }
}

// WithHeader sets an extra request header for one call. Authorization cannot be overridden.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Set(key, value)
	}
}

func newRequestOptions(opts []RequestOption) *requestOptions {
	ro := &requestOptions{}
	for _, opt := range opts {
		opt(ro)
	}
	return ro
}

// Get sends a GET request to url. A nil response with a nil error is a swallowed failure.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*response.Response, error) {
	return c.do(ctx, http.MethodGet, url, nil, opts)
}

// Delete sends a DELETE request to url. body may be nil.
func (c *Client) Delete(ctx context.Context, url string, body any, opts ...RequestOption) (*response.Response, error) {
	return c.do(ctx, http.MethodDelete, url, body, opts)
}

// Post sends a POST request with body to url.
func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) (*response.Response, error) {
	return c.do(ctx, http.MethodPost, url, body, opts)
}

// Put sends a PUT request with body to url.
func (c *Client) Put(ctx context.Context, url string, body any, opts ...RequestOption) (*response.Response, error) {
	return c.do(ctx, http.MethodPut, url, body, opts)
}

// Patch sends a PATCH request with body to url.
func (c *Client) Patch(ctx context.Context, url string, body any, opts ...RequestOption) (*response.Response, error) {
	return c.do(ctx, http.MethodPatch, url, body, opts)
}
