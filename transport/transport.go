// transport/transport.go
// Package transport performs single HTTP round trips for the client. It never retries and
// never refreshes tokens; it only reports what happened.
package transport

import (
	"context"
	"net/http"

	"github.com/deploymenttheory/go-api-auth-client/response"
)

// Request is everything needed to send one attempt. It is built fresh for every attempt.
type Request struct {
	Method string
	// Path is resolved against the transport's base URL.
	Path   string
	Header http.Header
	// Body is sent as is for []byte, string and io.Reader and JSON-encoded otherwise.
	Body any
}

// Transport sends a request. HTTP-level failures (non-2xx) are returned as *response.APIError;
// any other error is a transport-level failure without a status.
type Transport interface {
	Send(ctx context.Context, req *Request) (*response.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*response.Response, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, req *Request) (*response.Response, error) {
	return f(ctx, req)
}
