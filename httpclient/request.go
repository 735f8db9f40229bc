// httpclient/request.go
package httpclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/deploymenttheory/go-api-auth-client/authenticationhandler"
	"github.com/deploymenttheory/go-api-auth-client/cookiejar"
	"github.com/deploymenttheory/go-api-auth-client/headers"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/deploymenttheory/go-api-auth-client/transport"
	"go.uber.org/zap"
)

// do is the dispatcher behind every verb method.
//
// Before sending it drains any in-flight refresh; if that refresh fails the call is
// dropped without reaching the transport. A failure without an HTTP status is returned
// unchanged. A failure with a status is handed to the refresh coordinator, and a Retry
// outcome re-issues the request exactly once with the current token.
//
// The returned response is nil with a nil error when the failure was swallowed.
func (c *Client) do(ctx context.Context, method, url string, body any, opts []RequestOption) (*response.Response, error) {
	ro := newRequestOptions(opts)
	path := c.buildPath(ro, url)
	log := c.Logger.With(zap.String("method", method), zap.String("path", path))

	if _, waited, err := c.auth.AwaitPending(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Debug("Dropping request after failed token refresh", zap.Error(err))
		c.metrics.IncSwallowed()
		return nil, nil
	} else if waited {
		log.Debug("Resuming request after token refresh")
	}

	resp, sentToken, err := c.send(ctx, method, path, body, ro)
	if err == nil {
		c.logCookies(resp)
		return resp, nil
	}

	if _, ok := response.Classify(err); !ok {
		return nil, err
	}

	outcome, err := c.auth.HandleAttempt(ctx, err, sentToken)
	if err != nil {
		return nil, err
	}

	if outcome == authenticationhandler.NoRetry {
		log.Debug("Request failed without retry, returning empty result")
		c.metrics.IncSwallowed()
		return nil, nil
	}

	logger.LogRetryAttempt(log, method, path, "access token refreshed")
	c.metrics.IncRetries()

	resp, _, err = c.send(ctx, method, path, body, ro)
	if err != nil {
		return nil, c.auth.ClassifyError(err)
	}
	c.logCookies(resp)
	return resp, nil
}

// send performs one attempt under a concurrency permit. It returns the token the attempt
// was sent with.
func (c *Client) send(ctx context.Context, method, path string, body any, ro *requestOptions) (*response.Response, string, error) {
	ctx, requestID, err := c.Concurrency.AcquireConcurrencyPermit(ctx)
	if err != nil {
		return nil, "", err
	}
	defer c.Concurrency.ReleaseConcurrencyPermit(requestID)

	token := c.store.Get()
	req := &transport.Request{
		Method: method,
		Path:   path,
		Header: c.buildHeaders(token, body != nil, ro),
		Body:   body,
	}

	resp, err := c.transport.Send(ctx, req)
	return resp, token, err
}

// buildHeaders builds a fresh header set for one attempt. The Authorization header is set
// last so per-call headers cannot replace it.
func (c *Client) buildHeaders(token string, hasBody bool, ro *requestOptions) http.Header {
	h := headers.NewHeaderHandler(nil, c.Logger)
	h.SetRequestHeaders("", hasBody, c.config.CustomHeaders)
	for key, values := range ro.header {
		h.Header()[key] = append([]string(nil), values...)
	}
	h.SetAuthorization(token)
	return h.Header()
}

// buildPath resolves "/" + prefix + module + url with single slashes between segments.
func (c *Client) buildPath(ro *requestOptions, url string) string {
	module := c.config.Module
	if ro.module != nil {
		module = *ro.module
	}
	return joinPath(c.config.Prefix, module, url)
}

func joinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment = strings.Trim(segment, "/"); segment != "" {
			parts = append(parts, segment)
		}
	}
	return "/" + strings.Join(parts, "/")
}

func (c *Client) logCookies(resp *response.Response) {
	if resp == nil {
		return
	}
	cookiejar.LogCookies(c.Logger, "response", cookiejar.CookiesFromHeader(resp.Header), c.config.AccessTokenName)
}
