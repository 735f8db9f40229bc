// authenticationhandler/refresh.go
package authenticationhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/headers"
	"github.com/deploymenttheory/go-api-auth-client/transport"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrTokenNotFound is returned when the refresh response carries no usable token.
var ErrTokenNotFound = errors.New("token field not found in refresh response")

// performRefresh sends the refresh request with the current bearer token and returns the
// new token. It runs detached from the caller's cancellation, bounded by the refresh timeout,
// because its outcome is shared by every waiting request.
func (c *Coordinator) performRefresh(ctx context.Context) (string, error) {
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	h := headers.NewHeaderHandler(nil, c.log)
	h.SetRequestHeaders(c.store.Get(), c.refresh.Body != nil, nil)

	c.log.Debug("Attempting to refresh token",
		zap.String("method", c.refresh.Method),
		zap.String("url", c.refresh.URL),
	)

	resp, err := c.transport.Send(refreshCtx, &transport.Request{
		Method: c.refresh.Method,
		Path:   c.refresh.URL,
		Header: h.Header(),
		Body:   c.refresh.Body,
	})
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}

	token, err := extractToken(resp.Body, c.refresh.TokenField)
	if err != nil {
		return "", err
	}

	c.logTokenExpiry(token)
	return token, nil
}

// extractToken reads the string at the dotted path field of a JSON document.
func extractToken(body []byte, field string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}

	value := doc
	for _, key := range strings.Split(field, ".") {
		obj, ok := value.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrTokenNotFound, field)
		}
		if value, ok = obj[key]; !ok {
			return "", fmt.Errorf("%w: %q", ErrTokenNotFound, field)
		}
	}

	token, ok := value.(string)
	if !ok || token == "" {
		return "", fmt.Errorf("%w: %q is not a non-empty string", ErrTokenNotFound, field)
	}
	return token, nil
}

// logTokenExpiry logs the exp claim when the token is a JWT. The signature is not verified;
// the API remains the authority on validity.
func (c *Coordinator) logTokenExpiry(token string) {
	expiry, ok := TokenExpiry(token)
	if !ok {
		return
	}
	c.log.Info("Token obtained successfully",
		zap.Time("Expiry", expiry),
		zap.Duration("Duration", time.Until(expiry)),
	)
}

// TokenExpiry returns the exp claim of a JWT without verifying it.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
