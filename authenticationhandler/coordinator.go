// authenticationhandler/coordinator.go
package authenticationhandler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errRefreshInterrupted = errors.New("refresh did not complete")

// Handle decides what to do with a failed request, assuming it was sent with the current token.
func (c *Coordinator) Handle(ctx context.Context, err error) (Outcome, error) {
	return c.HandleAttempt(ctx, err, c.store.Get())
}

// HandleAttempt decides what to do with a request that failed with err after being sent
// with sentToken.
//
//   - err carries no status: NoRetry, nil. The caller propagates err itself.
//   - status other than 401, or refresh disabled: NoRetry with a *ClassifiedError.
//   - 401 and no token was ever set: NoRetry with a fatal authentication-required error.
//   - 401 and the token already changed since sentToken: Retry without refreshing. This
//     includes a request sent without a token before one was set.
//   - 401 otherwise: join or start the single refresh. The owner gets Retry on success
//     and a fatal 401 on failure; followers get Retry on success and NoRetry, nil on failure.
func (c *Coordinator) HandleAttempt(ctx context.Context, err error, sentToken string) (Outcome, error) {
	statusCode, ok := response.Classify(err)
	if !ok {
		return NoRetry, nil
	}

	if statusCode != http.StatusUnauthorized || c.refresh == nil {
		ce := response.NewClassifiedError(statusCode, c.nonFatal, err)
		if statusCode == http.StatusUnauthorized {
			logger.LogAuthFailure(c.log, "unauthorized_without_refresh", statusCode, ce.Fatal, err)
		}
		return NoRetry, c.errorFactory(ce)
	}

	current := c.store.Get()
	if current == "" {
		logger.LogAuthFailure(c.log, "authentication_required", statusCode, true, err)
		return NoRetry, c.errorFactory(authenticationRequired(err))
	}
	if sentToken != current {
		c.log.Debug("Token changed while request was in flight, retrying without refresh")
		return Retry, nil
	}

	op, owner := c.join()
	if owner {
		return c.runRefresh(ctx, op)
	}

	if _, waitErr := c.wait(ctx, op); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NoRetry, ctxErr
		}
		c.log.Debug("Refresh failed for follower, not retrying", zap.String("refresh_id", op.id.String()))
		return NoRetry, nil
	}
	return Retry, nil
}

// ClassifyError converts err into the caller-facing error when it carries a status, using
// the configured non-fatal set and error factory. Errors without a status are returned as is.
func (c *Coordinator) ClassifyError(err error) error {
	statusCode, ok := response.Classify(err)
	if !ok {
		return err
	}
	return c.errorFactory(response.NewClassifiedError(statusCode, c.nonFatal, err))
}

// AwaitPending waits for an in-flight refresh, if any. waited reports whether there was one;
// err is the refresh failure or ctx's error. It never starts a refresh.
func (c *Coordinator) AwaitPending(ctx context.Context) (token string, waited bool, err error) {
	c.mu.Lock()
	op := c.pending
	c.mu.Unlock()

	if op == nil {
		return c.store.Get(), false, nil
	}

	c.log.Debug("Waiting for in-flight token refresh", zap.String("refresh_id", op.id.String()))
	token, err = c.wait(ctx, op)
	return token, true, err
}

// Pending reports whether a refresh is in flight.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// join returns the in-flight operation, creating it when none exists. owner is true for
// the caller that created it.
func (c *Coordinator) join() (op *refreshOperation, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.pending.followers++
		return c.pending, false
	}
	c.pending = &refreshOperation{id: uuid.New(), done: make(chan struct{})}
	return c.pending, true
}

// finish settles op and clears it so that a later 401 starts a fresh refresh.
func (c *Coordinator) finish(op *refreshOperation, token string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op.token, op.err = token, err
	close(op.done)
	if c.pending == op {
		c.pending = nil
	}
	c.log.Debug("Refresh settled",
		zap.String("refresh_id", op.id.String()),
		zap.Int("followers", op.followers),
		zap.Bool("succeeded", err == nil),
	)
}

func (c *Coordinator) wait(ctx context.Context, op *refreshOperation) (string, error) {
	select {
	case <-op.done:
		return op.token, op.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// runRefresh performs the refresh as owner of op.
func (c *Coordinator) runRefresh(ctx context.Context, op *refreshOperation) (Outcome, error) {
	token, refreshErr := "", errRefreshInterrupted
	defer func() { c.finish(op, token, refreshErr) }()

	start := time.Now()
	token, refreshErr = c.performRefresh(ctx)
	logger.LogRefresh(c.log, op.id.String(), time.Since(start), refreshErr)
	c.metrics.IncRefreshes(refreshErr != nil)

	if refreshErr != nil {
		token = ""
		return NoRetry, c.refreshFailed(ctx, refreshErr)
	}

	if setErr := c.store.Set(context.WithoutCancel(ctx), token); setErr != nil {
		c.log.Warn("Refreshed token kept in memory only", zap.Error(setErr))
	}
	return Retry, nil
}

// refreshFailed applies the failure policy and builds the fatal 401 returned to the owner.
func (c *Coordinator) refreshFailed(ctx context.Context, refreshErr error) error {
	logger.LogAuthFailure(c.log, "refresh_failed", http.StatusUnauthorized, true, refreshErr)

	switch {
	case c.policy != PolicyRedirect:
	case c.navigator == nil:
		c.log.Warn("No navigator configured, skipping redirect after refresh failure",
			zap.String("url", c.unauthorizedURL),
		)
	default:
		opts := NavigateOptions{Replace: true, External: isExternalURL(c.unauthorizedURL)}
		if navErr := c.navigator.Navigate(ctx, c.unauthorizedURL, opts); navErr != nil {
			c.log.Warn("Failed to navigate after refresh failure",
				zap.String("url", c.unauthorizedURL),
				zap.Error(navErr),
			)
		}
	}

	return c.errorFactory(&response.ClassifiedError{
		StatusCode: http.StatusUnauthorized,
		Fatal:      true,
		Message:    response.ErrRefreshFailed.Error(),
		Err:        fmt.Errorf("%w: %w", response.ErrRefreshFailed, refreshErr),
	})
}

func authenticationRequired(err error) *response.ClassifiedError {
	ce := &response.ClassifiedError{
		StatusCode: http.StatusUnauthorized,
		Fatal:      true,
		Message:    response.ErrAuthenticationRequired.Error(),
		Err:        fmt.Errorf("%w: %w", response.ErrAuthenticationRequired, err),
	}
	var apiErr *response.APIError
	if errors.As(err, &apiErr) {
		ce.Data = apiErr.Data
	}
	return ce
}

// isExternalURL reports whether target leaves the application, i.e. it is absolute.
func isExternalURL(target string) bool {
	u, err := url.Parse(target)
	return err == nil && u.IsAbs() && u.Host != ""
}
