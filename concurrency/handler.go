// concurrency/handler.go
/* Package concurrency bounds the number of requests a client has in flight. Each send
acquires a permit from a weighted semaphore and carries a request ID in its context. */
package concurrency

import (
	"time"

	"github.com/deploymenttheory/go-api-auth-client/logger"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxConcurrentRequests is the permit count used when none is configured.
	DefaultMaxConcurrentRequests = 10
	// DefaultAcquireTimeout bounds how long a request waits for a permit.
	DefaultAcquireTimeout = 10 * time.Second
)

// ConcurrencyHandler controls the number of concurrent HTTP requests.
type ConcurrencyHandler struct {
	sem            *semaphore.Weighted
	limit          int64
	acquireTimeout time.Duration
	logger         logger.Logger
	Metrics        *Metrics
}

// NewConcurrencyHandler returns a handler allowing limit concurrent permits.
// A non-positive limit uses DefaultMaxConcurrentRequests; a zero acquireTimeout
// waits until the caller's context is done. A nil metrics allocates one.
func NewConcurrencyHandler(limit int, acquireTimeout time.Duration, log logger.Logger, metrics *Metrics) *ConcurrencyHandler {
	if limit <= 0 {
		limit = DefaultMaxConcurrentRequests
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ConcurrencyHandler{
		sem:            semaphore.NewWeighted(int64(limit)),
		limit:          int64(limit),
		acquireTimeout: acquireTimeout,
		logger:         log,
		Metrics:        metrics,
	}
}

// Limit returns the permit count.
func (ch *ConcurrencyHandler) Limit() int {
	return int(ch.limit)
}
