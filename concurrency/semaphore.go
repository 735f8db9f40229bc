// concurrency/semaphore.go
package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDKey is the context key of the request ID attached on permit acquisition.
type RequestIDKey struct{}

// RequestIDFromContext returns the request ID stored by AcquireConcurrencyPermit.
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey{}).(uuid.UUID)
	return id, ok
}

// AcquireConcurrencyPermit blocks until a permit is available, the acquire timeout
// elapses or ctx is done. The returned context carries a fresh request ID; pass that
// ID to ReleaseConcurrencyPermit.
//
//	ctx, requestID, err := ch.AcquireConcurrencyPermit(ctx)
//	if err != nil {
//		return err
//	}
//	defer ch.ReleaseConcurrencyPermit(requestID)
func (ch *ConcurrencyHandler) AcquireConcurrencyPermit(ctx context.Context) (context.Context, uuid.UUID, error) {
	requestID := uuid.New()
	start := time.Now()

	acquireCtx := ctx
	if ch.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, ch.acquireTimeout)
		defer cancel()
	}

	if err := ch.sem.Acquire(acquireCtx, 1); err != nil {
		ch.logger.Warn("Failed to acquire concurrency permit",
			zap.String("RequestID", requestID.String()),
			zap.Duration("Waited", time.Since(start)),
			zap.Error(err),
		)
		return ctx, requestID, fmt.Errorf("failed to acquire concurrency permit: %w", err)
	}

	wait := time.Since(start)
	inFlight := ch.Metrics.permitAcquired(wait)

	ch.logger.Debug("Acquired concurrency permit",
		zap.String("RequestID", requestID.String()),
		zap.Duration("AcquisitionTime", wait),
		zap.Int64("InFlight", inFlight),
		zap.Int64("Available", ch.limit-inFlight),
	)

	return context.WithValue(ctx, RequestIDKey{}, requestID), requestID, nil
}

// ReleaseConcurrencyPermit returns a permit to the pool.
func (ch *ConcurrencyHandler) ReleaseConcurrencyPermit(requestID uuid.UUID) {
	ch.sem.Release(1)
	inFlight := ch.Metrics.permitReleased()

	ch.logger.Debug("Released concurrency permit",
		zap.String("RequestID", requestID.String()),
		zap.Int64("InFlight", inFlight),
	)
}
