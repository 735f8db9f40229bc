// logfields.go
package logger

import (
	"time"

	"go.uber.org/zap"
)

// LogRequest logs the outcome of a single transport round trip.
func LogRequest(log Logger, requestID, method, path string, statusCode int, duration time.Duration) {
	log.Debug("HTTP request completed",
		zap.String("event", "request_end"),
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Duration("duration", duration),
	)
}

// LogRetryAttempt logs the single retry issued after a successful token refresh.
func LogRetryAttempt(log Logger, method, path, reason string) {
	log.Info("Retrying HTTP request",
		zap.String("event", "retry_attempt"),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("reason", reason),
	)
}

// LogRefresh logs a settled refresh operation. err is nil on success.
func LogRefresh(log Logger, refreshID string, duration time.Duration, err error) {
	if err != nil {
		log.Warn("Access token refresh failed",
			zap.String("event", "refresh_failed"),
			zap.String("refresh_id", refreshID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	log.Info("Access token refreshed",
		zap.String("event", "refresh_succeeded"),
		zap.String("refresh_id", refreshID),
		zap.Duration("duration", duration),
	)
}

// LogAuthFailure logs an authentication failure that is surfaced to the caller.
func LogAuthFailure(log Logger, event string, statusCode int, fatal bool, err error) {
	log.Warn("Authentication failure",
		zap.String("event", event),
		zap.Int("status_code", statusCode),
		zap.Bool("fatal", fatal),
		zap.Error(err),
	)
}
