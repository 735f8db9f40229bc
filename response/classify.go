// response/classify.go
package response

import (
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-api-auth-client/status"
)

var (
	// ErrAuthenticationRequired marks a 401 received before any token was ever set.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrRefreshFailed marks a 401 whose access token refresh did not succeed.
	ErrRefreshFailed = errors.New("access token refresh failed")
)

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// Classify is the single place that decides whether an error is an HTTP-level failure.
// It returns the status code carried anywhere in err's chain, or ok == false for
// transport-level failures (network down, DNS, cancelled context).
func Classify(err error) (statusCode int, ok bool) {
	var sc statusCoder
	if err == nil || !errors.As(err, &sc) {
		return 0, false
	}
	statusCode = sc.HTTPStatusCode()
	return statusCode, statusCode > 0
}

// ClassifiedError is the normalized error surfaced to callers for HTTP-level failures.
// Fatal tells a reporting layer whether the failure is unrecoverable; it never suppresses the error.
type ClassifiedError struct {
	StatusCode int
	Fatal      bool
	Message    string
	// Data is the decoded error body of the original response, if any.
	Data any
	Err  error
}

// NewClassifiedError classifies err, which must carry statusCode, against the non-fatal set.
func NewClassifiedError(statusCode int, nonFatal status.Set, err error) *ClassifiedError {
	ce := &ClassifiedError{
		StatusCode: statusCode,
		Fatal:      status.IsFatal(statusCode, nonFatal),
		Message:    status.TranslateStatusCode(statusCode),
		Err:        err,
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		ce.Data = apiErr.Data
		if apiErr.Message != "" {
			ce.Message = apiErr.Message
		}
	}
	return ce
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	severity := "non-fatal"
	if e.Fatal {
		severity = "fatal"
	}
	return fmt.Sprintf("%s error %d: %s", severity, e.StatusCode, e.Message)
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode reports the classified status.
func (e *ClassifiedError) HTTPStatusCode() int {
	return e.StatusCode
}

// IsFatal reports whether err carries a fatal ClassifiedError.
func IsFatal(err error) bool {
	var ce *ClassifiedError
	return errors.As(err, &ce) && ce.Fatal
}
