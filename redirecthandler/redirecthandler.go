package redirecthandler

import (
	"fmt"
	"net/http"

	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/status"
	"go.uber.org/zap"
)

// RedirectHandler is the redirect policy of the underlying http.Client.
type RedirectHandler struct {
	log              logger.Logger
	MaxRedirects     int      // Maximum allowed redirects per request.
	SensitiveHeaders []string // Headers removed on cross-host redirects.
}

// NewRedirectHandler creates a new instance of RedirectHandler.
func NewRedirectHandler(log logger.Logger, maxRedirects int) *RedirectHandler {
	return &RedirectHandler{
		log:              log,
		MaxRedirects:     maxRedirects,
		SensitiveHeaders: []string{"Authorization", "Cookie"},
	}
}

// AddSensitiveHeader allows adding configurable sensitive headers.
func (r *RedirectHandler) AddSensitiveHeader(header string) {
	r.SensitiveHeaders = append(r.SensitiveHeaders, header)
}

// WithRedirectHandling applies the redirect handling policy to an http.Client.
func (r *RedirectHandler) WithRedirectHandling(client *http.Client) {
	client.CheckRedirect = r.checkRedirect
}

// checkRedirect is called by http.Client before following a redirect. req is the next
// request, via the requests made so far, oldest first.
func (r *RedirectHandler) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) == 0 {
		return nil
	}
	first, last := via[0], via[len(via)-1]

	if first.Method == http.MethodPost || first.Method == http.MethodPatch {
		r.log.Warn("Redirect attempted on non-idempotent method, not following", zap.String("method", first.Method))
		return http.ErrUseLastResponse
	}

	if len(via) >= r.MaxRedirects {
		r.log.Warn("Maximum redirects reached", zap.Int("maxRedirects", r.MaxRedirects))
		return &MaxRedirectsError{MaxRedirects: r.MaxRedirects}
	}

	for _, prev := range via {
		if prev.URL.String() == req.URL.String() {
			r.log.Warn("Redirect loop detected", zap.String("url", req.URL.String()))
			return &RedirectLoopError{URL: req.URL.String()}
		}
	}

	if req.URL.Host != first.URL.Host {
		r.secureRequest(req)
	}

	fields := []zap.Field{
		zap.String("originalURL", last.URL.String()),
		zap.String("newURL", req.URL.String()),
		zap.Int("redirectCount", len(via)),
	}
	if last.Response != nil {
		fields = append(fields,
			zap.Int("statusCode", last.Response.StatusCode),
			zap.Bool("permanent", status.IsPermanentRedirect(last.Response.StatusCode)),
		)
	}
	r.log.Info("Redirecting request", fields...)
	return nil
}

// secureRequest removes sensitive headers from a request leaving the original host.
func (r *RedirectHandler) secureRequest(req *http.Request) {
	for _, header := range r.SensitiveHeaders {
		if req.Header.Get(header) != "" {
			req.Header.Del(header)
			r.log.Debug("Removed sensitive header on cross-host redirect", zap.String("header", header))
		}
	}
}

// RedirectLoopError represents an error when a redirect loop is detected.
type RedirectLoopError struct {
	URL string
}

func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("redirect loop detected at %s", e.URL)
}

// MaxRedirectsError represents an error when the maximum number of redirects is reached.
type MaxRedirectsError struct {
	MaxRedirects int
}

func (e *MaxRedirectsError) Error() string {
	return fmt.Sprintf("maximum redirects reached: %d", e.MaxRedirects)
}

// SetupRedirectHandler configures redirect handling on client. When followRedirects is
// false, the first redirect response is returned as is.
func SetupRedirectHandler(client *http.Client, followRedirects bool, maxRedirects int, log logger.Logger) error {
	if !followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		return nil
	}

	if maxRedirects < 1 {
		return log.Error("Invalid maxRedirects value", zap.Int("maxRedirects", maxRedirects))
	}

	NewRedirectHandler(log, maxRedirects).WithRedirectHandling(client)
	log.Debug("Redirect handling enabled", zap.Int("MaxRedirects", maxRedirects))
	return nil
}
