// headers/headers.go
package headers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/deploymenttheory/go-api-auth-client/headers/redact"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/version"
	"go.uber.org/zap"
)

const (
	// BearerScheme prefixes the token in the Authorization header.
	BearerScheme = "Bearer "

	JSONContentType = "application/json"
)

// HeaderHandler builds the header set of one outgoing request.
type HeaderHandler struct {
	header http.Header   // The headers being built
	log    logger.Logger // The logger to use for logging headers
}

// NewHeaderHandler creates a HeaderHandler writing into header. A nil header is allocated.
func NewHeaderHandler(header http.Header, log logger.Logger) *HeaderHandler {
	if header == nil {
		header = http.Header{}
	}
	return &HeaderHandler{header: header, log: log}
}

// Header returns the headers built so far.
func (h *HeaderHandler) Header() http.Header {
	return h.header
}

// SetAuthorization sets "Authorization: Bearer <token>". An empty token removes the header,
// so an unauthenticated client never sends a bare scheme.
func (h *HeaderHandler) SetAuthorization(token string) {
	token = strings.TrimPrefix(token, BearerScheme)
	if token == "" {
		h.header.Del("Authorization")
		return
	}
	h.header.Set("Authorization", BearerScheme+token)
}

// SetContentType sets the Content-Type header for the request.
func (h *HeaderHandler) SetContentType(contentType string) {
	h.header.Set("Content-Type", contentType)
}

// SetAccept sets the Accept header for the request.
func (h *HeaderHandler) SetAccept(acceptHeader string) {
	h.header.Set("Accept", acceptHeader)
}

// SetUserAgent sets the User-Agent header for the request.
func (h *HeaderHandler) SetUserAgent(userAgent string) {
	h.header.Set("User-Agent", userAgent)
}

// SetCustomHeaders copies custom headers onto the request. Empty values are skipped.
func (h *HeaderHandler) SetCustomHeaders(custom map[string]string) {
	for name, value := range custom {
		if value != "" {
			h.header.Set(name, value)
		}
	}
}

// SetRequestHeaders sets the standard header set: JSON Accept, a JSON Content-Type when the
// request carries a body, the client User-Agent, custom headers and finally the bearer token.
func (h *HeaderHandler) SetRequestHeaders(token string, hasBody bool, custom map[string]string) {
	h.SetAccept(JSONContentType)
	if hasBody {
		h.SetContentType(JSONContentType)
	}
	h.SetUserAgent(version.GetUserAgentHeader())
	h.SetCustomHeaders(custom)
	h.SetAuthorization(token)
}

// LogHeaders logs the current headers at debug level, redacting credentials when hideSensitiveData is set.
func (h *HeaderHandler) LogHeaders(hideSensitiveData bool) {
	if h.log == nil || h.log.GetLogLevel() > logger.LogLevelDebug {
		return
	}

	redactedHeaders := http.Header{}
	for name, values := range h.header {
		if len(values) > 0 {
			redactedHeaders.Set(name, redact.RedactSensitiveHeaderData(hideSensitiveData, name, values[0]))
		}
	}

	h.log.Debug("HTTP Request Headers", zap.String("Headers", HeadersToString(redactedHeaders)))
}

// HeadersToString converts a http.Header to a string for logging,
// with each header on a new line, sorted by name.
func HeadersToString(headers http.Header) string {
	headerStrings := make([]string, 0, len(headers))
	for name, values := range headers {
		headerStrings = append(headerStrings, fmt.Sprintf("%s: %s", name, strings.Join(values, ", ")))
	}
	sort.Strings(headerStrings)
	return strings.Join(headerStrings, "\n")
}

// CheckDeprecationHeader logs a warning when a response carries the Deprecation header.
func CheckDeprecationHeader(header http.Header, endpoint string, log logger.Logger) {
	deprecationHeader := header.Get("Deprecation")
	if deprecationHeader != "" {
		log.Warn("API endpoint is deprecated",
			zap.String("Date", deprecationHeader),
			zap.String("Endpoint", endpoint),
		)
	}
}
