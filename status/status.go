// status.go
// Package status categorizes HTTP status codes: which ones are fatal to the caller,
// which ones are redirects, and how to describe them in logs and errors.
package status

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Set is a set of HTTP status codes.
type Set map[int]struct{}

// NewSet returns a Set holding codes.
func NewSet(codes ...int) Set {
	s := make(Set, len(codes))
	for _, code := range codes {
		s[code] = struct{}{}
	}
	return s
}

// Contains reports whether code is in the set.
func (s Set) Contains(code int) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the codes in ascending order.
func (s Set) Codes() []int {
	codes := make([]int, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, code := range s.Codes() {
		parts = append(parts, fmt.Sprint(code))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// DefaultNonFatalStatusCodes are the statuses reported as non-fatal unless configured otherwise.
var DefaultNonFatalStatusCodes = []int{
	http.StatusUnauthorized,
	http.StatusUnprocessableEntity,
}

// DefaultNonFatal returns a fresh Set of DefaultNonFatalStatusCodes.
func DefaultNonFatal() Set {
	return NewSet(DefaultNonFatalStatusCodes...)
}

// IsFatal reports whether statusCode should be surfaced as unrecoverable, i.e. it is not
// in nonFatal. A nil set falls back to the defaults.
func IsFatal(statusCode int, nonFatal Set) bool {
	if nonFatal == nil {
		nonFatal = DefaultNonFatal()
	}
	return !nonFatal.Contains(statusCode)
}

// IsRedirectStatusCode checks if the provided HTTP status code is one of the redirect codes
// (301, 302, 303, 307, 308).
func IsRedirectStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// IsPermanentRedirect checks if the provided HTTP status code is one of the permanent redirect codes.
func IsPermanentRedirect(statusCode int) bool {
	return statusCode == http.StatusMovedPermanently || statusCode == http.StatusPermanentRedirect
}

var messages = map[int]string{
	http.StatusBadRequest:          "Bad request. Verify the syntax of the request.",
	http.StatusUnauthorized:        "Authentication failed. The access token is missing, expired or was rejected.",
	http.StatusForbidden:           "Invalid permissions. Verify the account has the proper permissions for the resource.",
	http.StatusNotFound:            "Resource not found. Verify the URL path is correct.",
	http.StatusMethodNotAllowed:    "Method not allowed for the resource.",
	http.StatusConflict:            "Conflict. The request conflicts with the current state of the resource.",
	http.StatusUnprocessableEntity: "Unprocessable entity. The server could not process the contained instructions.",
	http.StatusTooManyRequests:     "Too many requests in a given amount of time.",
	http.StatusInternalServerError: "Internal server error.",
	http.StatusBadGateway:          "Bad gateway. The upstream server returned an invalid response.",
	http.StatusServiceUnavailable:  "Service unavailable. The server is overloaded or down for maintenance.",
	http.StatusGatewayTimeout:      "Gateway timeout. The upstream server did not respond in time.",
}

// TranslateStatusCode provides a human-readable message for an HTTP status code.
// Zero means no response was received.
func TranslateStatusCode(statusCode int) string {
	if statusCode == 0 {
		return "No status code received, possible network or connection error."
	}
	if message, exists := messages[statusCode]; exists {
		return message
	}
	if text := http.StatusText(statusCode); text != "" {
		return text + "."
	}
	return fmt.Sprintf("Unknown status code: %d", statusCode)
}
