// cookiejar/cookiejar.go

/* Package cookiejar sets up the cookie jar of the underlying HTTP client and exposes the
access-token cookie kept in that jar as a durable token mirror. */

package cookiejar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/deploymenttheory/go-api-auth-client/headers/redact"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// DefaultAccessTokenName is the cookie the access token is mirrored into.
const DefaultAccessTokenName = "access_token"

// SetupCookieJar attaches a cookie jar to client when enabled and none is set yet.
func SetupCookieJar(client *http.Client, enableCookieJar bool, log logger.Logger) error {
	if !enableCookieJar || client.Jar != nil {
		return nil
	}
	jar, err := NewJar()
	if err != nil {
		log.Error("Failed to create cookie jar", zap.Error(err))
		return fmt.Errorf("setupCookieJar failed: %w", err)
	}
	client.Jar = jar
	return nil
}

// NewJar returns an empty jar using the public suffix list.
func NewJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// Mirror stores the access token as a cookie scoped to path "/" of the API host.
type Mirror struct {
	jar  http.CookieJar
	root *url.URL
	name string
}

// NewMirror returns a Mirror writing cookie name into jar for the host of baseURL.
// An empty name uses DefaultAccessTokenName.
func NewMirror(jar http.CookieJar, baseURL, name string) (*Mirror, error) {
	if jar == nil {
		return nil, fmt.Errorf("cookie mirror requires a cookie jar")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", baseURL)
	}
	if name == "" {
		name = DefaultAccessTokenName
	}
	return &Mirror{
		jar:  jar,
		root: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
		name: name,
	}, nil
}

// Name returns the cookie name.
func (m *Mirror) Name() string {
	return m.name
}

// Load returns the cookie value, or "" when the jar holds no such cookie.
func (m *Mirror) Load(context.Context) (string, error) {
	for _, cookie := range m.jar.Cookies(m.root) {
		if cookie.Name == m.name {
			return cookie.Value, nil
		}
	}
	return "", nil
}

// Save writes the cookie. An empty token expires it.
func (m *Mirror) Save(_ context.Context, token string) error {
	cookie := &http.Cookie{
		Name:     m.name,
		Value:    token,
		Path:     "/",
		Secure:   m.root.Scheme == "https",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		cookie.MaxAge = -1
	}
	m.jar.SetCookies(m.root, []*http.Cookie{cookie})
	return nil
}

// RedactSensitiveCookies returns copies of cookies with credential values redacted.
// Cookies named like credentials and any extraNames are redacted.
func RedactSensitiveCookies(cookies []*http.Cookie, extraNames ...string) []*http.Cookie {
	redacted := make([]*http.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		c := *cookie
		if redact.IsSensitiveKey(c.Name) || containsFold(extraNames, c.Name) {
			c.Value = redact.Redacted
		}
		redacted = append(redacted, &c)
	}
	return redacted
}

// CookiesFromHeader parses the Set-Cookie headers of a response header.
func CookiesFromHeader(header http.Header) []*http.Cookie {
	return (&http.Response{Header: header}).Cookies()
}

// LogCookies logs cookie names and (redacted) values at debug level.
func LogCookies(log logger.Logger, direction string, cookies []*http.Cookie, extraNames ...string) {
	if len(cookies) == 0 || log.GetLogLevel() > logger.LogLevelDebug {
		return
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range RedactSensitiveCookies(cookies, extraNames...) {
		parts = append(parts, c.Name+"="+c.Value)
	}
	log.Debug("Cookies", zap.String("direction", direction), zap.String("cookies", strings.Join(parts, "; ")))
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
