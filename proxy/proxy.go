// proxy.go

package proxy

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/deploymenttheory/go-api-auth-client/logger"
	"go.uber.org/zap"
)

// InitializeProxy routes httpClient through proxyURL. Credentials, when given, are sent
// as basic auth on the CONNECT request. An empty proxyURL leaves the client unchanged.
func InitializeProxy(httpClient *http.Client, proxyURL, proxyUsername, proxyPassword string, log logger.Logger) error {
	if proxyURL == "" {
		return nil
	}

	parsedProxyURL, err := url.Parse(proxyURL)
	if err != nil || parsedProxyURL.Host == "" {
		log.Error("Failed to parse proxy URL", zap.String("ProxyURL", proxyURL), zap.Error(err))
		return fmt.Errorf("invalid proxy URL %q", proxyURL)
	}

	transport := baseTransport(httpClient)
	if proxyUsername != "" && proxyPassword != "" {
		parsedProxyURL.User = url.UserPassword(proxyUsername, proxyPassword)
	}
	transport.Proxy = http.ProxyURL(parsedProxyURL)
	httpClient.Transport = transport

	log.Info("Proxy configured", zap.String("ProxyURL", parsedProxyURL.Redacted()))
	return nil
}

// baseTransport returns a clone of the client's *http.Transport, or of the default transport.
func baseTransport(httpClient *http.Client) *http.Transport {
	if t, ok := httpClient.Transport.(*http.Transport); ok {
		return t.Clone()
	}
	return http.DefaultTransport.(*http.Transport).Clone()
}
