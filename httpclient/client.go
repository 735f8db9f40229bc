/* The `httpclient` package provides an API client that attaches a bearer token to every request and
transparently refreshes it when the API answers 401. Exactly one refresh round-trip runs per client at a
time; requests that fail while it runs wait for it and are re-issued once, and requests started while it
runs are held back until it settles. The main `Client` structure wires together the token store, the
refresh coordinator, the transport and the concurrency permits. */
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/deploymenttheory/go-api-auth-client/authenticationhandler"
	"github.com/deploymenttheory/go-api-auth-client/concurrency"
	"github.com/deploymenttheory/go-api-auth-client/cookiejar"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/proxy"
	"github.com/deploymenttheory/go-api-auth-client/redirecthandler"
	"github.com/deploymenttheory/go-api-auth-client/status"
	"github.com/deploymenttheory/go-api-auth-client/tokenstore"
	"github.com/deploymenttheory/go-api-auth-client/transport"
	"go.uber.org/zap"
)

// Master struct/object
type Client struct {
	// Private
	config    ClientConfig
	http      *http.Client
	transport transport.Transport
	store     *tokenstore.Store
	cookies   *cookiejar.Mirror
	auth      *authenticationhandler.Coordinator
	metrics   *concurrency.Metrics

	// Exported
	Logger      logger.Logger
	Concurrency *concurrency.ConcurrencyHandler
}

// ClientOption customizes BuildClient beyond what ClientConfig can express.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger       logger.Logger
	transport    transport.Transport
	httpClient   *http.Client
	navigator    authenticationhandler.Navigator
	errorFactory authenticationhandler.ErrorFactory
	mirrors      []tokenstore.Mirror
}

// WithLogger replaces the logger BuildClient would build from the log settings.
func WithLogger(log logger.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = log }
}

// WithTransport replaces the default resty transport.
func WithTransport(t transport.Transport) ClientOption {
	return func(o *clientOptions) { o.transport = t }
}

// WithHTTPClient sets the http.Client the default transport sends through. Redirect, proxy
// and cookie jar settings are applied to it.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithNavigator sets where the client navigates after a failed refresh.
func WithNavigator(n authenticationhandler.Navigator) ClientOption {
	return func(o *clientOptions) { o.navigator = n }
}

// WithErrorFactory sets how classified failures are turned into returned errors.
func WithErrorFactory(f authenticationhandler.ErrorFactory) ClientOption {
	return func(o *clientOptions) { o.errorFactory = f }
}

// WithTokenMirrors adds durable cells the token is written through to.
func WithTokenMirrors(mirrors ...tokenstore.Mirror) ClientOption {
	return func(o *clientOptions) { o.mirrors = append(o.mirrors, mirrors...) }
}

// BuildClient creates a new API client with the provided configuration.
func BuildClient(config ClientConfig, populateDefaultValues bool, opts ...ClientOption) (*Client, error) {
	if populateDefaultValues {
		SetDefaultValuesClientConfig(&config)
	}

	if err := validateClientConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var options clientOptions
	for _, opt := range opts {
		opt(&options)
	}

	//region Logging

	log := options.logger
	if log == nil {
		var err error
		parsedLogLevel := logger.ParseLogLevelFromString(config.LogLevel)
		log, err = logger.BuildLogger(parsedLogLevel, config.LogOutputFormat, config.LogConsoleSeparator, config.LogExportPath, config.HideSensitiveData)
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	//endregion

	//////////////////////////////////////////////////////////////////////////////////////////

	//region HTTP

	log.Info("Initializing new API client", zap.String("BaseURL", config.BaseURL))

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = config.CustomTimeout

	if err := redirecthandler.SetupRedirectHandler(httpClient, config.FollowRedirects, config.MaxRedirects, log); err != nil {
		log.Error("Failed to set up redirect handler", zap.Error(err))
		return nil, err
	}

	if err := cookiejar.SetupCookieJar(httpClient, config.CookieJarEnabled, log); err != nil {
		return nil, err
	}

	if err := proxy.InitializeProxy(httpClient, config.ProxyURL, config.ProxyUsername, config.ProxyPassword, log); err != nil {
		return nil, err
	}

	tr := options.transport
	if tr == nil {
		tr = transport.NewRestyTransport(httpClient, transport.RestyOptions{
			BaseURL:           config.BaseURL,
			Timeout:           config.CustomTimeout,
			HideSensitiveData: config.HideSensitiveData,
		}, log)
	}

	//endregion

	//////////////////////////////////////////////////////////////////////////////////////////

	//region Concurrency

	metrics := &concurrency.Metrics{}
	concurrencyHandler := concurrency.NewConcurrencyHandler(
		config.MaxConcurrentRequests,
		concurrency.DefaultAcquireTimeout,
		log,
		metrics,
	)

	//endregion

	//////////////////////////////////////////////////////////////////////////////////////////

	//region Auth

	store, cookieMirror, err := buildTokenStore(config, httpClient.Jar, options.mirrors, log)
	if err != nil {
		return nil, err
	}

	if config.Refresh != nil && config.OnRefreshFailure == authenticationhandler.PolicyRedirect && options.navigator == nil {
		log.Warn("Refresh failure policy is redirect but no navigator is configured",
			zap.String("Unauthorized URL", config.UnauthorizedURL),
		)
	}

	var nonFatal status.Set
	if len(config.NonFatalStatusCodes) > 0 {
		nonFatal = status.NewSet(config.NonFatalStatusCodes...)
	}

	coordinator, err := authenticationhandler.NewCoordinator(authenticationhandler.Config{
		Store:            store,
		Transport:        tr,
		Refresh:          config.Refresh,
		NonFatal:         nonFatal,
		OnRefreshFailure: config.OnRefreshFailure,
		UnauthorizedURL:  config.UnauthorizedURL,
		Navigator:        options.navigator,
		ErrorFactory:     options.errorFactory,
		RefreshTimeout:   config.RefreshTimeout,
		Metrics:          metrics,
		Logger:           log,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	//endregion

	client := &Client{
		config:      config,
		http:        httpClient,
		transport:   tr,
		store:       store,
		cookies:     cookieMirror,
		auth:        coordinator,
		metrics:     metrics,
		Logger:      log,
		Concurrency: concurrencyHandler,
	}

	log.Debug("New API client initialized",
		zap.String("Base URL", config.BaseURL),
		zap.String("Prefix", config.Prefix),
		zap.String("Module", config.Module),
		zap.Bool("Refresh Enabled", coordinator.RefreshEnabled()),
		zap.String("Refresh Failure Policy", string(config.OnRefreshFailure)),
		zap.String("Unauthorized URL", config.UnauthorizedURL),
		zap.String("Access Token Name", config.AccessTokenName),
		zap.Ints("Non-Fatal Status Codes", config.NonFatalStatusCodes),
		zap.String("Logging Level", config.LogLevel),
		zap.String("Log Encoding Format", config.LogOutputFormat),
		zap.Bool("Hide Sensitive Data In Logs", config.HideSensitiveData),
		zap.Bool("Cookie Jar Enabled", config.CookieJarEnabled),
		zap.Int("Max Concurrent Requests", config.MaxConcurrentRequests),
		zap.Bool("Follow Redirects", config.FollowRedirects),
		zap.Int("Max Redirects", config.MaxRedirects),
		zap.Duration("Custom Timeout", config.CustomTimeout),
		zap.Duration("Refresh Timeout", config.RefreshTimeout),
	)

	return client, nil
}

// buildTokenStore creates the token store. The token is always mirrored into the access-token
// cookie, kept in the HTTP client's jar when it has one and in a private jar otherwise. Without
// an explicit token the store is primed from the mirrors.
func buildTokenStore(config ClientConfig, jar http.CookieJar, mirrors []tokenstore.Mirror, log logger.Logger) (*tokenstore.Store, *cookiejar.Mirror, error) {
	if jar == nil {
		var err error
		if jar, err = cookiejar.NewJar(); err != nil {
			return nil, nil, fmt.Errorf("failed to create access token cookie jar: %w", err)
		}
		log.Debug("Cookie jar disabled, keeping access token cookie in a private jar")
	}

	cookieMirror, err := cookiejar.NewMirror(jar, config.BaseURL, config.AccessTokenName)
	if err != nil {
		return nil, nil, err
	}
	mirrors = append([]tokenstore.Mirror{cookieMirror}, mirrors...)

	store := tokenstore.New(config.Token, log, mirrors...)
	if config.Token == "" {
		if err := store.Prime(context.Background()); err != nil {
			log.Warn("Failed to load stored access token", zap.Error(err))
		}
	}
	return store, cookieMirror, nil
}

// Token returns the current access token.
func (c *Client) Token() string {
	return c.store.Get()
}

// SetToken replaces the access token, for example after an interactive login. Mirror
// failures are returned but the client uses the new token regardless.
func (c *Client) SetToken(ctx context.Context, token string) error {
	return c.store.Set(ctx, token)
}

// Metrics returns a snapshot of the client's counters.
func (c *Client) Metrics() concurrency.MetricsSnapshot {
	return c.metrics.Snapshot()
}

// RefreshPending reports whether a token refresh is in flight.
func (c *Client) RefreshPending() bool {
	return c.auth.Pending()
}
