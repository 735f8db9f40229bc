// authenticationhandler/authenticationhandler.go

/* Package authenticationhandler coordinates access-token refresh for a client. When
requests fail with 401, exactly one refresh round-trip runs; every request that observed
it resumes with its outcome. */
package authenticationhandler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/concurrency"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/deploymenttheory/go-api-auth-client/status"
	"github.com/deploymenttheory/go-api-auth-client/tokenstore"
	"github.com/deploymenttheory/go-api-auth-client/transport"
	"github.com/google/uuid"
)

// Outcome tells the caller what to do with a failed request.
type Outcome int

const (
	// NoRetry means do not re-issue the request.
	NoRetry Outcome = iota
	// Retry means re-issue the request once with the current token.
	Retry
)

func (o Outcome) String() string {
	if o == Retry {
		return "retry"
	}
	return "no-retry"
}

// FailurePolicy selects what the refresh owner does when the refresh fails.
type FailurePolicy string

const (
	// PolicyRedirect navigates to the unauthorized URL, then surfaces a fatal 401.
	PolicyRedirect FailurePolicy = "redirect"
	// PolicyThrow only surfaces a fatal 401.
	PolicyThrow FailurePolicy = "throw"
)

const (
	DefaultRefreshMethod   = http.MethodPost
	DefaultTokenField      = "access_token"
	DefaultRefreshTimeout  = 30 * time.Second
	DefaultUnauthorizedURL = "/login"
)

// RefreshConfig describes the refresh endpoint. A nil *RefreshConfig disables refresh.
type RefreshConfig struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
	// TokenField is the JSON field holding the new token. Dotted paths such as
	// "data.access_token" address nested objects.
	TokenField string `json:"token_field,omitempty"`
	// Body is sent with the refresh request when set.
	Body any `json:"body,omitempty"`
}

// NavigateOptions mirrors the options of a router navigation.
type NavigateOptions struct {
	Replace  bool
	External bool
}

// Navigator moves the user somewhere after a terminal authentication failure.
type Navigator interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string, opts NavigateOptions) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	return f(ctx, url, opts)
}

// ErrorFactory builds the error surfaced to callers from a classified failure.
type ErrorFactory func(ce *response.ClassifiedError) error

// DefaultErrorFactory returns ce itself.
func DefaultErrorFactory(ce *response.ClassifiedError) error {
	return ce
}

// Config configures a Coordinator.
type Config struct {
	Store     *tokenstore.Store
	Transport transport.Transport
	// Refresh nil disables the refresh path: every 401 surfaces immediately.
	Refresh          *RefreshConfig
	NonFatal         status.Set
	OnRefreshFailure FailurePolicy
	UnauthorizedURL  string
	Navigator        Navigator
	ErrorFactory     ErrorFactory
	RefreshTimeout   time.Duration
	Metrics          *concurrency.Metrics
	Logger           logger.Logger
}

// Coordinator owns the single-flight refresh state of one client.
type Coordinator struct {
	store           *tokenstore.Store
	transport       transport.Transport
	refresh         *RefreshConfig
	nonFatal        status.Set
	policy          FailurePolicy
	unauthorizedURL string
	navigator       Navigator
	errorFactory    ErrorFactory
	refreshTimeout  time.Duration
	metrics         *concurrency.Metrics
	log             logger.Logger

	mu      sync.Mutex
	pending *refreshOperation
}

// refreshOperation is the shared handle all callers observe while a refresh runs.
// token and err are written once, before done is closed.
type refreshOperation struct {
	id        uuid.UUID
	done      chan struct{}
	token     string
	err       error
	followers int // guarded by Coordinator.mu
}

// NewCoordinator validates cfg and fills in defaults.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	c := &Coordinator{
		store:           cfg.Store,
		transport:       cfg.Transport,
		refresh:         cfg.Refresh,
		nonFatal:        cfg.NonFatal,
		policy:          cfg.OnRefreshFailure,
		unauthorizedURL: cfg.UnauthorizedURL,
		navigator:       cfg.Navigator,
		errorFactory:    cfg.ErrorFactory,
		refreshTimeout:  cfg.RefreshTimeout,
		metrics:         cfg.Metrics,
		log:             cfg.Logger,
	}
	return c, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Store == nil {
		return fmt.Errorf("coordinator requires a token store")
	}
	if cfg.Transport == nil {
		return fmt.Errorf("coordinator requires a transport")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &concurrency.Metrics{}
	}
	if cfg.NonFatal == nil {
		cfg.NonFatal = status.DefaultNonFatal()
	}
	if cfg.ErrorFactory == nil {
		cfg.ErrorFactory = DefaultErrorFactory
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.UnauthorizedURL == "" {
		cfg.UnauthorizedURL = DefaultUnauthorizedURL
	}

	switch cfg.OnRefreshFailure {
	case "":
		cfg.OnRefreshFailure = PolicyRedirect
	case PolicyRedirect, PolicyThrow:
	default:
		return fmt.Errorf("invalid refresh failure policy %q: must be %q or %q", cfg.OnRefreshFailure, PolicyRedirect, PolicyThrow)
	}

	if cfg.Refresh != nil {
		refresh := *cfg.Refresh
		if refresh.URL == "" {
			return fmt.Errorf("refresh URL is required when refresh is configured")
		}
		refresh.Method = strings.ToUpper(refresh.Method)
		if refresh.Method == "" {
			refresh.Method = DefaultRefreshMethod
		}
		switch refresh.Method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			return fmt.Errorf("unsupported refresh method %q", refresh.Method)
		}
		if refresh.TokenField == "" {
			refresh.TokenField = DefaultTokenField
		}
		cfg.Refresh = &refresh
	}
	return nil
}

// RefreshEnabled reports whether a refresh endpoint is configured.
func (c *Coordinator) RefreshEnabled() bool {
	return c.refresh != nil
}
