// httpclient/client_configuration.go
// Description: This file contains functions to load and validate configuration values from a JSON file or environment variables.
package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/authenticationhandler"
	"github.com/deploymenttheory/go-api-auth-client/concurrency"
	"github.com/deploymenttheory/go-api-auth-client/cookiejar"
	"github.com/deploymenttheory/go-api-auth-client/logger"
)

const (
	DefaultLogLevelString        = "LogLevelInfo"
	DefaultLogOutputFormatString = logger.LogOutputJSON
	DefaultLogConsoleSeparator   = "	"
	DefaultMaxConcurrentRequests = concurrency.DefaultMaxConcurrentRequests
	DefaultCustomTimeout         = 10 * time.Second
	DefaultRefreshTimeout        = authenticationhandler.DefaultRefreshTimeout
	DefaultFollowRedirects       = false
	DefaultMaxRedirects          = 5
	DefaultAccessTokenName       = cookiejar.DefaultAccessTokenName
	DefaultUnauthorizedURL       = authenticationhandler.DefaultUnauthorizedURL
	DefaultOnRefreshFailure      = authenticationhandler.PolicyRedirect
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "APICLIENT_"

// ClientConfig holds everything BuildClient needs. Durations are read from files and
// the environment as whole seconds.
type ClientConfig struct {
	// API
	BaseURL string `json:"base_url"`
	Prefix  string `json:"prefix,omitempty"`
	Module  string `json:"module,omitempty"`

	// Auth
	Token            string                               `json:"token,omitempty"`
	Refresh          *authenticationhandler.RefreshConfig `json:"refresh,omitempty"`
	AccessTokenName  string                               `json:"access_token_name,omitempty"`
	UnauthorizedURL  string                               `json:"unauthorized_url,omitempty"`
	OnRefreshFailure authenticationhandler.FailurePolicy  `json:"on_refresh_failure,omitempty"`
	// NonFatalStatusCodes replaces the default {401, 422} set when non-empty.
	NonFatalStatusCodes []int `json:"non_fatal_status_codes,omitempty"`

	// Headers
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`

	// Log
	LogLevel            string `json:"log_level,omitempty"`
	LogOutputFormat     string `json:"log_output_format,omitempty"` // "json" or "console"
	LogConsoleSeparator string `json:"log_console_separator,omitempty"`
	LogExportPath       string `json:"log_export_path,omitempty"`
	HideSensitiveData   bool   `json:"hide_sensitive_data,omitempty"`

	// Cookies
	CookieJarEnabled bool `json:"cookie_jar_enabled,omitempty"`

	// Proxy
	ProxyURL      string `json:"proxy_url,omitempty"`
	ProxyUsername string `json:"proxy_username,omitempty"`
	ProxyPassword string `json:"proxy_password,omitempty"`

	// Misc
	MaxConcurrentRequests int           `json:"max_concurrent_requests,omitempty"`
	CustomTimeout         time.Duration `json:"-"`
	RefreshTimeout        time.Duration `json:"-"`
	FollowRedirects       bool          `json:"follow_redirects,omitempty"`
	MaxRedirects          int           `json:"max_redirects,omitempty"`
}

// SetDefaultValuesClientConfig fills every unset field with its default.
func SetDefaultValuesClientConfig(config *ClientConfig) {
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevelString
	}

	if config.LogOutputFormat == "" {
		config.LogOutputFormat = DefaultLogOutputFormatString
	}

	if config.LogConsoleSeparator == "" {
		config.LogConsoleSeparator = DefaultLogConsoleSeparator
	}

	if config.AccessTokenName == "" {
		config.AccessTokenName = DefaultAccessTokenName
	}

	if config.UnauthorizedURL == "" {
		config.UnauthorizedURL = DefaultUnauthorizedURL
	}

	if config.OnRefreshFailure == "" {
		config.OnRefreshFailure = DefaultOnRefreshFailure
	}

	if config.MaxConcurrentRequests == 0 {
		config.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}

	if config.CustomTimeout == 0 {
		config.CustomTimeout = DefaultCustomTimeout
	}

	if config.RefreshTimeout == 0 {
		config.RefreshTimeout = DefaultRefreshTimeout
	}

	if config.MaxRedirects == 0 {
		config.MaxRedirects = DefaultMaxRedirects
	}
}

func validateClientConfig(config ClientConfig) error {
	if config.BaseURL == "" {
		return errors.New("base URL is required")
	}
	u, err := url.Parse(config.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL: %s", config.BaseURL)
	}

	validLogLevels := []string{
		"LogLevelDebug",
		"LogLevelInfo",
		"LogLevelWarn",
		"LogLevelError",
		"LogLevelDPanic",
		"LogLevelPanic",
		"LogLevelFatal",
	}
	if !slices.Contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validLogFormats := []string{
		logger.LogOutputJSON,
		logger.LogOutputConsole,
	}
	if !slices.Contains(validLogFormats, config.LogOutputFormat) {
		return fmt.Errorf("invalid log output format: %s", config.LogOutputFormat)
	}

	switch config.OnRefreshFailure {
	case "", authenticationhandler.PolicyRedirect, authenticationhandler.PolicyThrow:
	default:
		return fmt.Errorf("invalid refresh failure policy: %s", config.OnRefreshFailure)
	}

	if config.Refresh != nil && config.Refresh.URL == "" {
		return errors.New("refresh URL cannot be empty when refresh is configured")
	}

	for _, code := range config.NonFatalStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("invalid non-fatal status code: %d", code)
		}
	}

	if config.MaxConcurrentRequests < 1 {
		return errors.New("maximum concurrent requests cannot be less than 1")
	}

	if config.CustomTimeout < 0 {
		return errors.New("timeout cannot be less than 0 seconds")
	}

	if config.RefreshTimeout < 0 {
		return errors.New("refresh timeout cannot be less than 0 seconds")
	}

	if config.FollowRedirects && config.MaxRedirects < 1 {
		return errors.New("max redirects cannot be less than 1")
	}

	return nil
}

// LoadConfigFromEnv overlays APICLIENT_* environment variables onto config. A nil config
// starts from an empty one.
func LoadConfigFromEnv(config *ClientConfig) (*ClientConfig, error) {
	if config == nil {
		config = &ClientConfig{}
	}

	setString := func(name string, field *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*field = v
		}
	}
	setString("BASE_URL", &config.BaseURL)
	setString("PREFIX", &config.Prefix)
	setString("MODULE", &config.Module)
	setString("TOKEN", &config.Token)
	setString("ACCESS_TOKEN_NAME", &config.AccessTokenName)
	setString("UNAUTHORIZED_URL", &config.UnauthorizedURL)
	setString("LOG_LEVEL", &config.LogLevel)
	setString("LOG_OUTPUT_FORMAT", &config.LogOutputFormat)
	setString("LOG_EXPORT_PATH", &config.LogExportPath)
	setString("PROXY_URL", &config.ProxyURL)
	setString("PROXY_USERNAME", &config.ProxyUsername)
	setString("PROXY_PASSWORD", &config.ProxyPassword)

	if v, ok := os.LookupEnv(EnvPrefix + "ON_REFRESH_FAILURE"); ok {
		config.OnRefreshFailure = authenticationhandler.FailurePolicy(v)
	}

	if v, ok := os.LookupEnv(EnvPrefix + "REFRESH_URL"); ok {
		if config.Refresh == nil {
			config.Refresh = &authenticationhandler.RefreshConfig{}
		}
		config.Refresh.URL = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "REFRESH_METHOD"); ok && config.Refresh != nil {
		config.Refresh.Method = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "REFRESH_TOKEN_FIELD"); ok && config.Refresh != nil {
		config.Refresh.TokenField = v
	}

	var err error
	if config.HideSensitiveData, err = envBool("HIDE_SENSITIVE_DATA", config.HideSensitiveData); err != nil {
		return nil, err
	}
	if config.CookieJarEnabled, err = envBool("COOKIE_JAR_ENABLED", config.CookieJarEnabled); err != nil {
		return nil, err
	}
	if config.FollowRedirects, err = envBool("FOLLOW_REDIRECTS", config.FollowRedirects); err != nil {
		return nil, err
	}
	if config.MaxConcurrentRequests, err = envInt("MAX_CONCURRENT_REQUESTS", config.MaxConcurrentRequests); err != nil {
		return nil, err
	}
	if config.MaxRedirects, err = envInt("MAX_REDIRECTS", config.MaxRedirects); err != nil {
		return nil, err
	}
	if config.CustomTimeout, err = envSeconds("TIMEOUT_SECONDS", config.CustomTimeout); err != nil {
		return nil, err
	}
	if config.RefreshTimeout, err = envSeconds("REFRESH_TIMEOUT_SECONDS", config.RefreshTimeout); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv(EnvPrefix + "NON_FATAL_STATUS_CODES"); ok {
		codes, err := parseStatusCodes(v)
		if err != nil {
			return nil, err
		}
		config.NonFatalStatusCodes = codes
	}

	return config, nil
}

func envBool(name string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return b, nil
}

func envInt(name string, fallback int) (int, error) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return n, nil
}

func envSeconds(name string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return time.Duration(n) * time.Second, nil
}

func parseStatusCodes(list string) ([]int, error) {
	var codes []int
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		code, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q: %w", field, err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}
