package main

import (
	"context"
	"net/http"
	"net/url"

	"github.com/deploymenttheory/go-api-auth-client/authenticationhandler"
	"github.com/deploymenttheory/go-api-auth-client/httpclient"
	"github.com/deploymenttheory/go-api-auth-client/tokenstore"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// cliOptions holds the persistent flags shared by every request command.
type cliOptions struct {
	configPath    string
	baseURL       string
	prefix        string
	module        string
	token         string
	refreshURL    string
	refreshMethod string
	tokenField    string
	tokenDB       string
	logLevel      string
	hideSensitive bool
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	rootCmd := createRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		rootCmd.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

func createRootCmd() *cobra.Command {
	rootCmd, _ := newRootCmd()
	return rootCmd
}

func newRootCmd() (*cobra.Command, *cliOptions) {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "apiclient",
		Short:         "Send authenticated requests to an API, refreshing the access token on 401",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a JSON client configuration file")
	flags.StringVar(&opts.baseURL, "base-url", "", "Base URL of the API")
	flags.StringVar(&opts.prefix, "prefix", "", "Path prefix placed before the module")
	flags.StringVar(&opts.module, "module", "", "Default module path segment")
	flags.StringVar(&opts.token, "token", "", "Access token (defaults to the token stored in --token-db)")
	flags.StringVar(&opts.refreshURL, "refresh-url", "", "Refresh endpoint; refresh is disabled when empty")
	flags.StringVar(&opts.refreshMethod, "refresh-method", authenticationhandler.DefaultRefreshMethod, "HTTP method of the refresh endpoint")
	flags.StringVar(&opts.tokenField, "token-field", authenticationhandler.DefaultTokenField, "JSON field holding the refreshed token")
	flags.StringVar(&opts.tokenDB, "token-db", "", "SQLite file the access token is persisted to")
	flags.StringVar(&opts.logLevel, "log-level", "LogLevelWarn", "Log level [LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError]")
	flags.BoolVar(&opts.hideSensitive, "hide-sensitive-data", true, "Redact tokens and cookies in logs")

	rootCmd.AddCommand(
		requestCmd(http.MethodGet, opts),
		requestCmd(http.MethodPost, opts),
		requestCmd(http.MethodPut, opts),
		requestCmd(http.MethodPatch, opts),
		requestCmd(http.MethodDelete, opts),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	return rootCmd, opts
}

// buildClient builds the client from loadConfig. The returned cleanup closes the token database.
func buildClient(cmd *cobra.Command, opts *cliOptions) (*httpclient.Client, func(), error) {
	config, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, err
	}

	clientOpts := []httpclient.ClientOption{
		httpclient.WithNavigator(authenticationhandler.NavigatorFunc(
			func(_ context.Context, target string, _ authenticationhandler.NavigateOptions) error {
				cmd.PrintErrln("Session expired, sign in again at", target)
				return nil
			},
		)),
	}

	cleanup := func() {}
	if opts.tokenDB != "" {
		db, err := tokenstore.OpenDB(opts.tokenDB)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { closeDatabase(cmd, db) }
		clientOpts = append(clientOpts, httpclient.WithTokenMirrors(tokenstore.NewDBMirror(db, tokenRecordName(config.BaseURL))))
	}

	client, err := httpclient.BuildClient(*config, true, clientOpts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return client, cleanup, nil
}

// loadConfig assembles the configuration from the config file, the environment and the flags,
// in increasing order of precedence. Sensitive data is hidden unless one of them says otherwise.
func loadConfig(cmd *cobra.Command, opts *cliOptions) (*httpclient.ClientConfig, error) {
	config := &httpclient.ClientConfig{HideSensitiveData: true}
	if opts.configPath != "" {
		if err := httpclient.MergeConfigFromFile(opts.configPath, config); err != nil {
			return nil, err
		}
	}

	config, err := httpclient.LoadConfigFromEnv(config)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, opts, config)
	return config, nil
}

func applyFlags(cmd *cobra.Command, opts *cliOptions, config *httpclient.ClientConfig) {
	flags := cmd.Flags()
	set := func(name string, field *string, value string) {
		if flags.Changed(name) {
			*field = value
		}
	}
	set("base-url", &config.BaseURL, opts.baseURL)
	set("prefix", &config.Prefix, opts.prefix)
	set("module", &config.Module, opts.module)
	set("token", &config.Token, opts.token)
	set("log-level", &config.LogLevel, opts.logLevel)
	if config.LogLevel == "" {
		config.LogLevel = opts.logLevel
	}
	if flags.Changed("hide-sensitive-data") {
		config.HideSensitiveData = opts.hideSensitive
	}

	if flags.Changed("refresh-url") {
		if opts.refreshURL == "" {
			config.Refresh = nil
		} else {
			if config.Refresh == nil {
				config.Refresh = &authenticationhandler.RefreshConfig{}
			}
			config.Refresh.URL = opts.refreshURL
		}
	}
	if config.Refresh != nil {
		if flags.Changed("refresh-method") || config.Refresh.Method == "" {
			config.Refresh.Method = opts.refreshMethod
		}
		if flags.Changed("token-field") || config.Refresh.TokenField == "" {
			config.Refresh.TokenField = opts.tokenField
		}
	}
}

// tokenRecordName keys stored tokens by API host so one database can serve several APIs.
func tokenRecordName(baseURL string) string {
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return baseURL
}

func closeDatabase(cmd *cobra.Command, db *gorm.DB) {
	if err := tokenstore.CloseDB(db); err != nil {
		cmd.PrintErrf("Failed to close the token database: %v\n", err)
	}
}
