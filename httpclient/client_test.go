package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/deploymenttheory/go-api-auth-client/authenticationhandler"
	"github.com/deploymenttheory/go-api-auth-client/cookiejar"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/deploymenttheory/go-api-auth-client/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ordersServer accepts Bearer new on /api/sales/orders and hands out "new" on /auth/refresh.
type ordersServer struct {
	*httptest.Server

	mu            sync.Mutex
	authHeaders   []string
	refreshCalls  int
	refreshStatus int
}

func newOrdersServer(t *testing.T) *ordersServer {
	s := &ordersServer{refreshStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sales/orders", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.authHeaders = append(s.authHeaders, r.Header.Get("Authorization"))
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token expired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 7, "qty": 2}})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.refreshCalls++
		code := s.refreshStatus
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodPost || code != http.StatusOK {
			if code == http.StatusOK {
				code = http.StatusMethodNotAllowed
			}
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"message":"refresh unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"new"}`))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *ordersServer) config(token string) ClientConfig {
	return ClientConfig{
		BaseURL: s.URL,
		Prefix:  "api",
		Module:  "sales",
		Token:   token,
		Refresh: &authenticationhandler.RefreshConfig{URL: "/auth/refresh", Method: "post"},
	}
}

func TestClient_EndToEndRefreshThenRetry(t *testing.T) {
	server := newOrdersServer(t)
	client, err := BuildClient(server.config("expired"), true, WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)

	resp, err := client.Get(context.Background(), "/orders")
	require.NoError(t, err)
	require.NotNil(t, resp)

	var orders []struct {
		ID  int `json:"id"`
		Qty int `json:"qty"`
	}
	require.NoError(t, resp.Decode(&orders))
	assert.Equal(t, 7, orders[0].ID)

	assert.Equal(t, []string{"Bearer expired", "Bearer new"}, server.authHeaders)
	assert.Equal(t, 1, server.refreshCalls)
	assert.Equal(t, "new", client.Token())
}

func TestClient_EndToEndRefreshFailure(t *testing.T) {
	server := newOrdersServer(t)
	server.refreshStatus = http.StatusInternalServerError

	var navigated []string
	nav := authenticationhandler.NavigatorFunc(func(_ context.Context, url string, _ authenticationhandler.NavigateOptions) error {
		navigated = append(navigated, url)
		return nil
	})
	config := server.config("expired")
	config.UnauthorizedURL = "/session-expired"
	client, err := BuildClient(config, true, WithLogger(logger.NewNopLogger()), WithNavigator(nav))
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/orders")

	var ce *response.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.True(t, ce.Fatal)

	var apiErr *response.APIError
	require.ErrorAs(t, err, &apiErr, "the refresh failure stays in the chain")
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	assert.Equal(t, []string{"/session-expired"}, navigated)
}

func TestClient_CookieMirror(t *testing.T) {
	server := newOrdersServer(t)
	httpClient := &http.Client{}
	config := server.config("expired")
	config.CookieJarEnabled = true

	client, err := BuildClient(config, true, WithLogger(logger.NewNopLogger()), WithHTTPClient(httpClient))
	require.NoError(t, err)
	require.NotNil(t, httpClient.Jar)

	_, err = client.Get(context.Background(), "/orders")
	require.NoError(t, err)

	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	var stored string
	for _, cookie := range httpClient.Jar.Cookies(base) {
		if cookie.Name == DefaultAccessTokenName {
			stored = cookie.Value
		}
	}
	assert.Equal(t, "new", stored)
}

func TestClient_DefaultConfigMirrorsTokenIntoCookie(t *testing.T) {
	server := newOrdersServer(t)
	client, err := BuildClient(server.config("expired"), true, WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	assert.Nil(t, client.http.Jar, "the HTTP client keeps no jar unless enabled")

	_, err = client.Get(context.Background(), "/orders")
	require.NoError(t, err)

	require.NotNil(t, client.cookies)
	assert.Equal(t, DefaultAccessTokenName, client.cookies.Name())
	stored, err := client.cookies.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", stored)
}

func TestClient_TokenPrimedFromCookie(t *testing.T) {
	server := newOrdersServer(t)
	httpClient := &http.Client{}
	require.NoError(t, cookiejar.SetupCookieJar(httpClient, true, logger.NewNopLogger()))

	mirror, err := cookiejar.NewMirror(httpClient.Jar, server.URL, "session_token")
	require.NoError(t, err)
	require.NoError(t, mirror.Save(context.Background(), "new"))

	config := server.config("")
	config.CookieJarEnabled = true
	config.AccessTokenName = "session_token"
	client, err := BuildClient(config, true, WithLogger(logger.NewNopLogger()), WithHTTPClient(httpClient))
	require.NoError(t, err)

	assert.Equal(t, "new", client.Token())

	_, err = client.Get(context.Background(), "/orders")
	require.NoError(t, err)
	assert.Equal(t, 0, server.refreshCalls)
}

func TestClient_TokenPersistedToDatabase(t *testing.T) {
	server := newOrdersServer(t)
	db, err := tokenstore.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tokenstore.CloseDB(db) })

	mirror := tokenstore.NewDBMirror(db, "orders-api")
	require.NoError(t, mirror.Save(context.Background(), "expired"))

	client, err := BuildClient(server.config(""), true,
		WithLogger(logger.NewNopLogger()),
		WithTokenMirrors(mirror),
	)
	require.NoError(t, err)
	assert.Equal(t, "expired", client.Token())

	_, err = client.Get(context.Background(), "/orders")
	require.NoError(t, err)

	stored, err := mirror.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", stored)
}

func TestClient_SetToken(t *testing.T) {
	server := newOrdersServer(t)
	client, err := BuildClient(server.config(""), true, WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)

	require.NoError(t, client.SetToken(context.Background(), "new"))

	resp, err := client.Get(context.Background(), "/orders")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer new"}, server.authHeaders)
}

func TestBuildClient_InvalidConfig(t *testing.T) {
	_, err := BuildClient(ClientConfig{}, true, WithLogger(logger.NewNopLogger()))
	assert.ErrorContains(t, err, "invalid configuration")

	_, err = BuildClient(ClientConfig{BaseURL: "https://api.example.com"}, false, WithLogger(logger.NewNopLogger()))
	assert.ErrorContains(t, err, "invalid log level")
}
