package httpclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/authenticationhandler"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/deploymenttheory/go-api-auth-client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const refreshPath = "/auth/refresh"

// fakeAPI records every request and answers through handle.
type fakeAPI struct {
	mu       sync.Mutex
	requests []*transport.Request
	handle   func(ctx context.Context, req *transport.Request) (*response.Response, error)
}

func (f *fakeAPI) Send(ctx context.Context, req *transport.Request) (*response.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.handle(ctx, req)
}

func (f *fakeAPI) sent(path string) []*transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*transport.Request
	for _, req := range f.requests {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

func ok(body string) *response.Response {
	return &response.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(body),
	}
}

func apiError(statusCode int, path string) error {
	return &response.APIError{StatusCode: statusCode, URL: path}
}

func bearer(req *transport.Request) string {
	return req.Header.Get("Authorization")
}

// tokenAPI serves 200 to requests carrying Bearer valid and 401 otherwise. Refresh
// requests are answered by refresh.
func tokenAPI(valid string, refresh func() (*response.Response, error)) *fakeAPI {
	return &fakeAPI{
		handle: func(_ context.Context, req *transport.Request) (*response.Response, error) {
			if req.Path == refreshPath {
				return refresh()
			}
			if bearer(req) == "Bearer "+valid {
				return ok(`{"ok":true}`), nil
			}
			return nil, apiError(http.StatusUnauthorized, req.Path)
		},
	}
}

func newTestClient(t *testing.T, config ClientConfig, api transport.Transport, opts ...ClientOption) *Client {
	t.Helper()
	if config.BaseURL == "" {
		config.BaseURL = "https://api.example.com"
	}
	opts = append([]ClientOption{WithLogger(logger.NewNopLogger()), WithTransport(api)}, opts...)
	client, err := BuildClient(config, true, opts...)
	require.NoError(t, err)
	return client
}

func observedLogger() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewLogger(zap.New(core), logger.LogLevelDebug), logs
}

// waitForPreflight blocks until n requests are parked behind the pending refresh.
func waitForPreflight(t *testing.T, logs *observer.ObservedLogs, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Waiting for in-flight token refresh").Len() >= n
	}, time.Second, time.Millisecond)
}

func refreshingConfig(token string) ClientConfig {
	return ClientConfig{
		Token:   token,
		Refresh: &authenticationhandler.RefreshConfig{URL: refreshPath, Method: "post"},
	}
}

func TestDo_RefreshThenRetry(t *testing.T) {
	api := tokenAPI("new", func() (*response.Response, error) {
		return ok(`{"access_token":"new"}`), nil
	})
	client := newTestClient(t, refreshingConfig("expired"), api)

	resp, err := client.Get(context.Background(), "/orders")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "new", client.Token())

	orders := api.sent("/orders")
	require.Len(t, orders, 2)
	assert.Equal(t, "Bearer expired", bearer(orders[0]))
	assert.Equal(t, "Bearer new", bearer(orders[1]))

	refreshes := api.sent(refreshPath)
	require.Len(t, refreshes, 1)
	assert.Equal(t, http.MethodPost, refreshes[0].Method)
	assert.Equal(t, "Bearer expired", bearer(refreshes[0]))

	metrics := client.Metrics()
	assert.Equal(t, int64(1), metrics.TotalRetries)
	assert.Equal(t, int64(1), metrics.TotalRefreshes)
	assert.Equal(t, int64(0), metrics.RefreshFailures)
}

func TestDo_RefreshFailureNavigatesAndFails(t *testing.T) {
	api := tokenAPI("new", func() (*response.Response, error) {
		return nil, apiError(http.StatusInternalServerError, refreshPath)
	})

	var navigations []string
	var navOpts authenticationhandler.NavigateOptions
	nav := authenticationhandler.NavigatorFunc(func(_ context.Context, url string, opts authenticationhandler.NavigateOptions) error {
		navigations = append(navigations, url)
		navOpts = opts
		return nil
	})
	client := newTestClient(t, refreshingConfig("expired"), api, WithNavigator(nav))

	resp, err := client.Get(context.Background(), "/orders")

	assert.Nil(t, resp)
	var ce *response.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.True(t, ce.Fatal)
	assert.ErrorIs(t, err, response.ErrRefreshFailed)

	assert.Equal(t, []string{DefaultUnauthorizedURL}, navigations)
	assert.Equal(t, authenticationhandler.NavigateOptions{Replace: true, External: false}, navOpts)
	assert.Len(t, api.sent("/orders"), 1)
	assert.Equal(t, "expired", client.Token())
}

func TestDo_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 8
	var arrived atomic.Int32
	allSent := make(chan struct{})

	// Every first attempt is held until all n have reached the API, so none of them can
	// be parked behind the refresh before sending.
	api := &fakeAPI{}
	api.handle = func(ctx context.Context, req *transport.Request) (*response.Response, error) {
		if req.Path == refreshPath {
			return ok(`{"access_token":"new"}`), nil
		}
		if bearer(req) == "Bearer new" {
			return ok(`{}`), nil
		}
		if arrived.Add(1) == n {
			close(allSent)
		}
		select {
		case <-allSent:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, apiError(http.StatusUnauthorized, req.Path)
	}
	client := newTestClient(t, refreshingConfig("expired"), api)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(context.Background(), "/orders")
			if err == nil && resp == nil {
				err = errors.New("request was swallowed")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, api.sent(refreshPath), 1)
	assert.Equal(t, "new", client.Token())
	assert.Equal(t, int64(n), client.Metrics().TotalRetries)
}

func TestDo_PreflightWaitsForPendingRefresh(t *testing.T) {
	release := make(chan struct{})
	api := tokenAPI("new", func() (*response.Response, error) {
		<-release
		return ok(`{"access_token":"new"}`), nil
	})
	log, logs := observedLogger()
	client := newTestClient(t, refreshingConfig("expired"), api, WithLogger(log))

	first := make(chan error, 1)
	go func() {
		_, err := client.Get(context.Background(), "/orders")
		first <- err
	}()
	require.Eventually(t, client.RefreshPending, time.Second, time.Millisecond)

	second := make(chan *response.Response, 1)
	go func() {
		resp, err := client.Get(context.Background(), "/customers")
		assert.NoError(t, err)
		second <- resp
	}()

	waitForPreflight(t, logs, 1)
	assert.Empty(t, api.sent("/customers"), "request reached the transport while a refresh was pending")

	close(release)

	require.NoError(t, <-first)
	require.NotNil(t, <-second)

	customers := api.sent("/customers")
	require.Len(t, customers, 1)
	assert.Equal(t, "Bearer new", bearer(customers[0]))
}

func TestDo_PreflightRefreshFailureIsSwallowed(t *testing.T) {
	release := make(chan struct{})
	api := tokenAPI("new", func() (*response.Response, error) {
		<-release
		return nil, apiError(http.StatusBadGateway, refreshPath)
	})
	config := refreshingConfig("expired")
	config.OnRefreshFailure = authenticationhandler.PolicyThrow
	log, logs := observedLogger()
	client := newTestClient(t, config, api, WithLogger(log))

	first := make(chan error, 1)
	go func() {
		_, err := client.Get(context.Background(), "/orders")
		first <- err
	}()
	require.Eventually(t, client.RefreshPending, time.Second, time.Millisecond)

	type result struct {
		resp *response.Response
		err  error
	}
	second := make(chan result, 1)
	go func() {
		resp, err := client.Get(context.Background(), "/customers")
		second <- result{resp, err}
	}()

	waitForPreflight(t, logs, 1)
	close(release)

	assert.True(t, response.IsFatal(<-first))
	got := <-second
	assert.NoError(t, got.err)
	assert.Nil(t, got.resp)
	assert.Empty(t, api.sent("/customers"))
	assert.Equal(t, int64(1), client.Metrics().SwallowedFailures)
}

func TestDo_NoRefreshConfiguredFailsImmediately(t *testing.T) {
	api := tokenAPI("new", func() (*response.Response, error) {
		return ok(`{"access_token":"new"}`), nil
	})
	client := newTestClient(t, ClientConfig{Token: "expired"}, api)

	resp, err := client.Get(context.Background(), "/orders")

	assert.Nil(t, resp)
	var ce *response.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.Len(t, api.sent("/orders"), 1)
	assert.Empty(t, api.sent(refreshPath))
}

func TestDo_NeverAuthenticated(t *testing.T) {
	api := tokenAPI("new", func() (*response.Response, error) {
		return ok(`{"access_token":"new"}`), nil
	})
	client := newTestClient(t, refreshingConfig(""), api)

	_, err := client.Get(context.Background(), "/orders")

	assert.ErrorIs(t, err, response.ErrAuthenticationRequired)
	assert.True(t, response.IsFatal(err))
	assert.Empty(t, api.sent(refreshPath))

	orders := api.sent("/orders")
	require.Len(t, orders, 1)
	assert.Empty(t, orders[0].Header.Values("Authorization"))
}

func TestDo_TransportErrorPropagatesUnchanged(t *testing.T) {
	dialErr := errors.New("dial tcp: connection refused")
	api := &fakeAPI{handle: func(context.Context, *transport.Request) (*response.Response, error) {
		return nil, dialErr
	}}
	client := newTestClient(t, refreshingConfig("token"), api)

	_, err := client.Post(context.Background(), "/orders", map[string]int{"qty": 1})

	assert.ErrorIs(t, err, dialErr)
	assert.Len(t, api.requests, 1)
	assert.False(t, client.RefreshPending())
}

func TestDo_RetryFailureIsNotRetriedAgain(t *testing.T) {
	api := &fakeAPI{}
	api.handle = func(_ context.Context, req *transport.Request) (*response.Response, error) {
		switch {
		case req.Path == refreshPath:
			return ok(`{"access_token":"new"}`), nil
		case bearer(req) == "Bearer new":
			return nil, apiError(http.StatusForbidden, req.Path)
		default:
			return nil, apiError(http.StatusUnauthorized, req.Path)
		}
	}
	client := newTestClient(t, refreshingConfig("expired"), api)

	_, err := client.Delete(context.Background(), "/orders/7", nil)

	var ce *response.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusForbidden, ce.StatusCode)
	assert.True(t, ce.Fatal)
	assert.Len(t, api.sent("/orders/7"), 2)
	assert.Len(t, api.sent(refreshPath), 1)
}

func TestDo_RetryUnauthorizedAgainSurfaces(t *testing.T) {
	api := tokenAPI("never", func() (*response.Response, error) {
		return ok(`{"access_token":"new"}`), nil
	})
	client := newTestClient(t, refreshingConfig("expired"), api)

	_, err := client.Get(context.Background(), "/orders")

	var ce *response.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.False(t, ce.Fatal)
	assert.Len(t, api.sent("/orders"), 2)
	assert.Len(t, api.sent(refreshPath), 1)
}

func TestDo_ClassifiesOtherStatuses(t *testing.T) {
	api := &fakeAPI{handle: func(_ context.Context, req *transport.Request) (*response.Response, error) {
		return nil, &response.APIError{StatusCode: http.StatusUnprocessableEntity, URL: req.Path, Message: "qty must be positive"}
	}}
	client := newTestClient(t, refreshingConfig("token"), api)

	_, err := client.Put(context.Background(), "/orders/7", map[string]int{"qty": -1})

	var ce *response.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnprocessableEntity, ce.StatusCode)
	assert.False(t, ce.Fatal)
	assert.Equal(t, "qty must be positive", ce.Message)
	assert.Empty(t, api.sent(refreshPath))
}

func TestDo_CustomNonFatalStatusCodes(t *testing.T) {
	api := &fakeAPI{handle: func(_ context.Context, req *transport.Request) (*response.Response, error) {
		return nil, apiError(http.StatusConflict, req.Path)
	}}
	config := refreshingConfig("token")
	config.NonFatalStatusCodes = []int{http.StatusUnauthorized, http.StatusConflict}
	client := newTestClient(t, config, api)

	_, err := client.Patch(context.Background(), "/orders/7", map[string]string{"state": "shipped"})

	require.Error(t, err)
	assert.False(t, response.IsFatal(err))
}

func TestDo_CustomErrorFactory(t *testing.T) {
	type renderedError struct{ error }
	api := &fakeAPI{handle: func(_ context.Context, req *transport.Request) (*response.Response, error) {
		return nil, apiError(http.StatusNotFound, req.Path)
	}}
	factory := func(ce *response.ClassifiedError) error { return renderedError{ce} }
	client := newTestClient(t, refreshingConfig("token"), api, WithErrorFactory(factory))

	_, err := client.Get(context.Background(), "/orders/404")

	var rendered renderedError
	assert.ErrorAs(t, err, &rendered)
}

func TestDo_Headers(t *testing.T) {
	api := &fakeAPI{handle: func(context.Context, *transport.Request) (*response.Response, error) {
		return ok(`{}`), nil
	}}
	config := ClientConfig{Token: "abc", CustomHeaders: map[string]string{"X-Tenant": "acme"}}
	client := newTestClient(t, config, api)

	_, err := client.Post(context.Background(), "/orders", map[string]int{"qty": 1},
		WithHeader("X-Request-Source", "test"),
		WithHeader("Authorization", "Basic override"),
	)
	require.NoError(t, err)

	req := api.sent("/orders")[0]
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "acme", req.Header.Get("X-Tenant"))
	assert.Equal(t, "test", req.Header.Get("X-Request-Source"))
	assert.NotEmpty(t, req.Header.Get("User-Agent"))

	_, err = client.Get(context.Background(), "/orders")
	require.NoError(t, err)
	assert.Empty(t, api.sent("/orders")[1].Header.Get("Content-Type"))
}

func TestDo_DeleteSendsBody(t *testing.T) {
	api := &fakeAPI{handle: func(context.Context, *transport.Request) (*response.Response, error) {
		return ok(`{}`), nil
	}}
	client := newTestClient(t, ClientConfig{Token: "abc"}, api)

	body := map[string][]int{"ids": {7, 8}}
	_, err := client.Delete(context.Background(), "/orders", body)
	require.NoError(t, err)

	req := api.sent("/orders")[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, body, req.Body)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestDo_NoTokenSendsNoAuthorization(t *testing.T) {
	api := &fakeAPI{handle: func(context.Context, *transport.Request) (*response.Response, error) {
		return ok(`{}`), nil
	}}
	client := newTestClient(t, ClientConfig{}, api)

	_, err := client.Get(context.Background(), "/public")
	require.NoError(t, err)

	_, present := api.sent("/public")[0].Header["Authorization"]
	assert.False(t, present)
}

func TestBuildPath(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		module string
		url    string
		opts   []RequestOption
		want   string
	}{
		{name: "url only", url: "orders", want: "/orders"},
		{name: "leading slash", url: "/orders", want: "/orders"},
		{name: "module", module: "sales", url: "/orders", want: "/sales/orders"},
		{name: "prefix and module", prefix: "/api/v1/", module: "/sales/", url: "/orders", want: "/api/v1/sales/orders"},
		{name: "module override", module: "sales", url: "orders", opts: []RequestOption{WithModule("billing")}, want: "/billing/orders"},
		{name: "empty override drops module", prefix: "api", module: "sales", url: "orders", opts: []RequestOption{WithModule("")}, want: "/api/orders"},
		{name: "query string", module: "sales", url: "orders?page=2", want: "/sales/orders?page=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{config: ClientConfig{Prefix: tt.prefix, Module: tt.module}}
			assert.Equal(t, tt.want, c.buildPath(newRequestOptions(tt.opts), tt.url))
		})
	}
}

func TestDo_UsesResolvedPath(t *testing.T) {
	api := &fakeAPI{handle: func(context.Context, *transport.Request) (*response.Response, error) {
		return ok(`{}`), nil
	}}
	client := newTestClient(t, ClientConfig{Prefix: "api", Module: "sales", Token: "t"}, api)

	_, err := client.Get(context.Background(), "orders", WithModule("billing"))
	require.NoError(t, err)

	require.Len(t, api.requests, 1)
	assert.Equal(t, "/api/billing/orders", api.requests[0].Path)
	assert.Equal(t, http.MethodGet, api.requests[0].Method)
}
