// transport/resty.go
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/concurrency"
	"github.com/deploymenttheory/go-api-auth-client/headers"
	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/go-resty/resty/v2"
)

// RestyTransport is the default Transport, built on a resty client wrapping the given http.Client.
type RestyTransport struct {
	client            *resty.Client
	log               logger.Logger
	hideSensitiveData bool
}

// RestyOptions configures NewRestyTransport.
type RestyOptions struct {
	BaseURL           string
	Timeout           time.Duration
	HideSensitiveData bool
}

// NewRestyTransport returns a transport sending through httpClient. Redirects, proxy and
// cookie jar are whatever httpClient is configured with. resty's own retries stay disabled.
func NewRestyTransport(httpClient *http.Client, opts RestyOptions, log logger.Logger) *RestyTransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	client := resty.NewWithClient(httpClient).
		SetBaseURL(opts.BaseURL).
		SetLogger(restyLogger{log: log}).
		SetRetryCount(0).
		SetDisableWarn(true)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &RestyTransport{client: client, log: log, hideSensitiveData: opts.HideSensitiveData}
}

// Send performs one round trip.
func (t *RestyTransport) Send(ctx context.Context, req *Request) (*response.Response, error) {
	r := t.client.R().SetContext(ctx)
	for name, values := range req.Header {
		for _, value := range values {
			r.Header.Add(name, value)
		}
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	headers.NewHeaderHandler(r.Header, t.log).LogHeaders(t.hideSensitiveData)

	start := time.Now()
	resp, err := r.Execute(req.Method, req.Path)
	duration := time.Since(start)

	requestID := ""
	if id, ok := concurrency.RequestIDFromContext(ctx); ok {
		requestID = id.String()
	}

	if err != nil {
		logger.LogRequest(t.log, requestID, req.Method, req.Path, 0, duration)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}

	logger.LogRequest(t.log, requestID, req.Method, req.Path, resp.StatusCode(), duration)

	url := req.Path
	if resp.Request != nil && resp.Request.RawRequest != nil {
		url = resp.Request.RawRequest.URL.String()
	}

	if resp.IsError() {
		return nil, response.NewAPIError(resp.StatusCode(), req.Method, url, resp.Header(), resp.Body())
	}

	headers.CheckDeprecationHeader(resp.Header(), url, t.log)

	return &response.Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
		Method:     req.Method,
		URL:        url,
	}, nil
}

// restyLogger adapts logger.Logger to resty.Logger.
type restyLogger struct {
	log logger.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	_ = l.log.Error(fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
