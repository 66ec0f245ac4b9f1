package webclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raysh454/iro/internal/logging"
)

var (
	ErrNilRequest       = errors.New("webclient: nil request")
	ErrResponseTooLarge = errors.New("webclient: response body too large")
)

// NetHTTPClient sends backend API calls over net/http.
type NetHTTPClient struct {
	client    *http.Client
	logger    logging.Logger
	userAgent string
	maxBody   int64
}

// NewNetHTTPClient wraps httpClient. A nil httpClient gets one built from
// cfg; a zero cfg.Timeout means no client-side timeout.
func NewNetHTTPClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*NetHTTPClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxResponseBytes < 0 {
		return nil, fmt.Errorf("webclient: negative max_response_bytes %d", cfg.MaxResponseBytes)
	}
	c := &NetHTTPClient{
		client:    httpClient,
		logger:    logger.With(logging.Field{Key: "backend", Value: string(ClientNetHTTP)}),
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxResponseBytes,
	}
	c.logger.Debug("webclient ready",
		logging.Field{Key: "timeout", Value: httpClient.Timeout.String()},
		logging.Field{Key: "max_response_bytes", Value: c.maxBody})
	return c, nil
}

// Do sends req and reads the whole response body. Only the method, the path
// and whether a bearer token was attached are logged.
func (c *NetHTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	fields := []logging.Field{
		{Key: "method", Value: method},
		{Key: "path", Value: logPath(req.URL)},
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	httpReq.Header = req.Headers.Clone()
	if httpReq.Header == nil {
		httpReq.Header = http.Header{}
	}
	if c.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	fields = append(fields, logging.Field{Key: "auth", Value: httpReq.Header.Get("Authorization") != ""})

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("http request failed", append(fields, logging.Field{Key: "error", Value: err})...)
		return nil, fmt.Errorf("%s %s: %w", method, logPath(req.URL), err)
	}
	defer resp.Body.Close()

	data, err := c.readBody(resp.Body)
	if err != nil {
		c.logger.Warn("reading response failed", append(fields, logging.Field{Key: "error", Value: err})...)
		return nil, err
	}

	c.logger.Debug("http response", append(fields,
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "bytes", Value: len(data)},
		logging.Field{Key: "elapsed", Value: time.Since(start).String()})...)

	return &Response{
		Request:    req,
		Headers:    resp.Header,
		Body:       data,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *NetHTTPClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}
	return data, nil
}

func (c *NetHTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// HTTPClient returns the underlying *http.Client.
func (c *NetHTTPClient) HTTPClient() *http.Client {
	return c.client
}

// logPath drops scheme, host and query from raw.
func logPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
