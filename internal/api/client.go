// Package api is a typed client for the image transformation backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/tokenstore"
	"github.com/raysh454/iro/internal/webclient"
)

// Client calls the backend at baseURL. When the token store holds a token it
// is sent as a bearer token on every request.
type Client struct {
	baseURL string
	wc      webclient.WebClient
	tokens  tokenstore.Store
	logger  logging.Logger
}

// NewClient returns a Client. baseURL is the API root, for example
// "http://localhost:3000/api".
func NewClient(baseURL string, wc webclient.WebClient, tokens tokenstore.Store, logger logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		wc:      wc,
		tokens:  tokens,
		logger:  logger.With(logging.Field{Key: "component", Value: "api"}),
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Tokens returns the token store the client reads from.
func (c *Client) Tokens() tokenstore.Store { return c.tokens }

// call is one outgoing request.
type call struct {
	op          string
	method      string
	path        string
	body        []byte
	contentType string
	// rejectKind is used when a 2xx body reports success:false.
	rejectKind Kind
}

// do sends cl and returns the response when the status is 2xx.
func (c *Client) do(ctx context.Context, cl call) (*webclient.Response, error) {
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if cl.contentType != "" {
		headers.Set("Content-Type", cl.contentType)
	}
	if token := c.token(ctx); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.wc.Do(ctx, &webclient.Request{
		Method:  cl.method,
		URL:     c.baseURL + cl.path,
		Headers: headers,
		Body:    cl.body,
	})
	if err != nil {
		c.logger.Warn("backend unreachable",
			logging.Field{Key: "op", Value: cl.op},
			logging.Field{Key: "error", Value: err})
		return nil, &Error{Kind: KindNetwork, Op: cl.op, Err: err}
	}

	if !resp.OK() {
		apiErr := &Error{
			Kind:    kindForStatus(resp.StatusCode),
			Op:      cl.op,
			Status:  resp.StatusCode,
			Message: decodeErrorMessage(resp.Body),
		}
		c.logger.Warn("backend returned an error",
			logging.Field{Key: "op", Value: cl.op},
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "message", Value: apiErr.Message})
		return nil, apiErr
	}
	return resp, nil
}

// doJSON sends in as JSON (when non-nil) and decodes the response into out.
// A body with "success": false is turned into an Error.
func (c *Client) doJSON(ctx context.Context, cl call, in, out any) error {
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", cl.op, err)
		}
		cl.body = b
		cl.contentType = "application/json"
	}

	resp, err := c.do(ctx, cl)
	if err != nil {
		return err
	}

	var eb errorBody
	if err := json.Unmarshal(resp.Body, &eb); err == nil && eb.Success != nil && !*eb.Success {
		kind := cl.rejectKind
		if kind == "" {
			kind = KindServer
		}
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		return &Error{Kind: kind, Op: cl.op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &Error{Kind: KindServer, Op: cl.op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// token reads the stored token. A read failure is logged and treated as no
// token so the backend can answer with a proper auth error.
func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Load(ctx)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrNoToken) {
			c.logger.Warn("failed to read stored token", logging.Field{Key: "error", Value: err})
		}
		return ""
	}
	return token
}
