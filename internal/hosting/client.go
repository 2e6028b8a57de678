package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single request/response call. Uploads and log
// streams are bounded by their context only.
const DefaultTimeout = 30 * time.Second

// Client talks to the hosting control plane.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption represents a functional option for configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-call limit for short requests; zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithToken sets the bearer token sent with every control-plane request
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a control-plane client rooted at baseURL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// BaseURL returns the control-plane URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// callContext bounds a short call by the client timeout.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := path
	if strings.HasPrefix(path, "/") {
		url = c.baseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	c.logger.Debug("control plane request", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// a deadline is a transport timeout; cancellation is the caller's
		if ctxErr := req.Context().Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, newNetworkError(fmt.Sprintf("%s %s failed", req.Method, req.URL.Path), err)
	}
	c.logger.Debug("control plane response", zap.String("url", req.URL.String()), zap.Int("status", resp.StatusCode))
	return resp, nil
}

// doJSON sends in (if non-nil) as a JSON body and decodes a 2xx reply into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, what string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return newValidationError("failed to encode "+what+" request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return WrapHTTPError(resp, what+" failed")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newValidationError("failed to decode "+what+" reply", err)
	}
	return nil
}
