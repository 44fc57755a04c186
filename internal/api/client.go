// Package api is a client for the Universal Adapter HTTP/SSE API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/universal-adapter/hubctl/internal"
)

// DefaultTimeout bounds every request except the discovery stream
const DefaultTimeout = 30 * time.Second

// ErrNotFound matches any *Error with a 404 status
var ErrNotFound = errors.New("not found")

// Error is a non-2xx response from the hub
type Error struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

// Is reports 404s as ErrNotFound
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client talks to one hub instance
type Client struct {
	baseURL string
	rest    *resty.Client
	stream  *resty.Client
}

// Option configures a Client
type Option func(*Client)

// WithTimeout overrides DefaultTimeout for request/response calls
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rest.SetTimeout(d)
		}
	}
}

// WithHeader adds a header to every request, streams included
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.rest.SetHeader(key, value)
		c.stream.SetHeader(key, value)
	}
}

// NewClient creates a client for baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL: baseURL,
		rest: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		// No timeout: the stream stays open for the whole session.
		stream: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "text/event-stream").
			SetHeader("Cache-Control", "no-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the hub address the client was created with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one message to the agent
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, "chat", "CHAT_ERROR", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(req).Post("/chat")
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the hub's liveness endpoint
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, "health check", "HEALTH_ERROR", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/health")
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// do runs one request and decodes a 2xx body into out (when non-nil)
func (c *Client) do(ctx context.Context, op, code string, out any, send func(*resty.Request) (*resty.Response, error)) error {
	resp, err := send(c.rest.R().SetContext(ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return newError(op, code, resp.StatusCode(), resp.Status(), resp.Body())
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &internal.ParseError{Source: "api", Key: op, Err: err}
	}
	return nil
}

// newError builds an *Error, preferring the {error:{code,message}} envelope
func newError(op, code string, status int, statusText string, body []byte) *Error {
	e := &Error{Op: op, Status: status, Code: code, Message: statusText}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		if envelope.Error.Message != "" {
			e.Message = envelope.Error.Message
		} else if envelope.Detail != "" {
			e.Message = envelope.Detail
		}
		if envelope.Error.Code != "" {
			e.Code = envelope.Error.Code
		}
	}
	return e
}
