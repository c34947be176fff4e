package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"time"

	"github.com/go-resty/resty/v2"

	"titan/internal/logger"
)

// Decoder turns a response body into a typed value
type Decoder interface {
	Decode(data []byte, v interface{}) error
}

// JSONDecoder decodes with encoding/json
type JSONDecoder struct {
	// DisallowUnknownFields rejects bodies carrying fields the target lacks
	DisallowUnknownFields bool
}

// Decode implements Decoder
func (d JSONDecoder) Decode(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if d.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

// Client executes Requests. It performs exactly one HTTP call per request:
// no retries, no caching.
type Client struct {
	basePath string
	http     *resty.Client
	decoder  Decoder
}

// Option configures a Client
type Option func(*Client)

// WithDecoder replaces the default JSON decoder
func WithDecoder(d Decoder) Option {
	return func(c *Client) {
		c.decoder = d
	}
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// WithUserAgent sets the User-Agent header on every request
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.http.SetHeader("User-Agent", ua)
	}
}

// NewClient creates a client whose requests default to basePath
func NewClient(basePath string, opts ...Option) *Client {
	c := &Client{
		basePath: basePath,
		decoder:  JSONDecoder{},
	}

	c.http = resty.New().
		SetTimeout(DefaultTimeout).
		SetRetryCount(0).
		SetAllowGetMethodPayload(true)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BasePath returns the client's default base path
func (c *Client) BasePath() string {
	return c.basePath
}

// Close drops idle keep-alive connections
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

// Execute sends req once and returns the validated response body
func (c *Client) Execute(ctx context.Context, req Request) ([]byte, error) {
	if req.BasePath == "" {
		req.BasePath = c.basePath
	}
	method := req.method()
	url := req.URL()
	fail := func(kind error, err error) *Error {
		return &Error{Kind: kind, Method: method, URL: url, Err: err}
	}

	if _, err := req.absoluteURL(); err != nil {
		return nil, fail(ErrDefault, err)
	}

	r := c.http.R().SetContext(ctx)
	for k, v := range DefaultHeaders() {
		r.SetHeader(k, v)
	}
	if err := applyParams(r, req); err != nil {
		return nil, fail(ErrDefault, err)
	}
	for k, v := range req.Headers {
		r.Header.Add(k, v)
	}

	logger.Debug("Sending request", "method", method, "url", url, "encoding", req.Encoding.String())
	start := time.Now()

	resp, err := r.Execute(method, url)
	if err != nil {
		logger.Debug("Request failed", "method", method, "url", url, "error", err)
		return nil, fail(ErrTransport, err)
	}

	logger.Debug("Received response",
		"method", method,
		"url", url,
		"status", resp.StatusCode(),
		"duration", time.Since(start),
	)

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		e := fail(ErrStatus, nil)
		e.StatusCode = code
		return nil, e
	}

	contentType := resp.Header().Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
		e := fail(ErrContentType, nil)
		e.StatusCode = resp.StatusCode()
		e.ContentType = contentType
		return nil, e
	}

	body := resp.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		e := fail(ErrDefault, errors.New("empty response body"))
		e.StatusCode = resp.StatusCode()
		return nil, e
	}
	return body, nil
}

// Do sends req once and decodes the JSON response into T
func Do[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	body, err := c.Execute(ctx, req)
	if err != nil {
		return out, err
	}

	if err := c.decoder.Decode(body, &out); err != nil {
		if req.BasePath == "" {
			req.BasePath = c.basePath
		}
		return out, &Error{Kind: ErrDecode, Method: req.method(), URL: req.URL(), Err: err}
	}
	return out, nil
}
