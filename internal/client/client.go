package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	domain "bandsched/backend/internal/domain/auth"

	"github.com/samber/oops"
)

const defaultTimeout = 15 * time.Second

// RequestInterceptor may modify an outgoing request before it is sent.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor observes every response before the caller sees it.
type ResponseInterceptor func(resp *http.Response) error

// AuthInvalidated is published when the backend rejects the stored
// credential.
type AuthInvalidated struct {
	Method string
	Path   string
	Status int
}

// APIError is a non-2xx response decoded from the backend error body.
type APIError struct {
	Status  int
	Message string
	Fields  []domain.FieldError
}

func (e *APIError) Error() string { return e.Message }

// Client is the HTTP transport shared by every backend call. Each request
// runs through the request interceptors in order, then the response
// interceptors in order.
type Client struct {
	baseURL       string
	http          *http.Client
	tokens        TokenStore
	requestChain  []RequestInterceptor
	responseChain []ResponseInterceptor

	mu        sync.Mutex
	listeners map[int]func(AuthInvalidated)
	nextID    int
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRequestInterceptor appends to the request chain.
func WithRequestInterceptor(ic RequestInterceptor) Option {
	return func(c *Client) { c.requestChain = append(c.requestChain, ic) }
}

// WithResponseInterceptor appends to the response chain.
func WithResponseInterceptor(ic ResponseInterceptor) Option {
	return func(c *Client) { c.responseChain = append(c.responseChain, ic) }
}

// WithNavigator sends the user to the login surface whenever the session is
// invalidated.
func WithNavigator(nav Navigator) Option {
	return func(c *Client) {
		c.subscribe(RedirectToLogin(nav, LoginPath))
	}
}

// New builds a client for the backend at baseURL. The bearer token and
// 401 interceptors are always installed first.
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		tokens:    tokens,
		listeners: make(map[int]func(AuthInvalidated)),
	}
	c.requestChain = []RequestInterceptor{BearerToken(tokens)}
	c.responseChain = []ResponseInterceptor{c.unauthorized}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BearerToken attaches the stored token, if any, as an Authorization header.
func BearerToken(tokens TokenStore) RequestInterceptor {
	return func(req *http.Request) error {
		token, err := tokens.Load()
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	}
}

// unauthorized clears the stored token on any 401 and tells subscribers.
func (c *Client) unauthorized(resp *http.Response) error {
	if resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	if err := c.tokens.Clear(); err != nil {
		return err
	}
	event := AuthInvalidated{Status: resp.StatusCode}
	if resp.Request != nil {
		event.Method = resp.Request.Method
		event.Path = resp.Request.URL.Path
	}
	c.publish(event)
	return nil
}

// OnAuthInvalidated registers fn for invalidation events. The returned
// function removes it.
func (c *Client) OnAuthInvalidated(fn func(AuthInvalidated)) (cancel func()) {
	return c.subscribe(fn)
}

func (c *Client) subscribe(fn func(AuthInvalidated)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Client) publish(event AuthInvalidated) {
	c.mu.Lock()
	fns := make([]func(AuthInvalidated), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Do sends in as a JSON body and decodes a 2xx JSON response into out.
// Either may be nil. Non-2xx responses come back as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return oops.Code("CLIENT_ENCODE_FAILED").With("path", path).Wrap(err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return oops.Code("CLIENT_REQUEST_INVALID").With("path", path).Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ic := range c.requestChain {
		if err := ic(req); err != nil {
			return oops.Code("CLIENT_INTERCEPTOR_FAILED").With("path", path).Wrap(err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.Code("CLIENT_REQUEST_FAILED").With("method", method).With("path", path).Wrap(err)
	}
	defer resp.Body.Close()

	for _, ic := range c.responseChain {
		if err := ic(resp); err != nil {
			return oops.Code("CLIENT_INTERCEPTOR_FAILED").With("path", path).Wrap(err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.Code("CLIENT_DECODE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Message string              `json:"message"`
		Errors  []domain.FieldError `json:"errors"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Message
		apiErr.Fields = body.Errors
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// AsAPIError unwraps err to the backend response error, if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
