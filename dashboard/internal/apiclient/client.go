// Package apiclient is the single network layer every dashboard component
// uses to reach the remote download service. Its transport can be wrapped
// once at startup (tracing instrumentation) and the wrap applies to every
// subsequent request, whichever component issues it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// maxErrorBody caps how much of a non-2xx body is read for its message.
const maxErrorBody = 64 << 10

// ErrMalformedResponse is wrapped by errors for 2xx bodies that fail to decode.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned for non-2xx responses. Message holds the body's
// JSON "message" field when present.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Client issues requests against a fixed base origin.
type Client struct {
	base *url.URL
	http *http.Client
	rt   *swapTransport
}

// New returns a Client for baseURL. timeout bounds every request.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("apiclient: base url %q must be absolute", baseURL)
	}
	rt := newSwapTransport(http.DefaultTransport.(*http.Transport).Clone())
	return &Client{
		base: u,
		http: &http.Client{Transport: rt, Timeout: timeout},
		rt:   rt,
	}, nil
}

// WrapTransport replaces the current transport with wrap(current).
// Requests already in flight keep the transport they started with.
// The returned func undoes the wrap if nothing has wrapped on top of it since.
func (c *Client) WrapTransport(wrap func(http.RoundTripper) http.RoundTripper) (unwrap func()) {
	return c.rt.wrap(wrap)
}

// URL resolves path (and optional query) against the base origin.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// GetText performs a GET and returns the body as a string.
func (c *Client) GetText(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path, nil), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// GetJSON performs a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path, nil), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

// PostJSON encodes body as JSON, POSTs it to path?query and decodes the
// response into out. out may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, query url.Values, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path, query), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

// DoJSON sends a prepared request and decodes a 2xx JSON body into out.
func (c *Client) DoJSON(req *http.Request, out any) error {
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", strings.ToLower(req.Method), err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// checkStatus returns a *StatusError for non-2xx responses.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	se := &StatusError{Code: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil {
		if json.Unmarshal(data, &body) == nil {
			se.Message = body.Message
		}
	}
	return se
}

// swapTransport delegates to a RoundTripper that can be replaced at runtime.
type swapTransport struct {
	mu  sync.Mutex // serialises wraps
	cur atomic.Pointer[http.RoundTripper]
}

func newSwapTransport(base http.RoundTripper) *swapTransport {
	t := &swapTransport{}
	t.cur.Store(&base)
	return t
}

func (t *swapTransport) wrap(fn func(http.RoundTripper) http.RoundTripper) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.cur.Load()
	next := fn(*prev)
	installed := &next
	t.cur.Store(installed)

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.cur.CompareAndSwap(installed, prev)
	}
}

func (t *swapTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return (*t.cur.Load()).RoundTrip(req)
}
