// Package outline is a client for the management API exposed by each VPN
// server. The API URL embeds the access token, so the URL itself is the
// credential and TLS verification is disabled for the servers' self-signed
// certificates.
package outline

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shohag/vpnboard/internal/apperrors"
)

// DefaultTimeout bounds a request whose context carries no earlier deadline.
const DefaultTimeout = 30 * time.Second

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client, TLS settings included.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func withTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Transport: newTransport(),
			Timeout:   DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Factory builds a client bound to one server's API URL.
type Factory func(baseURL string) *Client

// NewFactory returns a Factory whose clients share one connection pool.
func NewFactory(opts ...Option) Factory {
	transport := newTransport()
	return func(baseURL string) *Client {
		return NewClient(baseURL, append([]Option{withTransport(transport)}, opts...)...)
	}
}

func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed servers, token in URL
	return t
}

func (c *Client) Server(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.do(ctx, http.MethodGet, "/server", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) AccessKeys(ctx context.Context) ([]AccessKey, error) {
	var list accessKeyList
	if err := c.do(ctx, http.MethodGet, "/access-keys/", nil, &list); err != nil {
		return nil, err
	}
	if list.AccessKeys == nil {
		list.AccessKeys = []AccessKey{}
	}
	return list.AccessKeys, nil
}

// TransferMetrics returns bytes transferred keyed by access key id.
func (c *Client) TransferMetrics(ctx context.Context) (map[string]int64, error) {
	var m transferMetrics
	if err := c.do(ctx, http.MethodGet, "/metrics/transfer", nil, &m); err != nil {
		return nil, err
	}
	if m.BytesTransferredByUserID == nil {
		m.BytesTransferredByUserID = map[string]int64{}
	}
	return m.BytesTransferredByUserID, nil
}

func (c *Client) MetricsEnabled(ctx context.Context) (bool, error) {
	var m metricsEnabled
	if err := c.do(ctx, http.MethodGet, "/metrics/enabled", nil, &m); err != nil {
		return false, err
	}
	return m.MetricsEnabled, nil
}

func (c *Client) CreateAccessKey(ctx context.Context, name string) (*AccessKey, error) {
	var key AccessKey
	if err := c.do(ctx, http.MethodPost, "/access-keys", nameRequest{Name: name}, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (c *Client) DeleteAccessKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/access-keys/"+url.PathEscape(id), nil, nil)
}

func (c *Client) RenameAccessKey(ctx context.Context, id, name string) error {
	return c.do(ctx, http.MethodPut, "/access-keys/"+url.PathEscape(id)+"/name", nameRequest{Name: name}, nil)
}

func (c *Client) SetDataLimit(ctx context.Context, id string, bytes int64) error {
	body := dataLimitRequest{Limit: DataLimit{Bytes: bytes}}
	return c.do(ctx, http.MethodPut, "/access-keys/"+url.PathEscape(id)+"/data-limit", body, nil)
}

func (c *Client) RemoveDataLimit(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/access-keys/"+url.PathEscape(id)+"/data-limit", nil, nil)
}

func (c *Client) RenameServer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, "/name", nameRequest{Name: name}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	// The base URL is secret; errors carry only method and path.
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %s %s: invalid request", apperrors.ErrRemoteUnreachable, method, path)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(method, path, err)
	}
	defer resp.Body.Close()

	if !IsSuccess(resp.StatusCode) {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(b)}
		return fmt.Errorf("%w: %w", apperrors.ErrRemoteUnreachable, apiErr)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return classify(method, path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func classify(method, path string, err error) error {
	if IsTimeout(err) {
		return fmt.Errorf("%w: %s %s", apperrors.ErrRemoteTimeout, method, path)
	}
	return fmt.Errorf("%w: %s %s: %s", apperrors.ErrRemoteUnreachable, method, path, redact(err))
}

// IsTimeout reports whether err stems from a deadline or client timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrRemoteTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// redact drops the request URL that *url.Error embeds in its message.
func redact(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
