package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 5 * time.Second
	userAgent      = "ritbot-go/1.0"
)

// Client implements Gateway over the exchange REST API with basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

var _ Gateway = (*Client)(nil)

// Option configures Client construction parameters.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient builds a client for host:port. host may carry a scheme.
func NewClient(host string, port int, username, password string, opts ...Option) *Client {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	base := host
	if port > 0 {
		base = fmt.Sprintf("%s:%d", host, port)
	}
	c := &Client{
		baseURL:  base,
		username: username,
		password: password,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientForURL builds a client against a full base URL (used with httptest servers).
func NewClientForURL(baseURL, username, password string, opts ...Option) *Client {
	return NewClient(baseURL, 0, username, password, opts...)
}

func (c *Client) Case(ctx context.Context) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodGet, "/v1/case", nil, &out)
	return out, err
}

func (c *Client) Trader(ctx context.Context) (Trader, error) {
	var out Trader
	err := c.do(ctx, http.MethodGet, "/v1/trader", nil, &out)
	return out, err
}

func (c *Client) Securities(ctx context.Context, ticker string) ([]Security, error) {
	params := url.Values{}
	if ticker != "" {
		params.Set("ticker", ticker)
	}
	var out []Security
	err := c.do(ctx, http.MethodGet, "/v1/securities", params, &out)
	return out, err
}

func (c *Client) Book(ctx context.Context, ticker string, limit int) (Book, error) {
	params := url.Values{"ticker": []string{ticker}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out Book
	err := c.do(ctx, http.MethodGet, "/v1/securities/book", params, &out)
	return out, err
}

func (c *Client) Tenders(ctx context.Context) ([]Tender, error) {
	var out []Tender
	err := c.do(ctx, http.MethodGet, "/v1/tenders", nil, &out)
	return out, err
}

func (c *Client) AcceptTender(ctx context.Context, id int, price float64) (Result, error) {
	params := url.Values{"price": []string{formatPrice(price)}}
	var out Result
	err := c.do(ctx, http.MethodPost, "/v1/tenders/"+strconv.Itoa(id), params, &out)
	return out, err
}

func (c *Client) DeclineTender(ctx context.Context, id int) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodDelete, "/v1/tenders/"+strconv.Itoa(id), nil, &out)
	return out, err
}

func (c *Client) Orders(ctx context.Context, status OrderStatus) ([]Order, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", string(status))
	}
	var out []Order
	err := c.do(ctx, http.MethodGet, "/v1/orders", params, &out)
	return out, err
}

func (c *Client) PostOrder(ctx context.Context, req OrderRequest) (Order, error) {
	params := url.Values{
		"ticker":   []string{req.Ticker},
		"type":     []string{string(req.Type)},
		"quantity": []string{strconv.Itoa(req.Quantity)},
		"action":   []string{string(req.Action)},
	}
	if req.Type == Limit {
		params.Set("price", formatPrice(req.Price))
	}
	var out Order
	err := c.do(ctx, http.MethodPost, "/v1/orders", params, &out)
	return out, err
}

func (c *Client) CancelOrder(ctx context.Context, id int) (Result, error) {
	var out Result
	err := c.do(ctx, http.MethodDelete, "/v1/orders/"+strconv.Itoa(id), nil, &out)
	return out, err
}

func (c *Client) News(ctx context.Context, limit int) ([]News, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out []News
	err := c.do(ctx, http.MethodGet, "/v1/news", params, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	op := method + " " + path
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("http do: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Op:         op,
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func formatPrice(p float64) string { return strconv.FormatFloat(p, 'f', -1, 64) }
