// Package flexibee implements remote.Transport over the FlexiBee REST API
// (the "winstrom" JSON format).
package flexibee

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/remote"
)

// ExternalIDPrefix prefixes the external ids generated for objects
// inserted through a parent relation.
const ExternalIDPrefix = "ext:flexiql:"

// Config holds the connection settings.
type Config struct {
	// URL is the server root, e.g. https://demo.flexibee.eu:5434.
	URL      string
	Username string
	Password string

	// Timeout bounds a single HTTP request. Zero means 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum number of requests per second. Zero
	// disables limiting.
	RateLimit float64
	Burst     int
}

// Client is a remote.Transport for one FlexiBee server. It holds no
// per-company state; the company comes from each query's scope.
type Client struct {
	base       string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
	metrics    *Metrics
	externalID func() string
}

var (
	_ remote.Transport        = (*Client)(nil)
	_ remote.AttachmentLister = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithExternalIDs replaces the generator of external ids.
func WithExternalIDs(gen func() string) Option {
	return func(c *Client) { c.externalID = gen }
}

// New creates a client for the server at cfg.URL.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse flexibee url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("flexibee url %q must use http or https", cfg.URL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("flexibee url %q has no host", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		base:       u.String(),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     zerolog.Nop(),
		externalID: func() string { return ExternalIDPrefix + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// params keeps query parameters in insertion order. FlexiBee reads
// repeated "order" keys positionally.
type params [][2]string

func (p *params) add(key, value string) {
	*p = append(*p, [2]string{key, value})
}

func (p params) encode() string {
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = kv[0] + "=" + kv[1]
	}
	return strings.Join(parts, "&")
}

// tableURL builds <base>/c/<db>/<table><extra>.json[?query].
func (c *Client) tableURL(db, table, extra, query string) string {
	u := c.base + "/c/" + url.PathEscape(db) + "/" + table + extra + ".json"
	if query != "" {
		u += "?" + query
	}
	return u
}

// readURL renders the GET url of q. Column and relation names are sent
// verbatim; the filter is percent-encoded into the path.
func (c *Client) readURL(q *remote.Query, columns []string, offset, limit int) string {
	var p params
	p.add("detail", "custom:"+strings.Join(columns, ","))
	if len(q.Relations) > 0 {
		p.add("relations", strings.Join(q.Relations, ","))
	}
	for _, o := range q.OrderStrings() {
		p.add("order", o)
	}
	p.add("start", strconv.Itoa(offset))
	p.add("limit", strconv.Itoa(limit))
	p.add("add-row-count", "true")
	if period, ok := q.AccountingPeriod(); ok {
		p.add("idUcetniObdobi", url.QueryEscape(period))
	}
	return c.tableURL(q.Scope.DBName, q.Table, filterSegment(q.FilterString()), p.encode())
}

// filterSegment wraps an encoded filter in parentheses for the url path.
func filterSegment(f string) string {
	if f == "" {
		return ""
	}
	return "/(" + strings.ReplaceAll(url.QueryEscape(f), "+", "%20") + ")"
}

// do performs one request and returns the status and the full body.
func (c *Client) do(ctx context.Context, method, table, u string, body []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, dberr.Transport(table, "rate limiter", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, dberr.Transport(table, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(method, table, "error", time.Since(start))
		c.logger.Error().Err(err).Str("method", method).Str("url", u).Msg("flexibee request failed")
		return 0, nil, dberr.Transport(table, fmt.Sprintf("%s %s", method, u), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.metrics.observe(method, table, strconv.Itoa(resp.StatusCode), elapsed)
	if err != nil {
		return resp.StatusCode, nil, dberr.Transport(table, "read response body", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", u).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Msg("flexibee request")
	return resp.StatusCode, data, nil
}

func checkScope(q *remote.Query) error {
	if q.Scope.DBName == "" {
		return dberr.Transport(q.Table, "no company set for the request", nil)
	}
	return nil
}

func success(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated
}
