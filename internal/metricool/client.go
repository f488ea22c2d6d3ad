// Package metricool is a client for the Metricool analytics API. It fetches
// per-platform post statistics and normalizes them into canonical Post
// records.
package metricool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/petroleumjelliffe/socialsync/internal/logging"
	"github.com/petroleumjelliffe/socialsync/internal/metrics"
	"github.com/petroleumjelliffe/socialsync/internal/ratelimit"
)

const (
	// DefaultRetryAfter applies when a 429 carries no usable Retry-After header
	DefaultRetryAfter = 60 * time.Second

	maxBodySize      = 16 << 20
	maxErrorBodySize = 64 << 10
)

// Options configures a Client
type Options struct {
	BaseURL string
	Token   string
	UserID  string
	BlogID  string

	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter

	// MaxRateLimitRetries bounds how often one request is retried after a 429
	MaxRateLimitRetries int
	// MaxRateLimitWait bounds the total Retry-After time spent on one request
	MaxRateLimitWait time.Duration
}

// Client is a Metricool API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userID     string
	blogID     string
	limiter    *ratelimit.Limiter
	maxRetries int
	maxWait    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
}

// NewClient creates a new Metricool client
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New("metricool", 2, 100)
	}
	if opts.MaxRateLimitWait <= 0 {
		opts.MaxRateLimitWait = 10 * time.Minute
	}
	if opts.MaxRateLimitRetries < 0 {
		opts.MaxRateLimitRetries = 0
	}

	return &Client{
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		userID:     opts.UserID,
		blogID:     opts.BlogID,
		limiter:    opts.Limiter,
		maxRetries: opts.MaxRateLimitRetries,
		maxWait:    opts.MaxRateLimitWait,
		sleep:      ratelimit.Sleep,
		log:        logging.Component("metricool"),
	}
}

// rateLimitedError is returned for HTTP 429 responses
type rateLimitedError struct {
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.retryAfter)
}

// FetchData performs a GET against endpoint with the account parameters
// attached and returns the items in the response. Failures are logged and
// yield an empty result; they are never returned to the caller.
func (c *Client) FetchData(ctx context.Context, endpoint string, params url.Values) []RawPost {
	query := url.Values{}
	for k, vs := range params {
		query[k] = append([]string(nil), vs...)
	}
	query.Set("userId", c.userID)
	query.Set("blogId", c.blogID)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, query.Encode())

	var waited time.Duration
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("Request abandoned while rate limited")
			return nil
		}

		c.log.Debug().Str("url", reqURL).Int("attempt", attempt+1).Msg("Fetching")
		items, err := c.doRequest(ctx, endpoint, reqURL)
		if err == nil {
			return items
		}

		var limited *rateLimitedError
		if !errors.As(err, &limited) {
			c.log.Error().Err(err).Str("endpoint", endpoint).Msg("Fetch failed")
			return nil
		}

		if attempt >= c.maxRetries || limited.retryAfter > c.maxWait-waited {
			c.log.Error().
				Str("endpoint", endpoint).
				Int("retries", attempt).
				Dur("waited", waited).
				Msg("Giving up after repeated rate limiting")
			return nil
		}

		c.log.Warn().
			Str("endpoint", endpoint).
			Dur("retry_after", limited.retryAfter).
			Int("attempt", attempt+1).
			Msg("Rate limited, retrying")

		if err := c.sleep(ctx, limited.retryAfter); err != nil {
			return nil
		}
		waited += limited.retryAfter
	}
}

// doRequest performs one HTTP round trip
func (c *Client) doRequest(ctx context.Context, endpoint, reqURL string) ([]RawPost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Mc-Auth", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.SourceRequests.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.SourceRequests.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, &rateLimitedError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode == http.StatusNoContent:
		metrics.SourceRequests.WithLabelValues(endpoint, "no_content").Inc()
		c.log.Info().Str("endpoint", endpoint).Msg("No content available")
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		metrics.SourceRequests.WithLabelValues(endpoint, "http_error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("API error: %d, body: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.SourceRequests.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	items, err := decodeItems(body)
	if err != nil {
		metrics.SourceRequests.WithLabelValues(endpoint, "decode_error").Inc()
		return nil, fmt.Errorf("JSON parsing error: %w", err)
	}

	metrics.SourceRequests.WithLabelValues(endpoint, "ok").Inc()
	return items, nil
}

// decodeItems accepts either a bare JSON array or an object with a data array
func decodeItems(body []byte) ([]RawPost, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	switch trimmed[0] {
	case '[':
		var items []RawPost
		if err := dec.Decode(&items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var env envelope
		if err := dec.Decode(&env); err != nil {
			return nil, err
		}
		return env.Data, nil
	case 'n':
		// null
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected response shape starting with %q", trimmed[0])
	}
}

// parseRetryAfter reads delta-seconds or an HTTP date. Delays too large to
// represent saturate at the maximum duration.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil {
		switch {
		case math.IsNaN(secs):
			return DefaultRetryAfter
		case secs <= 0:
			return 0
		case secs >= float64(math.MaxInt64)/float64(time.Second):
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRetryAfter
}
