package nse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"optionflow/config"
	"optionflow/logger"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 32 << 20

var (
	// ErrUnexpectedStatus is wrapped by FetchError for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMalformedPayload is returned when a response body cannot be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
)

// FetchError describes a GET that failed after its retry budget was spent.
type FetchError struct {
	Op         string
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d after %d attempt(s)", e.Op, e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("%s %s: %v after %d attempt(s)", e.Op, e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client is a browser-like HTTP session against the NSE site. It keeps
// the cookies handed out by the warm-up page and reuses them for data calls.
type Client struct {
	upstream  config.UpstreamConfig
	retry     config.RetryConfig
	base      *url.URL
	http      *http.Client
	limiter   *rate.Limiter
	retryable map[int]bool
	log       *logger.Log
}

// NewClient builds a Client from the upstream, retry and rate limit
// sections of cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Upstream.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	pool := cfg.Upstream.ConnectionPool
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
	}

	timeout := cfg.Upstream.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	retryable := make(map[int]bool, len(cfg.Retry.StatusCodes))
	for _, code := range cfg.Retry.StatusCodes {
		retryable[code] = true
	}

	c := &Client{
		upstream:  cfg.Upstream,
		retry:     cfg.Retry,
		base:      base,
		http:      &http.Client{Transport: transport, Jar: jar, Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		retryable: retryable,
		log:       logger.GetLogger(),
	}

	c.log.WithComponent("nse_client").WithFields(logger.Fields{
		"base_url":           base.String(),
		"timeout":            timeout.String(),
		"max_retries":        cfg.Retry.MaxRetries,
		"max_conns_per_host": pool.MaxConnsPerHost,
	}).Info("nse client initialized")

	return c, nil
}

// Fetch performs the warm-up GET followed by the data GET for path and
// returns the data body. A failed warm-up is logged and the data call is
// still attempted with whatever cookies the session already holds.
func (c *Client) Fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	log := c.log.WithComponent("nse_client").WithFields(logger.Fields{"path": path})

	if _, err := c.get(ctx, "warmup", c.upstream.WarmupPath, nil); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.WithError(err).Warn("warm-up request failed")
	}

	body, err := c.get(ctx, "fetch", path, params)
	if err != nil {
		log.WithError(err).Warn("data request failed")
		return nil, err
	}
	return body, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// get issues one logical GET, retrying transport errors and the configured
// status codes with exponential backoff.
func (c *Client) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	target := c.endpoint(path, params)
	b := &backoff.Backoff{Min: c.retry.BaseDelay, Max: c.retry.MaxDelay, Factor: 2}

	var lastErr error
	lastStatus := 0
	attempts := 0
	for attempts <= c.retry.MaxRetries {
		attempts++

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Op: op, URL: target, Attempts: attempts, Err: err}
		}

		start := time.Now()
		body, status, retryAfter, err := c.do(ctx, target)
		logger.LogPerformanceEntry(c.log.WithComponent("nse_client"), "nse_client", op, time.Since(start), logger.Fields{
			"url":     target,
			"status":  status,
			"attempt": attempts,
		})

		if err == nil && status >= 200 && status < 300 {
			logger.IncrementFetch(len(body), false)
			return body, nil
		}
		logger.IncrementFetch(0, true)

		lastErr, lastStatus = err, status
		if err == nil {
			lastErr = fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
		}
		if ctx.Err() != nil {
			return nil, &FetchError{Op: op, URL: target, Attempts: attempts, Err: ctx.Err()}
		}
		if err == nil && !c.retryable[status] {
			break
		}
		if attempts > c.retry.MaxRetries {
			break
		}

		wait := b.Duration()
		if retryAfter > wait {
			wait = retryAfter
		}
		if c.retry.MaxDelay > 0 && wait > c.retry.MaxDelay {
			wait = c.retry.MaxDelay
		}
		c.log.WithComponent("nse_client").WithFields(logger.Fields{
			"url":     target,
			"status":  status,
			"attempt": attempts,
			"wait_ms": wait.Milliseconds(),
		}).Debug("retrying request")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &FetchError{Op: op, URL: target, Attempts: attempts, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	return nil, &FetchError{Op: op, URL: target, StatusCode: lastStatus, Attempts: attempts, Err: lastErr}
}

func (c *Client) do(ctx context.Context, target string) ([]byte, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	for k, v := range c.upstream.Headers {
		// The transport only decompresses transparently when it set
		// Accept-Encoding itself.
		if strings.EqualFold(k, "Accept-Encoding") {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
