package nse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"optionflow/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Upstream.BaseURL = baseURL
	cfg.Upstream.Timeout = 2 * time.Second
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.BurstSize = 100
	return &cfg
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestFetchWarmupSetsCookie(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/option-chain":
			http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "abc", Path: "/"})
			w.Write([]byte("<html></html>"))
		case "/api/option-chain-indices":
			if c, err := r.Cookie("nsit"); err != nil || c.Value != "abc" {
				http.Error(w, "no session", http.StatusUnauthorized)
				return
			}
			if r.Header.Get("X-Requested-With") != "XMLHttpRequest" || r.Header.Get("Referer") == "" {
				http.Error(w, "not a browser", http.StatusForbidden)
				return
			}
			if r.URL.Query().Get("symbol") != "NIFTY" || r.URL.Query().Get("expiryDate") != "28-Mar-2024" {
				http.Error(w, "bad query", http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"records":{"underlyingValue":22250.5,"expiryDates":["28-Mar-2024"]},"filtered":{"data":[]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	chain, err := newTestClient(t, srv).FetchOptionChain(context.Background(), "nifty", "28-Mar-2024")
	if err != nil {
		t.Fatalf("FetchOptionChain: %v", err)
	}
	if chain.Records.UnderlyingValue != 22250.5 {
		t.Fatalf("unexpected underlying: %v", chain.Records.UnderlyingValue)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "/option-chain" || order[1] != "/api/option-chain-indices" {
		t.Fatalf("unexpected request order: %v", order)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/option-chain" {
			return
		}
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"stocks":[]}`))
	}))
	defer srv.Close()

	quotes, err := newTestClient(t, srv).FetchQuoteDerivative(context.Background(), "NIFTY")
	if err != nil {
		t.Fatalf("FetchQuoteDerivative: %v", err)
	}
	if quotes == nil || len(quotes.Stocks) != 0 {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 data calls, got %d", got)
	}
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/option-chain" {
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Fetch(context.Background(), "/api/quote-derivative", nil)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusBadGateway || fe.Attempts != 4 {
		t.Fatalf("unexpected fetch error: %+v", fe)
	}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus in chain: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("expected 1 call plus 3 retries, got %d", got)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/option-chain" {
			return
		}
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchOptionChain(context.Background(), "RELIANCE", "")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 FetchError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("404 was retried: %d calls", got)
	}
}

func TestFetchEquityEndpoint(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/option-chain" {
			path.Store(r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	chain, err := newTestClient(t, srv).FetchOptionChain(context.Background(), "reliance", "")
	if err != nil {
		t.Fatalf("FetchOptionChain: %v", err)
	}
	if got, _ := path.Load().(string); got != "/api/option-chain-equities" {
		t.Fatalf("unexpected endpoint %s", got)
	}
	if chain.Filtered != nil {
		t.Fatalf("expected missing filtered section")
	}
}

func TestFetchMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>blocked</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchOptionChain(context.Background(), "NIFTY", "")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestFetchWarmupFailureStillFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/option-chain" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"stocks":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv).FetchQuoteDerivative(context.Background(), "NIFTY"); err != nil {
		t.Fatalf("data call should succeed after failed warm-up: %v", err)
	}
}

func TestFetchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Retry.BaseDelay = time.Second
	cfg.Retry.MaxDelay = time.Second
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := c.Fetch(ctx, "/api/quote-derivative", nil); err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Fatalf("fetch ignored context cancellation")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Fatalf("unexpected duration %s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Fatalf("unexpected duration %s", got)
	}
}
