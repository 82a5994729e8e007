package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"optionflow/config"
	"optionflow/models"
)

func availableResult(symbol string, underlying float64) *models.Result {
	r := models.NewResult(symbol, time.Now())
	r.Underlying = underlying
	r.Summary.PCROI = models.Some(1.2)
	r.Window = append(r.Window, models.WindowRow{Strike: 22000})
	return r
}

func newTestServer() (*Server, *Store) {
	cfg := config.Default()
	cfg.Optionflow.Version = "1.2.3"
	metrics := NewMetrics()
	store := NewStore(nil, metrics)
	return NewServer(&cfg, store, metrics), store
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":             "0.0.0.0:8080",
		"  :9090  ":    "0.0.0.0:9090",
		"localhost":    "localhost:8080",
		"0.0.0.0:80":   "0.0.0.0:80",
		"[::1]:443":    "[::1]:443",
		"::1":          "[::1]:8080",
		"::":           "[::]:8080",
		"127.0.0.1:81": "127.0.0.1:81",
	}
	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestStoreKeepsDataOverUnavailable(t *testing.T) {
	store := NewStore(nil, nil)
	good := availableResult("NIFTY", 22010)
	store.Put(good)
	store.Put(models.Unavailable("NIFTY", time.Now(), "timeout"))

	got, ok := store.Get("NIFTY")
	if !ok || got != good {
		t.Fatalf("unavailable result replaced stored data")
	}

	store.Put(models.Unavailable("BANKNIFTY", time.Now(), "timeout"))
	if got, ok := store.Get("BANKNIFTY"); !ok || got.Available() {
		t.Fatalf("first unavailable result should be stored")
	}
	if syms := store.Symbols(); len(syms) != 2 || syms[0] != "BANKNIFTY" {
		t.Fatalf("symbols = %v", syms)
	}
}

func TestStoreConsumesChannel(t *testing.T) {
	ch := make(chan *models.Result, 1)
	store := NewStore(ch, NewMetrics())
	if err := store.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch <- availableResult("NIFTY", 22010)
	close(ch)
	store.Stop()

	if _, ok := store.Get("NIFTY"); !ok {
		t.Fatalf("result from channel not stored")
	}
}

func TestResultEndpoints(t *testing.T) {
	srv, store := newTestServer()
	store.Put(availableResult("NIFTY", 22010))
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/results/nifty", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got models.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Symbol != "NIFTY" || got.Underlying != 22010 {
		t.Errorf("unexpected body: %+v", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/results/RELIANCE", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing symbol status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/results", nil))
	if !strings.Contains(rec.Body.String(), `"NIFTY"`) {
		t.Errorf("symbol list = %s", rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, store := newTestServer()
	store.Put(availableResult("NIFTY", 22010))
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"1.2.3"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`optionflow_cycles_total{outcome="ok",symbol="NIFTY"} 1`,
		`optionflow_underlying_value{symbol="NIFTY"} 22010`,
		`optionflow_pcr_oi{symbol="NIFTY"} 1.2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
