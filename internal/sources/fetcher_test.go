package sources

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/worker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(retries int) (*Fetcher, *[]time.Duration) {
	f := NewFetcher(model.HTTPConfig{
		Timeout:      5 * time.Second,
		UserAgent:    "painpoint-test/1.0",
		MaxBodyBytes: 1 << 20,
		MaxRetries:   retries,
	}, nil, quietLogger())

	var slept []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return f, &slept
}

func TestFetcher_Success(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	f, _ := newTestFetcher(3)
	body, err := f.Get(context.Background(), "hibp", server.URL, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(body) != "[]" {
		t.Errorf("unexpected body %q", body)
	}
	if gotUA != "painpoint-test/1.0" {
		t.Errorf("expected configured user agent, got %q", gotUA)
	}
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer server.Close()

	f, slept := newTestFetcher(3)
	body, err := f.Get(context.Background(), "hibp", server.URL, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("unexpected body %q", body)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(*slept) != 2 || (*slept)[0] != baseBackoff || (*slept)[1] != 2*baseBackoff {
		t.Errorf("unexpected backoff schedule %v", *slept)
	}
}

func TestFetcher_RateLimitExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f, slept := newTestFetcher(2)
	_, err := f.Get(context.Background(), "ransomware_live", server.URL, nil)

	var se *SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SourceError, got %v", err)
	}
	if se.Kind != KindRateLimit || se.StatusCode != http.StatusTooManyRequests {
		t.Errorf("unexpected error %+v", se)
	}
	if se.Source != "ransomware_live" {
		t.Errorf("expected source ransomware_live, got %s", se.Source)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	for _, d := range *slept {
		if d != 7*time.Second {
			t.Errorf("expected Retry-After delay 7s, got %v", d)
		}
	}
}

func TestFetcher_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f, _ := newTestFetcher(3)
	_, err := f.Get(context.Background(), "hibp", server.URL, nil)
	if KindOf(err) != KindStatus {
		t.Errorf("expected status error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestFetcher_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	f, _ := newTestFetcher(0)
	f.maxBytes = 1024

	_, err := f.Get(context.Background(), "hibp", server.URL, nil)
	if KindOf(err) != KindPayload {
		t.Errorf("expected payload error, got %v", err)
	}
}

func TestFetcher_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f, _ := newTestFetcher(1)
	_, err := f.Get(context.Background(), "hibp", url, nil)
	if KindOf(err) != KindNetwork {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestFetcher_UsesLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ok`))
	}))
	defer server.Close()

	f, _ := newTestFetcher(0)
	f.limiter = worker.NewLimiter(1, 1)

	if _, err := f.Get(context.Background(), "hibp", server.URL, nil); err != nil {
		t.Fatalf("first Get failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Get(ctx, "hibp", server.URL, nil)
	if KindOf(err) != KindRateLimit {
		t.Errorf("expected rate_limit error from exhausted limiter, got %v", err)
	}
}
