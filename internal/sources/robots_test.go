package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestRobotsChecker_CachesPerHost(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("User-agent: painpoint\nDisallow: /private/\nCrawl-delay: 2\n\nUser-agent: *\nDisallow: /\n"))
	}))
	defer server.Close()

	robots := NewRobotsChecker(server.Client(), "painpoint/0.1 (+https://example.com)", nil)
	ctx := context.Background()

	allowed, delay, err := robots.CanFetch(ctx, server.URL+"/privacy/list")
	if err != nil || !allowed {
		t.Fatalf("expected allowed, got %v (%v)", allowed, err)
	}
	if delay != 2*time.Second {
		t.Errorf("expected 2s crawl delay, got %v", delay)
	}

	allowed, _, _ = robots.CanFetch(ctx, server.URL+"/private/x")
	if allowed {
		t.Error("expected /private/ to be disallowed")
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", n)
	}
}

func TestRobotsChecker_UnreachableAllows(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	allowed, _, err := NewRobotsChecker(nil, "painpoint", nil).CanFetch(context.Background(), server.URL+"/list")
	if err != nil || !allowed {
		t.Errorf("unreachable robots.txt should allow, got %v (%v)", allowed, err)
	}
}

func TestProductToken(t *testing.T) {
	for ua, want := range map[string]string{
		"painpoint/0.1 (+https://github.com/ppiankov/painpoint)": "painpoint",
		"curl": "curl",
		"":     "",
	} {
		if got := productToken(ua); got != want {
			t.Errorf("productToken(%q) = %q, want %q", ua, got, want)
		}
	}
}

func TestProxyFunc(t *testing.T) {
	proxy := proxyFunc("http://proxy:3128", "http://secure-proxy:3128")

	for raw, want := range map[string]string{
		"https://haveibeenpwned.com/api": "http://secure-proxy:3128",
		"http://oag.ca.gov/list":         "http://proxy:3128",
	} {
		u, _ := url.Parse(raw)
		got, err := proxy(&http.Request{URL: u})
		if err != nil || got.String() != want {
			t.Errorf("%s: got %v (%v), want %s", raw, got, err, want)
		}
	}
}
