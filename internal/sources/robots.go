package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/ppiankov/painpoint/internal/cache"
)

const (
	robotsTTL      = 6 * time.Hour
	robotsMaxBytes = 512 << 10
)

// RobotsChecker answers whether a scraped provider page may be fetched.
// Each host's robots.txt is fetched once per robotsTTL.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	cache     cache.Cache
}

// robotsEntry is the cached form of one host's robots.txt response.
type robotsEntry struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// NewRobotsChecker creates a checker that fetches robots.txt with client.
// A nil cache gets a private in-memory one.
func NewRobotsChecker(client *http.Client, userAgent string, c cache.Cache) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if c == nil {
		c = cache.NewMemoryCache(robotsTTL, time.Hour)
	}
	return &RobotsChecker{client: client, userAgent: userAgent, cache: c}
}

// CanFetch reports whether rawURL is allowed for our user agent and the
// crawl delay the host asks for. An unreachable robots.txt allows.
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	entry, err := r.entry(ctx, u)
	if err != nil {
		return true, 0, nil
	}
	data, err := robotstxt.FromStatusAndBytes(entry.Status, entry.Body)
	if err != nil {
		return true, 0, nil
	}

	agent := productToken(r.userAgent)
	var delay time.Duration
	if group := data.FindGroup(agent); group != nil {
		delay = group.CrawlDelay
	}
	return data.TestAgent(u.Path, agent), delay, nil
}

func (r *RobotsChecker) entry(ctx context.Context, u *url.URL) (robotsEntry, error) {
	key := cache.Key("robots", u.Scheme, u.Host)

	var entry robotsEntry
	if cache.GetJSON(r.cache, key, &entry) {
		return entry, nil
	}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return entry, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return entry, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return entry, fmt.Errorf("read robots.txt: %w", err)
	}

	entry = robotsEntry{Status: resp.StatusCode, Body: body}
	_ = cache.SetJSON(r.cache, key, entry, robotsTTL)
	return entry, nil
}

// productToken reduces a user agent to the token robots.txt groups match on.
func productToken(ua string) string {
	if fields := strings.Fields(ua); len(fields) > 0 {
		return strings.SplitN(fields[0], "/", 2)[0]
	}
	return ua
}
