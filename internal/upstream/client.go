package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/obsidianstack/pitchwatch/internal/config"
)

const maxBodyBytes = 4 << 20

// Client talks to the fixture provider. It owns the request timeout, the
// global 429 cooldown and the mapping of status codes onto the error taxonomy.
//
// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cooldown   time.Duration
	statistics bool
	limiter    *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time

	now     func() time.Time // injectable for deterministic tests
	observe func(endpoint, outcome string)
}

// New builds a Client from the upstream configuration.
func New(cfg config.UpstreamConfig) *Client {
	c := &Client{
		httpClient: buildHTTPClient(cfg),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cooldown:   cfg.RateLimitCooldown,
		statistics: cfg.StatisticsEnabled(),
		now:        time.Now,
		observe:    func(string, string) {},
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return c
}

// OnRequest registers fn to be called after every request attempt with the
// endpoint name and its outcome label. Must be called before first use.
func (c *Client) OnRequest(fn func(endpoint, outcome string)) {
	if fn != nil {
		c.observe = fn
	}
}

// PausedUntil returns the end of the current 429 cooldown, or the zero time.
func (c *Client) PausedUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.pausedUntil) {
		return c.pausedUntil
	}
	return time.Time{}
}

// FetchFixture returns the current state of one fixture, including its
// cumulative statistics when enabled.
func (c *Client) FetchFixture(ctx context.Context, fixtureID int64) (RawFixture, error) {
	q := url.Values{"id": {strconv.FormatInt(fixtureID, 10)}}
	env, err := c.get(ctx, "fixtures", "/fixtures", q)
	if err != nil {
		return RawFixture{}, fmt.Errorf("upstream: fixture %d: %w", fixtureID, err)
	}
	if len(env.Response) == 0 {
		return RawFixture{}, fmt.Errorf("upstream: fixture %d: %w", fixtureID, ErrNoData)
	}

	var item fixtureItem
	if err := json.Unmarshal(env.Response[0], &item); err != nil {
		return RawFixture{}, fmt.Errorf("upstream: fixture %d: decode item: %v: %w", fixtureID, err, ErrNoData)
	}
	raw, ok := item.toRaw()
	if !ok {
		return RawFixture{}, fmt.Errorf("upstream: fixture %d: response has no fixture id: %w", fixtureID, ErrNoData)
	}
	if raw.ID != fixtureID {
		return RawFixture{}, fmt.Errorf("upstream: fixture %d: response is for fixture %d: %w",
			fixtureID, raw.ID, ErrUpstreamUnavailable)
	}
	raw.FetchedAt = c.now().UTC()

	if !c.statistics {
		return raw, nil
	}

	q = url.Values{"fixture": {strconv.FormatInt(fixtureID, 10)}}
	env, err = c.get(ctx, "statistics", "/fixtures/statistics", q)
	if err != nil {
		return RawFixture{}, fmt.Errorf("upstream: fixture %d statistics: %w", fixtureID, err)
	}
	teams := make([]teamStatistics, 0, len(env.Response))
	for _, item := range env.Response {
		var ts teamStatistics
		if err := json.Unmarshal(item, &ts); err != nil {
			slog.Debug("upstream: skipping malformed statistics entry", "fixture", fixtureID, "err", err)
			continue
		}
		teams = append(teams, ts)
	}
	applyStatistics(&raw, teams)
	return raw, nil
}

// LiveFixtureIDs lists the ids of every fixture the provider reports as live.
func (c *Client) LiveFixtureIDs(ctx context.Context) ([]int64, error) {
	env, err := c.get(ctx, "live", "/fixtures", url.Values{"live": {"all"}})
	if err != nil {
		return nil, fmt.Errorf("upstream: live fixtures: %w", err)
	}
	ids := make([]int64, 0, len(env.Response))
	for _, item := range env.Response {
		var f fixtureItem
		if err := json.Unmarshal(item, &f); err != nil {
			continue
		}
		if raw, ok := f.toRaw(); ok {
			ids = append(ids, raw.ID)
		}
	}
	return ids, nil
}

// get performs one paced, cooldown-aware GET and decodes the envelope.
func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values) (env *envelope, err error) {
	defer func() { c.observe(endpoint, Outcome(err)) }()

	if err := c.checkPaused(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %v: %w", err, ErrUpstreamUnavailable)
		}
		// A cooldown may have started while this request was queued.
		if err := c.checkPaused(); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %v: %w", err, ErrUpstreamUnavailable)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrTimeout)
		}
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%s: read body: %w", path, ErrTimeout)
		}
		return nil, fmt.Errorf("%s: read body: %v: %w", path, err, ErrUpstreamUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.pause(retryAfter(resp.Header.Get("Retry-After")))
		return nil, fmt.Errorf("%s returned 429: %w", path, ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s returned %d: %s: %w", path, resp.StatusCode, truncate(body, 200), ErrAuthRejected)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%s returned %d: %s: %w", path, resp.StatusCode, truncate(body, 200), ErrUpstreamUnavailable)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("%s: empty body: %w", path, ErrNoData)
	}
	env = &envelope{}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("%s: decode: %v: %w", path, err, ErrNoData)
	}
	if perr := providerErrors(env.Errors); perr != nil {
		return nil, c.classifyProviderErrors(path, perr)
	}
	return env, nil
}

// classifyProviderErrors maps the provider's in-band error object, which it
// sends with HTTP 200, onto the same taxonomy as status codes.
func (c *Client) classifyProviderErrors(path string, perr map[string]string) error {
	for k, msg := range perr {
		switch strings.ToLower(k) {
		case "ratelimit", "requests":
			c.pause(0)
			return fmt.Errorf("%s: %s: %w", path, msg, ErrRateLimited)
		case "token", "access":
			return fmt.Errorf("%s: %s: %w", path, msg, ErrAuthRejected)
		}
	}
	return fmt.Errorf("%s: provider errors %v: %w", path, perr, ErrUpstreamUnavailable)
}

func (c *Client) checkPaused() error {
	if until := c.PausedUntil(); !until.IsZero() {
		return fmt.Errorf("cooling down until %s: %w", until.Format(time.RFC3339), ErrRateLimited)
	}
	return nil
}

// pause suspends every request until now + max(cooldown, hint).
func (c *Client) pause(hint time.Duration) {
	d := c.cooldown
	if hint > d {
		d = hint
	}
	c.mu.Lock()
	until := c.now().Add(d)
	if until.After(c.pausedUntil) {
		c.pausedUntil = until
	}
	c.mu.Unlock()
	slog.Warn("upstream: rate limited, suspending requests", "cooldown", d)
}

// authRoundTripper injects the API key header into every outgoing request.
type authRoundTripper struct {
	base   http.RoundTripper
	header string
	key    string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key != "" {
		req = req.Clone(req.Context())
		req.Header.Set(t.header, t.key)
	}
	return t.base.RoundTrip(req)
}

func buildHTTPClient(cfg config.UpstreamConfig) *http.Client {
	header := cfg.Header
	if header == "" {
		header = config.DefaultKeyHeader
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultUpstreamTimeout
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base:   http.DefaultTransport,
			header: header,
			key:    cfg.Key(),
		},
		Timeout: timeout,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// truncate shortens a response body for inclusion in error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
