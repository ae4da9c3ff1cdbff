// Package polymarket fetches and normalizes event listings from the
// Polymarket gamma API.
package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rewired-gh/polyscan/internal/logger"
)

// ErrFetchIncomplete marks a listing that stopped early because a page
// kept failing after all retries. Events gathered before the failure are
// returned alongside it.
var ErrFetchIncomplete = errors.New("event listing incomplete")

// ClientConfig tunes pagination, retries and connection pooling.
type ClientConfig struct {
	PageSize            int
	MaxRetries          int
	RetryDelay          time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	UserAgent           string
}

// DefaultClientConfig mirrors the upstream-friendly defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PageSize:            100,
		MaxRetries:          3,
		RetryDelay:          2 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		UserAgent:           "polyscan/1.0",
	}
}

// Filter selects which events the listing returns.
type Filter struct {
	Active    bool
	Closed    bool
	Archived  bool
	TagSlug   string
	Order     string
	Ascending bool
}

// DefaultFilter lists open, active, non-archived events.
func DefaultFilter() Filter {
	return Filter{Active: true}
}

func (f Filter) apply(q url.Values) {
	q.Set("active", strconv.FormatBool(f.Active))
	q.Set("closed", strconv.FormatBool(f.Closed))
	q.Set("archived", strconv.FormatBool(f.Archived))
	if f.TagSlug != "" {
		q.Set("tag_slug", f.TagSlug)
	}
	if f.Order != "" {
		q.Set("order", f.Order)
		q.Set("ascending", strconv.FormatBool(f.Ascending))
	}
}

// Client provides access to the Polymarket gamma API.
type Client struct {
	gammaAPIURL string
	httpClient  *http.Client
	config      ClientConfig
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new Polymarket client. Every request is bounded by
// timeout.
func NewClient(gammaAPIURL string, timeout time.Duration, cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.IdleConnTimeout
	}

	return &Client{
		gammaAPIURL: gammaAPIURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		config: cfg,
		sleep:  sleepContext,
	}
}

// FetchAllEvents walks the /events listing page by page until a page comes
// back empty or short. A page that still fails after MaxRetries attempts
// ends the walk: the events collected so far are returned together with
// an error wrapping ErrFetchIncomplete.
func (c *Client) FetchAllEvents(ctx context.Context, filter Filter) ([]Event, error) {
	var out []Event
	offset := 0
	pageSize := c.config.PageSize

	for {
		page, err := c.fetchPage(ctx, filter, pageSize, offset)
		if err != nil {
			return out, err
		}
		out = append(out, page...)

		if len(page) == 0 || len(page) < pageSize {
			break
		}
		offset += pageSize
	}

	logger.Debug("Fetched %d events from gamma API", len(out))
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	u, err := url.Parse(c.gammaAPIURL + "/events")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	filter.apply(q)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		page, err := c.getEvents(ctx, u.String())
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}
		logger.Warn("Gamma request failed (offset %d, attempt %d/%d): %v", offset, attempt, c.config.MaxRetries, err)
		if err := c.sleep(ctx, c.config.RetryDelay); err != nil {
			return nil, err
		}
	}

	logger.Error("Gamma request failed after %d attempts (offset %d): %v", c.config.MaxRetries, offset, lastErr)
	return nil, fmt.Errorf("%w: offset %d after %d attempts: %w", ErrFetchIncomplete, offset, c.config.MaxRetries, lastErr)
}

// getEvents performs a single GET and decodes the page.
func (c *Client) getEvents(ctx context.Context, urlStr string) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	// Response is array directly, not wrapped
	var page []Event
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return page, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
