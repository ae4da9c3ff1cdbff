package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, url string, pageSize int) *Client {
	t.Helper()
	c := NewClient(url, 5*time.Second, ClientConfig{PageSize: pageSize, MaxRetries: 3})
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func makeEvents(from, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, map[string]any{
			"id":    strconv.Itoa(i),
			"title": fmt.Sprintf("Event %d", i),
			"markets": []map[string]any{
				{"id": fmt.Sprintf("m%d", i), "question": "Q?", "outcomePrices": `["0.4","0.6"]`},
			},
		})
	}
	return out
}

func TestFetchAllEvents_Paginates(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Path != "/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("active") != "true" || q.Get("closed") != "false" || q.Get("archived") != "false" {
			t.Errorf("filter params missing: %v", q)
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit != 2 {
			t.Errorf("limit = %d, want 2", limit)
		}
		total := 5
		n := limit
		if offset+n > total {
			n = total - offset
		}
		_ = json.NewEncoder(w).Encode(makeEvents(offset, n))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	events, err := c.FetchAllEvents(context.Background(), DefaultFilter())
	if err != nil {
		t.Fatalf("FetchAllEvents: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("made %d requests, want 3", got)
	}
	if events[4].ID != "4" {
		t.Errorf("last event ID = %s, want 4", events[4].ID)
	}
}

func TestFetchAllEvents_StopsOnEmptyPage(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 1 {
			_ = json.NewEncoder(w).Encode(makeEvents(0, 2))
			return
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	events, err := c.FetchAllEvents(context.Background(), DefaultFilter())
	if err != nil {
		t.Fatalf("FetchAllEvents: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("made %d requests, want 2", got)
	}
}

func TestFetchAllEvents_RetriesTransientFailure(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(makeEvents(0, 1))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 10)
	events, err := c.FetchAllEvents(context.Background(), DefaultFilter())
	if err != nil {
		t.Fatalf("FetchAllEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("made %d requests, want 3", got)
	}
}

func TestFetchAllEvents_ExhaustedRetriesReturnPartial(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Query().Get("offset") == "0" {
			_ = json.NewEncoder(w).Encode(makeEvents(0, 2))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	events, err := c.FetchAllEvents(context.Background(), DefaultFilter())
	if !errors.Is(err, ErrFetchIncomplete) {
		t.Fatalf("expected ErrFetchIncomplete, got %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d partial events, want 2", len(events))
	}
	if got := atomic.LoadInt32(&requests); got != 4 {
		t.Errorf("made %d requests, want 1 + 3 retries", got)
	}
}

func TestFetchAllEvents_MalformedBodyIsRetried(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	events, err := c.FetchAllEvents(context.Background(), DefaultFilter())
	if !errors.Is(err, ErrFetchIncomplete) {
		t.Fatalf("expected ErrFetchIncomplete, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("made %d requests, want 3", got)
	}
}

func TestFetchAllEvents_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, ClientConfig{PageSize: 2, MaxRetries: 3, RetryDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := c.FetchAllEvents(ctx, DefaultFilter())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFilterApply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tag_slug") != "politics" {
			t.Errorf("tag_slug = %q", q.Get("tag_slug"))
		}
		if q.Get("order") != "volume24hr" || q.Get("ascending") != "false" {
			t.Errorf("order params = %v", q)
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	f := DefaultFilter()
	f.TagSlug = "politics"
	f.Order = "volume24hr"
	if _, err := c.FetchAllEvents(context.Background(), f); err != nil {
		t.Fatalf("FetchAllEvents: %v", err)
	}
}

func TestEventDecodeNumbers(t *testing.T) {
	payload := `{
		"id": "42",
		"title": "Test",
		"volume": 1234.5,
		"volume24hr": "99.5",
		"liquidity": "",
		"markets": [{"id": "m1", "question": "Q", "outcomePrices": ["0.1", "0.9"], "volume": "10"}]
	}`
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.Volume.Float64() != 1234.5 {
		t.Errorf("volume = %v", ev.Volume.Float64())
	}
	if ev.Volume24hr.Float64() != 99.5 {
		t.Errorf("volume24hr = %v", ev.Volume24hr.Float64())
	}
	if ev.Liquidity.Float64() != 0 {
		t.Errorf("liquidity = %v, want 0", ev.Liquidity.Float64())
	}
	if ev.Markets[0].Volume.Float64() != 10 {
		t.Errorf("market volume = %v", ev.Markets[0].Volume.Float64())
	}
}
