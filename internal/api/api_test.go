package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyscan/internal/models"
	"github.com/rewired-gh/polyscan/internal/scanner"
)

type fakeEngine struct {
	mu          sync.Mutex
	events      []models.EventSnapshot
	moves       []models.Move
	status      models.Status
	rescans     int
	lastMaxAge  time.Duration
	lastMoveOrd scanner.MoveOrder
	lastSnapOrd scanner.SnapshotOrder
	panicOnView bool
}

func (f *fakeEngine) GetSnapshot(order scanner.SnapshotOrder) []models.EventSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSnapOrd = order
	return models.CloneSnapshots(f.events)
}

func (f *fakeEngine) GetRecentMoves(maxAge time.Duration, order scanner.MoveOrder) []models.Move {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMaxAge, f.lastMoveOrd = maxAge, order
	return append([]models.Move(nil), f.moves...)
}

func (f *fakeEngine) View() ([]models.EventSnapshot, []models.Move) {
	if f.panicOnView {
		panic("view exploded")
	}
	return models.CloneSnapshots(f.events), append([]models.Move(nil), f.moves...)
}

func (f *fakeEngine) Status() models.Status { return f.status.Clone() }

func (f *fakeEngine) LastPrices() map[string]models.PricePair {
	return map[string]models.PricePair{"m1": models.NewPricePair(0.4, 0.6)}
}

func (f *fakeEngine) ForceRescan() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescans++
	return f.rescans == 1
}

func (f *fakeEngine) Interval() time.Duration { return 5 * time.Second }

type fakeStorage struct{}

func (fakeStorage) Describe(context.Context) map[string]any {
	return map[string]any{"backend": "file"}
}

func (fakeStorage) LoadStatus(context.Context) (*models.Status, error) {
	return &models.Status{Text: "Updated 2 events with markets", Phase: models.PhaseScanning}, nil
}

func newFake() *fakeEngine {
	return &fakeEngine{
		events: []models.EventSnapshot{{EventID: "e1", Title: "One", Markets: []models.MarketSnapshot{{
			MarketQuote: models.MarketQuote{MarketID: "m1", YesPrice: 0.4, NoPrice: 0.6},
			PriceDelta:  models.ZeroDelta(),
		}}}},
		moves: []models.Move{{ID: "mv1", EventID: "e1", MarketID: "m1", Time: models.NewUnixTime(time.UnixMilli(1772600767891))}},
		status: models.Status{
			Text:       "Updated 1 events with markets",
			LastUpdate: models.NewUnixTime(time.UnixMilli(1772600767891)),
			Phase:      models.PhaseScanning,
		},
	}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	eng := newFake()
	h := NewServer(eng, nil, nil, Config{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/snapshot?sort=recent")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, scanner.OrderByRecentMagnitude, eng.lastSnapOrd)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0]["event_id"])

	rec = do(t, h, http.MethodGet, "/api/snapshot?sort=sideways")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovesEndpoint(t *testing.T) {
	eng := newFake()
	h := NewServer(eng, nil, nil, Config{HistoryWindow: 2 * time.Minute}).Handler()

	rec := do(t, h, http.MethodGet, "/api/moves")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2*time.Minute, eng.lastMaxAge)
	assert.Equal(t, scanner.MovesByTime, eng.lastMoveOrd)
	assert.Contains(t, rec.Body.String(), `"time_ts":1772600767.891`)

	rec = do(t, h, http.MethodGet, "/api/moves?max_age=1.5&sort=magnitude")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1500*time.Millisecond, eng.lastMaxAge)
	assert.Equal(t, scanner.MovesByMagnitude, eng.lastMoveOrd)

	for _, bad := range []string{"-1", "abc", "NaN"} {
		rec = do(t, h, http.MethodGet, "/api/moves?max_age="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "max_age=%s", bad)
	}
}

func TestStatusAndHealth(t *testing.T) {
	eng := newFake()
	h := NewServer(eng, nil, nil, Config{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "Updated 1 events with markets", status["status"])
	assert.Equal(t, 1772600767.891, status["last_update"])

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)

	eng.status.LastError = "boom"
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/healthz").Code)
}

func TestRescanEndpoints(t *testing.T) {
	eng := newFake()
	h := NewServer(eng, nil, nil, Config{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/rescan")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued":true}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/fetch")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued":false}`, rec.Body.String())

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/rescan").Code)
}

func TestDataAndDebugEndpoints(t *testing.T) {
	eng := newFake()
	h := NewServer(eng, fakeStorage{}, NewHub(eng.Status), Config{}).Handler()

	rec := do(t, h, http.MethodGet, "/data/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var byID map[string]models.EventSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &byID))
	assert.Contains(t, byID, "e1")

	rec = do(t, h, http.MethodGet, "/data/moves")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "["))

	rec = do(t, h, http.MethodGet, "/debug")
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, float64(1), info["events"])
	assert.Equal(t, float64(1), info["tracked_prices"])
	assert.Equal(t, "file", info["storage"].(map[string]any)["backend"])
	assert.Equal(t, float64(0), info["ws_clients"])
	assert.Equal(t, "Updated 2 events with markets", info["mirrored_status"].(map[string]any)["status"])
}

func TestRecoveryMiddleware(t *testing.T) {
	eng := newFake()
	eng.panicOnView = true
	h := NewServer(eng, nil, nil, Config{}).Handler()

	rec := do(t, h, http.MethodGet, "/data/events")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal"}`, rec.Body.String())
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"magnitude": math.Inf(1)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	h := NewServer(newFake(), nil, nil, Config{AllowedOrigins: []string{"https://ok.example"}}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://ok.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ok.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebsocketFeed(t *testing.T) {
	eng := newFake()
	hub := NewHub(eng.Status)
	srv := httptest.NewServer(NewServer(eng, nil, hub, Config{}).Handler())
	defer srv.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello tickMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "status", hello.Type)
	assert.Equal(t, eng.status.Text, hello.Status.Text)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnTick(scanner.TickResult{Events: 3, Moves: eng.moves})

	var msg tickMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "tick", msg.Type)
	require.NotNil(t, msg.Tick)
	assert.Equal(t, 3, msg.Tick.Events)
	require.Len(t, msg.Tick.Moves, 1)
	assert.Equal(t, "mv1", msg.Tick.Moves[0].ID)

	hub.Close()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection should close after hub shutdown")
}
