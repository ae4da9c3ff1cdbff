package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rewired-gh/polyscan/internal/logger"
	"github.com/rewired-gh/polyscan/internal/models"
	"github.com/rewired-gh/polyscan/internal/scanner"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode response: %v", err)
		code = http.StatusInternalServerError
		body = []byte(`{"error":"internal"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	order, err := scanner.ParseSnapshotOrder(r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events := s.engine.GetSnapshot(order)
	if events == nil {
		events = []models.EventSnapshot{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleMoves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	order, err := scanner.ParseMoveOrder(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	maxAge := s.config.HistoryWindow
	if raw := q.Get("max_age"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			writeError(w, http.StatusBadRequest, "max_age must be a non-negative number of seconds")
			return
		}
		maxAge = time.Duration(secs * float64(time.Second))
	}

	moves := s.engine.GetRecentMoves(maxAge, order)
	if moves == nil {
		moves = []models.Move{}
	}
	writeJSON(w, http.StatusOK, moves)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleRescan(w http.ResponseWriter, _ *http.Request) {
	queued := s.engine.ForceRescan()
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

// handleDataEvents dumps the snapshot keyed by event ID.
func (s *Server) handleDataEvents(w http.ResponseWriter, _ *http.Request) {
	events, _ := s.engine.View()
	byID := make(map[string]models.EventSnapshot, len(events))
	for _, ev := range events {
		byID[ev.EventID] = ev
	}
	writeJSON(w, http.StatusOK, byID)
}

func (s *Server) handleDataMoves(w http.ResponseWriter, _ *http.Request) {
	_, moves := s.engine.View()
	if moves == nil {
		moves = []models.Move{}
	}
	writeJSON(w, http.StatusOK, moves)
}

// statusLoader is implemented by mirrors that persist the status record.
type statusLoader interface {
	LoadStatus(ctx context.Context) (*models.Status, error)
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	events, moves := s.engine.View()
	info := map[string]any{
		"status":         s.engine.Status(),
		"events":         len(events),
		"moves":          len(moves),
		"tracked_prices": len(s.engine.LastPrices()),
		"interval":       s.engine.Interval().String(),
		"uptime":         time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.storage != nil {
		info["storage"] = s.storage.Describe(r.Context())
		if l, ok := s.storage.(statusLoader); ok {
			if st, err := l.LoadStatus(r.Context()); err != nil {
				info["mirrored_status_error"] = err.Error()
			} else if st != nil {
				info["mirrored_status"] = st
			}
		}
	} else {
		info["storage"] = map[string]any{"backend": "none"}
	}
	if s.hub != nil {
		info["ws_clients"] = s.hub.Clients()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.engine.Status()
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"ok":          status.Healthy(),
		"phase":       status.Phase,
		"last_update": status.LastUpdate,
	})
}
