package scanner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/polyscan/internal/models"
)

// SnapshotOrder selects how GetSnapshot orders events.
type SnapshotOrder string

const (
	// OrderByTime sorts by each event's most recent move, newest first.
	OrderByTime SnapshotOrder = "time"
	// OrderByRecentMagnitude puts events that moved in the last interval
	// first, largest move first.
	OrderByRecentMagnitude SnapshotOrder = "recent"
)

// MoveOrder selects how GetRecentMoves orders moves.
type MoveOrder string

const (
	MovesByTime      MoveOrder = "time"
	MovesByMagnitude MoveOrder = "magnitude"
)

// ParseSnapshotOrder accepts "time" (the default) and "recent".
func ParseSnapshotOrder(s string) (SnapshotOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "time", "by_time":
		return OrderByTime, nil
	case "recent", "move", "magnitude", "by_recent_magnitude":
		return OrderByRecentMagnitude, nil
	}
	return "", fmt.Errorf("unknown snapshot order %q", s)
}

// ParseMoveOrder accepts "time" (the default) and "magnitude".
func ParseMoveOrder(s string) (MoveOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "time", "by_time":
		return MovesByTime, nil
	case "magnitude", "move", "by_magnitude":
		return MovesByMagnitude, nil
	}
	return "", fmt.Errorf("unknown move order %q", s)
}

type latestMove struct {
	at        time.Time
	magnitude float64
}

// SortByTime orders events by (timestamp, magnitude) of their most recent
// move, descending. Events without moves keep their relative order at the
// end. The input slice is sorted in place and returned.
func SortByTime(events []models.EventSnapshot, moves []models.Move) []models.EventSnapshot {
	latest := make(map[string]latestMove, len(events))
	for _, m := range moves {
		cur, ok := latest[m.EventID]
		switch {
		case !ok || m.Time.After(cur.at):
			latest[m.EventID] = latestMove{at: m.Time.Time, magnitude: m.Magnitude}
		case m.Time.Equal(cur.at) && m.Magnitude > cur.magnitude:
			cur.magnitude = m.Magnitude
			latest[m.EventID] = cur
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, aok := latest[events[i].EventID]
		b, bok := latest[events[j].EventID]
		if aok != bok {
			return aok
		}
		if !aok {
			return false
		}
		if !a.at.Equal(b.at) {
			return a.at.After(b.at)
		}
		return a.magnitude > b.magnitude
	})
	return events
}

// SortByRecentMagnitude puts every event with a move at or after since
// ahead of every event without one, ordering the former by their largest
// magnitude in that window. The input slice is sorted in place and
// returned.
func SortByRecentMagnitude(events []models.EventSnapshot, moves []models.Move, since time.Time) []models.EventSnapshot {
	recent := make(map[string]float64)
	for _, m := range moves {
		if m.Time.Before(since) {
			continue
		}
		if cur, ok := recent[m.EventID]; !ok || m.Magnitude > cur {
			recent[m.EventID] = m.Magnitude
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, aok := recent[events[i].EventID]
		b, bok := recent[events[j].EventID]
		if aok != bok {
			return aok
		}
		return aok && a > b
	})
	return events
}

// SortMovesByTime orders moves newest first.
func SortMovesByTime(moves []models.Move) []models.Move {
	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].Time.After(moves[j].Time.Time)
	})
	return moves
}

// SortMovesByMagnitude orders moves largest first, newest first on ties.
func SortMovesByMagnitude(moves []models.Move) []models.Move {
	sort.SliceStable(moves, func(i, j int) bool {
		if moves[i].Magnitude != moves[j].Magnitude {
			return moves[i].Magnitude > moves[j].Magnitude
		}
		return moves[i].Time.After(moves[j].Time.Time)
	})
	return moves
}

// SortMovesChronologically orders moves oldest first, keeping insertion
// order for equal timestamps.
func SortMovesChronologically(moves []models.Move) []models.Move {
	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].Time.Before(moves[j].Time.Time)
	})
	return moves
}
