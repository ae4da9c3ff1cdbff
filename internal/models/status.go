package models

import "strings"

// NotificationLevel is the alert tier derived from a tick's largest move.
type NotificationLevel string

const (
	LevelNone   NotificationLevel = ""
	LevelLow    NotificationLevel = "low"
	LevelMedium NotificationLevel = "medium"
	LevelHigh   NotificationLevel = "high"
)

// Tier thresholds in percentage points; a magnitude must exceed them.
const (
	HighThreshold   = 5.0
	MediumThreshold = 1.0
	LowThreshold    = 0.3
)

// ClassifyMagnitude maps a move magnitude to its notification tier.
func ClassifyMagnitude(magnitude float64) NotificationLevel {
	switch {
	case magnitude > HighThreshold:
		return LevelHigh
	case magnitude > MediumThreshold:
		return LevelMedium
	case magnitude > LowThreshold:
		return LevelLow
	default:
		return LevelNone
	}
}

// ParseNotificationLevel accepts "low", "medium", "high" or "none".
func ParseNotificationLevel(s string) (NotificationLevel, bool) {
	switch strings.ToLower(s) {
	case "", "none":
		return LevelNone, true
	case "low":
		return LevelLow, true
	case "medium":
		return LevelMedium, true
	case "high":
		return LevelHigh, true
	}
	return LevelNone, false
}

// Rank orders tiers: none < low < medium < high.
func (l NotificationLevel) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	default:
		return 0
	}
}

// Notification tells the presentation layer which cue a tick deserves.
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Magnitude float64           `json:"magnitude"`
}

// NotificationFor picks the largest-magnitude move and classifies it.
// It returns nil when no move clears the lowest tier.
func NotificationFor(moves []Move) *Notification {
	var top float64
	for _, m := range moves {
		if m.Magnitude > top {
			top = m.Magnitude
		}
	}
	level := ClassifyMagnitude(top)
	if level == LevelNone {
		return nil
	}
	return &Notification{Level: level, Magnitude: top}
}

// Phase is the scanner state machine position.
type Phase string

const (
	PhaseStarting Phase = "starting"
	PhaseSeeding  Phase = "seeding"
	PhaseScanning Phase = "scanning"
)

// Status describes the scanner for the presentation layer.
type Status struct {
	Text         string        `json:"status"`
	LastUpdate   UnixTime      `json:"last_update"`
	Phase        Phase         `json:"phase"`
	Notification *Notification `json:"notification,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	Events       int           `json:"events"`
	Moves        int           `json:"moves"`
}

// Healthy reports whether the last tick completed without error.
func (s Status) Healthy() bool {
	return s.LastError == ""
}

// Clone returns a copy that shares no pointers with s.
func (s Status) Clone() Status {
	c := s
	if s.Notification != nil {
		n := *s.Notification
		c.Notification = &n
	}
	return c
}
