package models

import (
	"errors"
	"math"
	"strconv"
	"time"
)

// UnixTime is a time.Time encoded in JSON as fractional unix seconds with
// millisecond resolution. The zero time encodes as 0.
type UnixTime struct {
	time.Time
}

// NewUnixTime truncates t to millisecond resolution so it survives a JSON
// round trip unchanged.
func NewUnixTime(t time.Time) UnixTime {
	return UnixTime{Time: t.Truncate(time.Millisecond)}
}

// Seconds returns the unix time in fractional seconds.
func (t UnixTime) Seconds() float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli()) / 1000
}

func (t UnixTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("0"), nil
	}
	return strconv.AppendFloat(nil, t.Seconds(), 'f', 3, 64), nil
}

func (t *UnixTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		t.Time = time.Time{}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if f == 0 {
		t.Time = time.Time{}
		return nil
	}
	t.Time = time.UnixMilli(int64(math.Round(f * 1000)))
	return nil
}

// Move is a recorded, non-zero price change for one market at one tick.
// Moves are never mutated after creation.
type Move struct {
	ID         string   `json:"id"`
	Time       UnixTime `json:"time_ts"`
	EventID    string   `json:"event_id"`
	EventTitle string   `json:"event_title"`
	EventLink  string   `json:"event_link"`
	MarketID   string   `json:"market_id"`
	Question   string   `json:"question"`
	YesPrice   float64  `json:"yes_price"`
	NoPrice    float64  `json:"no_price"`
	PriceDelta
	Volume      float64 `json:"volume"`
	Liquidity   float64 `json:"liquidity"`
	EventVolume float64 `json:"event_volume"`
}

// Validate checks move field constraints.
func (m *Move) Validate() error {
	if m.ID == "" {
		return errors.New("move ID must not be empty")
	}
	if m.EventID == "" {
		return errors.New("event ID must not be empty")
	}
	if m.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if m.Time.IsZero() {
		return errors.New("move time must be set")
	}
	if !m.Changed() {
		return errors.New("move must carry a price change")
	}
	if math.IsNaN(m.Magnitude) || math.IsInf(m.Magnitude, 0) {
		return errors.New("magnitude must be finite")
	}
	if m.Magnitude < 0 {
		return errors.New("magnitude must not be negative")
	}
	want := math.Max(math.Abs(m.YesChange), math.Abs(m.NoChange))
	if math.Abs(m.Magnitude-want) > 1e-9 {
		return errors.New("magnitude must equal max(|yes_change|, |no_change|)")
	}
	return nil
}
