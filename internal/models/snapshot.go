package models

import "errors"

// MarketSnapshot is the latest quote for one market together with its
// delta against the previous tick.
type MarketSnapshot struct {
	MarketQuote
	PriceDelta
}

// EventSnapshot is the latest known state of one event and its markets.
type EventSnapshot struct {
	EventID        string           `json:"id"`
	Title          string           `json:"title"`
	Link           string           `json:"link"`
	Volume         float64          `json:"volume"`
	Volume24hr     float64          `json:"volume_24hr"`
	Liquidity      float64          `json:"liquidity"`
	Markets        []MarketSnapshot `json:"markets"`
	TotalVolume    float64          `json:"total_volume"`
	TotalLiquidity float64          `json:"total_liquidity"`
}

// Clone returns a deep copy safe for callers to mutate.
func (e EventSnapshot) Clone() EventSnapshot {
	c := e
	c.Markets = append([]MarketSnapshot(nil), e.Markets...)
	return c
}

// Validate checks snapshot field constraints.
func (e *EventSnapshot) Validate() error {
	if e.EventID == "" {
		return errors.New("event ID must not be empty")
	}
	if len(e.Markets) == 0 {
		return errors.New("event snapshot must contain at least one market")
	}
	for i := range e.Markets {
		if err := e.Markets[i].MarketQuote.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CloneSnapshots deep-copies a slice of event snapshots.
func CloneSnapshots(events []EventSnapshot) []EventSnapshot {
	out := make([]EventSnapshot, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}
