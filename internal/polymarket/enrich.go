package polymarket

import "context"

// Enricher runs between fetch and diff. It may annotate, filter or reorder
// the fetched events but must not mutate the input slice's elements in
// place.
type Enricher interface {
	Enrich(ctx context.Context, events []Event) ([]Event, error)
}

// EnricherFunc adapts a plain function to the Enricher interface.
type EnricherFunc func(ctx context.Context, events []Event) ([]Event, error)

func (f EnricherFunc) Enrich(ctx context.Context, events []Event) ([]Event, error) {
	return f(ctx, events)
}

// VolumeFilter drops events below the configured activity floor. A zero
// minimum disables that check. With MatchAny an event passes when any
// enabled check passes; otherwise all enabled checks must pass.
type VolumeFilter struct {
	MinVolume24hr float64
	MinLiquidity  float64
	MatchAny      bool
}

// Enabled reports whether the filter would drop anything.
func (f VolumeFilter) Enabled() bool {
	return f.MinVolume24hr > 0 || f.MinLiquidity > 0
}

func (f VolumeFilter) Enrich(_ context.Context, events []Event) ([]Event, error) {
	if !f.Enabled() {
		return events, nil
	}
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if f.pass(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f VolumeFilter) pass(ev Event) bool {
	var checks []bool
	if f.MinVolume24hr > 0 {
		checks = append(checks, ev.Volume24hr.Float64() >= f.MinVolume24hr)
	}
	if f.MinLiquidity > 0 {
		checks = append(checks, ev.Liquidity.Float64() >= f.MinLiquidity)
	}
	if f.MatchAny {
		for _, ok := range checks {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}
