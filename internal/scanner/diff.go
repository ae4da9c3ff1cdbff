package scanner

import (
	"github.com/rewired-gh/polyscan/internal/logger"
	"github.com/rewired-gh/polyscan/internal/models"
	"github.com/rewired-gh/polyscan/internal/polymarket"
)

// tickDiff is the outcome of comparing one fetch against the last-price
// table: the rebuilt snapshot set and the moves it produced.
type tickDiff struct {
	snapshots []models.EventSnapshot
	moves     []models.Move
	markets   int
}

// diffEvents compares every parseable, valid market against last, records moves
// for markets whose quote changed and overwrites last with the current
// quotes. The snapshot set is built from scratch: events without a single
// parseable market are left out. With baseline set, no deltas are
// computed and no moves are produced.
func diffEvents(
	events []polymarket.Event,
	last map[string]models.PricePair,
	now models.UnixTime,
	newID func() string,
	baseline bool,
) tickDiff {
	var out tickDiff
	seen := make(map[string]bool, len(events))

	for _, ev := range events {
		if ev.ID == "" || seen[ev.ID] {
			continue
		}

		link := ev.Link()
		eventVolume := ev.Volume.Float64()
		snap := models.EventSnapshot{
			EventID:    ev.ID,
			Title:      ev.Title,
			Link:       link,
			Volume:     eventVolume,
			Volume24hr: ev.Volume24hr.Float64(),
			Liquidity:  ev.Liquidity.Float64(),
		}

		for _, m := range ev.Markets {
			if m.ID == "" {
				continue
			}
			pair, ok := polymarket.ParsePrices(m.OutcomePrices)
			if !ok {
				continue
			}

			quote := models.MarketQuote{
				MarketID:   m.ID,
				Question:   m.Question,
				YesPrice:   pair.Yes.InexactFloat64(),
				NoPrice:    pair.No.InexactFloat64(),
				Volume:     m.Volume.Float64(),
				Volume24hr: m.Volume24hr.Float64(),
				Liquidity:  m.Liquidity.Float64(),
			}
			if err := quote.Validate(); err != nil {
				logger.Debug("Skipping market %s: %v", m.ID, err)
				continue
			}

			delta := models.ZeroDelta()
			if !baseline {
				prev, known := last[m.ID]
				if !known {
					prev = pair
				}
				delta = models.ComputeDelta(prev, pair)
			}
			last[m.ID] = pair

			snap.Markets = append(snap.Markets, models.MarketSnapshot{MarketQuote: quote, PriceDelta: delta})
			snap.TotalVolume += quote.Volume
			snap.TotalLiquidity += quote.Liquidity
			out.markets++

			if delta.Changed() {
				out.moves = append(out.moves, models.Move{
					ID:          newID(),
					Time:        now,
					EventID:     ev.ID,
					EventTitle:  ev.Title,
					EventLink:   link,
					MarketID:    m.ID,
					Question:    m.Question,
					YesPrice:    quote.YesPrice,
					NoPrice:     quote.NoPrice,
					PriceDelta:  delta,
					Volume:      quote.Volume,
					Liquidity:   quote.Liquidity,
					EventVolume: eventVolume,
				})
			}
		}

		if len(snap.Markets) == 0 {
			continue
		}
		seen[ev.ID] = true
		out.snapshots = append(out.snapshots, snap)
	}

	return out
}
