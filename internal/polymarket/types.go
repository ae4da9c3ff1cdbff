package polymarket

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Number decodes upstream numeric fields that arrive either as JSON
// numbers or as numeric strings. Anything unparseable decodes as zero.
type Number struct {
	decimal.Decimal
}

func (n *Number) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		n.Decimal = decimal.Zero
		return nil
	}
	n.Decimal = d
	return nil
}

// Float64 returns the value as a float64.
func (n Number) Float64() float64 {
	return n.InexactFloat64()
}

// Event is one entry of the gamma /events listing.
type Event struct {
	ID         string   `json:"id"`
	Ticker     string   `json:"ticker"`
	Slug       string   `json:"slug"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Active     bool     `json:"active"`
	Closed     bool     `json:"closed"`
	Volume     Number   `json:"volume"`
	Volume24hr Number   `json:"volume24hr"`
	Liquidity  Number   `json:"liquidity"`
	Markets    []Market `json:"markets"`
}

// Market is one market embedded in an event. OutcomePrices is kept raw
// because upstream sends either a native array or a JSON-encoded string.
type Market struct {
	ID            string          `json:"id"`
	ConditionID   string          `json:"conditionId"`
	Question      string          `json:"question"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	Volume        Number          `json:"volume"`
	Volume24hr    Number          `json:"volume24hr"`
	Liquidity     Number          `json:"liquidity"`
}

// Link returns the canonical polymarket.com URL for the event.
func (e Event) Link() string {
	return MakeEventURL(e.ID, e.Slug, e.Title)
}
