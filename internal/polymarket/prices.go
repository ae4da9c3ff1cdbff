package polymarket

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/polyscan/internal/models"
)

// ParsePrices extracts the (yes, no) pair from an outcomePrices payload.
// It accepts a native JSON array or a string holding a JSON array; the
// elements may be numbers or numeric strings. The second return value is
// false for anything malformed, which callers treat as "skip this market".
func ParsePrices(raw json.RawMessage) (models.PricePair, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return models.PricePair{}, false
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return models.PricePair{}, false
		}
		raw = bytes.TrimSpace([]byte(inner))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return models.PricePair{}, false
	}
	if len(items) < 2 {
		return models.PricePair{}, false
	}

	yes, ok := parsePrice(items[0])
	if !ok {
		return models.PricePair{}, false
	}
	no, ok := parsePrice(items[1])
	if !ok {
		return models.PricePair{}, false
	}
	return models.PricePair{Yes: yes, No: no}, true
}

func parsePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Decimal{}, false
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Decimal{}, false
	}
	// Exponent forms such as 1e400 decode fine but overflow float64.
	if f := d.InexactFloat64(); math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	return d, true
}
