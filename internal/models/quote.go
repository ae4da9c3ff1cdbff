// Package models defines the core domain entities: quotes, price deltas,
// moves, event snapshots and scanner status.
package models

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PricePair is an exact (yes, no) quote as parsed from the upstream payload.
type PricePair struct {
	Yes decimal.Decimal
	No  decimal.Decimal
}

// NewPricePair builds a pair from float prices. Intended for tests and
// restored state; live quotes are parsed straight into decimals.
func NewPricePair(yes, no float64) PricePair {
	return PricePair{Yes: decimal.NewFromFloat(yes), No: decimal.NewFromFloat(no)}
}

// Equal reports whether both sides are numerically identical.
func (p PricePair) Equal(o PricePair) bool {
	return p.Yes.Equal(o.Yes) && p.No.Equal(o.No)
}

// MarketQuote is one binary-outcome market at one point in time.
type MarketQuote struct {
	MarketID   string  `json:"id"`
	Question   string  `json:"question"`
	YesPrice   float64 `json:"yes_price"`
	NoPrice    float64 `json:"no_price"`
	Volume     float64 `json:"volume"`
	Volume24hr float64 `json:"volume_24hr"`
	Liquidity  float64 `json:"liquidity"`
}

// Validate checks quote field constraints.
func (q *MarketQuote) Validate() error {
	if q.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if math.IsNaN(q.YesPrice) || q.YesPrice < 0.0 || q.YesPrice > 1.0 {
		return errors.New("yes price must be between 0.0 and 1.0")
	}
	if math.IsNaN(q.NoPrice) || q.NoPrice < 0.0 || q.NoPrice > 1.0 {
		return errors.New("no price must be between 0.0 and 1.0")
	}
	if math.IsNaN(q.Volume) || math.IsNaN(q.Liquidity) {
		return errors.New("volume and liquidity must be numbers")
	}
	if q.Volume < 0 {
		return errors.New("volume must not be negative")
	}
	if q.Liquidity < 0 {
		return errors.New("liquidity must not be negative")
	}
	return nil
}

// Direction is the sign of one side of a price change.
type Direction string

const (
	Up   Direction = "UP"
	Down Direction = "DOWN"
	Flat Direction = "FLAT"
)

// PriceDelta compares a quote to the immediately preceding one for the
// same market. Changes are signed percentage points.
type PriceDelta struct {
	YesChange float64   `json:"yes_change"`
	NoChange  float64   `json:"no_change"`
	YesDir    Direction `json:"yes_dir"`
	NoDir     Direction `json:"no_dir"`
	Magnitude float64   `json:"magnitude"`
}

// ZeroDelta is the delta of a market with no prior quote.
func ZeroDelta() PriceDelta {
	return PriceDelta{YesDir: Flat, NoDir: Flat}
}

// ComputeDelta returns cur minus prev, in percentage points. The
// subtraction is done on decimals so identical quotes always compare FLAT
// and 0.45-0.40 is exactly 5 points.
func ComputeDelta(prev, cur PricePair) PriceDelta {
	dy := cur.Yes.Sub(prev.Yes).Mul(hundred)
	dn := cur.No.Sub(prev.No).Mul(hundred)

	yes := dy.InexactFloat64()
	no := dn.InexactFloat64()

	return PriceDelta{
		YesChange: yes,
		NoChange:  no,
		YesDir:    directionOfDecimal(dy),
		NoDir:     directionOfDecimal(dn),
		Magnitude: math.Max(math.Abs(yes), math.Abs(no)),
	}
}

func directionOfDecimal(d decimal.Decimal) Direction {
	switch d.Sign() {
	case 1:
		return Up
	case -1:
		return Down
	default:
		return Flat
	}
}

// Changed reports whether either side moved.
func (d PriceDelta) Changed() bool {
	return d.YesDir != Flat || d.NoDir != Flat
}
