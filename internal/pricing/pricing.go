// Package pricing looks up market prices for appraised items. Lookups are
// best-effort: a zero/empty result is not an error and callers fall back to
// the AI-estimated value.
package pricing

import "context"

// PriceRange bounds observed market prices.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PriceStats summarizes market research for one item description.
type PriceStats struct {
	AveragePrice float64    `json:"average_price"`
	PriceRange   PriceRange `json:"price_range"`
	MarketTrend  string     `json:"market_trend,omitempty"`
	Sources      []string   `json:"sources,omitempty"`
}

// Empty reports whether the lookup found no usable market data.
func (s *PriceStats) Empty() bool {
	return s == nil || s.AveragePrice <= 0
}

// Researcher performs market-price research for an item description.
type Researcher interface {
	Lookup(ctx context.Context, description, language, currency string) (*PriceStats, error)
}
