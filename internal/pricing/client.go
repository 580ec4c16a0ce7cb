package pricing

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// ClientOpts configures the shopping-search client.
type ClientOpts struct {
	BaseURL string
	APIKey  string
}

// Client queries a shopping-search API for comparable listings and derives
// price statistics from them.
type Client struct {
	httpClient *resty.Client
}

// NewClient creates a shopping-search price researcher.
func NewClient(opts ClientOpts) *Client {
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": "appraisald/1.0",
		})
	if opts.APIKey != "" {
		c.SetHeader("X-API-Key", opts.APIKey)
	}
	return &Client{httpClient: c}
}

type searchResponse struct {
	Results []searchListing `json:"results"`
	Trend   string          `json:"trend,omitempty"`
}

type searchListing struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Source   string  `json:"source"`
	URL      string  `json:"url"`
}

// Lookup implements Researcher. It searches comparable listings and
// aggregates their prices; no matching listings yields an empty (non-error)
// result. Outlier listings beyond the middle 80% of the price distribution
// are ignored so one mispriced listing does not skew the average.
func (c *Client) Lookup(ctx context.Context, description, language, currency string) (*PriceStats, error) {
	var body searchResponse
	resp, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        description,
			"language": language,
			"currency": currency,
			"rows":     "20",
		}).
		SetResult(&body).
		Get("/v1/listings/search")
	if err != nil {
		return nil, fmt.Errorf("price search request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("price search returned status %d", resp.StatusCode())
	}

	var prices []float64
	var sources []string
	for _, listing := range body.Results {
		if listing.Price <= 0 {
			continue
		}
		if listing.Currency != "" && currency != "" && listing.Currency != currency {
			continue
		}
		prices = append(prices, listing.Price)
		if listing.Source != "" {
			sources = appendUnique(sources, listing.Source)
		}
	}

	if len(prices) == 0 {
		log.Debug().Str("query", description).Msg("no comparable listings found")
		return &PriceStats{}, nil
	}

	stats := aggregate(prices)
	stats.MarketTrend = body.Trend
	stats.Sources = sources

	log.Info().
		Str("query", description).
		Int("listings", len(prices)).
		Float64("averagePrice", stats.AveragePrice).
		Msg("price research complete")

	return stats, nil
}

// aggregate computes average and range over the middle 80% of prices.
func aggregate(prices []float64) *PriceStats {
	sort.Float64s(prices)

	lo := len(prices) / 10
	hi := len(prices) - lo
	trimmed := prices[lo:hi]

	var sum float64
	for _, p := range trimmed {
		sum += p
	}

	return &PriceStats{
		AveragePrice: round2(sum / float64(len(trimmed))),
		PriceRange: PriceRange{
			Min: trimmed[0],
			Max: trimmed[len(trimmed)-1],
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
