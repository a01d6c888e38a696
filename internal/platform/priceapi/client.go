// Package priceapi is the REST client for the external price oracle the
// Price/Yield Data Feed polls as a fallback/cross-check for on-chain prices.
package priceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/httpclient"
)

// Client wraps an httpclient.Client against the price API's base URL.
type Client struct {
	http *httpclient.Client
}

// New builds a Client against baseURL (e.g. "https://api.coingecko.com").
func New(baseURL string, cfg httpclient.Config, logger *slog.Logger) *Client {
	return &Client{http: httpclient.New(baseURL, cfg, logger)}
}

type apiPrice struct {
	Pair          string `json:"pair"`
	PriceE18      string `json:"price_e18"`
	ConfidencePpm int32  `json:"confidence_ppm"`
}

// SimplePrice fetches the current price for pair (e.g. "ETH/USD").
func (c *Client) SimplePrice(ctx context.Context, pair string) (domain.PriceTick, error) {
	start := time.Now()
	q := url.Values{}
	q.Set("pair", pair)

	body, err := c.http.Get(ctx, "/simple/price", q)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("priceapi: get price %s: %w", pair, err)
	}

	var p apiPrice
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.PriceTick{}, fmt.Errorf("priceapi: decode price %s: %w", pair, err)
	}

	price, ok := domain.ParseBigInt(p.PriceE18)
	if !ok {
		return domain.PriceTick{}, fmt.Errorf("priceapi: invalid price_e18 for %s: %q", pair, p.PriceE18)
	}

	return domain.PriceTick{
		Pair:          pair,
		PriceE18:      price,
		ConfidencePpm: p.ConfidencePpm,
		Source:        "priceapi",
		ObservedAt:    time.Now(),
		LatencyMs:     time.Since(start).Milliseconds(),
	}, nil
}
