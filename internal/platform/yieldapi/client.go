// Package yieldapi is the REST client for the external yield aggregator API
// the Price/Yield Data Feed polls for pool APR/TVL/utilization.
package yieldapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/httpclient"
)

// Client wraps an httpclient.Client against the yield aggregator's base
// URL.
type Client struct {
	http *httpclient.Client
}

// New builds a Client against baseURL (e.g. "https://yields.llama.fi").
func New(baseURL string, cfg httpclient.Config, logger *slog.Logger) *Client {
	return &Client{http: httpclient.New(baseURL, cfg, logger)}
}

// apiPool is the wire shape returned by the pools endpoint. ConfidencePpm is
// optional; a source that omits it is treated as fully confident.
type apiPool struct {
	ChainID        uint64 `json:"chain_id"`
	Protocol       string `json:"protocol"`
	PoolAddress    string `json:"pool_address"`
	Token          string `json:"token"`
	AprBps         int32  `json:"apr_bps"`
	TvlSmallest    string `json:"tvl_smallest"`
	UtilizationBps int32  `json:"utilization_bps"`
	ConfidencePpm  *int32 `json:"confidence_ppm"`
}

// Pools fetches the current snapshot for every pool on chainID tracked by
// the aggregator.
func (c *Client) Pools(ctx context.Context, chainID domain.ChainId) ([]domain.PoolSnapshot, error) {
	q := url.Values{}
	q.Set("chain_id", strconv.FormatUint(uint64(chainID), 10))

	body, err := c.http.Get(ctx, "/pools", q)
	if err != nil {
		return nil, fmt.Errorf("yieldapi: get pools: %w", err)
	}

	var apiPools []apiPool
	if err := json.Unmarshal(body, &apiPools); err != nil {
		return nil, fmt.Errorf("yieldapi: decode pools: %w", err)
	}

	now := time.Now()
	out := make([]domain.PoolSnapshot, 0, len(apiPools))
	for _, p := range apiPools {
		tvl, ok := domain.ParseBigInt(p.TvlSmallest)
		if !ok {
			continue
		}
		key := domain.PoolKey{
			ChainId:     domain.ChainId(p.ChainID),
			Protocol:    domain.Protocol(p.Protocol),
			PoolAddress: p.PoolAddress,
		}
		confidence := int32(1_000_000)
		if p.ConfidencePpm != nil {
			confidence = *p.ConfidencePpm
		}
		out = append(out, domain.PoolSnapshot{
			Key:            key,
			Token:          p.Token,
			AprBps:         p.AprBps,
			TvlSmallest:    tvl,
			UtilizationBps: p.UtilizationBps,
			ConfidencePpm:  confidence,
			ObservedAt:     now,
		})
	}
	return out, nil
}

// Chart fetches a short APR history for one pool, used by the strategy
// agent's deterministic backtests.
func (c *Client) Chart(ctx context.Context, key domain.PoolKey, points int) ([]int32, error) {
	q := url.Values{}
	q.Set("chain_id", strconv.FormatUint(uint64(key.ChainId), 10))
	q.Set("pool_address", key.PoolAddress)
	q.Set("points", strconv.Itoa(points))

	body, err := c.http.Get(ctx, "/chart", q)
	if err != nil {
		return nil, fmt.Errorf("yieldapi: get chart: %w", err)
	}

	var aprSeries []int32
	if err := json.Unmarshal(body, &aprSeries); err != nil {
		return nil, fmt.Errorf("yieldapi: decode chart: %w", err)
	}
	return aprSeries, nil
}
