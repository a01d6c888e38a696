package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// MarketSnapshot is an immutable, timestamped view of every tracked pool and
// price pair at one instant. Once built it is never mutated; a new snapshot
// supersedes the old one atomically (see internal/aggregator).
type MarketSnapshot struct {
	Pools    map[PoolKey]PoolSnapshot
	Prices   map[string]PriceTick
	TakenAt  time.Time
}

// NewMarketSnapshot builds a MarketSnapshot from copies of the given maps so
// the caller's maps remain mutable without affecting the published
// snapshot — the copy-on-publish discipline spec.md §3 "Ownership" requires.
func NewMarketSnapshot(pools map[PoolKey]PoolSnapshot, prices map[string]PriceTick, takenAt time.Time) *MarketSnapshot {
	p := make(map[PoolKey]PoolSnapshot, len(pools))
	for k, v := range pools {
		p[k] = v
	}
	pr := make(map[string]PriceTick, len(prices))
	for k, v := range prices {
		pr[k] = v
	}
	return &MarketSnapshot{Pools: p, Prices: pr, TakenAt: takenAt}
}

// canonicalPool is the sorted, JSON-stable projection of a PoolSnapshot used
// for canonical encoding. Field order is fixed and exhaustive.
type canonicalPool struct {
	ChainId        ChainId  `json:"chain_id"`
	Protocol       Protocol `json:"protocol"`
	PoolAddress    string   `json:"pool_address"`
	Token          string   `json:"token"`
	AprBps         int32    `json:"apr_bps"`
	TvlSmallest    string   `json:"tvl_smallest"`
	UtilizationBps int32    `json:"utilization_bps"`
	ConfidencePpm  int32    `json:"confidence_ppm"`
	ObservedAtUnix int64    `json:"observed_at_unix_ns"`
}

type canonicalPrice struct {
	Pair          string `json:"pair"`
	PriceE18      string `json:"price_e18"`
	ConfidencePpm int32  `json:"confidence_ppm"`
	Source        string `json:"source"`
	ObservedAtUnix int64 `json:"observed_at_unix_ns"`
	LatencyMs     int64  `json:"latency_ms"`
}

type canonicalSnapshot struct {
	Pools   []canonicalPool  `json:"pools"`
	Prices  []canonicalPrice `json:"prices"`
	TakenAt int64            `json:"taken_at_unix_ns"`
}

// CanonicalEncode produces a byte-identical encoding for snapshots with
// identical content, regardless of Go map iteration order — the property
// spec.md §8 "Idempotence of snapshot" requires. Map keys are sorted before
// encoding.
func (m *MarketSnapshot) CanonicalEncode() ([]byte, error) {
	cs := canonicalSnapshot{TakenAt: m.TakenAt.UnixNano()}

	for k, v := range m.Pools {
		cs.Pools = append(cs.Pools, canonicalPool{
			ChainId:        k.ChainId,
			Protocol:       k.Protocol,
			PoolAddress:    k.PoolAddress,
			Token:          v.Token,
			AprBps:         v.AprBps,
			TvlSmallest:    v.TvlSmallest.String(),
			UtilizationBps: v.UtilizationBps,
			ConfidencePpm:  v.ConfidencePpm,
			ObservedAtUnix: v.ObservedAt.UnixNano(),
		})
	}
	sort.Slice(cs.Pools, func(i, j int) bool {
		a, b := cs.Pools[i], cs.Pools[j]
		if a.ChainId != b.ChainId {
			return a.ChainId < b.ChainId
		}
		if a.Protocol != b.Protocol {
			return a.Protocol < b.Protocol
		}
		return a.PoolAddress < b.PoolAddress
	})

	for k, v := range m.Prices {
		cs.Prices = append(cs.Prices, canonicalPrice{
			Pair:           k,
			PriceE18:       v.PriceE18.String(),
			ConfidencePpm:  v.ConfidencePpm,
			Source:         v.Source,
			ObservedAtUnix: v.ObservedAt.UnixNano(),
			LatencyMs:      v.LatencyMs,
		})
	}
	sort.Slice(cs.Prices, func(i, j int) bool { return cs.Prices[i].Pair < cs.Prices[j].Pair })

	return json.Marshal(cs)
}

// CanonicalHash returns the hex-encoded SHA-256 of the canonical encoding,
// a convenient fixed-size fingerprint for comparing two snapshots for
// content equality without comparing maps directly.
func (m *MarketSnapshot) CanonicalHash() (string, error) {
	enc, err := m.CanonicalEncode()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(enc)
	return hex.EncodeToString(sum[:]), nil
}

// Pool looks up a single pool's latest snapshot.
func (m *MarketSnapshot) Pool(key PoolKey) (PoolSnapshot, bool) {
	p, ok := m.Pools[key]
	return p, ok
}

// Price looks up a single pair's latest tick.
func (m *MarketSnapshot) Price(pair string) (PriceTick, bool) {
	p, ok := m.Prices[pair]
	return p, ok
}
