package domain

import (
	"math/big"
	"time"
)

// PriceTick is a single price observation for a trading pair (e.g.
// "ETH/USD"). Price is fixed-point 1e18; Confidence is parts-per-million.
type PriceTick struct {
	Pair         string
	PriceE18     *BigInt
	ConfidencePpm int32
	Source       string
	ObservedAt   time.Time
	LatencyMs    int64
}

// Valid enforces the PriceTick invariant from spec.md §3.
func (t PriceTick) Valid() bool {
	return t.ConfidencePpm >= 0 && t.ConfidencePpm <= 1_000_000
}

// Stale reports whether the tick is older than maxAge relative to now.
func (t PriceTick) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(t.ObservedAt) > maxAge
}

// DeltaBps returns the absolute percentage change from prev to cur, in basis
// points: |cur - prev| * 10000 / prev. Returns 0 if prev is zero/nil to avoid
// division by zero (a fresh pair with no prior tick is never "significant").
func DeltaBps(prev, cur *BigInt) int64 {
	if prev == nil || prev.IsZero() {
		return 0
	}
	diff := new(big.Int).Sub(cur.Int(), prev.Int())
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10000))
	diff.Quo(diff, prev.Int())
	return diff.Int64()
}
