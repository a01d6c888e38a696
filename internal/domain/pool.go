package domain

import "time"

// PoolKey uniquely identifies a lending/AMM pool: the chain it lives on,
// the protocol it belongs to, and its on-chain pool address.
type PoolKey struct {
	ChainId      ChainId
	Protocol     Protocol
	PoolAddress  string
}

// PoolSnapshot is a single point-in-time observation of a pool's yield and
// utilization. All monetary amounts are integers in the token's smallest
// unit; apr_bps/utilization_bps are integer basis points. Token is the
// underlying asset symbol the pool accepts (e.g. "USDC"), the key the
// signal agent groups pools by for its cross-pool APR delta rule
// (spec.md §4.4 rule 1). ConfidencePpm mirrors PriceTick's confidence
// convention for yield-source data quality; sources that don't report one
// are treated as fully confident (1_000_000).
type PoolSnapshot struct {
	Key            PoolKey
	Token          string
	AprBps         int32
	TvlSmallest    *BigInt
	UtilizationBps int32
	ConfidencePpm  int32
	ObservedAt     time.Time
}

// Valid enforces the PoolSnapshot invariant from spec.md §3: utilization
// must be a valid basis-point fraction. AprBps may legitimately exceed
// 10000 (>100% APR happens on volatile pools) but must fit in int32, which
// the Go type already guarantees.
func (p PoolSnapshot) Valid() bool {
	return p.UtilizationBps >= 0 && p.UtilizationBps <= 10000
}
