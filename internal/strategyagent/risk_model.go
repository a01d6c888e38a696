package strategyagent

import "github.com/crossfluxx/rebalancer/internal/domain"

// riskBps implements spec.md §4.5 point 3: risk_bps is derived from the
// target pool's utilization, a configured per-protocol risk weight, and a
// volatility contribution drawn from any info signal touching the step's
// token.
func riskBps(step domain.ReallocationStep, snap domain.MarketSnapshot, signals []domain.Signal, cfg Config) int64 {
	var risk int64

	if pool, ok := snap.Pool(step.TargetPool()); ok {
		risk += int64(pool.UtilizationBps)
	}

	risk += cfg.ProtocolRiskBps[step.TargetProtocol]

	for _, sig := range signals {
		if sig.Kind != domain.SignalKindInfo || sig.Pair == "" {
			continue
		}
		if sig.Pair != step.Token && sig.Pair != step.Token+"/USD" {
			continue
		}
		risk += (sig.MagnitudeBps * cfg.VolatilityWeight) / 10_000
	}

	if risk < 0 {
		risk = 0
	}
	return risk
}
