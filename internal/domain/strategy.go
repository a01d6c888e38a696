package domain

// ReallocationStep moves funds from one pool to another, expressed in the
// source chain's smallest token unit (spec.md §3). SourcePoolAddress is an
// expansion beyond the spec's literal field list: the orchestrator needs a
// concrete source pool to serialize overlapping operations by
// (user, source_pool) per spec.md §9's open question.
type ReallocationStep struct {
	FromChain         ChainId
	SourcePoolAddress string
	SourceProtocol    Protocol
	ToChain           ChainId
	Token             string
	AmountSmallest    *BigInt
	TargetPoolAddress string
	TargetProtocol    Protocol
	ExpectedApyBps    int32
}

// SourcePool derives the PoolKey the step draws funds from.
func (s ReallocationStep) SourcePool() PoolKey {
	return PoolKey{ChainId: s.FromChain, Protocol: s.SourceProtocol, PoolAddress: s.SourcePoolAddress}
}

// TargetPool derives the PoolKey the step deposits funds into.
func (s ReallocationStep) TargetPool() PoolKey {
	return PoolKey{ChainId: s.ToChain, Protocol: s.TargetProtocol, PoolAddress: s.TargetPoolAddress}
}

// StrategyScore is one candidate reallocation plan produced by the strategy
// agent (spec.md §3/§4.5), ranked by ExpectedGainBps before the top-K
// survive to the voting coordinator.
type StrategyScore struct {
	GeneratorName   string
	Steps           []ReallocationStep
	ExpectedGainBps int64
	RiskBps         int64
	ConfidencePpm   int32
}

// Valid enforces the StrategyScore invariants from spec.md §3: confidence
// is a valid parts-per-million fraction, and a scored candidate proposes at
// least one step.
func (s StrategyScore) Valid() bool {
	if s.ConfidencePpm < 0 || s.ConfidencePpm > 1_000_000 {
		return false
	}
	return len(s.Steps) > 0
}
