package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecisionActionStepConsistency(t *testing.T) {
	t.Run("rebalance requires steps", func(t *testing.T) {
		d := Decision{Action: ActionRebalance, ConfidencePpm: 700_000, ConsensusPpm: 700_000}
		assert.False(t, d.Valid())
	})
	t.Run("rebalance with steps is valid", func(t *testing.T) {
		d := Decision{
			Action:        ActionRebalance,
			Steps:         []ReallocationStep{{FromChain: 1, ToChain: 2}},
			ConfidencePpm: 700_000,
			ConsensusPpm:  700_000,
		}
		assert.True(t, d.Valid())
	})
	t.Run("hold must have no steps", func(t *testing.T) {
		d := Decision{Action: ActionHold, Steps: []ReallocationStep{{}}}
		assert.False(t, d.Valid())
	})
	t.Run("hold with no steps is valid", func(t *testing.T) {
		d := Decision{Action: ActionHold}
		assert.True(t, d.Valid())
	})
}

func TestDecisionRejectsOutOfRangeFractions(t *testing.T) {
	d := Decision{Action: ActionHold, ConfidencePpm: 1_000_001}
	assert.False(t, d.Valid())
}
