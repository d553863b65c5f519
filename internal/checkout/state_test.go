package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(PhaseValidating, PhaseLocked))
	assert.True(t, CanTransition(PhaseMaterializing, PhaseCommitted))
	assert.True(t, CanTransition(PhasePriceFresh, PhaseCompensating))

	assert.False(t, CanTransition(PhaseValidating, PhaseCompensating), "nothing to undo before the lock")
	assert.False(t, CanTransition(PhaseValidating, PhaseMaterializing))
	assert.False(t, CanTransition(PhaseCommitted, PhaseCompensating))
}

func TestPhaseTracker(t *testing.T) {
	tr := &phaseTracker{cur: PhaseValidating}
	assert.NoError(t, tr.advance(PhaseLocked))
	assert.Error(t, tr.advance(PhaseCommitted))
	assert.Equal(t, PhaseLocked, tr.cur)
	assert.True(t, tr.cur.NeedsCompensation())
	assert.False(t, PhaseValidating.NeedsCompensation())
}
