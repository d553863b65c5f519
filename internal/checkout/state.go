package checkout

import "fmt"

// Phase is where a single completion attempt stands.
type Phase string

const (
	PhaseValidating        Phase = "VALIDATING"
	PhaseLocked            Phase = "LOCKED"
	PhasePriceFresh        Phase = "PRICE_FRESH"
	PhasePaymentSufficient Phase = "PAYMENT_SUFFICIENT"
	PhaseMaterializing     Phase = "MATERIALIZING"
	PhaseCommitted         Phase = "COMMITTED"
	PhaseCompensating      Phase = "COMPENSATING"
)

var validNext = map[Phase]map[Phase]bool{
	PhaseValidating:        {PhaseLocked: true},
	PhaseLocked:            {PhasePriceFresh: true, PhaseCompensating: true},
	PhasePriceFresh:        {PhasePaymentSufficient: true, PhaseCompensating: true},
	PhasePaymentSufficient: {PhaseMaterializing: true, PhaseCompensating: true},
	PhaseMaterializing:     {PhaseCommitted: true, PhaseCompensating: true},
	PhaseCommitted:         {},
	PhaseCompensating:      {},
}

func CanTransition(from, to Phase) bool {
	return validNext[from][to]
}

// NeedsCompensation reports whether a failure in p may have left side effects.
func (p Phase) NeedsCompensation() bool {
	switch p {
	case PhaseLocked, PhasePriceFresh, PhasePaymentSufficient, PhaseMaterializing:
		return true
	}
	return false
}

type phaseTracker struct {
	cur Phase
}

func (t *phaseTracker) advance(to Phase) error {
	if !CanTransition(t.cur, to) {
		return fmt.Errorf("invalid completion transition %s -> %s", t.cur, to)
	}
	t.cur = to
	return nil
}
