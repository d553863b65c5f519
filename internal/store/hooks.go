package store

import "context"

// Hooks collects after-commit callbacks for a single transaction.
// Implementations of Queries embed it; TxRunner drains it after commit only.
type Hooks struct {
	fns []func(ctx context.Context)
}

func (h *Hooks) AfterCommit(fn func(ctx context.Context)) {
	h.fns = append(h.fns, fn)
}

// Run executes the collected callbacks in registration order and forgets them.
func (h *Hooks) Run(ctx context.Context) {
	fns := h.fns
	h.fns = nil
	for _, fn := range fns {
		fn(ctx)
	}
}

// Discard forgets every callback; used on rollback.
func (h *Hooks) Discard() { h.fns = nil }
