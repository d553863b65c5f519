package redisx

import "time"

const (
	// Completion idempotency: idem:checkout:complete:{token} -> order_id
	KeyIdemCheckoutComplete = "idem:checkout:complete:%s"

	// Order cache: order:{order_id} -> JSON view of the order
	KeyOrder = "order:%s"

	// Event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
