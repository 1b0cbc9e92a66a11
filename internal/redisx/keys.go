package redisx

import "time"

const (
	// checkout idempotency: idem:checkout:{buyer_id}:{idempotency_key} -> order number ("" while in flight)
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// joined order view: order_view:{order_number} -> JSON
	KeyOrderView = "order_view:%s"

	// event dedup: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = 30 * time.Second
	TTLOrderView   = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
