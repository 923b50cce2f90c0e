package redisx

import "time"

const (
	// Payment session idempotency: idem:payment:session:{user_id}:{key} -> session_id
	// ("pending" while the first request is in flight).
	KeyIdemPaymentSession = "idem:payment:session:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

const idemPending = "pending"

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
