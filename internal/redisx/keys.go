package redisx

import "time"

const (
	// Calendar view cache: calendar:{tenant}:{property}:{from}:{to}
	KeyCalendar = "calendar:%s:%s:%s:%s"

	// Occupancy view cache: occupancy:{tenant}:{property}:{from}:{to}
	KeyOccupancy = "occupancy:%s:%s:%s:%s"

	// Dedup for event processing: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	// Read-model caches stay short: projection lag is the accepted
	// staleness window, the cache must not widen it much.
	TTLViewCache = 2 * time.Minute
	TTLDedup     = 48 * time.Hour
)
