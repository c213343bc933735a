package model

// Deadline is an absolute anchor plus a duration, both in seconds of
// ledger block time. All arithmetic is pure; a display tick only decides
// how often Remaining is re-evaluated.
type Deadline struct {
	Anchor   uint64
	Duration uint64
}

// ExpiresAt returns the absolute expiry timestamp.
func (d Deadline) ExpiresAt() uint64 {
	return d.Anchor + d.Duration
}

// Expired reports whether the deadline has passed. Expiry is inclusive:
// the guarded action unlocks exactly at anchor+duration.
func (d Deadline) Expired(now uint64) bool {
	return now >= d.ExpiresAt()
}

// Remaining returns the seconds left until expiry, zero at or after it.
func (d Deadline) Remaining(now uint64) uint64 {
	at := d.ExpiresAt()
	if now >= at {
		return 0
	}
	return at - now
}
