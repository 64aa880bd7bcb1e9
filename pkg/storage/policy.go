package storage

import "time"

// DefaultTTL bounds how long an issued request may await its response. It
// matches the longest issue delay the response skew checks could ever
// accept, so records outlive every response that could still validate.
const DefaultTTL = 90 * time.Minute

// RetentionPolicy bounds the correlation store. MaxPending of zero means
// unbounded; it is enforced by adapters that cannot expire records natively
// and is advisory elsewhere.
type RetentionPolicy struct {
	TTL        time.Duration
	MaxPending int
}

func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{TTL: DefaultTTL}
}

func (p RetentionPolicy) Normalize() RetentionPolicy {
	if p.TTL <= 0 {
		p.TTL = DefaultTTL
	}
	if p.MaxPending < 0 {
		p.MaxPending = 0
	}
	return p
}

// Deadline returns the expiry for a request issued at the given instant.
func (p RetentionPolicy) Deadline(issued time.Time) time.Time {
	return issued.Add(p.Normalize().TTL)
}
