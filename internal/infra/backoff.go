package infra

import "time"

// Backoff computes exponential retry delays: Base * 2^retry, capped at Max.
// The zero value is not usable; construct with DefaultBackoff.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff matches the exchange retry policy: 1s doubling up to 60s.
func DefaultBackoff() Backoff {
	return Backoff{Base: 1 * time.Second, Max: 60 * time.Second}
}

// Delay returns the delay for the given retry count (0-based).
// Negative counts return Base.
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 0 {
		return b.Base
	}
	// 2^30 seconds already dwarfs any sane Max; avoid shift overflow.
	if retry > 30 {
		return b.Max
	}
	d := b.Base * time.Duration(1<<retry)
	if d > b.Max {
		return b.Max
	}
	return d
}
