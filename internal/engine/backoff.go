package engine

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before retry attempt n: base doubling per
// attempt, capped at max, with ±20% jitter so entities failing on a shared
// outage don't retry in lockstep.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Next(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 2 * time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 5 * time.Minute
	}

	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}

	// ±20%
	jitter := time.Duration(rand.Int63n(int64(d)*2/5)) - d/5
	return d + jitter
}
