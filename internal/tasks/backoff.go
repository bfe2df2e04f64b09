package tasks

import (
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: Initial doubled per attempt, spread by ±Jitter. The result never exceeds Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64 // fraction, 0.1 means ±10%

	rand func() float64
}

// NewBackoff creates a [Backoff] with ±10% jitter.
func NewBackoff(initial, max time.Duration) Backoff {
	return Backoff{Initial: initial, Max: max, Jitter: 0.1}
}

// Delay returns the wait before the attempt following attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}

	if b.Jitter <= 0 {
		return d
	}
	r := rand.Float64
	if b.rand != nil {
		r = b.rand
	}
	spread := 1 + b.Jitter*(2*r()-1)
	d = time.Duration(float64(d) * spread)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
