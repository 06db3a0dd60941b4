package runner

import (
	"math"
	"time"
)

// backoffDelay: экспонента от base с потолком max и разбросом ±jitterRange.
// jitter возвращает число в [0,1).
func backoffDelay(attempt int, base, max time.Duration, jitter func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}

	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	if jitter != nil {
		d += d * jitterRange * (2*jitter() - 1)
	}
	if d > float64(max) {
		d = float64(max)
	}
	if d < float64(base)/2 {
		d = float64(base) / 2
	}
	return time.Duration(d)
}

const jitterRange = 0.1
