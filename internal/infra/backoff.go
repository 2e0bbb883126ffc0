package infra

import (
	"math/rand/v2"
	"time"
)

// Backoff computes exponential reconnect delays: Base * 2^retry, capped at
// Max, optionally spread by +/- Jitter (a fraction of the delay).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultBackoff is used by the websocket worker: 1s, 2s, 4s ... up to 60s.
var DefaultBackoff = Backoff{Base: time.Second, Max: 60 * time.Second}

// Delay returns the wait before retry number retry (0-based).
// A negative retry returns Base.
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 0 {
		return b.Base
	}

	// 2^30 seconds is already far above any sane cap.
	if retry > 30 {
		return b.jitter(b.Max)
	}

	d := b.Base * time.Duration(1<<retry)
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	return b.jitter(d)
}

func (b Backoff) jitter(d time.Duration) time.Duration {
	if b.Jitter <= 0 {
		return d
	}
	spread := float64(d) * b.Jitter
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

// CalculateBackoff returns DefaultBackoff.Delay(retryCount).
func CalculateBackoff(retryCount int) time.Duration {
	return DefaultBackoff.Delay(retryCount)
}
