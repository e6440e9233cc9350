package relay

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimit bounds how many inbound frames a session routes. Burst frames
// are allowed at once and the bucket refills Burst tokens per Interval.
type RateLimit struct {
	Enabled  bool
	Burst    int
	Interval time.Duration
}

func (rl RateLimit) limiter() *rate.Limiter {
	if !rl.Enabled {
		return nil
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := rl.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}
