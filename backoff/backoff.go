package backoff

import (
	"math/rand"
	"time"
)

// MaxJitter is the upper bound (exclusive) of the random delay added to each backoff step
const MaxJitter = time.Second

// Jitter returns a random duration in [0, max)
type Jitter func(max time.Duration) time.Duration

// DefaultJitter draws uniformly from [0, max)
func DefaultJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// NoJitter always returns zero
func NoJitter(time.Duration) time.Duration {
	return 0
}

// Policy describes exponential growth of the delay after consecutive failures
type Policy struct {
	Enabled bool
	Base    time.Duration
	Max     time.Duration
}

// Delay returns the wait before the next firing.
//
// With no failures, or with backoff disabled, the delay is interval. After the
// n-th consecutive failure it is min(Base*2^(n-1) + jitter, Max).
func (p Policy) Delay(interval time.Duration, retryCount int, jitter Jitter) time.Duration {
	if !p.Enabled || retryCount <= 0 {
		return interval
	}
	if jitter == nil {
		jitter = DefaultJitter
	}

	expo := p.exponential(retryCount)
	if expo >= p.Max {
		return p.Max
	}

	delay := expo + jitter(MaxJitter)
	if delay > p.Max || delay < expo {
		return p.Max
	}
	return delay
}

// exponential computes Base*2^(retryCount-1), saturating at Max
func (p Policy) exponential(retryCount int) time.Duration {
	d := p.Base
	for i := 1; i < retryCount; i++ {
		if d >= p.Max || d > (1<<62)/2 {
			return p.Max
		}
		d *= 2
	}
	return d
}
