package push

import (
	"time"

	"github.com/nhle/authnotify/internal/model"
)

const defaultRetryDelay = 5 * time.Second

// RetryPolicy decides the delay before a whole-cycle reconnect, once every
// candidate URL has failed.
type RetryPolicy struct {
	Exponential bool
	Base        time.Duration
	Max         time.Duration

	// MaxAttempts bounds consecutive failed cycles. Zero is unbounded.
	MaxAttempts int
}

// NewRetryPolicy builds the policy described by cfg.
func NewRetryPolicy(cfg model.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		Exponential: cfg.Policy == "exponential",
		Base:        time.Duration(cfg.DelayMs) * time.Millisecond,
		Max:         time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		MaxAttempts: cfg.MaxAttempts,
	}
	if p.Base <= 0 {
		p.Base = defaultRetryDelay
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	return p
}

// Delay returns the wait before retry number attempt (zero based), or
// false when the policy has given up.
func (p RetryPolicy) Delay(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}
	if !p.Exponential {
		return p.Base, true
	}

	d := p.Base
	for i := 0; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	return d, true
}
