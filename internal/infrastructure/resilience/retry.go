package resilience

import (
	"context"
	"math"
	"time"
)

type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 1000 * time.Millisecond,
		MaxDelay:     16 * time.Second,
		Multiplier:   2,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Delay is the wait after the given failed attempt (1-based):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalize()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

type RetryResult struct {
	Success    bool
	Attempts   int
	TotalDelay time.Duration
	Err        error
}

// RetryHook observes a scheduled retry before the wait starts.
type RetryHook func(attempt int, wait time.Duration, err error)

// Retry runs fn until it succeeds, the attempts are exhausted, retryable
// reports false, or ctx is done. Err holds the last operation error.
func Retry(
	ctx context.Context,
	clock Clock,
	policy RetryPolicy,
	fn func(ctx context.Context, attempt int) error,
	retryable func(error) bool,
	hook RetryHook,
) RetryResult {
	if clock == nil {
		clock = RealClock{}
	}
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	policy = policy.normalize()

	var result RetryResult
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if result.Err == nil {
				result.Err = err
			}
			return result
		}

		result.Attempts = attempt
		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.Err = nil
			return result
		}
		result.Err = err

		if !retryable(err) || attempt == policy.MaxAttempts {
			return result
		}

		wait := policy.Delay(attempt)
		if hook != nil {
			hook(attempt, wait, err)
		}
		if sleepErr := clock.Sleep(ctx, wait); sleepErr != nil {
			return result
		}
		result.TotalDelay += wait
	}
	return result
}
