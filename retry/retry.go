// Package retry runs bounded retry loops over github.com/cenkalti/backoff/v4.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"go.vocdoni.io/vaas/log"
)

// Policy bounds a retry loop. MaxAttempts counts every call of the operation,
// the first one included; values below one mean a single attempt. Backoff
// returns a fresh schedule for each loop; nil waits one second between attempts.
type Policy struct {
	MaxAttempts int
	Backoff     func() backoff.BackOff
	// Notify, if set, is called after every failed attempt that will be retried.
	Notify func(err error, next time.Duration)
}

// Constant waits d between attempts.
func Constant(d time.Duration, attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		Backoff:     func() backoff.BackOff { return backoff.NewConstantBackOff(d) },
	}
}

// Exponential doubles the wait from initial up to max, with jitter.
func Exponential(initial, max time.Duration, attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		Backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			// attempts bound the loop, not time
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Attempts returns the number of calls the policy allows.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) schedule(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Backoff != nil {
		b = p.Backoff()
	} else {
		b = backoff.NewConstantBackOff(time.Second)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts()-1)), ctx)
}

// Permanent wraps err so that Do returns it right away, unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it returns nil, returns a Permanent error, or the policy
// runs out of attempts; then it returns the last error. Cancelling ctx stops
// the loop between attempts with ctx.Err(). op receives the attempt number,
// starting at one.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op(ctx, attempt)
		},
		p.schedule(ctx),
		func(err error, next time.Duration) {
			log.Debugw("retrying", "attempt", attempt, "maxAttempts", p.Attempts(), "next", next, "error", err)
			if p.Notify != nil {
				p.Notify(err, next)
			}
		},
	)
}
