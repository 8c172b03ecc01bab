// Package retry holds the retry policies shared by reads and writes.
package retry

import (
	"context"
	"time"

	"github.com/tjfontaine/creatorlink/internal/apierr"
)

// Policy bounds how often and how quickly a failed request is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry. It doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the delay. A MaxDelay equal to BaseDelay gives a fixed delay.
	MaxDelay time.Duration
}

var (
	// Read is the default policy for cached reads.
	Read = Policy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	// Delete retries once after a fixed second.
	Delete = Policy{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: time.Second}

	// Create and Update never retry.
	Create = Policy{}
	Update = Policy{}

	// None disables retries.
	None = Policy{}
)

// ShouldRetry reports whether another attempt is allowed after failures
// consecutive failures, the last one being err.
func (p Policy) ShouldRetry(failures int, err error) bool {
	if err == nil || failures > p.MaxRetries {
		return false
	}
	env := apierr.Normalize(err, "")
	switch env.Kind() {
	case apierr.KindClient, apierr.KindCallback, apierr.KindInvalid:
		return false
	}
	return true
}

// Delay returns the wait before retry number attempt (zero based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, the policy gives up or ctx is done. The
// error of the last attempt is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(attempt+1, err) {
			return err
		}
		if waitErr := wait(ctx, p.Delay(attempt)); waitErr != nil {
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
