package toolgen

import (
	"context"
	"time"
)

// retryPolicy bounds how often a rate-limited provider call is repeated.
// Delays double from First up to Cap.
type retryPolicy struct {
	Retries int
	First   time.Duration
	Cap     time.Duration
}

var rateLimitPolicy = retryPolicy{Retries: 3, First: 2 * time.Second, Cap: 20 * time.Second}

// delay returns the wait before retry n (1-based).
func (r retryPolicy) delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := r.First
	for i := 1; i < n && d < r.Cap; i++ {
		d *= 2
	}
	return min(d, r.Cap)
}

func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
