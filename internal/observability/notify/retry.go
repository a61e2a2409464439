package notify

import (
	"context"
	"time"
)

// DefaultBackoffStep is the base delay between delivery attempts.
const DefaultBackoffStep = 200 * time.Millisecond

// Retry calls fn up to retries+1 times, sleeping step, 2*step, ... between attempts.
// It returns the last error, or ctx.Err() if the context ends while waiting.
func Retry(ctx context.Context, retries int, step time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}
		timer := time.NewTimer(time.Duration(attempt+1) * step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
