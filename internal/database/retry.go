package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// withRetry calls dial up to attempts times, doubling the wait after each
// failure. The last dial error is wrapped in the returned error.
func withRetry(ctx context.Context, log zerolog.Logger, what string, attempts int, backoff time.Duration, dial func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	wait := backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = dial(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		log.Warn().Err(err).
			Str("store", what).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Store not reachable yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("%s unreachable after %d attempts: %w", what, attempts, err)
}
