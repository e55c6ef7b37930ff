package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// batchLoop pops JSON payloads of type T from a Redis list and hands them to
// flush in batches of up to size items, or whatever arrived within timeout.
type batchLoop[T any] struct {
	rdb     *redis.Client
	queue   string
	size    int
	timeout time.Duration
	log     zerolog.Logger
	flush   func(ctx context.Context, batch []*T)
}

func (l *batchLoop[T]) run(ctx context.Context) {
	buffer := make([]*T, 0, l.size)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= l.size || time.Since(lastFlushTime) >= l.timeout {
				l.flush(ctx, buffer)
				buffer = make([]*T, 0, l.size)
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			l.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		// BLPop blocks for 1 second. Returns immediately if data exists.
		result, err := l.rdb.BLPop(ctx, PollTimeout, l.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				continue // Shutdown is handled at the top of the loop
			}
			l.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, 3*time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload T
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			l.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, &payload)
	}
}

// requeue pushes items back to the tail of the queue.
func (l *batchLoop[T]) requeue(ctx context.Context, items []*T) {
	if len(items) == 0 {
		return
	}

	// Requeue even when the flush context has expired during shutdown.
	pushCtx := context.WithoutCancel(ctx)
	pipe := l.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(pushCtx, l.queue, data)
	}
	if _, err := pipe.Exec(pushCtx); err != nil {
		l.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}

	l.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off a little so a database outage does not turn into a hot loop.
	sleep(ctx, 2*time.Second)
}

// shutdown flushes the in-memory buffer, then drains whatever is still
// queued in Redis, within a bounded time.
func (l *batchLoop[T]) shutdown(buffer []*T) {
	l.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		l.flush(shutdownCtx, buffer)
	}

	drained := 0
	for shutdownCtx.Err() == nil {
		raws, err := l.rdb.LPopCount(shutdownCtx, l.queue, l.size).Result()
		if err != nil || len(raws) == 0 {
			break
		}

		batch := make([]*T, 0, len(raws))
		for _, raw := range raws {
			var payload T
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				l.log.Error().Err(err).Msg("Drain unmarshal error")
				continue
			}
			batch = append(batch, &payload)
		}
		l.flush(shutdownCtx, batch)
		drained += len(batch)
	}

	if drained > 0 {
		l.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
	l.log.Info().Msg("Worker stopped")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
