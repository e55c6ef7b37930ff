package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/logger"
)

// Infraction kinds stored in attempt_infractions.kind.
const (
	InfractionFocusLoss  = "focus_loss"
	InfractionRestricted = "restricted"
)

// InfractionRecord is one integrity event. Count is the attempt's running
// count of events of the same kind, including this one.
type InfractionRecord struct {
	AttemptID string                  `json:"attempt_id"`
	TakerID   int                     `json:"taker_id"`
	Kind      string                  `json:"kind"`
	Action    engine.RestrictedAction `json:"action,omitempty"`
	Count     int                     `json:"count"`
	At        time.Time               `json:"at"`
}

// InfractionWorker consumes persist_infractions_queue and bulk-inserts the
// integrity log with COPY.
type InfractionWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[InfractionRecord]
	log  zerolog.Logger
}

// NewInfractionWorker creates a new InfractionWorker.
func NewInfractionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *InfractionWorker {
	w := &InfractionWorker{
		pool: pool,
		log:  logger.Component(log, "infraction_worker"),
	}
	w.loop = &batchLoop[InfractionRecord]{
		rdb:     rdb,
		queue:   config.WorkerKey.PersistInfractionsQueue,
		size:    BatchSize,
		timeout: BatchTimeout,
		log:     w.log,
		flush:   w.flushSafe,
	}
	return w
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *InfractionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("InfractionWorker started")
	w.loop.run(ctx)
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *InfractionWorker) flushSafe(ctx context.Context, batch []*InfractionRecord) {
	// Try Fast Path: Bulk Insert
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func infractionRow(p *InfractionRecord) ([]any, error) {
	attemptID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		return nil, err
	}
	var action *string
	if p.Action != "" {
		a := string(p.Action)
		action = &a
	}
	return []any{attemptID, p.TakerID, p.Kind, action, p.Count, p.At}, nil
}

var infractionColumns = []string{"attempt_id", "taker_id", "kind", "action", "count", "recorded_at"}

func (w *InfractionWorker) bulkInsert(ctx context.Context, batch []*InfractionRecord) error {
	rows := make([][]any, 0, len(batch))
	for _, p := range batch {
		row, err := infractionRow(p)
		if err != nil {
			// Return error to trigger fallback, which will handle the bad UUID individually
			return err
		}
		rows = append(rows, row)
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_infractions"},
		infractionColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *InfractionWorker) fallbackInsert(ctx context.Context, batch []*InfractionRecord) {
	var requeueList []*InfractionRecord

	for _, p := range batch {
		row, err := infractionRow(p)
		if err != nil {
			w.log.Error().Str("attempt_id", p.AttemptID).Msg("Dropping infraction with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO attempt_infractions (attempt_id, taker_id, kind, action, count, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			row...,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", p.AttemptID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	w.loop.requeue(ctx, requeueList)
}
