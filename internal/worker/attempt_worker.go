package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/model"
)

// AttemptUpdate is a status change of an attempt: completion (awaiting
// evaluation) or the final lock. Nil fields leave the stored value untouched.
type AttemptUpdate struct {
	AttemptID       string              `json:"attempt_id"`
	Status          model.AttemptStatus `json:"status"`
	Outcome         *engine.Phase       `json:"outcome,omitempty"`
	AutoScore       *int                `json:"auto_score,omitempty"`
	EvaluatorScore  *int                `json:"evaluator_score,omitempty"`
	InfractionCount int                 `json:"infraction_count"`
	RestrictedCount int                 `json:"restricted_count"`
	Answers         engine.Snapshot     `json:"answers,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	LockedAt        *time.Time          `json:"locked_at,omitempty"`
}

// FinalizationUpdate converts the engine's lock payload into a queue item.
func FinalizationUpdate(f *engine.Finalization) AttemptUpdate {
	outcome := f.Outcome
	auto, eval := f.AutoScore, f.EvaluatorScore
	completed, locked := f.CompletedAt, f.LockedAt
	return AttemptUpdate{
		AttemptID:       f.SessionID,
		Status:          model.AttemptStatusLocked,
		Outcome:         &outcome,
		AutoScore:       &auto,
		EvaluatorScore:  &eval,
		InfractionCount: f.InfractionCount,
		RestrictedCount: f.RestrictedCount,
		Answers:         f.Answers,
		CompletedAt:     &completed,
		LockedAt:        &locked,
	}
}

// AttemptWorker consumes persist_attempts_queue and applies status changes
// to exam_attempts in batches.
type AttemptWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[AttemptUpdate]
	log  zerolog.Logger
}

// NewAttemptWorker creates a new AttemptWorker.
func NewAttemptWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	w := &AttemptWorker{
		pool: pool,
		log:  logger.Component(log, "attempt_worker"),
	}
	w.loop = &batchLoop[AttemptUpdate]{
		rdb:     rdb,
		queue:   config.WorkerKey.PersistAttemptsQueue,
		size:    BatchSize,
		timeout: BatchTimeout,
		log:     w.log,
		flush:   w.flushSafe,
	}
	return w
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AttemptWorker started")
	w.loop.run(ctx)
}

// ----------------------------------------------------------------
// Batch Update Wrapper
// ----------------------------------------------------------------

func (w *AttemptWorker) flushSafe(ctx context.Context, batch []*AttemptUpdate) {
	merged := mergeAttemptUpdates(batch)

	if err := w.bulkUpdate(ctx, merged); err != nil {
		w.log.Warn().Err(err).Int("count", len(merged)).Msg("Bulk attempt update failed, using fallback")

		var failed []*AttemptUpdate
		for _, p := range merged {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Str("attempt_id", p.AttemptID).Msg("persistSingle failed, requeueing")
				failed = append(failed, p)
			}
		}
		w.loop.requeue(ctx, failed)
	}
}

// mergeAttemptUpdates folds updates of the same attempt into one, in queue
// order, so a single UPDATE never touches a row twice. A later lock always
// wins over an earlier completion.
func mergeAttemptUpdates(batch []*AttemptUpdate) []*AttemptUpdate {
	byID := make(map[string]*AttemptUpdate, len(batch))
	order := make([]string, 0, len(batch))

	for _, p := range batch {
		cur, ok := byID[p.AttemptID]
		if !ok {
			cp := *p
			byID[p.AttemptID] = &cp
			order = append(order, p.AttemptID)
			continue
		}
		if cur.Status == model.AttemptStatusLocked && p.Status != model.AttemptStatusLocked {
			continue
		}
		cur.Status = p.Status
		cur.InfractionCount = p.InfractionCount
		cur.RestrictedCount = p.RestrictedCount
		if p.Outcome != nil {
			cur.Outcome = p.Outcome
		}
		if p.AutoScore != nil {
			cur.AutoScore = p.AutoScore
		}
		if p.EvaluatorScore != nil {
			cur.EvaluatorScore = p.EvaluatorScore
		}
		if p.Answers != nil {
			cur.Answers = p.Answers
		}
		if p.CompletedAt != nil {
			cur.CompletedAt = p.CompletedAt
		}
		if p.LockedAt != nil {
			cur.LockedAt = p.LockedAt
		}
	}

	out := make([]*AttemptUpdate, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	return out
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

// attemptUpdateSQL never touches a locked attempt, so a late or repeated
// finalization cannot overwrite the recorded result.
const attemptUpdateSQL = `
	UPDATE exam_attempts AS a
	SET status           = t.status,
	    outcome          = COALESCE(t.outcome, a.outcome),
	    auto_score       = COALESCE(t.auto_score, a.auto_score),
	    evaluator_score  = COALESCE(t.evaluator_score, a.evaluator_score),
	    final_score      = COALESCE(t.evaluator_score, a.final_score),
	    infraction_count = GREATEST(t.infraction_count, a.infraction_count),
	    restricted_count = GREATEST(t.restricted_count, a.restricted_count),
	    answers          = COALESCE(t.answers::jsonb, a.answers),
	    completed_at     = COALESCE(t.completed_at, a.completed_at),
	    locked_at        = COALESCE(t.locked_at, a.locked_at)
	FROM (
		SELECT *
		FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::text[],
			$4::int[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::text[],
			$9::timestamptz[],
			$10::timestamptz[]
		) AS u (id, status, outcome, auto_score, evaluator_score, infraction_count,
		        restricted_count, answers, completed_at, locked_at)
	) AS t
	WHERE a.id = t.id
	  AND a.status <> 'locked'
`

func (w *AttemptWorker) bulkUpdate(ctx context.Context, batch []*AttemptUpdate) error {
	n := len(batch)
	ids := make([]uuid.UUID, n)
	statuses := make([]string, n)
	outcomes := make([]*string, n)
	autoScores := make([]*int, n)
	evalScores := make([]*int, n)
	infractions := make([]int, n)
	restricted := make([]int, n)
	answers := make([]*string, n)
	completedAts := make([]*time.Time, n)
	lockedAts := make([]*time.Time, n)

	for i, p := range batch {
		id, err := uuid.Parse(p.AttemptID)
		if err != nil {
			// Return error to trigger fallback, which will handle the bad UUID individually
			return err
		}
		ids[i] = id
		statuses[i] = string(p.Status)
		if p.Outcome != nil {
			o := string(*p.Outcome)
			outcomes[i] = &o
		}
		autoScores[i] = p.AutoScore
		evalScores[i] = p.EvaluatorScore
		infractions[i] = p.InfractionCount
		restricted[i] = p.RestrictedCount
		answers[i], err = encodeAnswers(p.Answers)
		if err != nil {
			return err
		}
		completedAts[i] = p.CompletedAt
		lockedAts[i] = p.LockedAt
	}

	_, err := w.pool.Exec(ctx, attemptUpdateSQL,
		ids, statuses, outcomes, autoScores, evalScores, infractions, restricted,
		answers, completedAts, lockedAts,
	)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *AttemptWorker) persistSingle(ctx context.Context, p *AttemptUpdate) error {
	id, err := uuid.Parse(p.AttemptID)
	if err != nil {
		w.log.Error().Str("attempt_id", p.AttemptID).Msg("Dropping attempt update with invalid UUID")
		return nil
	}

	var outcome *string
	if p.Outcome != nil {
		o := string(*p.Outcome)
		outcome = &o
	}
	answers, err := encodeAnswers(p.Answers)
	if err != nil {
		w.log.Error().Err(err).Str("attempt_id", p.AttemptID).Msg("Dropping attempt update with unencodable answers")
		return nil
	}

	_, err = w.pool.Exec(ctx, attemptUpdateSQL,
		[]uuid.UUID{id}, []string{string(p.Status)}, []*string{outcome},
		[]*int{p.AutoScore}, []*int{p.EvaluatorScore},
		[]int{p.InfractionCount}, []int{p.RestrictedCount},
		[]*string{answers}, []*time.Time{p.CompletedAt}, []*time.Time{p.LockedAt},
	)
	return err
}

func encodeAnswers(s engine.Snapshot) (*string, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	str := string(raw)
	return &str, nil
}
