package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/logger"
)

// AnswerRecord is one recorded answer. An unset Answer clears the question.
type AnswerRecord struct {
	AttemptID  string       `json:"attempt_id"`
	QuestionID string       `json:"question_id"`
	Answer     engine.Value `json:"answer"`
	At         time.Time    `json:"at"`
}

// AnswerWorker consumes persist_answers_queue and UPSERTs answers to PostgreSQL.
type AnswerWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[AnswerRecord]
	log  zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	w := &AnswerWorker{
		pool: pool,
		log:  logger.Component(log, "answer_worker"),
	}
	w.loop = &batchLoop[AnswerRecord]{
		rdb:     rdb,
		queue:   config.WorkerKey.PersistAnswersQueue,
		size:    BatchSize,
		timeout: BatchTimeout,
		log:     w.log,
		flush:   w.flushSafe,
	}
	return w
}

// Start begins the worker loop. Call in a goroutine. Remaining items are
// drained before it returns.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnswerWorker started")
	w.loop.run(ctx)
}

func (w *AnswerWorker) flushSafe(ctx context.Context, batch []*AnswerRecord) {
	latest := latestAnswers(batch)

	if err := w.bulkUpsert(ctx, latest); err != nil {
		w.log.Warn().Err(err).Int("count", len(latest)).Msg("Bulk answer upsert failed, attempting row-by-row recovery")

		var failed []*AnswerRecord
		for _, p := range latest {
			if err := w.persistAnswer(ctx, p); err != nil {
				w.log.Error().Err(err).
					Str("attempt_id", p.AttemptID).
					Str("question_id", p.QuestionID).
					Msg("Persist error, requeueing")
				failed = append(failed, p)
			}
		}
		w.loop.requeue(ctx, failed)
	}
}

// latestAnswers keeps the newest record per (attempt, question) pair.
// ON CONFLICT cannot update the same row twice in one statement.
func latestAnswers(batch []*AnswerRecord) []*AnswerRecord {
	type key struct{ attempt, question string }
	idx := make(map[key]int, len(batch))
	out := make([]*AnswerRecord, 0, len(batch))

	for _, p := range batch {
		k := key{p.AttemptID, p.QuestionID}
		if i, ok := idx[k]; ok {
			if !p.At.Before(out[i].At) {
				out[i] = p
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, p)
	}
	return out
}

const answerUpsertSQL = `
	INSERT INTO attempt_answers (attempt_id, question_id, answer, updated_at)
	SELECT u.attempt_id, u.question_id, u.answer::jsonb, u.updated_at
	FROM UNNEST($1::uuid[], $2::uuid[], $3::text[], $4::timestamptz[])
		AS u (attempt_id, question_id, answer, updated_at)
	ON CONFLICT (attempt_id, question_id) DO UPDATE
	SET answer = EXCLUDED.answer, updated_at = EXCLUDED.updated_at
	WHERE attempt_answers.updated_at <= EXCLUDED.updated_at
`

func (w *AnswerWorker) bulkUpsert(ctx context.Context, batch []*AnswerRecord) error {
	attemptIDs := make([]uuid.UUID, len(batch))
	questionIDs := make([]uuid.UUID, len(batch))
	answers := make([]string, len(batch))
	ats := make([]time.Time, len(batch))

	for i, p := range batch {
		var err error
		if attemptIDs[i], err = uuid.Parse(p.AttemptID); err != nil {
			return err
		}
		if questionIDs[i], err = uuid.Parse(p.QuestionID); err != nil {
			return err
		}
		raw, err := p.Answer.MarshalJSON()
		if err != nil {
			return err
		}
		answers[i] = string(raw)
		ats[i] = p.At
	}

	_, err := w.pool.Exec(ctx, answerUpsertSQL, attemptIDs, questionIDs, answers, ats)
	return err
}

func (w *AnswerWorker) persistAnswer(ctx context.Context, p *AnswerRecord) error {
	attemptID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		w.log.Error().Str("attempt_id", p.AttemptID).Msg("Dropping answer with invalid attempt UUID")
		return nil
	}
	questionID, err := uuid.Parse(p.QuestionID)
	if err != nil {
		w.log.Error().Str("question_id", p.QuestionID).Msg("Dropping answer with invalid question UUID")
		return nil
	}
	raw, err := p.Answer.MarshalJSON()
	if err != nil {
		return nil
	}

	_, err = w.pool.Exec(ctx, answerUpsertSQL,
		[]uuid.UUID{attemptID}, []uuid.UUID{questionID}, []string{string(raw)}, []time.Time{p.At},
	)
	return err
}
