package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/model"
)

// MonitorRepository provides data access for live exam monitoring.
// It combines PostgreSQL (attempt rows) and Redis (live checkpoints).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// ActiveAttempt is an unlocked attempt of a category with its taker.
type ActiveAttempt struct {
	ID        uuid.UUID
	TakerID   int
	TakerName string
	Status    model.AttemptStatus
}

// GetActiveAttempts returns every unlocked attempt in the category.
func (r *MonitorRepository) GetActiveAttempts(ctx context.Context, category string) ([]ActiveAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.taker_id, u.name, a.status
		 FROM exam_attempts a JOIN users u ON u.id = a.taker_id
		 WHERE a.category = $1 AND a.status <> $2
		 ORDER BY u.name ASC`,
		category, model.AttemptStatusLocked,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []ActiveAttempt
	for rows.Next() {
		var a ActiveAttempt
		if err := rows.Scan(&a.ID, &a.TakerID, &a.TakerName, &a.Status); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetCheckpoints loads the live checkpoints of the given attempts in one MGET.
// Attempts without a checkpoint are absent from the result.
func (r *MonitorRepository) GetCheckpoints(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]engine.Checkpoint, error) {
	result := make(map[uuid.UUID]engine.Checkpoint, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.SessionCheckpointKey(id.String())
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var cp engine.Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			log.Warn().Err(err).Str("attempt_id", ids[i].String()).Msg("Skipping unreadable checkpoint")
			continue
		}
		result[ids[i]] = cp
	}
	return result, nil
}

// GetAnsweredCounts returns the count of persisted answers per attempt of the category.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, category string) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT aa.attempt_id, COUNT(*)
		 FROM attempt_answers aa
		 JOIN exam_attempts a ON a.id = aa.attempt_id
		 WHERE a.category = $1 AND aa.answer IS NOT NULL AND aa.answer <> 'null'::jsonb
		 GROUP BY aa.attempt_id`,
		category,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// GetInfractionCounts returns the highest recorded focus-loss count per attempt of the category.
func (r *MonitorRepository) GetInfractionCounts(ctx context.Context, category string) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT i.attempt_id, MAX(i.count)
		 FROM attempt_infractions i
		 JOIN exam_attempts a ON a.id = i.attempt_id
		 WHERE a.category = $1 AND i.kind = 'focus_loss'
		 GROUP BY i.attempt_id`,
		category,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
