package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scoutexam/exam-backend/internal/model"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `a.id, a.taker_id, u.name, u.email, a.category, a.status, a.outcome,
	a.auto_score, a.evaluator_score, a.final_score, a.infraction_count, a.restricted_count,
	a.answers, a.started_at, a.completed_at, a.locked_at`

const attemptFrom = ` FROM exam_attempts a JOIN users u ON u.id = a.taker_id`

func scanAttempt(row rowScanner) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers []byte
	err := row.Scan(&a.ID, &a.TakerID, &a.TakerName, &a.TakerEmail, &a.Category, &a.Status, &a.Outcome,
		&a.AutoScore, &a.EvaluatorScore, &a.FinalScore, &a.InfractionCount, &a.RestrictedCount,
		&answers, &a.StartedAt, &a.CompletedAt, &a.LockedAt)
	if err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of attempt %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// Create inserts a new in-progress attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_attempts (id, taker_id, category, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.TakerID, a.Category, a.Status, a.StartedAt,
	)
	return err
}

// GetByID retrieves an attempt with its taker's name.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+attemptFrom+` WHERE a.id = $1`, id))
}

// FindUnlocked returns the taker's most recent attempt that has not been
// locked yet, or nil if there is none.
func (r *AttemptRepository) FindUnlocked(ctx context.Context, takerID int) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+attemptFrom+`
		 WHERE a.taker_id = $1 AND a.status <> $2
		 ORDER BY a.started_at DESC LIMIT 1`,
		takerID, model.AttemptStatusLocked))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// HasAttempted reports whether the taker already has any attempt in the category.
func (r *AttemptRepository) HasAttempted(ctx context.Context, takerID int, category string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_attempts WHERE taker_id = $1 AND category = $2)`,
		takerID, category,
	).Scan(&exists)
	return exists, err
}

func attemptWhere(filter model.AttemptFilter) (string, []any) {
	where := ` WHERE 1=1`
	args := []any{}

	if filter.Category != nil {
		args = append(args, *filter.Category)
		where += fmt.Sprintf(" AND a.category = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	if filter.TakerID != nil {
		args = append(args, *filter.TakerID)
		where += fmt.Sprintf(" AND a.taker_id = $%d", len(args))
	}
	return where, args
}

// List retrieves attempts with optional filters and pagination, newest first.
func (r *AttemptRepository) List(ctx context.Context, filter model.AttemptFilter, page, perPage int) ([]model.Attempt, int64, error) {
	offset := (page - 1) * perPage
	where, args := attemptWhere(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+attemptFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + attemptColumns + attemptFrom + where +
		fmt.Sprintf(" ORDER BY a.started_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	attempts := []model.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}

// AttemptStatistics aggregates the attempts matching a filter.
type AttemptStatistics struct {
	Total             int      `json:"total"`
	InProgress        int      `json:"in_progress"`
	Awaiting          int      `json:"awaiting_evaluation"`
	Locked            int      `json:"locked"`
	Terminated        int      `json:"terminated"`
	TimedOut          int      `json:"timed_out"`
	AverageFinalScore *float64 `json:"average_final_score"`
	Passed            int      `json:"passed"`
}

// Statistics aggregates attempts. An attempt passes when its final score
// reaches its category's passing score, or 70 when the category has none.
func (r *AttemptRepository) Statistics(ctx context.Context, filter model.AttemptFilter) (*AttemptStatistics, error) {
	where, args := attemptWhere(filter)
	args = append(args, model.AttemptStatusInProgress, model.AttemptStatusAwaiting, model.AttemptStatusLocked)
	n := len(args)

	query := fmt.Sprintf(`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE a.status = $%d),
			COUNT(*) FILTER (WHERE a.status = $%d),
			COUNT(*) FILTER (WHERE a.status = $%d),
			COUNT(*) FILTER (WHERE a.outcome = 'completed_terminated'),
			COUNT(*) FILTER (WHERE a.outcome = 'completed_timed_out'),
			AVG(a.final_score)::float8,
			COUNT(*) FILTER (WHERE a.final_score >= COALESCE(s.passing_score, 70))`,
		n-2, n-1, n) +
		attemptFrom + ` LEFT JOIN exam_settings s ON s.category = a.category` + where

	st := &AttemptStatistics{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&st.Total, &st.InProgress, &st.Awaiting, &st.Locked,
		&st.Terminated, &st.TimedOut, &st.AverageFinalScore, &st.Passed,
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}
