package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scoutexam/exam-backend/internal/model"
)

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// GetSummaryCounts retrieves the high-level metrics for the dashboard.
// Passed counts locked attempts whose final score reaches the category's
// passing score.
func (r *DashboardRepository) GetSummaryCounts(ctx context.Context) (totalUsers, totalQuestions, completedAttempts, passedAttempts int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM questions),
			(SELECT COUNT(*) FROM exam_attempts WHERE status = $1),
			(SELECT COUNT(*) FROM exam_attempts a
				LEFT JOIN exam_settings s ON s.category = a.category
				WHERE a.status = $1 AND a.final_score >= COALESCE(s.passing_score, 70))`,
		model.AttemptStatusLocked,
	).Scan(&totalUsers, &totalQuestions, &completedAttempts, &passedAttempts)
	return
}

// GetUserRoleCounts retrieves the distribution of users by role.
func (r *DashboardRepository) GetUserRoleCounts(ctx context.Context) (map[model.Role]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Role]int)
	for rows.Next() {
		var role model.Role
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[role] = count
	}
	return counts, rows.Err()
}

// DashboardRecentAttempt is a recently completed attempt.
type DashboardRecentAttempt struct {
	ID          uuid.UUID           `json:"id"`
	TakerName   string              `json:"taker_name"`
	Category    string              `json:"category"`
	Status      model.AttemptStatus `json:"status"`
	FinalScore  *int                `json:"final_score"`
	CompletedAt *time.Time          `json:"completed_at"`
}

// GetRecentAttempts retrieves the last N completed attempts.
func (r *DashboardRepository) GetRecentAttempts(ctx context.Context, limit int) ([]DashboardRecentAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, u.name, a.category, a.status, a.final_score, a.completed_at
		 FROM exam_attempts a JOIN users u ON u.id = a.taker_id
		 WHERE a.completed_at IS NOT NULL
		 ORDER BY a.completed_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []DashboardRecentAttempt
	for rows.Next() {
		var a DashboardRecentAttempt
		if err := rows.Scan(&a.ID, &a.TakerName, &a.Category, &a.Status, &a.FinalScore, &a.CompletedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if attempts == nil {
		attempts = []DashboardRecentAttempt{}
	}
	return attempts, rows.Err()
}

// DashboardCategory summarizes one exam category.
type DashboardCategory struct {
	Category      string   `json:"category"`
	QuestionCount int      `json:"question_count"`
	AttemptCount  int      `json:"attempt_count"`
	AverageScore  *float64 `json:"average_score"`
}

// GetCategoryDistribution retrieves question and attempt counts per category.
func (r *DashboardRepository) GetCategoryDistribution(ctx context.Context) ([]DashboardCategory, error) {
	rows, err := r.pool.Query(ctx,
		`WITH categories AS (
			SELECT category FROM questions
			UNION SELECT category FROM exam_settings
			UNION SELECT category FROM exam_attempts
		)
		SELECT c.category,
			(SELECT COUNT(*) FROM questions q WHERE q.category = c.category),
			(SELECT COUNT(*) FROM exam_attempts a WHERE a.category = c.category),
			(SELECT AVG(a.final_score)::float8 FROM exam_attempts a WHERE a.category = c.category)
		FROM categories c
		ORDER BY c.category ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []DashboardCategory
	for rows.Next() {
		var c DashboardCategory
		if err := rows.Scan(&c.Category, &c.QuestionCount, &c.AttemptCount, &c.AverageScore); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if categories == nil {
		categories = []DashboardCategory{}
	}
	return categories, rows.Err()
}
