package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, category, kind, prompt, options, correct_answer, order_num, created_at`

func scanQuestion(row rowScanner) (*model.Question, error) {
	q := &model.Question{}
	var options, correct []byte
	if err := row.Scan(&q.ID, &q.Category, &q.Kind, &q.Prompt, &options, &correct, &q.OrderNum, &q.CreatedAt); err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", q.ID, err)
		}
	}
	if err := json.Unmarshal(correct, &q.CorrectAnswer); err != nil {
		return nil, fmt.Errorf("decode correct answer of %s: %w", q.ID, err)
	}
	return q, nil
}

func (r *QuestionRepository) query(ctx context.Context, sql string, args ...any) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// List retrieves questions, optionally restricted to one category.
func (r *QuestionRepository) List(ctx context.Context, category *string) ([]model.Question, error) {
	if category != nil && *category != "" {
		return r.query(ctx,
			`SELECT `+questionColumns+` FROM questions WHERE category = $1 ORDER BY order_num ASC, created_at ASC`,
			*category)
	}
	return r.query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY category ASC, order_num ASC, created_at ASC`)
}

// ListByCategoryAndKind retrieves a category's questions of one kind in bank order.
func (r *QuestionRepository) ListByCategoryAndKind(ctx context.Context, category string, kind engine.Kind) ([]model.Question, error) {
	return r.query(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE category = $1 AND kind = $2
		 ORDER BY order_num ASC, created_at ASC`,
		category, kind)
}

// GetByIDs retrieves the given questions. Order is unspecified.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	return r.query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	if q.Options == nil {
		options = []byte("[]")
	}
	correct, err := json.Marshal(q.CorrectAnswer)
	if err != nil {
		return err
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (category, kind, prompt, options, correct_answer, order_num)
		 VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6)
		 RETURNING id, created_at`,
		q.Category, q.Kind, q.Prompt, string(options), string(correct), q.OrderNum,
	).Scan(&q.ID, &q.CreatedAt)
}

// DeleteMany removes the given questions and reports how many rows were deleted.
func (r *QuestionRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountByCategory returns the number of questions per category.
func (r *QuestionRepository) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT category, COUNT(*) FROM questions GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}
