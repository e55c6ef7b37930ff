package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scoutexam/exam-backend/internal/model"
)

// ExamSettingRepository handles per-category exam settings.
type ExamSettingRepository struct {
	pool *pgxpool.Pool
}

// NewExamSettingRepository creates a new ExamSettingRepository.
func NewExamSettingRepository(pool *pgxpool.Pool) *ExamSettingRepository {
	return &ExamSettingRepository{pool: pool}
}

const settingColumns = `category, duration_minutes, passing_score, mcq_count, true_false_count,
	randomize_questions, show_results, allow_retake, updated_at`

func scanSetting(row rowScanner) (*model.ExamSetting, error) {
	s := &model.ExamSetting{}
	err := row.Scan(&s.Category, &s.DurationMinutes, &s.PassingScore, &s.MCQCount, &s.TrueFalseCount,
		&s.RandomizeQuestions, &s.ShowResults, &s.AllowRetake, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Get retrieves the settings of one category.
func (r *ExamSettingRepository) Get(ctx context.Context, category string) (*model.ExamSetting, error) {
	return scanSetting(r.pool.QueryRow(ctx,
		`SELECT `+settingColumns+` FROM exam_settings WHERE category = $1`, category))
}

// List retrieves the settings of every category.
func (r *ExamSettingRepository) List(ctx context.Context) ([]model.ExamSetting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settingColumns+` FROM exam_settings ORDER BY category ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := []model.ExamSetting{}
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, *s)
	}
	return settings, rows.Err()
}

// Upsert creates or replaces a category's settings.
func (r *ExamSettingRepository) Upsert(ctx context.Context, s *model.ExamSetting) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_settings (category, duration_minutes, passing_score, mcq_count, true_false_count,
			randomize_questions, show_results, allow_retake)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (category) DO UPDATE SET
			duration_minutes = EXCLUDED.duration_minutes,
			passing_score = EXCLUDED.passing_score,
			mcq_count = EXCLUDED.mcq_count,
			true_false_count = EXCLUDED.true_false_count,
			randomize_questions = EXCLUDED.randomize_questions,
			show_results = EXCLUDED.show_results,
			allow_retake = EXCLUDED.allow_retake,
			updated_at = NOW()
		 RETURNING updated_at`,
		s.Category, s.DurationMinutes, s.PassingScore, s.MCQCount, s.TrueFalseCount,
		s.RandomizeQuestions, s.ShowResults, s.AllowRetake,
	).Scan(&s.UpdatedAt)
}
