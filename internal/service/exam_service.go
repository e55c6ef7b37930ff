package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
)

// Domain Errors
var (
	ErrExamNotConfigured = errors.New("exam category has no settings")
	ErrNoQuestions       = errors.New("exam category has no questions")
)

const settingsCacheTTL = 10 * time.Minute

// ExamService handles per-category exam settings, their Redis cache, and
// dealing question papers.
type ExamService struct {
	settingRepo  *repository.ExamSettingRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	audit        *AuditService
	shuffle      func(n int, swap func(i, j int))
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	settingRepo *repository.ExamSettingRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	audit *AuditService,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		settingRepo:  settingRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		audit:        audit,
		shuffle:      rand.Shuffle,
		log:          logger.Component(log, "exam_service"),
	}
}

// ListSettings returns the settings of every category.
func (s *ExamService) ListSettings(ctx context.Context) ([]model.ExamSetting, error) {
	return s.settingRepo.List(ctx)
}

// GetSettings returns a category's settings, served from Redis when cached.
func (s *ExamService) GetSettings(ctx context.Context, category string) (*model.ExamSetting, error) {
	key := config.CacheKey.CategorySettingsKey(category)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var setting model.ExamSetting
		if err := json.Unmarshal(data, &setting); err == nil {
			return &setting, nil
		}
		s.log.Warn().Str("category", category).Msg("Discarding unreadable settings cache entry")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("category", category).Msg("Settings cache unavailable, reading database")
	}

	setting, err := s.settingRepo.Get(ctx, category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotConfigured
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	s.cacheSettings(ctx, setting)
	return setting, nil
}

// UpsertSettings saves a category's settings and refreshes the cache.
func (s *ExamService) UpsertSettings(ctx context.Context, actorID int, category string, req *model.UpsertExamSettingRequest) (*model.ExamSetting, error) {
	setting := &model.ExamSetting{
		Category:           category,
		DurationMinutes:    req.DurationMinutes,
		PassingScore:       req.PassingScore,
		MCQCount:           req.MCQCount,
		TrueFalseCount:     req.TrueFalseCount,
		RandomizeQuestions: req.RandomizeQuestions,
		ShowResults:        req.ShowResults,
		AllowRetake:        req.AllowRetake,
	}
	if err := s.settingRepo.Upsert(ctx, setting); err != nil {
		return nil, fmt.Errorf("upsert settings: %w", err)
	}

	s.cacheSettings(ctx, setting)
	s.audit.Record(ctx, actorID, model.AuditUpdateSettings, "exam_setting", &category, req)
	return setting, nil
}

func (s *ExamService) cacheSettings(ctx context.Context, setting *model.ExamSetting) {
	data, err := json.Marshal(setting)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.CategorySettingsKey(setting.Category), data, settingsCacheTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("category", setting.Category).Msg("Failed to cache settings")
	}
}

// PrewarmSettings loads every category's settings into Redis on application startup.
func (s *ExamService) PrewarmSettings(ctx context.Context) error {
	settings, err := s.settingRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("list settings: %w", err)
	}

	for i := range settings {
		s.cacheSettings(ctx, &settings[i])
	}

	s.log.Info().Int("categories", len(settings)).Msg("Settings cache warmed")
	return nil
}

// Paper is the ordered question list dealt to one attempt, with answer keys.
type Paper struct {
	Category        string            `json:"category"`
	DurationSeconds int               `json:"duration_seconds"`
	Questions       []engine.Question `json:"questions"`
}

// BuildPaper deals a paper for the category: MCQCount single-choice
// questions followed by TrueFalseCount boolean questions. With both counts
// zero the whole bank is used. Randomized categories sample each pool.
func (s *ExamService) BuildPaper(ctx context.Context, category string) (*Paper, *model.ExamSetting, error) {
	setting, err := s.GetSettings(ctx, category)
	if err != nil {
		return nil, nil, err
	}

	mcq, err := s.questionRepo.ListByCategoryAndKind(ctx, category, engine.KindSingleChoice)
	if err != nil {
		return nil, nil, fmt.Errorf("list single-choice questions: %w", err)
	}
	tf, err := s.questionRepo.ListByCategoryAndKind(ctx, category, engine.KindBoolean)
	if err != nil {
		return nil, nil, fmt.Errorf("list boolean questions: %w", err)
	}

	if setting.QuestionCount() > 0 && (len(mcq) < setting.MCQCount || len(tf) < setting.TrueFalseCount) {
		s.log.Warn().
			Str("category", category).
			Int("mcq_wanted", setting.MCQCount).
			Int("mcq_available", len(mcq)).
			Int("tf_wanted", setting.TrueFalseCount).
			Int("tf_available", len(tf)).
			Msg("Question bank smaller than configured paper")
	}

	selected := dealQuestions(setting, mcq, tf, s.shuffle)
	if len(selected) == 0 {
		return nil, nil, ErrNoQuestions
	}

	paper := &Paper{
		Category:        category,
		DurationSeconds: setting.DurationMinutes * 60,
		Questions:       make([]engine.Question, len(selected)),
	}
	for i := range selected {
		paper.Questions[i] = selected[i].Engine()
	}
	return paper, setting, nil
}

// dealQuestions selects the paper's questions from the two kind pools.
// The pools are reordered in place when the category is randomized.
func dealQuestions(setting *model.ExamSetting, mcq, tf []model.Question, shuffle func(n int, swap func(i, j int))) []model.Question {
	mcqCount, tfCount := setting.MCQCount, setting.TrueFalseCount
	if setting.QuestionCount() == 0 {
		mcqCount, tfCount = len(mcq), len(tf)
	}

	pick := func(pool []model.Question, n int) []model.Question {
		if n > len(pool) {
			n = len(pool)
		}
		if setting.RandomizeQuestions {
			shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		}
		return pool[:n]
	}

	selected := make([]model.Question, 0, mcqCount+tfCount)
	selected = append(selected, pick(mcq, mcqCount)...)
	selected = append(selected, pick(tf, tfCount)...)
	return selected
}
