package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
	"github.com/scoutexam/exam-backend/internal/response"
)

// ErrAttemptNotFound is returned for unknown attempt ids.
var ErrAttemptNotFound = errors.New("attempt not found")

// ResultService serves attempt results to administrators and leaders.
type ResultService struct {
	attemptRepo *repository.AttemptRepository
}

// NewResultService creates a new ResultService.
func NewResultService(attemptRepo *repository.AttemptRepository) *ResultService {
	return &ResultService{attemptRepo: attemptRepo}
}

// ResultPage is one page of results with statistics over the whole filter.
type ResultPage struct {
	Attempts   []model.Attempt               `json:"attempts"`
	Statistics *repository.AttemptStatistics `json:"statistics"`
}

// List returns attempts matching filter with their aggregate statistics.
func (s *ResultService) List(ctx context.Context, filter model.AttemptFilter, page, perPage int) (*ResultPage, *response.Pagination, error) {
	page, perPage = pageBounds(page, perPage)

	attempts, total, err := s.attemptRepo.List(ctx, filter, page, perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list attempts: %w", err)
	}
	stats, err := s.attemptRepo.Statistics(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("attempt statistics: %w", err)
	}

	return &ResultPage{Attempts: attempts, Statistics: stats}, response.NewPagination(page, perPage, total), nil
}

// Export returns every attempt matching filter, up to exportLimit rows.
func (s *ResultService) Export(ctx context.Context, filter model.AttemptFilter) ([]model.Attempt, error) {
	attempts, err := collectPages(ctx, exportLimit, func(ctx context.Context, page, perPage int) ([]model.Attempt, int64, error) {
		return s.attemptRepo.List(ctx, filter, page, perPage)
	})
	if err != nil {
		return nil, fmt.Errorf("export attempts: %w", err)
	}
	return attempts, nil
}

// Get returns one attempt with its answers.
func (s *ResultService) Get(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.attemptRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}
