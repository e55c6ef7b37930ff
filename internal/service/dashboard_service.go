package service

import (
	"context"
	"math"

	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
)

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	TotalUsers        int                                 `json:"total_users"`
	TotalQuestions    int                                 `json:"total_questions"`
	CompletedAttempts int                                 `json:"completed_attempts"`
	PassedAttempts    int                                 `json:"passed_attempts"`
	PassRate          float64                             `json:"pass_rate"`
	UserRoleCounts    map[model.Role]int                  `json:"user_role_counts"`
	Categories        []repository.DashboardCategory      `json:"categories"`
	RecentAttempts    []repository.DashboardRecentAttempt `json:"recent_attempts"`
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo *repository.DashboardRepository
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo *repository.DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo}
}

// GetDashboardData fetches every dashboard metric.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	users, questions, completed, passed, err := s.repo.GetSummaryCounts(ctx)
	if err != nil {
		return nil, err
	}

	roleCounts, err := s.repo.GetUserRoleCounts(ctx)
	if err != nil {
		return nil, err
	}

	categories, err := s.repo.GetCategoryDistribution(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := s.repo.GetRecentAttempts(ctx, 5)
	if err != nil {
		return nil, err
	}

	data := &DashboardData{
		TotalUsers:        users,
		TotalQuestions:    questions,
		CompletedAttempts: completed,
		PassedAttempts:    passed,
		PassRate:          passRate(completed, passed),
		UserRoleCounts:    roleCounts,
		Categories:        categories,
		RecentAttempts:    recent,
	}

	return data, nil
}

// passRate is the share of passed attempts as a percentage with one decimal.
func passRate(completed, passed int) float64 {
	if completed == 0 {
		return 0
	}
	return math.Round(1000*float64(passed)/float64(completed)) / 10
}
