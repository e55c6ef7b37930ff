package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
)

// ErrInvalidQuestion wraps every reason a question cannot enter the bank.
var ErrInvalidQuestion = errors.New("invalid question")

// QuestionService handles question bank business logic.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	audit        *AuditService
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository, audit *AuditService) *QuestionService {
	return &QuestionService{questionRepo: questionRepo, audit: audit}
}

// List retrieves the bank, optionally narrowed to one category.
func (s *QuestionService) List(ctx context.Context, category *string) ([]model.Question, error) {
	return s.questionRepo.List(ctx, category)
}

// CountByCategory returns the bank size per category.
func (s *QuestionService) CountByCategory(ctx context.Context) (map[string]int, error) {
	return s.questionRepo.CountByCategory(ctx)
}

// Create validates and adds a question to the bank.
func (s *QuestionService) Create(ctx context.Context, actorID int, req *model.CreateQuestionRequest) (*model.Question, error) {
	q, err := newQuestion(req)
	if err != nil {
		return nil, err
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	id := q.ID.String()
	s.audit.Record(ctx, actorID, model.AuditAddQuestion, "question", &id, map[string]any{
		"category": q.Category,
		"kind":     q.Kind,
	})
	return q, nil
}

// Delete removes one or many questions and reports how many were removed.
// Papers already dealt keep their copy.
func (s *QuestionService) Delete(ctx context.Context, actorID int, ids []uuid.UUID) (int64, error) {
	n, err := s.questionRepo.DeleteMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete questions: %w", err)
	}

	action := model.AuditBulkDeleteQuestions
	var resourceID *string
	if len(ids) == 1 {
		action = model.AuditDeleteQuestion
		id := ids[0].String()
		resourceID = &id
	}
	s.audit.Record(ctx, actorID, action, "question", resourceID, map[string]any{
		"ids":     ids,
		"deleted": n,
	})
	return n, nil
}

// newQuestion builds a bank entry from the request and checks it the way a
// session will.
func newQuestion(req *model.CreateQuestionRequest) (*model.Question, error) {
	q := &model.Question{
		ID:            uuid.New(),
		Category:      req.Category,
		Kind:          req.Kind,
		Prompt:        req.Prompt,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		OrderNum:      req.OrderNum,
	}
	if err := q.Engine().Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}
	return q, nil
}
