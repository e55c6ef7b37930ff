package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
	"github.com/scoutexam/exam-backend/internal/response"
)

// AuditService keeps the log of administrative actions.
type AuditService struct {
	auditRepo *repository.AuditRepository
	log       zerolog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(auditRepo *repository.AuditRepository, log zerolog.Logger) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		log:       logger.Component(log, "audit_service"),
	}
}

// Record appends an entry. The action it describes has already happened, so
// a failure is logged and swallowed.
func (s *AuditService) Record(ctx context.Context, actorID int, action model.AuditAction, resourceType string, resourceID *string, details any) {
	entry := &model.AuditLog{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			s.log.Warn().Err(err).Str("action", string(action)).Msg("Dropping unserializable audit details")
		} else {
			entry.Details = data
		}
	}

	if err := s.auditRepo.Insert(ctx, entry); err != nil {
		s.log.Error().Err(err).
			Int("actor_id", actorID).
			Str("action", string(action)).
			Msg("Failed to record audit entry")
	}
}

// List returns log entries, newest first.
func (s *AuditService) List(ctx context.Context, page, perPage int) ([]model.AuditLog, *response.Pagination, error) {
	page, perPage = pageBounds(page, perPage)
	entries, total, err := s.auditRepo.List(ctx, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	return entries, response.NewPagination(page, perPage, total), nil
}
