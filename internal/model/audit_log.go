package model

import (
	"encoding/json"
	"time"
)

// AuditAction names a recorded admin action.
type AuditAction string

const (
	AuditAddUser             AuditAction = "add_user"
	AuditDeleteUser          AuditAction = "delete_user"
	AuditResetPassword       AuditAction = "reset_password"
	AuditBulkDeleteUsers     AuditAction = "bulk_delete_users"
	AuditAddQuestion         AuditAction = "add_question"
	AuditDeleteQuestion      AuditAction = "delete_question"
	AuditBulkDeleteQuestions AuditAction = "bulk_delete_questions"
	AuditUpdateSettings      AuditAction = "update_exam_settings"
)

// AuditLog is one entry of the admin action log.
type AuditLog struct {
	ID           int64           `json:"id"`
	ActorID      int             `json:"actor_id"`
	Action       AuditAction     `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
