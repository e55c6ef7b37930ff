package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/scoutexam/exam-backend/internal/engine"
)

// AttemptStatus is the coarse, persisted status of an attempt.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusAwaiting   AttemptStatus = "awaiting_evaluation"
	AttemptStatusLocked     AttemptStatus = "locked"
)

// Attempt is the persisted record of one exam session.
type Attempt struct {
	ID              uuid.UUID       `json:"id"`
	TakerID         int             `json:"taker_id"`
	TakerName       string          `json:"taker_name,omitempty"`
	TakerEmail      string          `json:"taker_email,omitempty"`
	Category        string          `json:"category"`
	Status          AttemptStatus   `json:"status"`
	Outcome         *engine.Phase   `json:"outcome,omitempty"`
	AutoScore       *int            `json:"auto_score,omitempty"`
	EvaluatorScore  *int            `json:"evaluator_score,omitempty"`
	FinalScore      *int            `json:"final_score,omitempty"`
	InfractionCount int             `json:"infraction_count"`
	RestrictedCount int             `json:"restricted_count"`
	Answers         engine.Snapshot `json:"answers,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	LockedAt        *time.Time      `json:"locked_at,omitempty"`
}

// DurationMinutes is the time between start and completion, rounded.
func (a *Attempt) DurationMinutes() int {
	if a.CompletedAt == nil {
		return 0
	}
	return int(a.CompletedAt.Sub(a.StartedAt).Round(time.Minute) / time.Minute)
}

// AttemptFilter narrows a results listing.
type AttemptFilter struct {
	Category *string
	Status   *AttemptStatus
	TakerID  *int
}

// StartSessionRequest is the payload for opening an exam attempt.
type StartSessionRequest struct {
	Category string `json:"category" binding:"required,category"`
}

// EvaluateRequest is the evaluator's score and credential.
type EvaluateRequest struct {
	Score      *int   `json:"score" binding:"required"`
	Credential string `json:"credential" binding:"max=128"`
}

// AnswerRequest records a response. A null answer clears the question.
type AnswerRequest struct {
	Answer engine.Value `json:"answer"`
}

// RestrictedActionRequest reports a suppressed browser action.
type RestrictedActionRequest struct {
	Action engine.RestrictedAction `json:"action" binding:"required,max=32"`
}

// KeyRequest reports a keyboard shortcut for classification.
type KeyRequest struct {
	Key   string `json:"key" binding:"required,max=32"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
}
