package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/scoutexam/exam-backend/internal/engine"
)

// Question is a question bank entry. Each belongs to one exam category.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	Category      string       `json:"category"`
	Kind          engine.Kind  `json:"kind"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer engine.Value `json:"correct_answer"`
	OrderNum      int          `json:"order_num"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Engine converts the bank entry into the immutable form a session uses.
func (q *Question) Engine() engine.Question {
	return engine.Question{
		ID:      q.ID.String(),
		Prompt:  q.Prompt,
		Kind:    q.Kind,
		Options: q.Options,
		Correct: q.CorrectAnswer,
	}
}

// CreateQuestionRequest is the payload for adding a question to the bank.
type CreateQuestionRequest struct {
	Category      string       `json:"category" binding:"required,category"`
	Kind          engine.Kind  `json:"kind" binding:"required,oneof=single_choice boolean"`
	Prompt        string       `json:"prompt" binding:"required,min=1,max=2000"`
	Options       []string     `json:"options" binding:"omitempty,max=10,dive,min=1,max=500"`
	CorrectAnswer engine.Value `json:"correct_answer"`
	OrderNum      int          `json:"order_num" binding:"min=0"`
}

// DeleteQuestionsRequest removes one or many questions.
type DeleteQuestionsRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}
