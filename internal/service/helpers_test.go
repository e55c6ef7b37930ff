package service

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
)

func TestPageBounds(t *testing.T) {
	tests := []struct{ page, perPage, wantPage, wantPer int }{
		{0, 0, 1, defaultPerPage},
		{3, 25, 3, 25},
		{-1, 1000, 1, maxPerPage},
	}
	for _, tt := range tests {
		page, per := pageBounds(tt.page, tt.perPage)
		if page != tt.wantPage || per != tt.wantPer {
			t.Errorf("pageBounds(%d, %d) = %d, %d", tt.page, tt.perPage, page, per)
		}
	}
}

func TestPassRate(t *testing.T) {
	tests := []struct {
		completed, passed int
		want              float64
	}{
		{0, 0, 0},
		{4, 3, 75},
		{3, 1, 33.3},
		{3, 2, 66.7},
	}
	for _, tt := range tests {
		if got := passRate(tt.completed, tt.passed); got != tt.want {
			t.Errorf("passRate(%d, %d) = %v, want %v", tt.completed, tt.passed, got, tt.want)
		}
	}
}

func TestNewQuestion(t *testing.T) {
	tests := []struct {
		name    string
		req     model.CreateQuestionRequest
		wantErr bool
	}{
		{"single choice", model.CreateQuestionRequest{Kind: engine.KindSingleChoice, Prompt: "p", Options: []string{"a", "b"}, CorrectAnswer: engine.Choice(1)}, false},
		{"boolean", model.CreateQuestionRequest{Kind: engine.KindBoolean, Prompt: "p", CorrectAnswer: engine.Bool(false)}, false},
		{"index out of range", model.CreateQuestionRequest{Kind: engine.KindSingleChoice, Prompt: "p", Options: []string{"a", "b"}, CorrectAnswer: engine.Choice(2)}, true},
		{"one option", model.CreateQuestionRequest{Kind: engine.KindSingleChoice, Prompt: "p", Options: []string{"a"}, CorrectAnswer: engine.Choice(0)}, true},
		{"boolean with options", model.CreateQuestionRequest{Kind: engine.KindBoolean, Prompt: "p", Options: []string{"a"}, CorrectAnswer: engine.Bool(true)}, true},
		{"missing answer", model.CreateQuestionRequest{Kind: engine.KindBoolean, Prompt: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newQuestion(&tt.req)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidQuestion) {
				t.Fatalf("err = %v, want ErrInvalidQuestion", err)
			}
		})
	}
}

func TestBuildSnapshot(t *testing.T) {
	live, stale, sealed := uuid.New(), uuid.New(), uuid.New()
	active := []repository.ActiveAttempt{
		{ID: live, TakerID: 1, TakerName: "Ayu", Status: model.AttemptStatusInProgress},
		{ID: stale, TakerID: 2, TakerName: "Bima", Status: model.AttemptStatusAwaiting},
		{ID: sealed, TakerID: 3, TakerName: "Citra", Status: model.AttemptStatusAwaiting},
	}
	checkpoints := map[uuid.UUID]engine.Checkpoint{
		live: {
			Phase:            engine.PhaseInProgress,
			CurrentIndex:     4,
			RemainingSeconds: 300,
			InfractionCount:  2,
			Answers:          engine.Snapshot{"q1": engine.Choice(0), "q2": engine.Bool(true)},
		},
		sealed: {Phase: engine.PhaseLocked, InfractionCount: 1},
	}
	answered := map[uuid.UUID]int{live: 1, stale: 9}
	infractions := map[uuid.UUID]int{stale: 1}

	snap := buildSnapshot("Penggalang", active, checkpoints, answered, infractions)

	if snap.TotalActive != 2 || snap.TotalInProgress != 1 || snap.TotalAwaiting != 1 || snap.TotalInfraction != 3 {
		t.Fatalf("totals = %+v", snap)
	}
	got := snap.Attempts[0]
	if !got.Live || got.Answered != 2 || got.RemainingSeconds != 300 || got.CurrentIndex != 4 {
		t.Errorf("live entry = %+v", got)
	}
	got = snap.Attempts[1]
	if got.Live || got.Answered != 9 || got.InfractionCount != 1 {
		t.Errorf("persisted entry = %+v", got)
	}
}
