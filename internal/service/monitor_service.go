package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
)

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// MonitorEntry is one unlocked attempt as a leader sees it.
type MonitorEntry struct {
	AttemptID        uuid.UUID           `json:"attempt_id"`
	TakerID          int                 `json:"taker_id"`
	TakerName        string              `json:"taker_name"`
	Status           model.AttemptStatus `json:"status"`
	Phase            engine.Phase        `json:"phase,omitempty"`
	Outcome          engine.Phase        `json:"outcome,omitempty"`
	CurrentIndex     int                 `json:"current_index"`
	Answered         int                 `json:"answered"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	InfractionCount  int                 `json:"infraction_count"`
	RestrictedCount  int                 `json:"restricted_count"`
	Live             bool                `json:"live"`
}

// MonitorSnapshot is the state of every unlocked attempt in a category.
type MonitorSnapshot struct {
	Category        string         `json:"category"`
	TotalActive     int            `json:"total_active"`
	TotalInProgress int            `json:"total_in_progress"`
	TotalAwaiting   int            `json:"total_awaiting"`
	TotalInfraction int            `json:"total_infractions"`
	Attempts        []MonitorEntry `json:"attempts"`
}

// Snapshot merges the attempt rows of a category with their live checkpoints.
// Checkpoints are authoritative; persisted answer and infraction counts fill
// in for attempts whose checkpoint is missing.
func (s *MonitorService) Snapshot(ctx context.Context, category string) (*MonitorSnapshot, error) {
	active, err := s.monitorRepo.GetActiveAttempts(ctx, category)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(active))
	for i, a := range active {
		ids[i] = a.ID
	}

	var (
		checkpoints      map[uuid.UUID]engine.Checkpoint
		answeredCounts   map[uuid.UUID]int
		infractionCounts map[uuid.UUID]int
		checkpointErr    error
		answeredErr      error
		infractionErr    error
		wg               sync.WaitGroup
	)

	// 1. Live checkpoints from Redis
	wg.Add(1)
	go func() {
		defer wg.Done()
		checkpoints, checkpointErr = s.monitorRepo.GetCheckpoints(ctx, ids)
	}()

	// 2. Persisted answer counts
	wg.Add(1)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, category)
	}()

	// 3. Persisted infraction counts
	wg.Add(1)
	go func() {
		defer wg.Done()
		infractionCounts, infractionErr = s.monitorRepo.GetInfractionCounts(ctx, category)
	}()

	wg.Wait()

	// Checkpoints and answered counts are critical; infraction counts are best-effort
	if checkpointErr != nil {
		return nil, checkpointErr
	}
	if answeredErr != nil {
		return nil, answeredErr
	}
	if infractionErr != nil {
		infractionCounts = nil
	}

	return buildSnapshot(category, active, checkpoints, answeredCounts, infractionCounts), nil
}

func buildSnapshot(
	category string,
	active []repository.ActiveAttempt,
	checkpoints map[uuid.UUID]engine.Checkpoint,
	answered, infractions map[uuid.UUID]int,
) *MonitorSnapshot {
	snap := &MonitorSnapshot{
		Category: category,
		Attempts: make([]MonitorEntry, 0, len(active)),
	}

	for _, a := range active {
		cp, ok := checkpoints[a.ID]
		if ok && cp.Phase == engine.PhaseLocked {
			// Locked before the attempt row caught up.
			continue
		}
		entry := MonitorEntry{
			AttemptID:       a.ID,
			TakerID:         a.TakerID,
			TakerName:       a.TakerName,
			Status:          a.Status,
			Answered:        answered[a.ID],
			InfractionCount: infractions[a.ID],
		}
		if ok {
			entry.Live = true
			entry.Phase = cp.Phase
			entry.Outcome = cp.Outcome
			entry.CurrentIndex = cp.CurrentIndex
			entry.Answered = cp.Answers.Answered()
			entry.RemainingSeconds = cp.RemainingSeconds
			entry.InfractionCount = cp.InfractionCount
			entry.RestrictedCount = cp.RestrictedCount
		}

		switch {
		case entry.Phase == engine.PhaseAwaitingEvaluation || a.Status == model.AttemptStatusAwaiting:
			snap.TotalAwaiting++
		case entry.Phase == engine.PhaseInProgress:
			snap.TotalInProgress++
		}
		snap.TotalInfraction += entry.InfractionCount
		snap.Attempts = append(snap.Attempts, entry)
	}
	snap.TotalActive = len(snap.Attempts)
	return snap
}
