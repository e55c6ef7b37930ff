package engine

import (
	"errors"
	"fmt"
	"time"
)

// Checkpoint is the durable form of a session. It is written after every
// state change so a reload or a process restart does not reset the timer or
// the answers. A locked checkpoint cannot be restored; it only records the
// final state.
type Checkpoint struct {
	SessionID        string     `json:"session_id"`
	TakerID          string     `json:"taker_id"`
	Category         string     `json:"category"`
	Phase            Phase      `json:"phase"`
	Outcome          Phase      `json:"outcome,omitempty"`
	CurrentIndex     int        `json:"current_index"`
	RemainingSeconds int        `json:"remaining_seconds"`
	InfractionCount  int        `json:"infraction_count"`
	RestrictedCount  int        `json:"restricted_count"`
	Answers          Snapshot   `json:"answers"`
	AutoScore        *int       `json:"auto_score,omitempty"`
	EvaluatorScore   *int       `json:"evaluator_score,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	SavedAt          time.Time  `json:"saved_at"`
}

// Checkpoint captures the session's restorable state.
func (s *Session) Checkpoint() Checkpoint {
	st := s.State()
	return Checkpoint{
		SessionID:        st.SessionID,
		TakerID:          st.TakerID,
		Category:         st.Category,
		Phase:            st.Phase,
		Outcome:          st.Outcome,
		CurrentIndex:     st.CurrentIndex,
		RemainingSeconds: s.timer.Remaining(),
		InfractionCount:  st.InfractionCount,
		RestrictedCount:  st.RestrictedCount,
		Answers:          st.Answers,
		AutoScore:        st.AutoScore,
		EvaluatorScore:   st.EvaluatorScore,
		StartedAt:        st.StartedAt,
		CompletedAt:      st.CompletedAt,
		SavedAt:          s.cfg.Now(),
	}
}

// Restore rebuilds a session from a checkpoint. cfg must describe the same
// question list the checkpoint was taken against. For an in-progress
// checkpoint the remaining time is the lesser of the saved value and what the
// wall clock allows since StartedAt; if that is zero the session is completed
// as timed out before Restore returns.
func Restore(cfg Config, cp Checkpoint) (*Session, error) {
	if !cp.Phase.Valid() {
		return nil, fmt.Errorf("restore: unknown phase %q", cp.Phase)
	}
	if cp.Phase == PhaseLocked {
		return nil, ErrAlreadyLocked
	}
	if cfg.ID == "" {
		cfg.ID = cp.SessionID
	}
	if cfg.ID != cp.SessionID {
		return nil, errors.New("restore: checkpoint belongs to another session")
	}

	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if cp.CurrentIndex < 0 || cp.CurrentIndex >= s.nav.Total() {
		return nil, fmt.Errorf("restore: question index %d out of range", cp.CurrentIndex)
	}
	for id := range cp.Answers {
		if _, ok := s.index[id]; !ok {
			return nil, fmt.Errorf("restore: %w: %s", ErrUnknownQuestion, id)
		}
	}

	s.nav.index = cp.CurrentIndex
	for id, v := range cp.Answers {
		s.answers.answers[id] = v
	}
	s.monitor.count = cp.InfractionCount
	s.monitor.restricted = cp.RestrictedCount
	if cp.StartedAt != nil {
		s.started = *cp.StartedAt
	}
	if cp.CompletedAt != nil {
		s.completed = *cp.CompletedAt
	}

	switch cp.Phase {
	case PhaseInstructions:
		return s, nil

	case PhaseInProgress:
		remaining := cp.RemainingSeconds
		if !s.started.IsZero() {
			elapsed := int(s.cfg.Now().Sub(s.started) / time.Second)
			if byClock := s.cfg.DurationSeconds - elapsed; byClock < remaining {
				remaining = byClock
			}
		}
		s.phase = PhaseInProgress
		if s.monitor.count >= s.monitor.threshold {
			s.timer = resumeTimer(remaining, false)
			s.complete(PhaseCompletedTerminated)
			return s, nil
		}
		if remaining <= 0 {
			s.timer = resumeTimer(0, false)
			s.complete(PhaseCompletedTimedOut)
			return s, nil
		}
		s.timer = resumeTimer(remaining, true)
		return s, nil

	default:
		// Completed or awaiting evaluation: frozen, scored, waiting for the gate.
		outcome := cp.Outcome
		if cp.Phase.Completed() {
			outcome = cp.Phase
		}
		if !outcome.Completed() {
			return nil, fmt.Errorf("restore: missing completion outcome for phase %q", cp.Phase)
		}
		s.timer = resumeTimer(cp.RemainingSeconds, false)
		s.monitor.Stop()
		s.answers.Freeze()
		s.nav.Freeze()
		s.outcome = outcome
		s.phase = outcome
		if s.completed.IsZero() {
			s.completed = s.cfg.Now()
		}
		s.awaitEvaluation()
		return s, nil
	}
}
