package engine

import (
	"strings"
	"time"
)

// Evaluation is a supervisor's accepted score.
type Evaluation struct {
	EvaluatorScore int       `json:"evaluator_score"`
	Accepted       bool      `json:"accepted"`
	AcceptedAt     time.Time `json:"accepted_at"`
}

// EvaluationGate accepts exactly one evaluator score. It only checks the
// shape of the input; whether the credential belongs to an evaluator is
// decided by the caller before Submit.
type EvaluationGate struct {
	evaluation *Evaluation
}

// Submit validates and records the evaluator score. Every call after a
// successful one fails with ErrAlreadyLocked.
func (g *EvaluationGate) Submit(score int, credential string, at time.Time) (Evaluation, error) {
	if g.evaluation != nil {
		return Evaluation{}, ErrAlreadyLocked
	}
	if score < 0 || score > 100 {
		return Evaluation{}, ErrScoreOutOfRange
	}
	if strings.TrimSpace(credential) == "" {
		return Evaluation{}, ErrCredentialRequired
	}

	g.evaluation = &Evaluation{
		EvaluatorScore: score,
		Accepted:       true,
		AcceptedAt:     at,
	}
	return *g.evaluation, nil
}

// Locked reports whether an evaluation has been accepted.
func (g *EvaluationGate) Locked() bool { return g.evaluation != nil }

// Evaluation returns the accepted evaluation, if any.
func (g *EvaluationGate) Evaluation() (Evaluation, bool) {
	if g.evaluation == nil {
		return Evaluation{}, false
	}
	return *g.evaluation, true
}
