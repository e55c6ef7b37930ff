package engine

import "time"

// NoticeKind identifies a session notice.
type NoticeKind string

const (
	NoticeStarted            NoticeKind = "started"
	NoticeTick               NoticeKind = "tick"
	NoticeWarning            NoticeKind = "warning"
	NoticeSuppressed         NoticeKind = "suppressed"
	NoticeTerminated         NoticeKind = "terminated"
	NoticeTimedOut           NoticeKind = "timed_out"
	NoticeSubmitted          NoticeKind = "submitted"
	NoticeAwaitingEvaluation NoticeKind = "awaiting_evaluation"
	NoticeLocked             NoticeKind = "locked"
)

// Notice is an outward signal for the presentation layer and collaborators.
// Notices never change session state.
type Notice struct {
	Kind             NoticeKind       `json:"kind"`
	SessionID        string           `json:"session_id"`
	Phase            Phase            `json:"phase"`
	RemainingSeconds int              `json:"remaining_seconds"`
	InfractionCount  int              `json:"infraction_count"`
	Threshold        int              `json:"threshold,omitempty"`
	Action           RestrictedAction `json:"action,omitempty"`
	AutoScore        *int             `json:"auto_score,omitempty"`
	EvaluatorScore   *int             `json:"evaluator_score,omitempty"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	At               time.Time        `json:"at"`
}

// Sink receives notices. Notify is called on the session's own goroutine and
// must not block.
type Sink interface {
	Notify(Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notice) { f(n) }

type discardSink struct{}

func (discardSink) Notify(Notice) {}
