package websocket

import "github.com/scoutexam/exam-backend/internal/engine"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionNext       Action = "next"
	ActionPrevious   Action = "previous"
	ActionSubmit     Action = "submit"
	ActionFocusLost  Action = "focus_lost"
	ActionRestricted Action = "restricted"
	ActionKey        Action = "key"
	ActionState      Action = "state"
	ActionPing       Action = "ping"
)

// RequestPayload is every client frame. Only the fields of the named action
// are read.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QuestionID string        `json:"question_id,omitempty"`
	Answer     *engine.Value `json:"answer,omitempty"`

	// restricted
	Restricted engine.RestrictedAction `json:"restricted,omitempty"`

	// key
	Key   string `json:"key,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState              Event = "state"
	EventStarted            Event = "started"
	EventTick               Event = "tick"
	EventWarning            Event = "warning"
	EventSuppressed         Event = "suppressed"
	EventTerminated         Event = "terminated"
	EventTimedOut           Event = "timed_out"
	EventSubmitted          Event = "submitted"
	EventAwaitingEvaluation Event = "awaiting_evaluation"
	EventLocked             Event = "locked"
	EventError              Event = "error"
	EventPong               Event = "pong"
)

// EventForNotice maps an engine notice onto its wire event.
func EventForNotice(kind engine.NoticeKind) Event {
	return Event(kind)
}

// Envelope wraps every server frame.
type Envelope struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
