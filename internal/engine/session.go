package engine

import (
	"fmt"
	"time"
)

// Phase is a session lifecycle phase. Phases only move forward.
type Phase string

const (
	PhaseInstructions        Phase = "instructions"
	PhaseInProgress          Phase = "in_progress"
	PhaseCompletedManual     Phase = "completed_manual"
	PhaseCompletedTimedOut   Phase = "completed_timed_out"
	PhaseCompletedTerminated Phase = "completed_terminated"
	PhaseAwaitingEvaluation  Phase = "awaiting_evaluation"
	PhaseLocked              Phase = "locked"
)

func (p Phase) rank() int {
	switch p {
	case PhaseInstructions:
		return 0
	case PhaseInProgress:
		return 1
	case PhaseCompletedManual, PhaseCompletedTimedOut, PhaseCompletedTerminated:
		return 2
	case PhaseAwaitingEvaluation:
		return 3
	case PhaseLocked:
		return 4
	}
	return -1
}

// Completed reports whether p is one of the completion phases.
func (p Phase) Completed() bool { return p.rank() == 2 }

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p.rank() >= 0 }

// Config describes one exam attempt.
type Config struct {
	ID                 string
	TakerID            string
	Category           string
	Questions          []Question
	DurationSeconds    int
	FocusLossThreshold int
	WarningWindow      time.Duration
	Sink               Sink
	Now                func() time.Time
}

func (c *Config) normalize() error {
	if len(c.Questions) == 0 {
		return ErrNoQuestions
	}
	if c.DurationSeconds <= 0 {
		return ErrInvalidDuration
	}
	if c.FocusLossThreshold == 0 {
		c.FocusLossThreshold = DefaultFocusLossThreshold
	}
	if c.FocusLossThreshold < 0 {
		return ErrInvalidThreshold
	}
	if c.WarningWindow <= 0 {
		c.WarningWindow = DefaultWarningWindow
	}
	if c.Sink == nil {
		c.Sink = discardSink{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Finalization is handed to the storage collaborator once a session locks.
type Finalization struct {
	SessionID       string    `json:"session_id"`
	TakerID         string    `json:"taker_id"`
	Category        string    `json:"category"`
	Outcome         Phase     `json:"outcome"`
	AutoScore       int       `json:"auto_score"`
	EvaluatorScore  int       `json:"evaluator_score"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	LockedAt        time.Time `json:"locked_at"`
	InfractionCount int       `json:"infraction_count"`
	RestrictedCount int       `json:"restricted_count"`
	Answers         Snapshot  `json:"answers"`
	CorrectCount    int       `json:"correct_count"`
	QuestionCount   int       `json:"question_count"`
}

// Session is a single exam attempt. It is not safe for concurrent use; run it
// behind a Runner so every event is applied on one goroutine.
type Session struct {
	cfg       Config
	index     map[string]int
	phase     Phase
	outcome   Phase
	timer     *Timer
	monitor   *IntegrityMonitor
	answers   *AnswerStore
	nav       *Navigator
	gate      EvaluationGate
	result    *Result
	started   time.Time
	completed time.Time
}

// New validates cfg and returns a session on the instructions screen.
func New(cfg Config) (*Session, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(cfg.Questions))
	for i, q := range cfg.Questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[q.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateQuestion, q.ID)
		}
		index[q.ID] = i
	}

	monitor, err := NewIntegrityMonitor(cfg.FocusLossThreshold)
	if err != nil {
		return nil, err
	}

	questions := make([]Question, len(cfg.Questions))
	copy(questions, cfg.Questions)
	cfg.Questions = questions

	return &Session{
		cfg:     cfg,
		index:   index,
		phase:   PhaseInstructions,
		timer:   NewTimer(),
		monitor: monitor,
		answers: NewAnswerStore(),
		nav:     NewNavigator(len(questions)),
	}, nil
}

// ─── Transitions ────────────────────────────────────────────────────

// Begin confirms the instructions and starts the clock and the monitor.
func (s *Session) Begin() error {
	if s.phase != PhaseInstructions {
		return ErrNotStarted
	}
	if err := s.timer.Start(s.cfg.DurationSeconds); err != nil {
		return err
	}
	s.started = s.cfg.Now()
	s.phase = PhaseInProgress
	s.notify(NoticeStarted, nil)
	return nil
}

// Answer records a response for question id.
func (s *Session) Answer(id string, v Value) error {
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	i, ok := s.index[id]
	if !ok {
		return ErrUnknownQuestion
	}
	if !fits(s.cfg.Questions[i], v) {
		return ErrInvalidAnswer
	}
	return s.answers.Set(id, v)
}

func fits(q Question, v Value) bool {
	if !v.IsSet() {
		return true
	}
	switch q.Kind {
	case KindSingleChoice:
		idx, ok := v.Index()
		return ok && idx < len(q.Options)
	case KindBoolean:
		_, ok := v.Boolean()
		return ok
	}
	return false
}

// Next moves to the next question. It is a no-op on the last question.
func (s *Session) Next() error {
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	s.nav.Next()
	return nil
}

// Previous moves to the previous question. It is a no-op on the first question.
func (s *Session) Previous() error {
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	s.nav.Previous()
	return nil
}

// Submit ends the exam at the taker's request. Unanswered questions score
// as incorrect.
func (s *Session) Submit() error {
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	if !s.nav.AtLast() {
		return ErrNotAtLastQuestion
	}
	s.complete(PhaseCompletedManual)
	return nil
}

// Tick advances the clock by one second, or further when the wall clock shows
// more time has passed since Begin. The tick that reaches zero ends the exam
// as timed out.
func (s *Session) Tick() {
	if s.phase != PhaseInProgress {
		return
	}
	expired := s.timer.Tick()
	if !expired && !s.started.IsZero() {
		// Ticks lost while the runner was busy still count against the exam.
		elapsed := int(s.cfg.Now().Sub(s.started) / time.Second)
		expired = s.timer.catchUp(s.cfg.DurationSeconds - elapsed)
	}
	s.notify(NoticeTick, nil)
	if expired {
		s.complete(PhaseCompletedTimedOut)
	}
}

// FocusLost records a focus-loss infraction.
func (s *Session) FocusLost() Signal {
	if s.phase != PhaseInProgress {
		return SignalNone
	}

	sig := s.monitor.FocusLost()
	switch sig {
	case SignalWarning:
		expires := s.cfg.Now().Add(s.cfg.WarningWindow)
		s.notify(NoticeWarning, func(n *Notice) { n.ExpiresAt = &expires })
	case SignalForceTerminate:
		s.complete(PhaseCompletedTerminated)
	}
	return sig
}

// Restricted records a restricted-action attempt and reports whether it must
// be suppressed. These attempts never count toward termination.
func (s *Session) Restricted(action RestrictedAction) bool {
	if s.phase != PhaseInProgress {
		return false
	}
	if !s.monitor.Restricted(action) {
		return false
	}
	s.notify(NoticeSuppressed, func(n *Notice) { n.Action = action })
	return true
}

// Evaluate accepts the evaluator score and permanently locks the session.
// The credential is only checked for presence here.
func (s *Session) Evaluate(score int, credential string) (*Finalization, error) {
	if s.phase == PhaseLocked || s.gate.Locked() {
		return nil, ErrAlreadyLocked
	}
	if s.phase != PhaseAwaitingEvaluation {
		return nil, ErrNotAwaiting
	}

	ev, err := s.gate.Submit(score, credential, s.cfg.Now())
	if err != nil {
		return nil, err
	}
	s.phase = PhaseLocked
	s.notify(NoticeLocked, nil)

	return &Finalization{
		SessionID:       s.cfg.ID,
		TakerID:         s.cfg.TakerID,
		Category:        s.cfg.Category,
		Outcome:         s.outcome,
		AutoScore:       s.result.Percent,
		EvaluatorScore:  ev.EvaluatorScore,
		StartedAt:       s.started,
		CompletedAt:     s.completed,
		LockedAt:        ev.AcceptedAt,
		InfractionCount: s.monitor.Count(),
		RestrictedCount: s.monitor.RestrictedCount(),
		Answers:         s.answers.Snapshot(),
		CorrectCount:    s.result.Correct,
		QuestionCount:   s.result.Total,
	}, nil
}

// complete freezes the session, stops its collaborators and scores it.
func (s *Session) complete(outcome Phase) {
	s.timer.Stop()
	s.monitor.Stop()
	s.answers.Freeze()
	s.nav.Freeze()

	s.completed = s.cfg.Now()
	s.outcome = outcome
	s.phase = outcome

	switch outcome {
	case PhaseCompletedManual:
		s.notify(NoticeSubmitted, nil)
	case PhaseCompletedTimedOut:
		s.notify(NoticeTimedOut, nil)
	case PhaseCompletedTerminated:
		s.notify(NoticeTerminated, nil)
	}

	s.awaitEvaluation()
}

func (s *Session) awaitEvaluation() {
	// Questions are validated non-empty in New, so Score cannot fail here.
	res, _ := Score(s.cfg.Questions, s.answers.Snapshot())
	s.result = &res
	s.phase = PhaseAwaitingEvaluation
	s.notify(NoticeAwaitingEvaluation, nil)
}

func (s *Session) notify(kind NoticeKind, decorate func(*Notice)) {
	n := Notice{
		Kind:             kind,
		SessionID:        s.cfg.ID,
		Phase:            s.phase,
		RemainingSeconds: s.timer.Remaining(),
		InfractionCount:  s.monitor.Count(),
		Threshold:        s.monitor.Threshold(),
		At:               s.cfg.Now(),
	}
	if s.result != nil {
		score := s.result.Percent
		n.AutoScore = &score
	}
	if ev, ok := s.gate.Evaluation(); ok {
		score := ev.EvaluatorScore
		n.EvaluatorScore = &score
	}
	if decorate != nil {
		decorate(&n)
	}
	s.cfg.Sink.Notify(n)
}

// ─── Read side ──────────────────────────────────────────────────────

// State is a read-only view of a session.
type State struct {
	SessionID        string     `json:"session_id"`
	TakerID          string     `json:"taker_id"`
	Category         string     `json:"category"`
	Phase            Phase      `json:"phase"`
	Outcome          Phase      `json:"outcome,omitempty"`
	CurrentIndex     int        `json:"current_index"`
	TotalQuestions   int        `json:"total_questions"`
	Progress         float64    `json:"progress"`
	RemainingSeconds int        `json:"remaining_seconds"`
	InfractionCount  int        `json:"infraction_count"`
	RestrictedCount  int        `json:"restricted_count"`
	Threshold        int        `json:"threshold"`
	Answers          Snapshot   `json:"answers"`
	AutoScore        *int       `json:"auto_score,omitempty"`
	EvaluatorScore   *int       `json:"evaluator_score,omitempty"`
	Locked           bool       `json:"locked"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// State returns a copy of the session's observable state.
func (s *Session) State() State {
	st := State{
		SessionID:        s.cfg.ID,
		TakerID:          s.cfg.TakerID,
		Category:         s.cfg.Category,
		Phase:            s.phase,
		Outcome:          s.outcome,
		CurrentIndex:     s.nav.Index(),
		TotalQuestions:   s.nav.Total(),
		Progress:         s.nav.Progress(),
		RemainingSeconds: s.timer.Remaining(),
		InfractionCount:  s.monitor.Count(),
		RestrictedCount:  s.monitor.RestrictedCount(),
		Threshold:        s.monitor.Threshold(),
		Answers:          s.answers.Snapshot(),
		Locked:           s.phase == PhaseLocked,
	}
	if st.Phase == PhaseInstructions {
		st.RemainingSeconds = s.cfg.DurationSeconds
	}
	if s.result != nil {
		score := s.result.Percent
		st.AutoScore = &score
	}
	if ev, ok := s.gate.Evaluation(); ok {
		score := ev.EvaluatorScore
		st.EvaluatorScore = &score
	}
	if !s.started.IsZero() {
		t := s.started
		st.StartedAt = &t
	}
	if !s.completed.IsZero() {
		t := s.completed
		st.CompletedAt = &t
	}
	return st
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// ID returns the session id.
func (s *Session) ID() string { return s.cfg.ID }

// TakerID returns the opaque taker identity the session was created for.
func (s *Session) TakerID() string { return s.cfg.TakerID }

// Category returns the exam category.
func (s *Session) Category() string { return s.cfg.Category }

// Questions returns the taker-facing question list.
func (s *Session) Questions() []PublicQuestion {
	out := make([]PublicQuestion, len(s.cfg.Questions))
	for i, q := range s.cfg.Questions {
		out[i] = q.Public()
	}
	return out
}

// Current returns the question at the navigator's position.
func (s *Session) Current() PublicQuestion {
	return s.cfg.Questions[s.nav.Index()].Public()
}
