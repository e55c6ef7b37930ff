package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/worker"
)

// Session errors.
var (
	ErrSessionNotFound     = errors.New("exam session not found")
	ErrSessionExpired      = errors.New("exam session can no longer be resumed")
	ErrActiveSessionExists = errors.New("taker already has an unlocked attempt in another category")
	ErrRetakeNotAllowed    = errors.New("category does not allow a retake")
	ErrUnknownRestricted   = errors.New("unknown restricted action")
)

const storeTimeout = 3 * time.Second

// AttemptStore is the attempt table as the session service needs it.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	FindUnlocked(ctx context.Context, takerID int) (*model.Attempt, error)
	HasAttempted(ctx context.Context, takerID int, category string) (bool, error)
}

// PaperDealer provides category settings and deals question papers.
type PaperDealer interface {
	GetSettings(ctx context.Context, category string) (*model.ExamSetting, error)
	BuildPaper(ctx context.Context, category string) (*Paper, *model.ExamSetting, error)
}

// CredentialVerifier decides whether an evaluator credential is genuine.
type CredentialVerifier interface {
	VerifyEvaluatorCredential(ctx context.Context, credential string) error
}

// SessionStore holds restorable attempt state and feeds the persistence
// queues and the monitor channel.
type SessionStore interface {
	SaveCheckpoint(ctx context.Context, cp engine.Checkpoint) error
	LoadCheckpoint(ctx context.Context, attemptID string) (*engine.Checkpoint, error)
	SavePaper(ctx context.Context, attemptID string, paper *Paper) error
	LoadPaper(ctx context.Context, attemptID string) (*Paper, error)
	SetActive(ctx context.Context, takerID int, attemptID string) error
	ActiveAttempt(ctx context.Context, takerID int) (string, error)
	Release(ctx context.Context, takerID int, attemptID string) error
	Clear(ctx context.Context, takerID int, attemptID string) error
	Enqueue(ctx context.Context, queue string, v any) error
	Publish(ctx context.Context, category string, v any) error
}

// ─── Views ──────────────────────────────────────────────────────────

// Instructions is what the taker reads before confirming.
type Instructions struct {
	Category           string `json:"category"`
	DurationMinutes    int    `json:"duration_minutes"`
	QuestionCount      int    `json:"question_count"`
	PassingScore       int    `json:"passing_score"`
	FocusLossThreshold int    `json:"focus_loss_threshold"`
}

// SessionView is the taker's view of an attempt.
type SessionView struct {
	engine.State
	Current      *engine.PublicQuestion `json:"current_question,omitempty"`
	Instructions *Instructions          `json:"instructions,omitempty"`
}

// MonitorEventType names an event on the category monitor channel.
type MonitorEventType string

const (
	MonitorJoined     MonitorEventType = "joined"
	MonitorStarted    MonitorEventType = "started"
	MonitorProgress   MonitorEventType = "progress"
	MonitorWarning    MonitorEventType = "warning"
	MonitorSuppressed MonitorEventType = "suppressed"
	MonitorCompleted  MonitorEventType = "completed"
	MonitorLocked     MonitorEventType = "locked"
)

// MonitorEvent is published on exam:<category>:monitor.
type MonitorEvent struct {
	Type             MonitorEventType        `json:"type"`
	AttemptID        string                  `json:"attempt_id"`
	TakerID          int                     `json:"taker_id"`
	Category         string                  `json:"category"`
	Phase            engine.Phase            `json:"phase"`
	Outcome          engine.Phase            `json:"outcome,omitempty"`
	Answered         int                     `json:"answered"`
	Total            int                     `json:"total"`
	InfractionCount  int                     `json:"infraction_count"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	Action           engine.RestrictedAction `json:"action,omitempty"`
	At               time.Time               `json:"at"`
}

// ─── Live sessions ──────────────────────────────────────────────────

type pendingEvent struct {
	typ    MonitorEventType
	action engine.RestrictedAction
}

type queuedItem struct {
	queue   string
	payload any
}

// liveSession is an attempt this process runs. Fields below runner are only
// touched on the runner goroutine.
type liveSession struct {
	id           string
	takerID      int
	category     string
	setting      model.ExamSetting
	instructions Instructions
	runner       *engine.Runner

	lastPhase engine.Phase
	dirty     bool
	events    []pendingEvent
	queued    []queuedItem
	final     *engine.Finalization
}

func (ls *liveSession) enqueue(queue string, payload any) {
	ls.queued = append(ls.queued, queuedItem{queue: queue, payload: payload})
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithSessionClock overrides the tick source of every runner.
func WithSessionClock(c engine.Clock) SessionOption {
	return func(s *SessionService) { s.clock = c }
}

// WithSessionNow overrides the wall clock.
func WithSessionNow(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// SessionService owns the engine runners of live attempts. Every attempt
// runs on its own goroutine; this service routes taker commands to it,
// checkpoints it to Redis after each change and hands answers, integrity
// events and the final result to the persistence queues.
type SessionService struct {
	policy   config.ExamPolicy
	exams    PaperDealer
	verifier CredentialVerifier
	attempts AttemptStore
	store    SessionStore
	hub      *Hub
	clock    engine.Clock
	now      func() time.Time
	log      zerolog.Logger

	mu   sync.Mutex
	live map[string]*liveSession
	// unsealed maps attempts locked here whose locked checkpoint could not
	// be written to their taker.
	unsealed map[string]int
	group    singleflight.Group
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	policy config.ExamPolicy,
	exams PaperDealer,
	verifier CredentialVerifier,
	attempts AttemptStore,
	store SessionStore,
	hub *Hub,
	log zerolog.Logger,
	opts ...SessionOption,
) *SessionService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &SessionService{
		policy:   policy,
		exams:    exams,
		verifier: verifier,
		attempts: attempts,
		store:    store,
		hub:      hub,
		clock:    engine.SystemClock,
		now:      time.Now,
		log:      logger.Component(log, "session_service"),
		live:     make(map[string]*liveSession),
		unsealed: make(map[string]int),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// Start opens an attempt for the taker in category, or returns the attempt
// the taker already has open there. Concurrent calls for one taker share a
// single result.
func (s *SessionService) Start(ctx context.Context, takerID int, category string) (*SessionView, error) {
	v, err, _ := s.group.Do("start:"+strconv.Itoa(takerID), func() (any, error) {
		return s.start(ctx, takerID, category)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SessionView), nil
}

func (s *SessionService) start(ctx context.Context, takerID int, category string) (*SessionView, error) {
	existing, err := s.attempts.FindUnlocked(ctx, takerID)
	if err != nil {
		return nil, fmt.Errorf("find unlocked attempt: %w", err)
	}
	if existing != nil {
		if existing.Category != category {
			return nil, ErrActiveSessionExists
		}
		return s.State(ctx, takerID, existing.ID.String())
	}

	setting, err := s.exams.GetSettings(ctx, category)
	if err != nil {
		return nil, err
	}
	if !setting.AllowRetake {
		attempted, err := s.attempts.HasAttempted(ctx, takerID, category)
		if err != nil {
			return nil, fmt.Errorf("check previous attempts: %w", err)
		}
		if attempted {
			return nil, ErrRetakeNotAllowed
		}
	}

	paper, setting, err := s.exams.BuildPaper(ctx, category)
	if err != nil {
		return nil, err
	}

	attempt := &model.Attempt{
		ID:        uuid.New(),
		TakerID:   takerID,
		Category:  category,
		Status:    model.AttemptStatusInProgress,
		StartedAt: s.now(),
	}
	id := attempt.ID.String()

	if err := s.store.SavePaper(ctx, id, paper); err != nil {
		return nil, fmt.Errorf("cache paper: %w", err)
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if err := s.store.SetActive(ctx, takerID, id); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", id).Msg("Failed to cache active attempt")
	}

	ls := s.newLive(id, takerID, paper, setting)
	sess, err := engine.New(s.engineConfig(ls, paper))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	ls.events = append(ls.events, pendingEvent{typ: MonitorJoined})
	s.launch(ls, sess)

	s.log.Info().
		Str("attempt_id", id).
		Int("taker_id", takerID).
		Str("category", category).
		Int("questions", len(paper.Questions)).
		Msg("Attempt opened")

	return s.State(ctx, takerID, id)
}

// Current returns the taker's unlocked attempt.
func (s *SessionService) Current(ctx context.Context, takerID int) (*SessionView, error) {
	id, err := s.store.ActiveAttempt(ctx, takerID)
	if err != nil {
		s.log.Warn().Err(err).Int("taker_id", takerID).Msg("Active attempt cache unavailable")
	}
	if id == "" {
		a, err := s.attempts.FindUnlocked(ctx, takerID)
		if err != nil {
			return nil, fmt.Errorf("find unlocked attempt: %w", err)
		}
		if a == nil {
			return nil, ErrSessionNotFound
		}
		id = a.ID.String()
	}
	return s.State(ctx, takerID, id)
}

// Shutdown stops every runner. Each unlocked attempt writes a final
// checkpoint so it resumes on the next start.
func (s *SessionService) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("All session runners stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Live returns the number of attempts this process is running.
func (s *SessionService) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Subscribe streams the notices of an attempt the taker owns.
func (s *SessionService) Subscribe(ctx context.Context, takerID int, attemptID string) (<-chan engine.Notice, func(), error) {
	if _, err := s.resolve(ctx, takerID, attemptID); err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := s.hub.Subscribe(attemptID)
	return ch, unsubscribe, nil
}

// ─── Commands ───────────────────────────────────────────────────────

// State returns the taker's view of an attempt, including locked ones.
func (s *SessionService) State(ctx context.Context, takerID int, attemptID string) (*SessionView, error) {
	view, err := s.do(ctx, takerID, attemptID, func(*liveSession, *engine.Session) error { return nil })
	if errors.Is(err, engine.ErrAlreadyLocked) {
		return s.lockedView(ctx, takerID, attemptID)
	}
	return view, err
}

// Paper returns the questions without answer keys. It is only available
// while the exam is running.
func (s *SessionService) Paper(ctx context.Context, takerID int, attemptID string) ([]engine.PublicQuestion, error) {
	var questions []engine.PublicQuestion
	_, err := s.do(ctx, takerID, attemptID, func(_ *liveSession, sess *engine.Session) error {
		if sess.Phase() != engine.PhaseInProgress {
			return engine.ErrNotInProgress
		}
		questions = sess.Questions()
		return nil
	})
	return questions, err
}

// Confirm leaves the instructions screen and starts the clock.
func (s *SessionService) Confirm(ctx context.Context, takerID int, attemptID string) (*SessionView, error) {
	return s.do(ctx, takerID, attemptID, func(ls *liveSession, sess *engine.Session) error {
		if err := sess.Begin(); err != nil {
			return err
		}
		ls.dirty = true
		return nil
	})
}

// Answer records a response. An unset value clears the question.
func (s *SessionService) Answer(ctx context.Context, takerID int, attemptID, questionID string, v engine.Value) (*SessionView, error) {
	return s.do(ctx, takerID, attemptID, func(ls *liveSession, sess *engine.Session) error {
		if err := sess.Answer(questionID, v); err != nil {
			return err
		}
		ls.dirty = true
		ls.enqueue(config.WorkerKey.PersistAnswersQueue, worker.AnswerRecord{
			AttemptID:  ls.id,
			QuestionID: questionID,
			Answer:     v,
			At:         s.now(),
		})
		ls.events = append(ls.events, pendingEvent{typ: MonitorProgress})
		return nil
	})
}

// Next moves to the next question.
func (s *SessionService) Next(ctx context.Context, takerID int, attemptID string) (*SessionView, error) {
	return s.navigate(ctx, takerID, attemptID, (*engine.Session).Next)
}

// Previous moves to the previous question.
func (s *SessionService) Previous(ctx context.Context, takerID int, attemptID string) (*SessionView, error) {
	return s.navigate(ctx, takerID, attemptID, (*engine.Session).Previous)
}

func (s *SessionService) navigate(ctx context.Context, takerID int, attemptID string, move func(*engine.Session) error) (*SessionView, error) {
	return s.do(ctx, takerID, attemptID, func(ls *liveSession, sess *engine.Session) error {
		if err := move(sess); err != nil {
			return err
		}
		ls.dirty = true
		return nil
	})
}

// Submit ends the exam from the last question.
func (s *SessionService) Submit(ctx context.Context, takerID int, attemptID string) (*SessionView, error) {
	return s.do(ctx, takerID, attemptID, func(_ *liveSession, sess *engine.Session) error {
		return sess.Submit()
	})
}

// FocusLost records that the exam page was hidden.
func (s *SessionService) FocusLost(ctx context.Context, takerID int, attemptID string) (*SessionView, error) {
	return s.do(ctx, takerID, attemptID, func(ls *liveSession, sess *engine.Session) error {
		if sess.FocusLost() == engine.SignalNone {
			return nil
		}
		st := sess.State()
		ls.dirty = true
		ls.enqueue(config.WorkerKey.PersistInfractionsQueue, worker.InfractionRecord{
			AttemptID: ls.id,
			TakerID:   ls.takerID,
			Kind:      worker.InfractionFocusLoss,
			Count:     st.InfractionCount,
			At:        s.now(),
		})
		return nil
	})
}

// Restricted records an attempt at a suppressed action.
func (s *SessionService) Restricted(ctx context.Context, takerID int, attemptID string, action engine.RestrictedAction) (*SessionView, error) {
	if !action.Valid() {
		return nil, ErrUnknownRestricted
	}
	return s.do(ctx, takerID, attemptID, func(ls *liveSession, sess *engine.Session) error {
		if !sess.Restricted(action) {
			return nil
		}
		st := sess.State()
		ls.dirty = true
		ls.enqueue(config.WorkerKey.PersistInfractionsQueue, worker.InfractionRecord{
			AttemptID: ls.id,
			TakerID:   ls.takerID,
			Kind:      worker.InfractionRestricted,
			Action:    action,
			Count:     st.RestrictedCount,
			At:        s.now(),
		})
		return nil
	})
}

// Key classifies a keyboard shortcut and records it when it is restricted.
// Other keys leave the session untouched.
func (s *SessionService) Key(ctx context.Context, takerID int, attemptID, key string, ctrl, shift bool) (*SessionView, bool, error) {
	action, restricted := engine.ClassifyKey(key, ctrl, shift)
	if !restricted {
		view, err := s.State(ctx, takerID, attemptID)
		return view, false, err
	}
	view, err := s.Restricted(ctx, takerID, attemptID, action)
	return view, true, err
}

// Evaluate accepts the evaluator score and locks the attempt for good.
// The credential is checked against the leader roster when that policy is on.
func (s *SessionService) Evaluate(ctx context.Context, takerID int, attemptID string, score int, credential string) (*SessionView, error) {
	_, err := s.do(ctx, takerID, attemptID, func(_ *liveSession, sess *engine.Session) error {
		if sess.Phase() != engine.PhaseAwaitingEvaluation {
			return engine.ErrNotAwaiting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if credential != "" && score >= 0 && score <= 100 {
		if err := s.verifier.VerifyEvaluatorCredential(ctx, credential); err != nil {
			return nil, err
		}
	}

	view, err := s.do(ctx, takerID, attemptID, func(ls *liveSession, sess *engine.Session) error {
		final, err := sess.Evaluate(score, credential)
		if err != nil {
			return err
		}
		ls.final = final
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", attemptID).
		Int("taker_id", takerID).
		Int("evaluator_score", score).
		Msg("Attempt evaluated and locked")
	return view, nil
}

// ─── Internals ──────────────────────────────────────────────────────

// do runs fn on the attempt's runner and returns the view taken right after.
func (s *SessionService) do(ctx context.Context, takerID int, attemptID string, fn func(*liveSession, *engine.Session) error) (*SessionView, error) {
	ls, err := s.resolve(ctx, takerID, attemptID)
	if err != nil {
		return nil, err
	}

	var view *SessionView
	err = ls.runner.Do(ctx, func(sess *engine.Session) error {
		if err := fn(ls, sess); err != nil {
			return err
		}
		view = ls.view(sess)
		return nil
	})
	if errors.Is(err, engine.ErrRunnerStopped) {
		// Run has returned, so the session is safe to read.
		if ls.runner.Session().Phase() == engine.PhaseLocked {
			return nil, engine.ErrAlreadyLocked
		}
		return nil, ErrSessionNotFound
	}
	return view, err
}

// resolve finds the live session of an attempt, restoring it from its
// checkpoint when this process is not running it.
func (s *SessionService) resolve(ctx context.Context, takerID int, attemptID string) (*liveSession, error) {
	s.mu.Lock()
	ls := s.live[attemptID]
	s.mu.Unlock()

	if ls == nil {
		key := "restore:" + attemptID + ":" + strconv.Itoa(takerID)
		v, err, _ := s.group.Do(key, func() (any, error) {
			return s.restore(ctx, takerID, attemptID)
		})
		if err != nil {
			return nil, err
		}
		ls = v.(*liveSession)
	}

	if ls.takerID != takerID {
		return nil, ErrSessionNotFound
	}
	return ls, nil
}

func (s *SessionService) restore(ctx context.Context, takerID int, attemptID string) (*liveSession, error) {
	id, err := uuid.Parse(attemptID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	ls := s.live[attemptID]
	owner, unsealed := s.unsealed[attemptID]
	s.mu.Unlock()
	if ls != nil {
		return ls, nil
	}
	if unsealed {
		if owner != takerID {
			return nil, ErrSessionNotFound
		}
		return nil, engine.ErrAlreadyLocked
	}

	cp, err := s.store.LoadCheckpoint(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		a, err := s.attempts.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get attempt: %w", err)
		}
		if a.TakerID != takerID {
			return nil, ErrSessionNotFound
		}
		if a.Status == model.AttemptStatusLocked {
			return nil, engine.ErrAlreadyLocked
		}
		s.log.Warn().Str("attempt_id", attemptID).Msg("Unlocked attempt has no checkpoint")
		return nil, ErrSessionExpired
	}
	if cp.TakerID != strconv.Itoa(takerID) {
		return nil, ErrSessionNotFound
	}
	if cp.Phase == engine.PhaseLocked {
		return nil, engine.ErrAlreadyLocked
	}
	if cp.Phase == engine.PhaseAwaitingEvaluation || cp.Phase.Completed() {
		// A stale checkpoint must not reopen an attempt the database has locked.
		a, err := s.attempts.GetByID(ctx, id)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get attempt: %w", err)
		}
		if a != nil && a.Status == model.AttemptStatusLocked {
			return nil, engine.ErrAlreadyLocked
		}
	}

	paper, err := s.store.LoadPaper(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}
	if paper == nil {
		s.log.Warn().Str("attempt_id", attemptID).Msg("Checkpoint found but paper expired")
		return nil, ErrSessionExpired
	}

	setting, err := s.exams.GetSettings(ctx, cp.Category)
	if errors.Is(err, ErrExamNotConfigured) {
		setting = &model.ExamSetting{Category: cp.Category, DurationMinutes: paper.DurationSeconds / 60}
	} else if err != nil {
		return nil, err
	}

	ls = s.newLive(attemptID, takerID, paper, setting)
	ls.lastPhase = cp.Phase
	sess, err := engine.Restore(s.engineConfig(ls, paper), *cp)
	if err != nil {
		return nil, fmt.Errorf("restore attempt %s: %w", attemptID, err)
	}
	s.launch(ls, sess)

	s.log.Info().
		Str("attempt_id", attemptID).
		Str("phase", string(sess.Phase())).
		Int("remaining_seconds", sess.State().RemainingSeconds).
		Msg("Attempt restored from checkpoint")
	return ls, nil
}

func (s *SessionService) newLive(id string, takerID int, paper *Paper, setting *model.ExamSetting) *liveSession {
	return &liveSession{
		id:       id,
		takerID:  takerID,
		category: paper.Category,
		setting:  *setting,
		instructions: Instructions{
			Category:           paper.Category,
			DurationMinutes:    paper.DurationSeconds / 60,
			QuestionCount:      len(paper.Questions),
			PassingScore:       setting.PassingScore,
			FocusLossThreshold: s.policy.FocusLossThreshold,
		},
	}
}

func (s *SessionService) engineConfig(ls *liveSession, paper *Paper) engine.Config {
	return engine.Config{
		ID:                 ls.id,
		TakerID:            strconv.Itoa(ls.takerID),
		Category:           paper.Category,
		Questions:          paper.Questions,
		DurationSeconds:    paper.DurationSeconds,
		FocusLossThreshold: s.policy.FocusLossThreshold,
		WarningWindow:      s.policy.WarningWindow,
		Sink:               engine.SinkFunc(func(n engine.Notice) { s.onNotice(ls, n) }),
		Now:                s.now,
	}
}

// launch registers ls and starts its runner. The first observe runs before
// the runner goroutine so a restore that already completed is persisted.
func (s *SessionService) launch(ls *liveSession, sess *engine.Session) {
	ls.runner = engine.NewRunner(sess, s.log,
		engine.WithClock(s.clock),
		engine.WithOnChange(func(sess *engine.Session) { s.observe(ls, sess) }),
	)
	s.observe(ls, sess)

	s.mu.Lock()
	s.live[ls.id] = ls
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ls.runner.Run(s.ctx)

		sess := ls.runner.Session()
		if sess.Phase() != engine.PhaseLocked {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := s.store.SaveCheckpoint(ctx, sess.Checkpoint()); err != nil {
				s.log.Error().Err(err).Str("attempt_id", ls.id).Msg("Failed to write final checkpoint")
			}
		}

		s.mu.Lock()
		if s.live[ls.id] == ls {
			delete(s.live, ls.id)
		}
		s.mu.Unlock()
	}()
}

// onNotice runs wherever the session emits: fan out to stream connections
// and remember what the monitor should hear about.
func (s *SessionService) onNotice(ls *liveSession, n engine.Notice) {
	s.hub.Publish(n)

	var typ MonitorEventType
	switch n.Kind {
	case engine.NoticeStarted:
		typ = MonitorStarted
	case engine.NoticeWarning:
		typ = MonitorWarning
	case engine.NoticeSuppressed:
		typ = MonitorSuppressed
	case engine.NoticeSubmitted, engine.NoticeTimedOut, engine.NoticeTerminated:
		typ = MonitorCompleted
	case engine.NoticeLocked:
		typ = MonitorLocked
	default:
		return
	}
	ls.events = append(ls.events, pendingEvent{typ: typ, action: n.Action})
}

// observe persists what changed since the last call. It runs on the runner
// goroutine after every processed event.
func (s *SessionService) observe(ls *liveSession, sess *engine.Session) {
	st := sess.State()
	if st.Phase == ls.lastPhase && !ls.dirty && len(ls.events) == 0 && len(ls.queued) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	log := s.log.With().Str("attempt_id", ls.id).Logger()

	if st.Phase != engine.PhaseLocked && (st.Phase != ls.lastPhase || ls.dirty) {
		if err := s.store.SaveCheckpoint(ctx, sess.Checkpoint()); err != nil {
			log.Error().Err(err).Msg("Failed to save checkpoint")
		}
	}
	ls.dirty = false

	for _, item := range ls.queued {
		if err := s.store.Enqueue(ctx, item.queue, item.payload); err != nil {
			log.Error().Err(err).Str("queue", item.queue).Interface("payload", item.payload).Msg("Failed to queue payload")
		}
	}
	ls.queued = ls.queued[:0]

	if st.Phase == engine.PhaseAwaitingEvaluation && ls.lastPhase != engine.PhaseAwaitingEvaluation {
		outcome := st.Outcome
		update := worker.AttemptUpdate{
			AttemptID:       ls.id,
			Status:          model.AttemptStatusAwaiting,
			Outcome:         &outcome,
			AutoScore:       st.AutoScore,
			InfractionCount: st.InfractionCount,
			RestrictedCount: st.RestrictedCount,
			Answers:         st.Answers,
			CompletedAt:     st.CompletedAt,
		}
		if err := s.store.Enqueue(ctx, config.WorkerKey.PersistAttemptsQueue, update); err != nil {
			log.Error().Err(err).Interface("payload", update).Msg("Failed to queue completion")
		}
	}

	if st.Phase == engine.PhaseLocked && ls.final != nil {
		s.seal(ctx, log, ls, sess)
	}

	for _, ev := range ls.events {
		event := MonitorEvent{
			Type:             ev.typ,
			AttemptID:        ls.id,
			TakerID:          ls.takerID,
			Category:         ls.category,
			Phase:            st.Phase,
			Outcome:          st.Outcome,
			Answered:         st.Answers.Answered(),
			Total:            st.TotalQuestions,
			InfractionCount:  st.InfractionCount,
			RemainingSeconds: st.RemainingSeconds,
			Action:           ev.action,
			At:               s.now(),
		}
		if err := s.store.Publish(ctx, ls.category, event); err != nil {
			log.Warn().Err(err).Msg("Failed to publish monitor event")
		}
	}
	ls.events = ls.events[:0]

	ls.lastPhase = st.Phase
}

// seal makes a lock outlive the runner. The locked checkpoint is written
// before the finalization is queued so a restore never sees an earlier phase.
// If it cannot be written the cached attempt is dropped and the lock is
// remembered in-process.
func (s *SessionService) seal(ctx context.Context, log zerolog.Logger, ls *liveSession, sess *engine.Session) {
	if err := s.store.SaveCheckpoint(ctx, sess.Checkpoint()); err != nil {
		log.Error().Err(err).Msg("Failed to save locked checkpoint")
		s.mu.Lock()
		s.unsealed[ls.id] = ls.takerID
		s.mu.Unlock()
		if err := s.store.Clear(ctx, ls.takerID, ls.id); err != nil {
			log.Error().Err(err).Msg("Failed to clear attempt cache")
		}
	}

	update := worker.FinalizationUpdate(ls.final)
	if err := s.store.Enqueue(ctx, config.WorkerKey.PersistAttemptsQueue, update); err != nil {
		log.Error().Err(err).Interface("payload", update).Msg("Failed to queue finalization")
	}
	if err := s.store.Release(ctx, ls.takerID, ls.id); err != nil {
		log.Warn().Err(err).Msg("Failed to release attempt cache")
	}
	ls.final = nil
}

// view builds the taker's view. Scores of a locked attempt are hidden unless
// the category shows results.
func (ls *liveSession) view(sess *engine.Session) *SessionView {
	v := &SessionView{State: sess.State()}
	switch v.Phase {
	case engine.PhaseInstructions:
		instructions := ls.instructions
		v.Instructions = &instructions
	case engine.PhaseInProgress:
		q := sess.Current()
		v.Current = &q
	case engine.PhaseLocked:
		if !ls.setting.ShowResults {
			v.AutoScore = nil
			v.EvaluatorScore = nil
		}
	}
	return v
}

// lockedView rebuilds the view of a locked attempt from its locked
// checkpoint, or from the stored record once that has expired.
func (s *SessionService) lockedView(ctx context.Context, takerID int, attemptID string) (*SessionView, error) {
	id, err := uuid.Parse(attemptID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	var st engine.State
	cp, err := s.store.LoadCheckpoint(ctx, attemptID)
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Failed to load locked checkpoint")
	}
	if cp != nil && cp.Phase == engine.PhaseLocked {
		if cp.TakerID != strconv.Itoa(takerID) {
			return nil, ErrSessionNotFound
		}
		st = engine.State{
			SessionID:        cp.SessionID,
			TakerID:          cp.TakerID,
			Category:         cp.Category,
			Outcome:          cp.Outcome,
			CurrentIndex:     cp.CurrentIndex,
			RemainingSeconds: cp.RemainingSeconds,
			InfractionCount:  cp.InfractionCount,
			RestrictedCount:  cp.RestrictedCount,
			Answers:          cp.Answers,
			AutoScore:        cp.AutoScore,
			EvaluatorScore:   cp.EvaluatorScore,
			StartedAt:        cp.StartedAt,
			CompletedAt:      cp.CompletedAt,
		}
	} else {
		a, err := s.attempts.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get attempt: %w", err)
		}
		if a.TakerID != takerID {
			return nil, ErrSessionNotFound
		}
		st = engine.State{
			SessionID:       a.ID.String(),
			TakerID:         strconv.Itoa(a.TakerID),
			Category:        a.Category,
			InfractionCount: a.InfractionCount,
			RestrictedCount: a.RestrictedCount,
			Answers:         a.Answers,
			AutoScore:       a.AutoScore,
			EvaluatorScore:  a.EvaluatorScore,
			StartedAt:       &a.StartedAt,
			CompletedAt:     a.CompletedAt,
		}
		if a.Outcome != nil {
			st.Outcome = *a.Outcome
		}
	}
	st.Phase = engine.PhaseLocked
	st.Locked = true
	st.Threshold = s.policy.FocusLossThreshold

	setting, err := s.exams.GetSettings(ctx, st.Category)
	if err != nil || !setting.ShowResults {
		st.AutoScore = nil
		st.EvaluatorScore = nil
	}
	return &SessionView{State: st}, nil
}
