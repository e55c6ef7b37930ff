package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/worker"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeAttempts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Attempt
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{rows: make(map[uuid.UUID]*model.Attempt)}
}

func (f *fakeAttempts) Create(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.rows[a.ID] = &cp
	return nil
}

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttempts) FindUnlocked(_ context.Context, takerID int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.rows {
		if a.TakerID == takerID && a.Status != model.AttemptStatusLocked {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAttempts) HasAttempted(_ context.Context, takerID int, category string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.rows {
		if a.TakerID == takerID && a.Category == category {
			return true, nil
		}
	}
	return false, nil
}

// apply plays the attempt worker's part.
func (f *fakeAttempts) apply(u worker.AttemptUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[uuid.MustParse(u.AttemptID)]
	if !ok || a.Status == model.AttemptStatusLocked {
		return
	}
	a.Status = u.Status
	a.Outcome = u.Outcome
	a.AutoScore = u.AutoScore
	a.EvaluatorScore = u.EvaluatorScore
	a.InfractionCount = u.InfractionCount
	a.RestrictedCount = u.RestrictedCount
	a.Answers = u.Answers
	a.CompletedAt = u.CompletedAt
	a.LockedAt = u.LockedAt
}

type fakeDealer struct {
	settings  map[string]*model.ExamSetting
	questions []engine.Question
}

func (f *fakeDealer) GetSettings(_ context.Context, category string) (*model.ExamSetting, error) {
	s, ok := f.settings[category]
	if !ok {
		return nil, ErrExamNotConfigured
	}
	cp := *s
	return &cp, nil
}

func (f *fakeDealer) BuildPaper(ctx context.Context, category string) (*Paper, *model.ExamSetting, error) {
	s, err := f.GetSettings(ctx, category)
	if err != nil {
		return nil, nil, err
	}
	return &Paper{
		Category:        category,
		DurationSeconds: s.DurationMinutes * 60,
		Questions:       append([]engine.Question(nil), f.questions...),
	}, s, nil
}

type fakeVerifier struct{}

func (fakeVerifier) VerifyEvaluatorCredential(_ context.Context, credential string) error {
	if credential != "leader-pass" {
		return ErrInvalidEvaluatorCredential
	}
	return nil
}

type queued struct {
	queue   string
	payload any
}

type fakeStore struct {
	mu          sync.Mutex
	attempts    *fakeAttempts
	checkpoints map[string]engine.Checkpoint
	papers      map[string]*Paper
	active      map[int]string
	queued      []queued
	published   []MonitorEvent

	// deferred leaves attempt updates on the queue until applyQueued.
	deferred       bool
	failLockedSave bool
	failClear      bool
}

func newFakeStore(attempts *fakeAttempts) *fakeStore {
	return &fakeStore{
		attempts:    attempts,
		checkpoints: make(map[string]engine.Checkpoint),
		papers:      make(map[string]*Paper),
		active:      make(map[int]string),
	}
}

func (f *fakeStore) SaveCheckpoint(_ context.Context, cp engine.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLockedSave && cp.Phase == engine.PhaseLocked {
		return errors.New("redis: connection refused")
	}
	f.checkpoints[cp.SessionID] = cp
	return nil
}

func (f *fakeStore) LoadCheckpoint(_ context.Context, id string) (*engine.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[id]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (f *fakeStore) SavePaper(_ context.Context, id string, p *Paper) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.papers[id] = p
	return nil
}

func (f *fakeStore) LoadPaper(_ context.Context, id string) (*Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.papers[id], nil
}

func (f *fakeStore) SetActive(_ context.Context, takerID int, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[takerID] = id
	return nil
}

func (f *fakeStore) ActiveAttempt(_ context.Context, takerID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[takerID], nil
}

func (f *fakeStore) Release(_ context.Context, takerID int, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.papers, id)
	delete(f.active, takerID)
	return nil
}

func (f *fakeStore) Clear(_ context.Context, takerID int, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClear {
		return errors.New("redis: connection refused")
	}
	delete(f.checkpoints, id)
	delete(f.papers, id)
	delete(f.active, takerID)
	return nil
}

func (f *fakeStore) Enqueue(_ context.Context, queue string, v any) error {
	f.mu.Lock()
	deferred := f.deferred
	f.queued = append(f.queued, queued{queue: queue, payload: v})
	f.mu.Unlock()
	if u, ok := v.(worker.AttemptUpdate); ok && !deferred {
		f.attempts.apply(u)
	}
	return nil
}

// applyQueued lets the attempt worker catch up on deferred updates.
func (f *fakeStore) applyQueued() {
	for _, v := range f.queue(config.WorkerKey.PersistAttemptsQueue) {
		f.attempts.apply(v.(worker.AttemptUpdate))
	}
}

// finalizations counts queued updates that lock an attempt.
func (f *fakeStore) finalizations() int {
	n := 0
	for _, v := range f.queue(config.WorkerKey.PersistAttemptsQueue) {
		if v.(worker.AttemptUpdate).Status == model.AttemptStatusLocked {
			n++
		}
	}
	return n
}

func (f *fakeStore) Publish(_ context.Context, _ string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, v.(MonitorEvent))
	return nil
}

func (f *fakeStore) queue(name string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, q := range f.queued {
		if q.queue == name {
			out = append(out, q.payload)
		}
	}
	return out
}

func (f *fakeStore) checkpointPhase(id string) engine.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpoints[id].Phase
}

func (f *fakeStore) hasPaper(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.papers[id]
	return ok
}

func (f *fakeStore) events(typ MonitorEventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.published {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type manualClock struct{ ticks chan time.Time }

func (c manualClock) NewTicker(time.Duration) engine.Ticker { return manualTicker(c) }

type manualTicker struct{ ticks chan time.Time }

func (t manualTicker) C() <-chan time.Time { return t.ticks }
func (t manualTicker) Stop()               {}

// ─── Harness ────────────────────────────────────────────────────────

const (
	taker    = 7
	category = "Penggalang"
)

type harness struct {
	svc      *SessionService
	attempts *fakeAttempts
	store    *fakeStore
	dealer   *fakeDealer
	clock    manualClock
	hub      *Hub
}

func testQuestions() []engine.Question {
	return []engine.Question{
		{ID: "q1", Prompt: "Knot for joining two ropes?", Kind: engine.KindSingleChoice, Options: []string{"Bowline", "Reef knot", "Clove hitch"}, Correct: engine.Choice(1)},
		{ID: "q2", Prompt: "A compass needle points north.", Kind: engine.KindBoolean, Correct: engine.Bool(true)},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	attempts := newFakeAttempts()
	h := &harness{
		attempts: attempts,
		store:    newFakeStore(attempts),
		dealer: &fakeDealer{
			settings: map[string]*model.ExamSetting{
				category: {Category: category, DurationMinutes: 1, PassingScore: 70},
				"Penegak": {Category: "Penegak", DurationMinutes: 1, AllowRetake: true},
			},
			questions: testQuestions(),
		},
		clock: manualClock{ticks: make(chan time.Time, 128)},
		hub:   NewHub(),
	}
	h.svc = h.newService()
	t.Cleanup(func() { _ = h.svc.Shutdown(context.Background()) })
	return h
}

func (h *harness) newService() *SessionService {
	policy := config.ExamPolicy{FocusLossThreshold: 3, WarningWindow: 5 * time.Second}
	return NewSessionService(policy, h.dealer, fakeVerifier{}, h.attempts, h.store, h.hub, zerolog.Nop(),
		WithSessionClock(h.clock))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// mustView fails the test on error. It returns a func so a service call's
// two results can be passed straight through: mustView(t)(h.svc.State(...)).
func mustView(t *testing.T) func(*SessionView, error) *SessionView {
	t.Helper()
	return func(v *SessionView, err error) *SessionView {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}

func (h *harness) startInProgress(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	v := mustView(t)(h.svc.Start(ctx, taker, category))
	mustView(t)(h.svc.Confirm(ctx, taker, v.SessionID))
	return v.SessionID
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v := mustView(t)(h.svc.Start(ctx, taker, category))
	if v.Phase != engine.PhaseInstructions {
		t.Fatalf("phase = %s, want instructions", v.Phase)
	}
	if v.Instructions == nil || v.Instructions.QuestionCount != 2 || v.Instructions.DurationMinutes != 1 {
		t.Fatalf("instructions = %+v", v.Instructions)
	}
	id := v.SessionID

	if _, err := h.svc.Paper(ctx, taker, id); !errors.Is(err, engine.ErrNotInProgress) {
		t.Fatalf("Paper before confirm: err = %v", err)
	}

	v = mustView(t)(h.svc.Confirm(ctx, taker, id))
	if v.Phase != engine.PhaseInProgress || v.Current == nil || v.Current.ID != "q1" {
		t.Fatalf("after confirm: %+v", v)
	}

	paper, err := h.svc.Paper(ctx, taker, id)
	if err != nil || len(paper) != 2 {
		t.Fatalf("Paper: %v, %d questions", err, len(paper))
	}

	mustView(t)(h.svc.Answer(ctx, taker, id, "q1", engine.Choice(1)))
	if _, err := h.svc.Submit(ctx, taker, id); !errors.Is(err, engine.ErrNotAtLastQuestion) {
		t.Fatalf("early submit: err = %v", err)
	}
	mustView(t)(h.svc.Next(ctx, taker, id))
	mustView(t)(h.svc.Answer(ctx, taker, id, "q2", engine.Bool(true)))

	v = mustView(t)(h.svc.Submit(ctx, taker, id))
	if v.Phase != engine.PhaseAwaitingEvaluation || v.Outcome != engine.PhaseCompletedManual {
		t.Fatalf("after submit: phase %s outcome %s", v.Phase, v.Outcome)
	}
	if v.AutoScore == nil || *v.AutoScore != 100 {
		t.Fatalf("auto score = %v, want 100", v.AutoScore)
	}

	waitFor(t, "completion update", func() bool {
		return len(h.store.queue(config.WorkerKey.PersistAttemptsQueue)) == 1
	})
	if got := len(h.store.queue(config.WorkerKey.PersistAnswersQueue)); got != 2 {
		t.Errorf("answers queued = %d, want 2", got)
	}

	if _, err := h.svc.Evaluate(ctx, taker, id, 90, "guess"); !errors.Is(err, ErrInvalidEvaluatorCredential) {
		t.Fatalf("wrong credential: err = %v", err)
	}
	if _, err := h.svc.Evaluate(ctx, taker, id, 150, "leader-pass"); !errors.Is(err, engine.ErrScoreOutOfRange) {
		t.Fatalf("out of range: err = %v", err)
	}
	if _, err := h.svc.Evaluate(ctx, taker, id, 85, ""); !errors.Is(err, engine.ErrCredentialRequired) {
		t.Fatalf("empty credential: err = %v", err)
	}

	v = mustView(t)(h.svc.Evaluate(ctx, taker, id, 85, "leader-pass"))
	if !v.Locked || v.Phase != engine.PhaseLocked {
		t.Fatalf("after evaluate: %+v", v.State)
	}
	if v.AutoScore != nil || v.EvaluatorScore != nil {
		t.Error("scores must be hidden when the category does not show results")
	}

	waitFor(t, "finalization", func() bool {
		return len(h.store.queue(config.WorkerKey.PersistAttemptsQueue)) == 2 && h.store.checkpointPhase(id) == engine.PhaseLocked
	})
	if h.store.hasPaper(id) {
		t.Error("paper of a locked attempt should be released")
	}
	final := h.store.queue(config.WorkerKey.PersistAttemptsQueue)[1].(worker.AttemptUpdate)
	if final.Status != model.AttemptStatusLocked || *final.EvaluatorScore != 85 || *final.AutoScore != 100 {
		t.Errorf("finalization = %+v", final)
	}

	if _, err := h.svc.Evaluate(ctx, taker, id, 10, "leader-pass"); !errors.Is(err, engine.ErrAlreadyLocked) {
		t.Fatalf("second evaluate: err = %v", err)
	}

	v = mustView(t)(h.svc.State(ctx, taker, id))
	if !v.Locked || v.Outcome != engine.PhaseCompletedManual {
		t.Fatalf("locked view: %+v", v.State)
	}
	if h.store.events(MonitorLocked) != 1 || h.store.events(MonitorJoined) != 1 {
		t.Errorf("monitor events: locked %d joined %d", h.store.events(MonitorLocked), h.store.events(MonitorJoined))
	}
}

func TestStartRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := mustView(t)(h.svc.Start(ctx, taker, category))

	t.Run("same category resumes", func(t *testing.T) {
		again := mustView(t)(h.svc.Start(ctx, taker, category))
		if again.SessionID != first.SessionID {
			t.Fatalf("got a new attempt %s, want %s", again.SessionID, first.SessionID)
		}
	})

	t.Run("other category is refused", func(t *testing.T) {
		if _, err := h.svc.Start(ctx, taker, "Penegak"); !errors.Is(err, ErrActiveSessionExists) {
			t.Fatalf("err = %v, want ErrActiveSessionExists", err)
		}
	})

	t.Run("unconfigured category", func(t *testing.T) {
		if _, err := h.svc.Start(ctx, taker+1, "Siaga"); !errors.Is(err, ErrExamNotConfigured) {
			t.Fatalf("err = %v, want ErrExamNotConfigured", err)
		}
	})

	t.Run("no retake after lock", func(t *testing.T) {
		id := first.SessionID
		mustView(t)(h.svc.Confirm(ctx, taker, id))
		mustView(t)(h.svc.Next(ctx, taker, id))
		mustView(t)(h.svc.Submit(ctx, taker, id))
		mustView(t)(h.svc.Evaluate(ctx, taker, id, 50, "leader-pass"))
		waitFor(t, "lock persisted", func() bool {
			a, _ := h.attempts.GetByID(ctx, uuid.MustParse(id))
			return a.Status == model.AttemptStatusLocked
		})

		if _, err := h.svc.Start(ctx, taker, category); !errors.Is(err, ErrRetakeNotAllowed) {
			t.Fatalf("err = %v, want ErrRetakeNotAllowed", err)
		}
	})
}

func TestSessionOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startInProgress(t)

	if _, err := h.svc.State(ctx, taker+1, id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign state: err = %v", err)
	}
	if _, err := h.svc.State(ctx, taker, uuid.NewString()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown attempt: err = %v", err)
	}
	if _, err := h.svc.State(ctx, taker, "not-a-uuid"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("malformed id: err = %v", err)
	}
}

func TestSessionTimesOut(t *testing.T) {
	h := newHarness(t)
	h.dealer.settings[category].DurationMinutes = 1
	ctx := context.Background()
	id := h.startInProgress(t)

	for i := 0; i < 60; i++ {
		h.clock.ticks <- time.Now()
	}

	waitFor(t, "timeout", func() bool {
		v, err := h.svc.State(ctx, taker, id)
		return err == nil && v.Phase == engine.PhaseAwaitingEvaluation
	})
	v := mustView(t)(h.svc.State(ctx, taker, id))
	if v.Outcome != engine.PhaseCompletedTimedOut || v.RemainingSeconds != 0 {
		t.Fatalf("outcome %s remaining %d", v.Outcome, v.RemainingSeconds)
	}
	if _, err := h.svc.Answer(ctx, taker, id, "q1", engine.Choice(0)); !errors.Is(err, engine.ErrNotInProgress) {
		t.Fatalf("answer after timeout: err = %v", err)
	}
}

func TestFocusLossTerminates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startInProgress(t)

	notices, unsubscribe, err := h.svc.Subscribe(ctx, taker, id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	v := mustView(t)(h.svc.FocusLost(ctx, taker, id))
	if v.InfractionCount != 1 || v.Phase != engine.PhaseInProgress {
		t.Fatalf("after first loss: %+v", v.State)
	}
	select {
	case n := <-notices:
		if n.Kind != engine.NoticeWarning || n.ExpiresAt == nil {
			t.Fatalf("notice = %+v, want warning", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no warning notice")
	}

	mustView(t)(h.svc.FocusLost(ctx, taker, id))
	v = mustView(t)(h.svc.FocusLost(ctx, taker, id))
	if v.Phase != engine.PhaseAwaitingEvaluation || v.Outcome != engine.PhaseCompletedTerminated {
		t.Fatalf("after third loss: phase %s outcome %s", v.Phase, v.Outcome)
	}

	waitFor(t, "infractions queued", func() bool {
		return len(h.store.queue(config.WorkerKey.PersistInfractionsQueue)) == 3
	})
	last := h.store.queue(config.WorkerKey.PersistInfractionsQueue)[2].(worker.InfractionRecord)
	if last.Kind != worker.InfractionFocusLoss || last.Count != 3 {
		t.Errorf("last infraction = %+v", last)
	}

	v = mustView(t)(h.svc.FocusLost(ctx, taker, id))
	if v.InfractionCount != 3 {
		t.Errorf("infraction count moved after termination: %d", v.InfractionCount)
	}
}

func TestRestrictedActions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startInProgress(t)

	tests := []struct {
		name           string
		key            string
		ctrl, shift    bool
		wantRestricted bool
	}{
		{"copy", "c", true, false, true},
		{"dev tools", "F12", false, false, true},
		{"inspector", "I", true, true, true},
		{"plain letter", "a", false, false, false},
		{"ctrl+a", "a", true, false, false},
	}
	restricted := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, got, err := h.svc.Key(ctx, taker, id, tt.key, tt.ctrl, tt.shift)
			if err != nil {
				t.Fatalf("Key: %v", err)
			}
			if got != tt.wantRestricted {
				t.Fatalf("restricted = %v, want %v", got, tt.wantRestricted)
			}
			if got {
				restricted++
			}
			if v.RestrictedCount != restricted || v.InfractionCount != 0 {
				t.Fatalf("restricted %d infractions %d", v.RestrictedCount, v.InfractionCount)
			}
		})
	}

	if _, err := h.svc.Restricted(ctx, taker, id, "screenshot"); !errors.Is(err, ErrUnknownRestricted) {
		t.Fatalf("unknown action: err = %v", err)
	}
	v := mustView(t)(h.svc.Restricted(ctx, taker, id, engine.ActionContextMenu))
	if v.Phase != engine.PhaseInProgress {
		t.Fatalf("restricted actions must never end the exam, phase %s", v.Phase)
	}
}

func TestSessionResumesAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startInProgress(t)

	mustView(t)(h.svc.Answer(ctx, taker, id, "q1", engine.Choice(2)))
	mustView(t)(h.svc.FocusLost(ctx, taker, id))
	if err := h.svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	h.svc = h.newService()
	v := mustView(t)(h.svc.Current(ctx, taker))
	if v.SessionID != id || v.Phase != engine.PhaseInProgress {
		t.Fatalf("resumed %s in %s", v.SessionID, v.Phase)
	}
	if v.InfractionCount != 1 {
		t.Errorf("infraction count = %d, reload must not reset it", v.InfractionCount)
	}
	if got, _ := v.Answers.Get("q1").Index(); got != 2 {
		t.Errorf("answer q1 = %v", v.Answers.Get("q1"))
	}
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.startInProgress(t)
	if err := h.svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	h.store.mu.Lock()
	delete(h.store.checkpoints, id)
	h.store.mu.Unlock()

	h.svc = h.newService()
	if _, err := h.svc.State(ctx, taker, id); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

func TestLockOutlivesRunner(t *testing.T) {
	tests := []struct {
		name            string
		failLockedSave  bool
		failClear       bool
		workerCatchesUp bool
		restart         bool
		wantOutcome     engine.Phase
	}{
		{name: "locked checkpoint", wantOutcome: engine.PhaseCompletedManual},
		{name: "locked checkpoint after restart", restart: true, wantOutcome: engine.PhaseCompletedManual},
		{name: "locked checkpoint not written", failLockedSave: true},
		{name: "cache unreachable", failLockedSave: true, failClear: true},
		{
			name:            "stale checkpoint after restart",
			failLockedSave:  true,
			failClear:       true,
			workerCatchesUp: true,
			restart:         true,
			wantOutcome:     engine.PhaseCompletedManual,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.deferred = true
			h.store.failLockedSave = tc.failLockedSave
			h.store.failClear = tc.failClear
			ctx := context.Background()

			id := h.startInProgress(t)
			mustView(t)(h.svc.Next(ctx, taker, id))
			mustView(t)(h.svc.Submit(ctx, taker, id))
			mustView(t)(h.svc.Evaluate(ctx, taker, id, 85, "leader-pass"))
			waitFor(t, "runner exit", func() bool { return h.svc.Live() == 0 })

			if tc.workerCatchesUp {
				h.store.applyQueued()
			}
			if tc.restart {
				if err := h.svc.Shutdown(ctx); err != nil {
					t.Fatalf("Shutdown: %v", err)
				}
				h.svc = h.newService()
			}

			if _, err := h.svc.Evaluate(ctx, taker, id, 10, "leader-pass"); !errors.Is(err, engine.ErrAlreadyLocked) {
				t.Fatalf("evaluate after lock: err = %v, want ErrAlreadyLocked", err)
			}
			if _, err := h.svc.Answer(ctx, taker, id, "q1", engine.Choice(0)); !errors.Is(err, engine.ErrAlreadyLocked) {
				t.Fatalf("answer after lock: err = %v, want ErrAlreadyLocked", err)
			}
			v := mustView(t)(h.svc.State(ctx, taker, id))
			if !v.Locked || v.Phase != engine.PhaseLocked || v.Outcome != tc.wantOutcome {
				t.Fatalf("state after lock: phase %s locked %v outcome %q", v.Phase, v.Locked, v.Outcome)
			}
			if n := h.store.finalizations(); n != 1 {
				t.Fatalf("finalizations queued = %d, want 1", n)
			}
		})
	}
}

func TestHubDropsSlowSubscribers(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe("a1")

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(engine.Notice{Kind: engine.NoticeTick, SessionID: "a1"})
	}
	hub.Publish(engine.Notice{Kind: engine.NoticeTick, SessionID: "other"})

	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
	if hub.Subscribers("a1") != 1 {
		t.Fatalf("subscribers = %d", hub.Subscribers("a1"))
	}

	unsubscribe()
	unsubscribe()
	if hub.Subscribers("a1") != 0 {
		t.Fatal("unsubscribe left a listener behind")
	}
	for range ch {
	}
}
