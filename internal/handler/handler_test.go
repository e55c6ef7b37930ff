package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/middleware"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
	"github.com/scoutexam/exam-backend/internal/validator"
	ws "github.com/scoutexam/exam-backend/internal/websocket"
	"github.com/scoutexam/exam-backend/internal/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// ─── In-memory collaborators ────────────────────────────────────────

type memAttempts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Attempt
}

func (m *memAttempts) Create(_ context.Context, a *model.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = *a
	return nil
}

func (m *memAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (m *memAttempts) FindUnlocked(_ context.Context, takerID int) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.TakerID == takerID && a.Status != model.AttemptStatusLocked {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *memAttempts) HasAttempted(_ context.Context, takerID int, category string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.TakerID == takerID && a.Category == category {
			return true, nil
		}
	}
	return false, nil
}

type memDealer struct{}

func (memDealer) GetSettings(_ context.Context, category string) (*model.ExamSetting, error) {
	if category != "Penggalang" {
		return nil, service.ErrExamNotConfigured
	}
	return &model.ExamSetting{Category: category, DurationMinutes: 30, PassingScore: 70}, nil
}

func (d memDealer) BuildPaper(ctx context.Context, category string) (*service.Paper, *model.ExamSetting, error) {
	s, err := d.GetSettings(ctx, category)
	if err != nil {
		return nil, nil, err
	}
	return &service.Paper{
		Category:        category,
		DurationSeconds: s.DurationMinutes * 60,
		Questions: []engine.Question{
			{ID: "q1", Prompt: "Founder of scouting?", Kind: engine.KindSingleChoice, Options: []string{"Kipling", "Baden-Powell"}, Correct: engine.Choice(1)},
			{ID: "q2", Prompt: "Scouts keep their promise.", Kind: engine.KindBoolean, Correct: engine.Bool(true)},
		},
	}, s, nil
}

type leaderCredential struct{}

func (leaderCredential) VerifyEvaluatorCredential(_ context.Context, credential string) error {
	if credential != "kak-leader" {
		return service.ErrInvalidEvaluatorCredential
	}
	return nil
}

type memStore struct {
	mu          sync.Mutex
	attempts    *memAttempts
	checkpoints map[string]engine.Checkpoint
	papers      map[string]*service.Paper
	active      map[int]string
}

func (m *memStore) SaveCheckpoint(_ context.Context, cp engine.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.SessionID] = cp
	return nil
}

func (m *memStore) LoadCheckpoint(_ context.Context, id string) (*engine.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (m *memStore) SavePaper(_ context.Context, id string, p *service.Paper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.papers[id] = p
	return nil
}

func (m *memStore) LoadPaper(_ context.Context, id string) (*service.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.papers[id], nil
}

func (m *memStore) SetActive(_ context.Context, takerID int, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[takerID] = id
	return nil
}

func (m *memStore) ActiveAttempt(_ context.Context, takerID int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[takerID], nil
}

func (m *memStore) Release(_ context.Context, takerID int, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.papers, id)
	delete(m.active, takerID)
	return nil
}

func (m *memStore) Clear(_ context.Context, takerID int, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, id)
	delete(m.papers, id)
	delete(m.active, takerID)
	return nil
}

// Enqueue applies attempt updates the way the attempt worker would.
func (m *memStore) Enqueue(_ context.Context, _ string, v any) error {
	u, ok := v.(worker.AttemptUpdate)
	if !ok {
		return nil
	}
	m.attempts.mu.Lock()
	defer m.attempts.mu.Unlock()
	id := uuid.MustParse(u.AttemptID)
	a := m.attempts.rows[id]
	a.Status = u.Status
	a.Outcome = u.Outcome
	a.AutoScore = u.AutoScore
	a.EvaluatorScore = u.EvaluatorScore
	a.InfractionCount = u.InfractionCount
	a.RestrictedCount = u.RestrictedCount
	a.Answers = u.Answers
	a.CompletedAt = u.CompletedAt
	a.LockedAt = u.LockedAt
	m.attempts.rows[id] = a
	return nil
}

func (m *memStore) Publish(context.Context, string, any) error { return nil }

type stillClock struct{}

func (stillClock) NewTicker(time.Duration) engine.Ticker { return stillTicker{} }

type stillTicker struct{}

func (stillTicker) C() <-chan time.Time { return nil }
func (stillTicker) Stop()               {}

const testTaker = 7

func newSessionService(t *testing.T) *service.SessionService {
	t.Helper()
	attempts := &memAttempts{rows: make(map[uuid.UUID]model.Attempt)}
	store := &memStore{
		attempts:    attempts,
		checkpoints: make(map[string]engine.Checkpoint),
		papers:      make(map[string]*service.Paper),
		active:      make(map[int]string),
	}
	policy := config.ExamPolicy{FocusLossThreshold: 3, WarningWindow: 5 * time.Second}
	svc := service.NewSessionService(policy, memDealer{}, leaderCredential{}, attempts, store, service.NewHub(),
		zerolog.Nop(), service.WithSessionClock(stillClock{}))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

// asTaker stands in for the JWT middleware.
func asTaker(c *gin.Context) {
	c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: testTaker, Role: model.RoleStudent})
	c.Next()
}

func newSessionRouter(svc *service.SessionService) *gin.Engine {
	h := NewSessionHandler(svc, zerolog.Nop())
	r := gin.New()
	g := r.Group("/sessions", asTaker)
	g.POST("", h.StartSession)
	g.GET("/current", h.CurrentSession)
	g.GET("/:id", h.GetSession)
	g.GET("/:id/paper", h.GetPaper)
	g.POST("/:id/confirm", h.ConfirmInstructions)
	g.PUT("/:id/answers/:question_id", h.SaveAnswer)
	g.POST("/:id/next", h.NextQuestion)
	g.POST("/:id/previous", h.PreviousQuestion)
	g.POST("/:id/submit", h.SubmitSession)
	g.POST("/:id/integrity/focus-lost", h.ReportFocusLost)
	g.POST("/:id/integrity/restricted", h.ReportRestricted)
	g.POST("/:id/integrity/key", h.ReportKey)
	g.POST("/:id/evaluation", h.EvaluateSession)
	return r
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

type sessionBody struct {
	Session struct {
		SessionID       string                 `json:"session_id"`
		Phase           engine.Phase           `json:"phase"`
		Outcome         engine.Phase           `json:"outcome"`
		CurrentIndex    int                    `json:"current_index"`
		InfractionCount int                    `json:"infraction_count"`
		RestrictedCount int                    `json:"restricted_count"`
		AutoScore       *int                   `json:"auto_score"`
		EvaluatorScore  *int                   `json:"evaluator_score"`
		Current         *engine.PublicQuestion `json:"current_question"`
		Instructions    *service.Instructions  `json:"instructions"`
	} `json:"session"`
	Restricted bool `json:"restricted"`
}

func call(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func decodeSession(t *testing.T, env envelope) sessionBody {
	t.Helper()
	var body sessionBody
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return body
}

func wantError(t *testing.T, step string, status int, env envelope, wantStatus int, wantCode response.ErrCode) {
	t.Helper()
	if status != wantStatus || env.Error == nil || env.Error.Code != wantCode {
		t.Fatalf("%s: status %d error %+v, want %d %s", step, status, env.Error, wantStatus, wantCode)
	}
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestClassifySessionError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
		{service.ErrSessionExpired, http.StatusGone, response.ErrSessionExpired},
		{fmt.Errorf("restore: %w", engine.ErrUnknownQuestion), http.StatusBadRequest, response.ErrUnknownQuestion},
		{engine.ErrNotAtLastQuestion, http.StatusConflict, response.ErrNotAtLastQuestion},
		{engine.ErrAlreadyLocked, http.StatusConflict, response.ErrAlreadyLocked},
		{service.ErrInvalidEvaluatorCredential, http.StatusForbidden, response.ErrInvalidCredential},
		{errors.New("redis down"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := classifySessionError(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("got %d %s, want %d %s", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestSessionEndpoints(t *testing.T) {
	r := newSessionRouter(newSessionService(t))

	status, env := call(t, r, http.MethodPost, "/sessions", `{"category":"Penggalang"}`)
	if status != http.StatusCreated {
		t.Fatalf("start: status %d error %+v", status, env.Error)
	}
	body := decodeSession(t, env)
	if body.Session.Phase != engine.PhaseInstructions || body.Session.Instructions == nil {
		t.Fatalf("start: %+v", body.Session)
	}
	if body.Session.Instructions.QuestionCount != 2 || body.Session.Instructions.DurationMinutes != 30 {
		t.Errorf("instructions = %+v", body.Session.Instructions)
	}
	base := "/sessions/" + body.Session.SessionID

	status, env = call(t, r, http.MethodGet, base+"/paper", "")
	wantError(t, "paper before confirm", status, env, http.StatusConflict, response.ErrNotInProgress)

	status, env = call(t, r, http.MethodPost, base+"/confirm", "")
	if status != http.StatusOK {
		t.Fatalf("confirm: status %d error %+v", status, env.Error)
	}
	body = decodeSession(t, env)
	if body.Session.Phase != engine.PhaseInProgress || body.Session.Current == nil || body.Session.Current.ID != "q1" {
		t.Fatalf("confirm: %+v", body.Session)
	}

	status, env = call(t, r, http.MethodPost, base+"/confirm", "")
	wantError(t, "second confirm", status, env, http.StatusConflict, response.ErrAlreadyStarted)

	status, env = call(t, r, http.MethodGet, base+"/paper", "")
	if status != http.StatusOK || strings.Contains(string(env.Data), "correct_answer") {
		t.Fatalf("paper: status %d data %s", status, env.Data)
	}

	status, env = call(t, r, http.MethodPut, base+"/answers/q1", `{"answer":"Baden-Powell"}`)
	wantError(t, "text answer", status, env, http.StatusBadRequest, response.ErrValidation)

	status, env = call(t, r, http.MethodPut, base+"/answers/q1", `{"answer":true}`)
	wantError(t, "boolean for single choice", status, env, http.StatusBadRequest, response.ErrInvalidAnswer)

	status, env = call(t, r, http.MethodPut, base+"/answers/q9", `{"answer":1}`)
	wantError(t, "unknown question", status, env, http.StatusBadRequest, response.ErrUnknownQuestion)

	if status, env = call(t, r, http.MethodPut, base+"/answers/q1", `{"answer":1}`); status != http.StatusOK {
		t.Fatalf("answer q1: status %d error %+v", status, env.Error)
	}

	status, env = call(t, r, http.MethodPost, base+"/submit", "")
	wantError(t, "submit from first question", status, env, http.StatusConflict, response.ErrNotAtLastQuestion)

	status, env = call(t, r, http.MethodPost, base+"/integrity/key", `{"key":"c","ctrl":true}`)
	if status != http.StatusOK {
		t.Fatalf("key: status %d error %+v", status, env.Error)
	}
	if body = decodeSession(t, env); !body.Restricted || body.Session.RestrictedCount != 1 {
		t.Errorf("ctrl+c: restricted %v count %d", body.Restricted, body.Session.RestrictedCount)
	}

	status, env = call(t, r, http.MethodPost, base+"/integrity/restricted", `{"action":"screenshot"}`)
	wantError(t, "unknown restricted action", status, env, http.StatusBadRequest, response.ErrValidation)

	if status, env = call(t, r, http.MethodPost, base+"/integrity/focus-lost", ""); status != http.StatusOK {
		t.Fatalf("focus lost: status %d error %+v", status, env.Error)
	}
	if body = decodeSession(t, env); body.Session.InfractionCount != 1 {
		t.Errorf("infractions = %d, want 1", body.Session.InfractionCount)
	}

	call(t, r, http.MethodPost, base+"/next", "")
	call(t, r, http.MethodPut, base+"/answers/q2", `{"answer":true}`)

	status, env = call(t, r, http.MethodPost, base+"/submit", "")
	if status != http.StatusOK {
		t.Fatalf("submit: status %d error %+v", status, env.Error)
	}
	body = decodeSession(t, env)
	if body.Session.Phase != engine.PhaseAwaitingEvaluation || body.Session.Outcome != engine.PhaseCompletedManual {
		t.Fatalf("submit: %+v", body.Session)
	}
	if body.Session.AutoScore == nil || *body.Session.AutoScore != 100 {
		t.Errorf("auto score = %v, want 100", body.Session.AutoScore)
	}

	evaluations := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"missing score", `{"credential":"kak-leader"}`, http.StatusBadRequest, response.ErrValidation},
		{"score out of range", `{"score":101,"credential":"kak-leader"}`, http.StatusBadRequest, response.ErrScoreOutOfRange},
		{"missing credential", `{"score":80}`, http.StatusBadRequest, response.ErrCredentialRequired},
		{"wrong credential", `{"score":80,"credential":"guess"}`, http.StatusForbidden, response.ErrInvalidCredential},
	}
	for _, ev := range evaluations {
		status, env = call(t, r, http.MethodPost, base+"/evaluation", ev.body)
		wantError(t, ev.name, status, env, ev.wantStatus, ev.wantCode)
	}

	status, env = call(t, r, http.MethodPost, base+"/evaluation", `{"score":85,"credential":"kak-leader"}`)
	if status != http.StatusOK {
		t.Fatalf("evaluate: status %d error %+v", status, env.Error)
	}
	if body = decodeSession(t, env); body.Session.Phase != engine.PhaseLocked {
		t.Fatalf("evaluate: phase %s", body.Session.Phase)
	}

	status, env = call(t, r, http.MethodPost, base+"/evaluation", `{"score":90,"credential":"kak-leader"}`)
	wantError(t, "second evaluation", status, env, http.StatusConflict, response.ErrAlreadyLocked)

	status, env = call(t, r, http.MethodGet, base, "")
	if status != http.StatusOK {
		t.Fatalf("locked state: status %d error %+v", status, env.Error)
	}
	if body = decodeSession(t, env); body.Session.Phase != engine.PhaseLocked || body.Session.AutoScore != nil {
		t.Errorf("locked view leaks scores or phase: %+v", body.Session)
	}

	status, env = call(t, r, http.MethodGet, "/sessions/current", "")
	wantError(t, "current after lock", status, env, http.StatusNotFound, response.ErrSessionNotFound)
}

func TestSessionEndpointsRejectBadInput(t *testing.T) {
	r := newSessionRouter(newSessionService(t))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"malformed id", http.MethodGet, "/sessions/not-a-uuid", "", http.StatusBadRequest, response.ErrInvalidID},
		{"unknown attempt", http.MethodGet, "/sessions/" + uuid.NewString(), "", http.StatusNotFound, response.ErrSessionNotFound},
		{"invalid category", http.MethodPost, "/sessions", `{"category":"../etc"}`, http.StatusBadRequest, response.ErrValidation},
		{"unconfigured category", http.MethodPost, "/sessions", `{"category":"Pandega"}`, http.StatusNotFound, response.ErrExamNotConfigured},
		{"no current attempt", http.MethodGet, "/sessions/current", "", http.StatusNotFound, response.ErrSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := call(t, r, tt.method, tt.path, tt.body)
			wantError(t, tt.name, status, env, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestSessionStream(t *testing.T) {
	svc := newSessionService(t)
	view, err := svc.Start(context.Background(), testTaker, "Penggalang")
	if err != nil {
		t.Fatal(err)
	}

	h := NewWSHandler(svc, zerolog.Nop(), nil)
	r := gin.New()
	r.GET("/stream/:id", asTaker, h.SessionStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream/" + view.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	type frame struct {
		Event ws.Event        `json:"event"`
		Data  json.RawMessage `json:"data"`
		Code  string          `json:"code"`
	}
	read := func(want ws.Event) frame {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				t.Fatalf("waiting for %s: %v", want, err)
			}
			if f.Event == want {
				return f
			}
		}
	}

	read(ws.EventState)

	conn.WriteJSON(ws.RequestPayload{Action: ws.ActionPing})
	read(ws.EventPong)

	conn.WriteJSON(ws.RequestPayload{Action: ws.ActionNext})
	if f := read(ws.EventError); f.Code != string(response.ErrNotInProgress) {
		t.Errorf("next before confirm: code %s", f.Code)
	}

	if _, err := svc.Confirm(context.Background(), testTaker, view.SessionID); err != nil {
		t.Fatal(err)
	}
	read(ws.EventStarted)

	conn.WriteJSON(ws.RequestPayload{Action: ws.ActionFocusLost})
	read(ws.EventWarning)

	conn.WriteJSON(ws.RequestPayload{Action: "teleport"})
	if f := read(ws.EventError); f.Code != string(response.ErrInvalidPayload) {
		t.Errorf("unknown action: code %s", f.Code)
	}
}

func TestStreamRejectsForeignAttempt(t *testing.T) {
	svc := newSessionService(t)
	h := NewWSHandler(svc, zerolog.Nop(), nil)
	r := gin.New()
	r.GET("/stream/:id", asTaker, h.SessionStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream/" + uuid.NewString()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var f ws.ErrorResponse
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Event != ws.EventError || f.Code != string(response.ErrSessionNotFound) {
		t.Errorf("frame = %+v", f)
	}
}

func TestBuildUpgraderOrigins(t *testing.T) {
	up := buildUpgrader([]string{"https://ujian.pramuka.id"})
	tests := map[string]bool{
		"https://ujian.pramuka.id": true,
		"HTTPS://UJIAN.PRAMUKA.ID": true,
		"https://evil.example":     false,
		"":                         false,
	}
	for origin, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		if got := up.CheckOrigin(req); got != want {
			t.Errorf("origin %q: got %v, want %v", origin, got, want)
		}
	}

	open := buildUpgrader(nil)
	if !open.CheckOrigin(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("empty allow list must admit every origin")
	}
}

func TestCategoryParamValidation(t *testing.T) {
	h := NewMonitorHandler(nil, nil, zerolog.Nop())
	r := gin.New()
	r.GET("/monitor/:category", h.GetSnapshot)

	status, env := call(t, r, http.MethodGet, "/monitor/%3Cscript%3E", "")
	wantError(t, "bad category", status, env, http.StatusBadRequest, response.ErrValidation)
}

func TestListResultsRejectsBadFilters(t *testing.T) {
	h := NewResultHandler(nil)
	r := gin.New()
	r.GET("/results", h.ListResults)
	r.GET("/results/:id", h.GetResult)

	status, env := call(t, r, http.MethodGet, "/results?status=finished", "")
	wantError(t, "bad status", status, env, http.StatusBadRequest, response.ErrValidation)

	status, env = call(t, r, http.MethodGet, "/results?taker_id=abc", "")
	wantError(t, "bad taker", status, env, http.StatusBadRequest, response.ErrInvalidID)

	status, env = call(t, r, http.MethodGet, "/results/42", "")
	wantError(t, "bad id", status, env, http.StatusBadRequest, response.ErrInvalidID)
}

func TestLoginValidation(t *testing.T) {
	h := NewAuthHandler(nil, zerolog.Nop())
	r := gin.New()
	r.POST("/login", h.Login)

	status, env := call(t, r, http.MethodPost, "/login", `{"email":"not-an-email","password":"x"}`)
	wantError(t, "invalid login body", status, env, http.StatusBadRequest, response.ErrValidation)
	if env.Error.Fields["email"] == "" || env.Error.Fields["password"] == "" {
		t.Errorf("fields = %v", env.Error.Fields)
	}
}
