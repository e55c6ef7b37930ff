package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/middleware"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
	"github.com/scoutexam/exam-backend/internal/validator"
)

// SessionHandler handles the taker's exam session endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            logger.Component(log, "session_handler"),
	}
}

// sessionTarget extracts the caller and the attempt ID, writing the failure
// response itself when either is missing.
func sessionTarget(c *gin.Context) (int, string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, "", false
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, "", false
	}
	return claims.UserID, id, true
}

func (h *SessionHandler) reply(c *gin.Context, status int, view *service.SessionView, err error) {
	if err != nil {
		status, code := classifySessionError(err)
		if code == response.ErrInternal {
			h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Str("attempt_id", c.Param("id")).Msg("Session command failed")
		}
		response.Fail(c, status, code)
		return
	}
	response.Success(c, status, gin.H{"session": view})
}

// StartSession godoc
// POST /api/v1/exam/sessions
// Opens an attempt in the given category, or resumes the taker's unlocked
// attempt in it. The attempt starts on the instructions screen.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.Start(c.Request.Context(), claims.UserID, req.Category)
	h.reply(c, http.StatusCreated, view, err)
}

// CurrentSession godoc
// GET /api/v1/exam/sessions/current
// Returns the taker's unlocked attempt, if any.
func (h *SessionHandler) CurrentSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.sessionService.Current(c.Request.Context(), claims.UserID)
	h.reply(c, http.StatusOK, view, err)
}

// GetSession godoc
// GET /api/v1/exam/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}
	view, err := h.sessionService.State(c.Request.Context(), takerID, id)
	h.reply(c, http.StatusOK, view, err)
}

// GetPaper godoc
// GET /api/v1/exam/sessions/:id/paper
// Returns every question of the attempt without answer keys.
func (h *SessionHandler) GetPaper(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}
	questions, err := h.sessionService.Paper(c.Request.Context(), takerID, id)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ConfirmInstructions godoc
// POST /api/v1/exam/sessions/:id/confirm
// Leaves the instructions screen and starts the countdown.
func (h *SessionHandler) ConfirmInstructions(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}
	view, err := h.sessionService.Confirm(c.Request.Context(), takerID, id)
	h.reply(c, http.StatusOK, view, err)
}

// SaveAnswer godoc
// PUT /api/v1/exam/sessions/:id/answers/:question_id
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.Answer(c.Request.Context(), takerID, id, c.Param("question_id"), req.Answer)
	h.reply(c, http.StatusOK, view, err)
}

// NextQuestion godoc
// POST /api/v1/exam/sessions/:id/next
func (h *SessionHandler) NextQuestion(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}
	view, err := h.sessionService.Next(c.Request.Context(), takerID, id)
	h.reply(c, http.StatusOK, view, err)
}

// PreviousQuestion godoc
// POST /api/v1/exam/sessions/:id/previous
func (h *SessionHandler) PreviousQuestion(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}
	view, err := h.sessionService.Previous(c.Request.Context(), takerID, id)
	h.reply(c, http.StatusOK, view, err)
}

// SubmitSession godoc
// POST /api/v1/exam/sessions/:id/submit
// Ends the exam from the last question and hands it to the evaluator.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}
	view, err := h.sessionService.Submit(c.Request.Context(), takerID, id)
	h.reply(c, http.StatusOK, view, err)
}

// ReportFocusLost godoc
// POST /api/v1/exam/sessions/:id/integrity/focus-lost
func (h *SessionHandler) ReportFocusLost(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}
	view, err := h.sessionService.FocusLost(c.Request.Context(), takerID, id)
	h.reply(c, http.StatusOK, view, err)
}

// ReportRestricted godoc
// POST /api/v1/exam/sessions/:id/integrity/restricted
// Records a suppressed browser action such as copy or the context menu.
func (h *SessionHandler) ReportRestricted(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.RestrictedActionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.Restricted(c.Request.Context(), takerID, id, req.Action)
	h.reply(c, http.StatusOK, view, err)
}

// ReportKey godoc
// POST /api/v1/exam/sessions/:id/integrity/key
// Classifies a keyboard shortcut. The response tells the client whether to
// suppress it.
func (h *SessionHandler) ReportKey(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.KeyRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, restricted, err := h.sessionService.Key(c.Request.Context(), takerID, id, req.Key, req.Ctrl, req.Shift)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view, "restricted": restricted})
}

// EvaluateSession godoc
// POST /api/v1/exam/sessions/:id/evaluation
// The evaluator enters a score and their credential on the taker's device.
// A successful evaluation locks the attempt for good.
func (h *SessionHandler) EvaluateSession(c *gin.Context) {
	takerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.EvaluateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.Evaluate(c.Request.Context(), takerID, id, *req.Score, req.Credential)
	h.reply(c, http.StatusOK, view, err)
}
