package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
)

type errMapping struct {
	err    error
	status int
	code   response.ErrCode
}

// sessionErrors maps engine and session service errors to API codes. Order
// matters only where one error wraps another.
var sessionErrors = []errMapping{
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrSessionExpired, http.StatusGone, response.ErrSessionExpired},
	{service.ErrActiveSessionExists, http.StatusConflict, response.ErrActiveSessionExists},
	{service.ErrRetakeNotAllowed, http.StatusConflict, response.ErrRetakeNotAllowed},
	{service.ErrUnknownRestricted, http.StatusBadRequest, response.ErrValidation},
	{service.ErrExamNotConfigured, http.StatusNotFound, response.ErrExamNotConfigured},
	{service.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
	{service.ErrInvalidEvaluatorCredential, http.StatusForbidden, response.ErrInvalidCredential},

	{engine.ErrNotStarted, http.StatusConflict, response.ErrAlreadyStarted},
	{engine.ErrNotInProgress, http.StatusConflict, response.ErrNotInProgress},
	{engine.ErrUnknownQuestion, http.StatusBadRequest, response.ErrUnknownQuestion},
	{engine.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
	{engine.ErrNotAtLastQuestion, http.StatusConflict, response.ErrNotAtLastQuestion},
	{engine.ErrNotAwaiting, http.StatusConflict, response.ErrNotAwaitingEvaluation},
	{engine.ErrScoreOutOfRange, http.StatusBadRequest, response.ErrScoreOutOfRange},
	{engine.ErrCredentialRequired, http.StatusBadRequest, response.ErrCredentialRequired},
	{engine.ErrAlreadyLocked, http.StatusConflict, response.ErrAlreadyLocked},
	{engine.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
}

// classifySessionError returns the status and code for err. Unknown errors
// are internal.
func classifySessionError(err error) (int, response.ErrCode) {
	for _, m := range sessionErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failSession writes the envelope for a session error.
func failSession(c *gin.Context, err error) {
	status, code := classifySessionError(err)
	response.Fail(c, status, code)
}
