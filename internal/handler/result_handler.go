package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
)

// ResultHandler serves attempt results.
type ResultHandler struct {
	resultService *service.ResultService
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(resultService *service.ResultService) *ResultHandler {
	return &ResultHandler{resultService: resultService}
}

// ListResults godoc
// GET /api/v1/admin/results?category=&status=&taker_id=&page=&per_page=
// Lists attempts with statistics over the whole filter.
func (h *ResultHandler) ListResults(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	filter, ok := attemptFilter(c)
	if !ok {
		return
	}

	result, pagination, err := h.resultService.List(c.Request.Context(), filter, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, result, pagination)
}

// GetResult godoc
// GET /api/v1/admin/results/:id
func (h *ResultHandler) GetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.resultService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":          attempt,
		"duration_minutes": attempt.DurationMinutes(),
	})
}

// attemptFilter reads the results listing filters. On a bad value it writes
// the failure response and returns false.
func attemptFilter(c *gin.Context) (model.AttemptFilter, bool) {
	var filter model.AttemptFilter
	if v := c.Query("category"); v != "" {
		filter.Category = &v
	}
	if v := c.Query("status"); v != "" {
		status := model.AttemptStatus(v)
		switch status {
		case model.AttemptStatusInProgress, model.AttemptStatusAwaiting, model.AttemptStatusLocked:
			filter.Status = &status
		default:
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"status": "status must be one of in_progress awaiting_evaluation locked",
			})
			return filter, false
		}
	}
	if v := c.Query("taker_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return filter, false
		}
		filter.TakerID = &id
	}
	return filter, true
}
