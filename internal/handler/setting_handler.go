package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scoutexam/exam-backend/internal/middleware"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
	"github.com/scoutexam/exam-backend/internal/validator"
)

// SettingHandler handles per-category exam settings.
type SettingHandler struct {
	examService *service.ExamService
}

// NewSettingHandler creates a new SettingHandler.
func NewSettingHandler(examService *service.ExamService) *SettingHandler {
	return &SettingHandler{examService: examService}
}

// ListSettings godoc
// GET /api/v1/admin/settings
func (h *SettingHandler) ListSettings(c *gin.Context) {
	settings, err := h.examService.ListSettings(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if settings == nil {
		settings = []model.ExamSetting{}
	}
	response.Success(c, http.StatusOK, gin.H{"settings": settings})
}

// GetSettings godoc
// GET /api/v1/exam/categories/:category
// Takers read this before starting; it is the instructions screen's source.
func (h *SettingHandler) GetSettings(c *gin.Context) {
	category, ok := categoryParam(c)
	if !ok {
		return
	}

	setting, err := h.examService.GetSettings(c.Request.Context(), category)
	if err != nil {
		if errors.Is(err, service.ErrExamNotConfigured) {
			response.Fail(c, http.StatusNotFound, response.ErrExamNotConfigured)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"setting": setting})
}

// UpsertSettings godoc
// PUT /api/v1/admin/settings/:category
func (h *SettingHandler) UpsertSettings(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	category, ok := categoryParam(c)
	if !ok {
		return
	}

	var req model.UpsertExamSettingRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	setting, err := h.examService.UpsertSettings(c.Request.Context(), claims.UserID, category, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"setting": setting})
}
