package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/middleware"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
	"github.com/scoutexam/exam-backend/internal/validator"
)

// UserHandler handles account management.
type UserHandler struct {
	userService *service.UserService
	log         zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService, log zerolog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		log:         logger.Component(log, "user_handler"),
	}
}

// ListUsers godoc
// GET /api/v1/admin/users?role=&search=&page=&per_page=
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	filter, ok := userFilter(c)
	if !ok {
		return
	}

	users, pagination, err := h.userService.List(c.Request.Context(), filter, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Failed to list users")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if users == nil {
		users = []model.User{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"users": users}, pagination)
}

// CreateUser godoc
// POST /api/v1/admin/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateUserRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, err := h.userService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			response.Fail(c, http.StatusConflict, response.ErrConflict)
		case errors.Is(err, service.ErrCategoryForbidden):
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"category": "only students carry a category",
			})
		default:
			h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Failed to create user")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user": user})
}

// DeleteUsers godoc
// DELETE /api/v1/admin/users
// Removes one or many accounts. An administrator cannot remove their own.
func (h *UserHandler) DeleteUsers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.DeleteUsersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	deleted, err := h.userService.Delete(c.Request.Context(), claims.UserID, req.IDs)
	if err != nil {
		if errors.Is(err, service.ErrCannotDeleteSelf) {
			response.Fail(c, http.StatusForbidden, response.ErrActionForbidden)
			return
		}
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Failed to delete users")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}

// ResetPassword godoc
// PUT /api/v1/admin/users/:id/password
// Replaces the password and ends the user's current device session.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ResetPasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.userService.ResetPassword(c.Request.Context(), claims.UserID, id, req.Password); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Int("user_id", id).Msg("Failed to reset password")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user_id": id})
}

// userFilter reads the account listing filters. On a bad role it writes the
// failure response and returns false.
func userFilter(c *gin.Context) (model.UserFilter, bool) {
	filter := model.UserFilter{Search: strings.TrimSpace(c.Query("search"))}
	if v := c.Query("role"); v != "" {
		role := model.Role(v)
		if !role.Valid() {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"role": "role must be one of admin leader student",
			})
			return filter, false
		}
		filter.Role = &role
	}
	return filter, true
}
