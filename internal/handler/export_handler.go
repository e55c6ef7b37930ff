package handler

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/export"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/response"
)

// AttemptExporter lists every attempt matching a filter.
type AttemptExporter interface {
	Export(ctx context.Context, filter model.AttemptFilter) ([]model.Attempt, error)
}

// UserExporter lists every account matching a filter.
type UserExporter interface {
	Export(ctx context.Context, filter model.UserFilter) ([]model.User, error)
}

// ExportHandler serves spreadsheet downloads of results and accounts.
type ExportHandler struct {
	results AttemptExporter
	users   UserExporter
	now     func() time.Time
	log     zerolog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(results AttemptExporter, users UserExporter, log zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		results: results,
		users:   users,
		now:     time.Now,
		log:     logger.Component(log, "export_handler"),
	}
}

// ExportResults godoc
// GET /api/v1/admin/results/export?category=&status=&taker_id=&format=csv|xlsx
func (h *ExportHandler) ExportResults(c *gin.Context) {
	format, ok := exportFormat(c)
	if !ok {
		return
	}
	filter, ok := attemptFilter(c)
	if !ok {
		return
	}

	attempts, err := h.results.Export(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Failed to export results")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	h.send(c, format, "exam_results", export.Attempts(attempts))
}

// ExportUsers godoc
// GET /api/v1/admin/users/export?role=&search=&format=csv|xlsx
func (h *ExportHandler) ExportUsers(c *gin.Context) {
	format, ok := exportFormat(c)
	if !ok {
		return
	}
	filter, ok := userFilter(c)
	if !ok {
		return
	}

	users, err := h.users.Export(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Failed to export users")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	h.send(c, format, "users", export.Users(users))
}

// send renders the whole file before the first byte goes out so a render
// failure still gets a JSON error.
func (h *ExportHandler) send(c *gin.Context, format export.Format, base string, table *export.Table) {
	var buf bytes.Buffer
	if err := export.Write(&buf, format, table); err != nil {
		h.log.Error().Err(err).Str("format", string(format)).Msg("Failed to render export")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	filename := format.Filename(base, h.now().UTC())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())

	h.log.Info().
		Str("request_id", response.RequestID(c)).
		Str("file", filename).
		Int("rows", len(table.Rows)).
		Msg("Export served")
}

func exportFormat(c *gin.Context) (export.Format, bool) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"format": err.Error(),
		})
		return "", false
	}
	return format, true
}
