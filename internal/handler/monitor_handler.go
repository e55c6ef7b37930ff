package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
	"github.com/scoutexam/exam-backend/internal/validator"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler serves the leaders' live view of a category.
type MonitorHandler struct {
	rdb            *redis.Client
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		monitorService: monitorService,
		log:            logger.Component(log, "monitor_handler"),
	}
}

func categoryParam(c *gin.Context) (string, bool) {
	category := c.Param("category")
	if !validator.ValidCategory(category) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"category": "category is not valid",
		})
		return "", false
	}
	return category, true
}

// GetSnapshot godoc
// GET /api/v1/monitor/:category
// Returns every unlocked attempt of the category once.
func (h *MonitorHandler) GetSnapshot(c *gin.Context) {
	category, ok := categoryParam(c)
	if !ok {
		return
	}

	snap, err := h.monitorService.Snapshot(c.Request.Context(), category)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Str("category", category).Msg("Failed to build monitor snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"monitor": snap})
}

// MonitorCategorySSE godoc
// GET /api/v1/monitor/:category/stream
// Sends a snapshot, then relays session events as they are published and
// a fresh snapshot every refresh interval while takers are active.
func (h *MonitorHandler) MonitorCategorySSE(c *gin.Context) {
	category, ok := categoryParam(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	active := h.sendSnapshot(c, reqCtx, "snapshot", category)

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(category))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("category", category).Msg("Leader attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("category", category).Msg("Leader disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward them untouched.
			writeSSEData(c, []byte(msg.Payload))
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			active = h.sendSnapshot(c, reqCtx, "refresh", category)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

// sendSnapshot writes a snapshot event and reports whether the category has
// unlocked attempts.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, kind, category string) bool {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.Snapshot(ctx, category)
	if err != nil {
		h.log.Warn().Err(err).Str("category", category).Msg("Failed to fetch monitor snapshot")
		// Keep refreshing; the next tick may succeed.
		return true
	}

	c.SSEvent("message", gin.H{"type": kind, "data": snap})
	c.Writer.Flush()
	return snap.TotalActive > 0
}

func writeSSEData(c *gin.Context, data []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
