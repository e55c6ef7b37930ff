package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/response"
)

const (
	metricsInterval = 7 * time.Second
	healthTimeout   = 2 * time.Second
)

// SystemHandler reports process health and streams host, runtime and
// persistence queue metrics via SSE.
type SystemHandler struct {
	pool         *pgxpool.Pool
	rdb          *redis.Client
	liveSessions func() int
	startTime    time.Time
	log          zerolog.Logger

	// Last /proc/stat sample; shared by every connected dashboard.
	cpuMu   sync.Mutex
	prevCPU cpuSample
}

// NewSystemHandler creates a new SystemHandler. liveSessions reports how
// many exam sessions this process is running.
func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, liveSessions func() int, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		pool:         pool,
		rdb:          rdb,
		liveSessions: liveSessions,
		startTime:    time.Now(),
		log:          logger.Component(log, "system_handler"),
	}
	h.prevCPU, _ = readCPU()
	return h
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := gin.H{"postgres": "ok", "redis": "ok"}
	healthy := true
	if err := h.pool.Ping(ctx); err != nil {
		status["postgres"] = err.Error()
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		h.log.Warn().Interface("status", status).Msg("Health check failed")
		response.FailWithData(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable, gin.H{"status": status})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": status, "uptime": formatDuration(time.Since(h.startTime))})
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Host
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	MemPercent     float64 `json:"mem_percent"`
	DiskUsedBytes  uint64  `json:"disk_used_bytes"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`
	DiskPercent    float64 `json:"disk_percent"`
	LoadAvg1       float64 `json:"load_avg_1"`
	LoadAvg5       float64 `json:"load_avg_5"`
	LoadAvg15      float64 `json:"load_avg_15"`

	// Go runtime
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Exam sessions
	LiveSessions     int   `json:"live_sessions"`
	QueueAttempts    int64 `json:"queue_attempts"`
	QueueAnswers     int64 `json:"queue_answers"`
	QueueInfractions int64 `json:"queue_infractions"`
}

// SystemMetricsSSE godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	ctx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	log := h.log.With().Str("request_id", response.RequestID(c)).Logger()
	log.Info().Msg("System metrics stream opened")
	defer func() { log.Info().Msg("System metrics stream closed") }()

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		data, err := json.Marshal(h.collect(ctx))
		if err == nil {
			writeSSEData(c, data)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}

	if sample, err := readCPU(); err == nil {
		h.cpuMu.Lock()
		if pct, ok := sample.busyPercent(h.prevCPU); ok {
			m.CPUPercent = pct
			h.prevCPU = sample
		}
		h.cpuMu.Unlock()
	}

	if total, avail, err := readMemory(); err == nil {
		m.MemTotalBytes = total
		m.MemUsedBytes = total - avail
		m.MemPercent = float64(m.MemUsedBytes) / float64(total) * 100
	}

	if used, total, err := diskUsage("/"); err == nil && total > 0 {
		m.DiskUsedBytes = used
		m.DiskTotalBytes = total
		m.DiskPercent = float64(used) / float64(total) * 100
	}

	if load, err := readLoad(); err == nil {
		m.LoadAvg1, m.LoadAvg5, m.LoadAvg15 = load[0], load[1], load[2]
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.NumGC = ms.NumGC

	if h.liveSessions != nil {
		m.LiveSessions = h.liveSessions()
	}

	pipe := h.rdb.Pipeline()
	attempts := pipe.LLen(ctx, config.WorkerKey.PersistAttemptsQueue)
	answers := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	infractions := pipe.LLen(ctx, config.WorkerKey.PersistInfractionsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueAttempts = attempts.Val()
		m.QueueAnswers = answers.Val()
		m.QueueInfractions = infractions.Val()
	}

	return m
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	default:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}
