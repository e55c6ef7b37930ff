package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/database"
	"github.com/scoutexam/exam-backend/internal/handler"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/middleware"
	"github.com/scoutexam/exam-backend/internal/repository"
	"github.com/scoutexam/exam-backend/internal/router"
	"github.com/scoutexam/exam-backend/internal/service"
	"github.com/scoutexam/exam-backend/internal/validator"
	"github.com/scoutexam/exam-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("focus_loss_threshold", cfg.Exam.FocusLossThreshold).
		Msg("Starting ScoutExam Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	settingRepo := repository.NewExamSettingRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	dashboardRepo := repository.NewDashboardRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	auditService := service.NewAuditService(auditRepo, log)
	authService := service.NewAuthService(cfg, rdb, userRepo)
	examService := service.NewExamService(settingRepo, questionRepo, rdb, auditService, log)
	questionService := service.NewQuestionService(questionRepo, auditService)
	userService := service.NewUserService(userRepo, authService, auditService)
	resultService := service.NewResultService(attemptRepo)
	dashboardService := service.NewDashboardService(dashboardRepo)
	monitorService := service.NewMonitorService(monitorRepo)

	sessionService := service.NewSessionService(
		cfg.Exam,
		examService,
		authService,
		attemptRepo,
		service.NewSessionCache(rdb, cfg.Exam.CheckpointTTL),
		service.NewHub(),
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(authService, log),
		Session:   handler.NewSessionHandler(sessionService, log),
		WS:        handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Question:  handler.NewQuestionHandler(questionService, log),
		Setting:   handler.NewSettingHandler(examService),
		Result:    handler.NewResultHandler(resultService),
		Export:    handler.NewExportHandler(resultService, userService, log),
		User:      handler.NewUserHandler(userService, log),
		Dashboard: handler.NewDashboardHandler(dashboardService, auditService),
		Monitor:   handler.NewMonitorHandler(rdb, monitorService, log),
		System:    handler.NewSystemHandler(pool, rdb, sessionService.Live, log),
	}

	// Login: 30 requests per minute per IP. Evaluation: 10 per minute per taker.
	limiters := &router.Limiters{
		Login:      middleware.NewRateLimiter(30, time.Minute),
		Evaluation: middleware.NewRateLimiter(10, time.Minute, middleware.KeyByUser()),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	attemptWorker := worker.NewAttemptWorker(pool, rdb, log)
	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	infractionWorker := worker.NewInfractionWorker(pool, rdb, log)

	for _, start := range []func(context.Context){
		attemptWorker.Start,
		answerWorker.Start,
		infractionWorker.Start,
	} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}

	go limiters.Login.RunCleanup(workerCtx)
	go limiters.Evaluation.RunCleanup(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Category settings are cached before accepting traffic so the first
	// wave of starts does not stampede PostgreSQL.
	if err := examService.PrewarmSettings(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiters, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop session runners. Each writes its final checkpoint and
	// enqueues its last updates before the workers drain.
	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sessionCancel()

	if err := sessionService.Shutdown(sessionCtx); err != nil {
		log.Error().Err(err).Int("live", sessionService.Live()).Msg("Session runners did not stop in time")
	}

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
