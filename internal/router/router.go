package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/handler"
	"github.com/scoutexam/exam-backend/internal/middleware"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/response"
	"github.com/scoutexam/exam-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Session   *handler.SessionHandler
	WS        *handler.WSHandler
	Question  *handler.QuestionHandler
	Setting   *handler.SettingHandler
	Result    *handler.ResultHandler
	Export    *handler.ExportHandler
	User      *handler.UserHandler
	Dashboard *handler.DashboardHandler
	Monitor   *handler.MonitorHandler
	System    *handler.SystemHandler
}

// Limiters groups the rate limiters; their cleanup loops run in main.
type Limiters struct {
	Login      *middleware.RateLimiter
	Evaluation *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiters *Limiters,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", limiters.Login.Middleware(), handlers.Auth.Login)

		authenticated := middleware.RequireRole(authService)
		auth.GET("/me", authenticated, handlers.Auth.Me)
		auth.POST("/logout", authenticated, handlers.Auth.Logout)
	}

	// ─── 2. Exam Taker Group (JWT + Single Device) ─────────────────────
	examAPI := router.Group("/api/v1/exam")
	examAPI.Use(
		middleware.RequireRole(authService, model.RoleStudent),
		middleware.CheckSingleDeviceSession(authService),
		middleware.NoStore(),
	)
	{
		examAPI.GET("/categories/:category", handlers.Setting.GetSettings)

		sessions := examAPI.Group("/sessions")
		sessions.POST("", handlers.Session.StartSession)
		sessions.GET("/current", handlers.Session.CurrentSession)
		sessions.GET("/:id", handlers.Session.GetSession)
		sessions.GET("/:id/paper", handlers.Session.GetPaper)
		sessions.POST("/:id/confirm", handlers.Session.ConfirmInstructions)
		sessions.PUT("/:id/answers/:question_id", handlers.Session.SaveAnswer)
		sessions.POST("/:id/next", handlers.Session.NextQuestion)
		sessions.POST("/:id/previous", handlers.Session.PreviousQuestion)
		sessions.POST("/:id/submit", handlers.Session.SubmitSession)
		sessions.POST("/:id/integrity/focus-lost", handlers.Session.ReportFocusLost)
		sessions.POST("/:id/integrity/restricted", handlers.Session.ReportRestricted)
		sessions.POST("/:id/integrity/key", handlers.Session.ReportKey)
		sessions.POST("/:id/evaluation", limiters.Evaluation.Middleware(), handlers.Session.EvaluateSession)
	}

	// ─── 3. WebSocket Group (Taker WS Auth) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService, model.RoleStudent))
	{
		ws.GET("/exam/sessions/:id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Staff Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireRole(authService, model.RoleAdmin, model.RoleLeader))
	{
		// Dashboard and audit log
		adminAPI.GET("/dashboard",
			middleware.RequirePermission(model.PermissionDashboardRead),
			handlers.Dashboard.GetDashboardData,
		)
		adminAPI.GET("/audit-logs",
			middleware.RequirePermission(model.PermissionAuditRead),
			handlers.Dashboard.ListAuditLogs,
		)

		// System Monitoring
		adminAPI.GET("/system/metrics",
			middleware.RequirePermission(model.PermissionSystemRead),
			handlers.System.SystemMetricsSSE,
		)

		// User management
		adminAPI.GET("/users",
			middleware.RequirePermission(model.PermissionUsersRead),
			handlers.User.ListUsers,
		)
		adminAPI.GET("/users/export",
			middleware.RequirePermission(model.PermissionUsersRead),
			handlers.Export.ExportUsers,
		)
		adminAPI.POST("/users",
			middleware.RequirePermission(model.PermissionUsersWrite),
			handlers.User.CreateUser,
		)
		adminAPI.DELETE("/users",
			middleware.RequirePermission(model.PermissionUsersWrite),
			handlers.User.DeleteUsers,
		)
		adminAPI.PUT("/users/:id/password",
			middleware.RequirePermission(model.PermissionUsersWrite),
			handlers.User.ResetPassword,
		)

		// Question bank
		adminAPI.GET("/questions",
			middleware.RequirePermission(model.PermissionQuestionsRead),
			handlers.Question.ListQuestions,
		)
		adminAPI.GET("/questions/counts",
			middleware.RequirePermission(model.PermissionQuestionsRead),
			handlers.Question.CountQuestions,
		)
		adminAPI.POST("/questions",
			middleware.RequirePermission(model.PermissionQuestionsWrite),
			handlers.Question.AddQuestion,
		)
		adminAPI.DELETE("/questions",
			middleware.RequirePermission(model.PermissionQuestionsWrite),
			handlers.Question.DeleteQuestions,
		)

		// Exam settings per category
		adminAPI.GET("/settings",
			middleware.RequirePermission(model.PermissionSettingsRead),
			handlers.Setting.ListSettings,
		)
		adminAPI.PUT("/settings/:category",
			middleware.RequirePermission(model.PermissionSettingsWrite),
			handlers.Setting.UpsertSettings,
		)

		// Results
		adminAPI.GET("/results",
			middleware.RequirePermission(model.PermissionResultsRead),
			handlers.Result.ListResults,
		)
		adminAPI.GET("/results/export",
			middleware.RequirePermission(model.PermissionResultsRead),
			handlers.Export.ExportResults,
		)
		adminAPI.GET("/results/:id",
			middleware.RequirePermission(model.PermissionResultsRead),
			handlers.Result.GetResult,
		)

		// Live monitor
		adminAPI.GET("/monitor/:category",
			middleware.RequirePermission(model.PermissionMonitorRead),
			handlers.Monitor.GetSnapshot,
		)
		adminAPI.GET("/monitor/:category/stream",
			middleware.RequirePermission(model.PermissionMonitorRead),
			handlers.Monitor.MonitorCategorySSE,
		)
	}

	return router
}
