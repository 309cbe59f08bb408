// routes.go - Route registration helpers
package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/auth"
	"github.com/sheetflow/backend/internal/metrics"
	"github.com/sheetflow/backend/internal/report"
	"github.com/sheetflow/backend/internal/session"
	"github.com/sheetflow/backend/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store         storage.Store
	Uploads       *storage.LocalStore
	Reports       *storage.LocalStore
	Queue         IngestionQueue
	Authenticator *auth.Authenticator
	Tokens        *auth.Tokens
	Sessions      *session.Manager
	Log           *zap.Logger
	Version       string

	// AllowedOrigins are the cross-site origins the status feed accepts.
	// Empty means same-origin only; "*" accepts any.
	AllowedOrigins []string

	MaxUploadBytes      int64
	StatusPollInterval  time.Duration
	StatusStreamTimeout time.Duration
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Auth      AuthHandler
	Dashboard DashboardHandler
	Files     FileHandler
	Tables    TableHandler
	Reports   ReportHandler
	Socket    StatusSocketHandler

	requireAuth echo.MiddlewareFunc
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Store, deps.Version),
		Auth:      NewAuthHandler(deps.Store, deps.Authenticator, deps.Tokens, deps.Sessions, log),
		Dashboard: NewDashboardHandler(deps.Store, metrics.NewAggregator(deps.Store)),
		Files: NewFileHandler(deps.Store, deps.Uploads, deps.Queue, log, FileOptions{
			MaxUploadBytes: deps.MaxUploadBytes,
			PollInterval:   deps.StatusPollInterval,
			StreamTimeout:  deps.StatusStreamTimeout,
		}),
		Tables:  NewTableHandler(deps.Store),
		Reports: NewReportHandler(deps.Store, deps.Reports, report.NewGenerator(deps.Reports), log),
		Socket:  NewStatusSocket(deps.Store, deps.StatusPollInterval, deps.AllowedOrigins, log),

		requireAuth: auth.RequireAuth(deps.Tokens, deps.Sessions),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	// Public routes
	api.GET("/health", handlers.Health.HandleHealth)
	api.POST("/auth/login", handlers.Auth.HandleLogin)
	api.POST("/auth/logout", handlers.Auth.HandleLogout)

	protected := e.Group("/api", handlers.requireAuth)
	protected.GET("/auth/user", handlers.Auth.HandleGetUser)

	protected.GET("/dashboard/metrics", handlers.Dashboard.HandleMetrics)
	protected.GET("/dashboard/activity", handlers.Dashboard.HandleActivity)

	protected.POST("/files/upload", handlers.Files.HandleUploadFile)
	protected.GET("/files", handlers.Files.HandleListFiles)
	protected.GET("/files/:id", handlers.Files.HandleGetFile)
	protected.GET("/files/:id/status", handlers.Files.HandleFileStatus)
	protected.GET("/files/:id/events", handlers.Files.HandleFileStatusStream)
	protected.GET("/files/:id/tables", handlers.Files.HandleFileTables)
	protected.GET("/ws", handlers.Socket.HandleWebSocket)

	protected.GET("/tables", handlers.Tables.HandleListTables)
	protected.GET("/tables/:id", handlers.Tables.HandleGetTable)
	protected.PATCH("/tables/:id", handlers.Tables.HandleUpdateTable)
	protected.GET("/tables/:id/export", handlers.Tables.HandleExportTable)

	protected.POST("/reports", handlers.Reports.HandleCreateReport)
	protected.GET("/reports", handlers.Reports.HandleListReports)
	protected.GET("/reports/:id", handlers.Reports.HandleGetReport)
	protected.GET("/reports/:id/download", handlers.Reports.HandleDownloadReport)
}

// SetupMiddleware installs the error handler and request validator.
func SetupMiddleware(e *echo.Echo, log *zap.Logger, exposeDetails bool) {
	e.HTTPErrorHandler = ErrorHandler(log, exposeDetails)
	e.Validator = NewRequestValidator()
}
