// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/upload"
)

// AuthHandler handles sign-in and the current user
type AuthHandler interface {
	HandleLogin(c echo.Context) error
	HandleLogout(c echo.Context) error
	HandleGetUser(c echo.Context) error
}

// DashboardHandler serves the dashboard summary
type DashboardHandler interface {
	HandleMetrics(c echo.Context) error
	HandleActivity(c echo.Context) error
}

// FileHandler handles uploads and file status
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleFileStatus(c echo.Context) error
	HandleFileStatusStream(c echo.Context) error
	HandleFileTables(c echo.Context) error
}

// TableHandler handles decoded tables
type TableHandler interface {
	HandleListTables(c echo.Context) error
	HandleGetTable(c echo.Context) error
	HandleUpdateTable(c echo.Context) error
	HandleExportTable(c echo.Context) error
}

// ReportHandler handles stored reports
type ReportHandler interface {
	HandleCreateReport(c echo.Context) error
	HandleListReports(c echo.Context) error
	HandleGetReport(c echo.Context) error
	HandleDownloadReport(c echo.Context) error
}

// StatusSocketHandler pushes file status changes over a WebSocket
type StatusSocketHandler interface {
	HandleWebSocket(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// IngestionQueue accepts ingestion tasks without blocking. upload.Manager
// is the production implementation; tests may substitute their own.
type IngestionQueue interface {
	Submit(task upload.Task) <-chan upload.Result
}
