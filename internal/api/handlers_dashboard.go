package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/auth"
	"github.com/sheetflow/backend/internal/metrics"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/storage"
)

// activityLimit is the length of the dashboard activity feed.
const activityLimit = 10

type DashboardHandlerImpl struct {
	store      storage.Store
	aggregator *metrics.Aggregator
}

func NewDashboardHandler(store storage.Store, aggregator *metrics.Aggregator) DashboardHandler {
	return &DashboardHandlerImpl{store: store, aggregator: aggregator}
}

// HandleMetrics returns the caller's dashboard metrics, computed on each call.
func (h *DashboardHandlerImpl) HandleMetrics(c echo.Context) error {
	m, err := h.aggregator.ForUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return NewInternalError("failed to fetch metrics", err)
	}
	return c.JSON(http.StatusOK, m)
}

// HandleActivity returns the caller's most recent uploads, newest first.
func (h *DashboardHandlerImpl) HandleActivity(c echo.Context) error {
	files, err := h.store.ListDataFilesByUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return NewInternalError("failed to fetch activity", err)
	}
	if len(files) > activityLimit {
		files = files[:activityLimit]
	}

	items := make([]models.ActivityItem, 0, len(files))
	for _, f := range files {
		items = append(items, models.ActivityItem{
			ID:          f.ID,
			Filename:    f.OriginalName,
			Status:      f.Status,
			Timestamp:   f.UploadedAt,
			RecordCount: f.RecordCount,
		})
	}
	return c.JSON(http.StatusOK, items)
}
