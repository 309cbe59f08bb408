// handlers_reports.go - Report handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/auth"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/report"
	"github.com/sheetflow/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ReportHandlerImpl implements the ReportHandler interface
type ReportHandlerImpl struct {
	store     storage.Store
	outputs   *storage.LocalStore
	generator *report.Generator
	log       *zap.Logger
}

// NewReportHandler creates a new report handler instance
func NewReportHandler(store storage.Store, outputs *storage.LocalStore, generator *report.Generator, log *zap.Logger) ReportHandler {
	return &ReportHandlerImpl{
		store:     store,
		outputs:   outputs,
		generator: generator,
		log:       log,
	}
}

type createReportRequest struct {
	TableID     string          `json:"tableId" validate:"required"`
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description"`
	ReportType  string          `json:"reportType" validate:"required,oneof=summary detailed custom"`
	Config      json.RawMessage `json:"config" validate:"required"`
	Format      string          `json:"format" validate:"required,oneof=pdf excel csv"`
}

// HandleCreateReport renders a report over one of the caller's tables,
// stores the output and records it.
func (h *ReportHandlerImpl) HandleCreateReport(c echo.Context) error {
	var req createReportRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := report.ParseConfig(req.Config); err != nil {
		return NewFieldError("config", err.Error())
	}

	table, err := ownedTable(c, h.store, req.TableID)
	if err != nil {
		return err
	}

	rep := &models.Report{
		ID:          uuid.New().String(),
		UserID:      auth.UserID(c),
		TableID:     table.ID,
		Name:        req.Name,
		Description: req.Description,
		ReportType:  models.ReportType(req.ReportType),
		Config:      datatypes.JSON(req.Config),
		Format:      models.ReportFormat(req.Format),
	}
	if err := h.generator.Generate(rep, table); err != nil {
		if errors.Is(err, report.ErrInvalidConfig) {
			return NewFieldError("config", err.Error())
		}
		return NewInternalError("failed to generate report", err)
	}

	if err := h.store.CreateReport(c.Request().Context(), rep); err != nil {
		if derr := h.outputs.Delete(*rep.FilePath); derr != nil {
			h.log.Warn("removing orphaned report output", zap.String("object", *rep.FilePath), zap.Error(derr))
		}
		return storeError(err, "table", req.TableID, "failed to create report")
	}

	h.log.Info("report generated",
		zap.String("report_id", rep.ID),
		zap.String("table_id", rep.TableID),
		zap.String("format", string(rep.Format)),
	)
	return c.JSON(http.StatusCreated, rep)
}

// HandleListReports returns the caller's reports.
func (h *ReportHandlerImpl) HandleListReports(c echo.Context) error {
	reports, err := h.store.ListReportsByUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return NewInternalError("failed to fetch reports", err)
	}
	return c.JSON(http.StatusOK, reports)
}

// HandleGetReport returns a single report record.
func (h *ReportHandlerImpl) HandleGetReport(c echo.Context) error {
	rep, err := h.ownedReport(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

// HandleDownloadReport serves the rendered output of a report.
func (h *ReportHandlerImpl) HandleDownloadReport(c echo.Context) error {
	rep, err := h.ownedReport(c)
	if err != nil {
		return err
	}
	if rep.FilePath == nil {
		return NewNotFoundError("report output", rep.ID)
	}

	path, err := h.outputs.Path(*rep.FilePath)
	if err != nil {
		return storeError(err, "report output", rep.ID, "failed to open report output")
	}

	c.Response().Header().Set(echo.HeaderContentType, report.ContentType(rep.Format))
	return c.Attachment(path, fmt.Sprintf("%s.%s", rep.Name, rep.Format.Extension()))
}

// ownedReport loads the :id report. Reports of other users are reported
// as not found.
func (h *ReportHandlerImpl) ownedReport(c echo.Context) (*models.Report, error) {
	id := c.Param("id")
	rep, err := h.store.GetReport(c.Request().Context(), id)
	if err != nil {
		return nil, storeError(err, "report", id, "failed to fetch report")
	}
	if rep.UserID != auth.UserID(c) {
		return nil, NewNotFoundError("report", id)
	}
	return rep, nil
}
