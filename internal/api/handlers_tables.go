// handlers_tables.go - Decoded table handlers
package api

import (
	"bytes"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/auth"
	"github.com/sheetflow/backend/internal/export"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
)

const MimeMsgpack = "application/msgpack"

// TableHandlerImpl implements the TableHandler interface
type TableHandlerImpl struct {
	store storage.Store
}

// NewTableHandler creates a new table handler instance
func NewTableHandler(store storage.Store) TableHandler {
	return &TableHandlerImpl{store: store}
}

// HandleListTables returns the caller's tables annotated with the name and
// status of their source file.
func (h *TableHandlerImpl) HandleListTables(c echo.Context) error {
	tables, err := h.store.ListDataTablesByUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return NewInternalError("failed to fetch tables", err)
	}
	return c.JSON(http.StatusOK, tables)
}

// HandleGetTable returns a table as JSON, or as msgpack when the client
// accepts application/msgpack.
func (h *TableHandlerImpl) HandleGetTable(c echo.Context) error {
	table, err := ownedTable(c, h.store, c.Param("id"))
	if err != nil {
		return err
	}

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MimeMsgpack) {
		data, err := encodeMsgpack(table)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, MimeMsgpack, data)
	}
	return c.JSON(http.StatusOK, table)
}

type updateTableRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

// HandleUpdateTable changes a table's name, description or active flag.
func (h *TableHandlerImpl) HandleUpdateTable(c echo.Context) error {
	id := c.Param("id")
	if _, err := ownedTable(c, h.store, id); err != nil {
		return err
	}

	var req updateTableRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Name == nil && req.Description == nil && req.IsActive == nil {
		return NewBadRequestError("no fields to update", nil)
	}

	table, err := h.store.UpdateDataTable(c.Request().Context(), id, models.TableUpdate{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		return storeError(err, "table", id, "failed to update table")
	}
	return c.JSON(http.StatusOK, table)
}

// HandleExportTable downloads a table as csv or xlsx (the default).
func (h *TableHandlerImpl) HandleExportTable(c echo.Context) error {
	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return NewFieldError("format", "must be one of: csv, xlsx")
	}

	table, err := ownedTable(c, h.store, c.Param("id"))
	if err != nil {
		return err
	}

	data, err := export.Render(format, table.Rows())
	if err != nil {
		return NewInternalError("failed to export table", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, attachmentHeader(table.Name+"."+format.Extension()))
	return c.Blob(http.StatusOK, format.ContentType(), data)
}

// ownedTable loads a table and checks that its file belongs to the caller.
// Tables of other users are reported as not found.
func ownedTable(c echo.Context, store storage.Store, id string) (*models.DataTable, error) {
	ctx := c.Request().Context()
	table, err := store.GetDataTable(ctx, id)
	if err != nil {
		return nil, storeError(err, "table", id, "failed to fetch table")
	}
	file, err := store.GetDataFile(ctx, table.FileID)
	if err != nil {
		return nil, storeError(err, "table", id, "failed to fetch table")
	}
	if file.UserID != auth.UserID(c) {
		return nil, NewNotFoundError("table", id)
	}
	return table, nil
}

// encodeMsgpack encodes v using its json field names.
func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// attachmentHeader builds a Content-Disposition value with filename quoted
// (or RFC 2231 encoded for non-ASCII names).
func attachmentHeader(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
