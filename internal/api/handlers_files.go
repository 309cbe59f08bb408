// handlers_files.go - Upload and file status handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/auth"
	"github.com/sheetflow/backend/internal/export"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/sheetflow/backend/internal/upload"
	"go.uber.org/zap"
)

const (
	MimeXLSX = export.ContentTypeXLSX
	MimeXLS  = "application/vnd.ms-excel"
	MimeCSV  = export.ContentTypeCSV

	DefaultMaxUploadBytes = 10 << 20
)

var allowedMimeTypes = map[string]bool{
	MimeXLSX: true,
	MimeXLS:  true,
	MimeCSV:  true,
}

// FileOptions tunes the upload and status endpoints. Zero values select
// the defaults.
type FileOptions struct {
	MaxUploadBytes int64
	PollInterval   time.Duration
	StreamTimeout  time.Duration
}

func (o FileOptions) withDefaults() FileOptions {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = 2 * time.Minute
	}
	return o
}

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store   storage.Store
	uploads *storage.LocalStore
	queue   IngestionQueue
	log     *zap.Logger
	opts    FileOptions
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store, uploads *storage.LocalStore, queue IngestionQueue, log *zap.Logger, opts FileOptions) FileHandler {
	return &FileHandlerImpl{
		store:   store,
		uploads: uploads,
		queue:   queue,
		log:     log,
		opts:    opts.withDefaults(),
	}
}

// HandleUploadFile accepts a multipart spreadsheet upload, records it as
// pending and queues it for ingestion. The response does not wait for
// ingestion.
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return NewPayloadTooLargeError(h.opts.MaxUploadBytes)
		}
		return NewFieldError("file", "No file uploaded")
	}
	if fh.Size > h.opts.MaxUploadBytes {
		return NewPayloadTooLargeError(h.opts.MaxUploadBytes)
	}

	mimeType := detectedMime(fh.Header.Get(echo.HeaderContentType))
	if !allowedMimeTypes[mimeType] {
		return NewFieldError("file", "Invalid file type. Only Excel and CSV files are allowed.")
	}

	src, err := fh.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.opts.MaxUploadBytes+1))
	if err != nil {
		return NewInternalError("failed to read uploaded file", err)
	}
	if int64(len(data)) > h.opts.MaxUploadBytes {
		return NewPayloadTooLargeError(h.opts.MaxUploadBytes)
	}

	originalName := filepath.Base(fh.Filename)
	obj, err := h.uploads.SaveBytes(filepath.Ext(originalName), data)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	file := &models.DataFile{
		ID:           uuid.New().String(),
		UserID:       auth.UserID(c),
		Filename:     obj.Name,
		OriginalName: originalName,
		FileSize:     int64(len(data)),
		MimeType:     mimeType,
		UploadedAt:   time.Now().UTC(),
		Status:       models.FileStatusPending,
	}
	if err := h.store.CreateDataFile(c.Request().Context(), file); err != nil {
		if derr := h.uploads.Delete(obj.Name); derr != nil {
			h.log.Warn("removing orphaned upload", zap.String("object", obj.Name), zap.Error(derr))
		}
		return storeError(err, "user", file.UserID, "failed to upload file")
	}

	h.queue.Submit(upload.Task{FileID: file.ID, MimeType: mimeType, Data: data})

	h.log.Info("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("user_id", file.UserID),
		zap.String("name", originalName),
		zap.Int64("size", file.FileSize),
	)
	return c.JSON(http.StatusCreated, file)
}

// HandleListFiles returns the caller's files, newest first.
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	files, err := h.store.ListDataFilesByUser(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns a single file record.
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	file, err := h.ownedFile(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, file)
}

// HandleFileStatus returns {status, recordCount, errorMessage} exactly as
// stored.
func (h *FileHandlerImpl) HandleFileStatus(c echo.Context) error {
	file, err := h.ownedFile(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, file.StatusView())
}

// HandleFileStatusStream streams the file status via SSE until it is
// terminal, the client goes away or the stream times out.
func (h *FileHandlerImpl) HandleFileStatusStream(c echo.Context) error {
	file, err := h.ownedFile(c)
	if err != nil {
		return err
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sendSSEData(c, file.StatusView())
	if file.Status.IsTerminal() {
		return nil
	}

	ctx := c.Request().Context()
	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(h.opts.StreamTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			file, err := h.store.GetDataFile(ctx, file.ID)
			if err != nil {
				sendSSEError(c, "file not found")
				return nil
			}
			sendSSEData(c, file.StatusView())
			if file.Status.IsTerminal() {
				return nil
			}

		case <-timeout.C:
			sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

// HandleFileTables lists the tables decoded from a file.
func (h *FileHandlerImpl) HandleFileTables(c echo.Context) error {
	file, err := h.ownedFile(c)
	if err != nil {
		return err
	}
	tables, err := h.store.ListDataTablesByFile(c.Request().Context(), file.ID)
	if err != nil {
		return NewInternalError("failed to list tables", err)
	}
	return c.JSON(http.StatusOK, tables)
}

// ownedFile loads the :id file. Files of other users are reported as not
// found.
func (h *FileHandlerImpl) ownedFile(c echo.Context) (*models.DataFile, error) {
	id := c.Param("id")
	file, err := h.store.GetDataFile(c.Request().Context(), id)
	if err != nil {
		return nil, storeError(err, "file", id, "failed to fetch file")
	}
	if file.UserID != auth.UserID(c) {
		return nil, NewNotFoundError("file", id)
	}
	return file, nil
}

// detectedMime strips parameters from a Content-Type header value.
func detectedMime(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

func sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func sendSSEError(c echo.Context, message string) {
	sendSSEData(c, map[string]string{"error": message})
}
