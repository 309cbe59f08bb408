package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sheetflow/backend/internal/models"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when a status update does not follow
	// pending -> processing -> {completed | error}.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when a unique attribute is already taken.
	ErrConflict = errors.New("record already exists")
)

// Store defines the interface for record storage. Two implementations
// exist: GormStore (postgres or sqlite) and MemoryStore.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)

	GetDataFile(ctx context.Context, id string) (*models.DataFile, error)
	ListDataFilesByUser(ctx context.Context, userID string) ([]models.DataFile, error)
	CreateDataFile(ctx context.Context, file *models.DataFile) error
	UpdateDataFileStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.DataFile, error)

	GetDataTable(ctx context.Context, id string) (*models.DataTable, error)
	ListDataTablesByFile(ctx context.Context, fileID string) ([]models.DataTable, error)
	ListDataTablesByUser(ctx context.Context, userID string) ([]models.TableListing, error)
	CreateDataTable(ctx context.Context, table *models.DataTable) error
	UpdateDataTable(ctx context.Context, id string, upd models.TableUpdate) (*models.DataTable, error)

	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListReportsByUser(ctx context.Context, userID string) ([]models.Report, error)
	CreateReport(ctx context.Context, report *models.Report) error

	Ping(ctx context.Context) error
	Close() error
}

// applyStatusUpdate mutates f according to upd. processedAt is stamped when
// the file reaches a terminal status.
func applyStatusUpdate(f *models.DataFile, upd models.StatusUpdate, now time.Time) {
	f.Status = upd.Status
	if upd.Status.IsTerminal() {
		f.ProcessedAt = &now
	}
	if upd.ProcessingTime != nil {
		v := *upd.ProcessingTime
		f.ProcessingTime = &v
	}
	if upd.RecordCount != nil {
		f.RecordCount = *upd.RecordCount
	}
	if upd.ErrorMessage != nil {
		v := *upd.ErrorMessage
		f.ErrorMessage = &v
	}
}

// statusColumns is applyStatusUpdate expressed as a column map.
func statusColumns(upd models.StatusUpdate, now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"status": upd.Status}
	if upd.Status.IsTerminal() {
		cols["processed_at"] = now
	}
	if upd.ProcessingTime != nil {
		cols["processing_time"] = *upd.ProcessingTime
	}
	if upd.RecordCount != nil {
		cols["record_count"] = *upd.RecordCount
	}
	if upd.ErrorMessage != nil {
		cols["error_message"] = *upd.ErrorMessage
	}
	return cols
}

func applyTableUpdate(t *models.DataTable, upd models.TableUpdate, now time.Time) {
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.IsActive != nil {
		t.IsActive = *upd.IsActive
	}
	t.UpdatedAt = now
}

func tableColumns(upd models.TableUpdate, now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": now}
	if upd.Name != nil {
		cols["name"] = *upd.Name
	}
	if upd.Description != nil {
		cols["description"] = *upd.Description
	}
	if upd.IsActive != nil {
		cols["is_active"] = *upd.IsActive
	}
	return cols
}
