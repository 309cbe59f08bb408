// mock_storage.go - Fault-injecting store wrapper for testing
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/storage"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected storage failure")

// FaultyStore wraps a storage.Store and fails selected calls on demand.
type FaultyStore struct {
	storage.Store

	mu            sync.Mutex
	tablesAllowed int // -1 means unlimited
	tableErr      error
	statusErrs    map[models.FileStatus]error
	listErr       error
	tablesCreated int
}

// NewFaultyStore wraps inner with no faults armed.
func NewFaultyStore(inner storage.Store) *FaultyStore {
	return &FaultyStore{
		Store:         inner,
		tablesAllowed: -1,
		statusErrs:    make(map[models.FileStatus]error),
	}
}

// FailTablesAfter lets n table inserts succeed and fails the rest with err.
func (f *FaultyStore) FailTablesAfter(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tablesAllowed = n
	f.tableErr = orInjected(err)
}

// FailStatus fails every status update to status with err.
func (f *FaultyStore) FailStatus(status models.FileStatus, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErrs[status] = orInjected(err)
}

// FailLists fails every per-user listing with err.
func (f *FaultyStore) FailLists(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = orInjected(err)
}

// TablesCreated returns how many table inserts reached the inner store.
func (f *FaultyStore) TablesCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tablesCreated
}

func (f *FaultyStore) CreateDataTable(ctx context.Context, table *models.DataTable) error {
	f.mu.Lock()
	if f.tablesAllowed >= 0 && f.tablesCreated >= f.tablesAllowed {
		err := f.tableErr
		f.mu.Unlock()
		return err
	}
	f.tablesCreated++
	f.mu.Unlock()
	return f.Store.CreateDataTable(ctx, table)
}

func (f *FaultyStore) UpdateDataFileStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.DataFile, error) {
	f.mu.Lock()
	err := f.statusErrs[upd.Status]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.UpdateDataFileStatus(ctx, id, upd)
}

func (f *FaultyStore) ListDataFilesByUser(ctx context.Context, userID string) ([]models.DataFile, error) {
	if err := f.lists(); err != nil {
		return nil, err
	}
	return f.Store.ListDataFilesByUser(ctx, userID)
}

func (f *FaultyStore) ListDataTablesByUser(ctx context.Context, userID string) ([]models.TableListing, error) {
	if err := f.lists(); err != nil {
		return nil, err
	}
	return f.Store.ListDataTablesByUser(ctx, userID)
}

func (f *FaultyStore) ListReportsByUser(ctx context.Context, userID string) ([]models.Report, error) {
	if err := f.lists(); err != nil {
		return nil, err
	}
	return f.Store.ListReportsByUser(ctx, userID)
}

func (f *FaultyStore) lists() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listErr
}

func orInjected(err error) error {
	if err == nil {
		return ErrInjected
	}
	return err
}

var _ storage.Store = (*FaultyStore)(nil)
