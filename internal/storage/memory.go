package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheetflow/backend/internal/models"
)

// MemoryStore implements Store with in-process maps. Records are copied on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*models.User
	files   map[string]*models.DataFile
	tables  map[string]*models.DataTable
	reports map[string]*models.Report
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*models.User),
		files:   make(map[string]*models.DataFile),
		tables:  make(map[string]*models.DataTable),
		reports: make(map[string]*models.Report),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (s *MemoryStore) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	for id, u := range s.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return nil, fmt.Errorf("email %s: %w", user.Email, ErrConflict)
		}
	}

	now := s.now()
	cp := *user
	if existing, ok := s.users[user.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.users[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *MemoryStore) GetDataFile(ctx context.Context, id string) (*models.DataFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("data file %s: %w", id, ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

// ListDataFilesByUser returns the user's files, newest first.
func (s *MemoryStore) ListDataFilesByUser(ctx context.Context, userID string) ([]models.DataFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.DataFile, 0)
	for _, f := range s.files {
		if f.UserID == userID {
			list = append(list, *f)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})
	return list, nil
}

func (s *MemoryStore) CreateDataFile(ctx context.Context, file *models.DataFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[file.UserID]; !ok {
		return fmt.Errorf("owner %s: %w", file.UserID, ErrNotFound)
	}
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if _, ok := s.files[file.ID]; ok {
		return fmt.Errorf("data file %s: %w", file.ID, ErrConflict)
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = s.now()
	}
	if file.Status == "" {
		file.Status = models.FileStatusPending
	}
	cp := *file
	s.files[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateDataFileStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.DataFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("data file %s: %w", id, ErrNotFound)
	}
	if !f.Status.CanTransitionTo(upd.Status) {
		return nil, fmt.Errorf("data file %s %s -> %s: %w", id, f.Status, upd.Status, ErrInvalidTransition)
	}
	applyStatusUpdate(f, upd, s.now())
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) GetDataTable(ctx context.Context, id string) (*models.DataTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[id]
	if !ok {
		return nil, fmt.Errorf("data table %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListDataTablesByFile(ctx context.Context, fileID string) ([]models.DataTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.DataTable, 0)
	for _, t := range s.tables {
		if t.FileID == fileID {
			list = append(list, *t)
		}
	}
	sortTables(list)
	return list, nil
}

func (s *MemoryStore) ListDataTablesByUser(ctx context.Context, userID string) ([]models.TableListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make([]models.DataTable, 0)
	for _, t := range s.tables {
		if f, ok := s.files[t.FileID]; ok && f.UserID == userID {
			tables = append(tables, *t)
		}
	}
	sortTables(tables)

	list := make([]models.TableListing, 0, len(tables))
	for _, t := range tables {
		f := s.files[t.FileID]
		list = append(list, models.TableListing{
			DataTable:  t,
			FileName:   f.OriginalName,
			FileStatus: string(f.Status),
		})
	}
	return list, nil
}

func (s *MemoryStore) CreateDataTable(ctx context.Context, table *models.DataTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[table.FileID]; !ok {
		return fmt.Errorf("data file %s: %w", table.FileID, ErrNotFound)
	}
	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	now := s.now()
	if table.CreatedAt.IsZero() {
		table.CreatedAt = now
	}
	table.UpdatedAt = table.CreatedAt
	cp := *table
	s.tables[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateDataTable(ctx context.Context, id string, upd models.TableUpdate) (*models.DataTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[id]
	if !ok {
		return nil, fmt.Errorf("data table %s: %w", id, ErrNotFound)
	}
	applyTableUpdate(t, upd, s.now())
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// ListReportsByUser returns the user's reports, newest first.
func (s *MemoryStore) ListReportsByUser(ctx context.Context, userID string) ([]models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.Report, 0)
	for _, r := range s.reports {
		if r.UserID == userID {
			list = append(list, *r)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].GeneratedAt.After(list[j].GeneratedAt)
	})
	return list, nil
}

func (s *MemoryStore) CreateReport(ctx context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[report.UserID]; !ok {
		return fmt.Errorf("owner %s: %w", report.UserID, ErrNotFound)
	}
	if _, ok := s.tables[report.TableID]; !ok {
		return fmt.Errorf("data table %s: %w", report.TableID, ErrNotFound)
	}
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.now()
	}
	cp := *report
	s.reports[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// sortTables orders tables by creation time, then id, the same order the
// gorm store queries with.
func sortTables(list []models.DataTable) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

var _ Store = (*MemoryStore)(nil)
