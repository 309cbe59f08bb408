package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sheetflow/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// GormStore implements Store on a relational database.
type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// OpenGorm connects to the database identified by driver and dsn.
func OpenGorm(driver, dsn string, log *zap.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting sql handle: %w", err)
		}
		// sqlite allows one writer; pipeline workers write concurrently.
		sqlDB.SetMaxOpenConns(1)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &GormStore{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Migrate creates or updates the schema for every model.
func (s *GormStore) Migrate() error {
	var errs []error
	for _, m := range []interface{}{&models.User{}, &models.DataFile{}, &models.DataTable{}, &models.Report{}} {
		if err := s.db.AutoMigrate(m); err != nil {
			s.log.Warn("auto-migrate failed", zap.String("model", fmt.Sprintf("%T", m)), zap.Error(err))
			errs = append(errs, fmt.Errorf("migrating %T: %w", m, err))
		}
	}
	return errors.Join(errs...)
}

// translate maps driver errors onto the package sentinels.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s references a missing record: %w", what, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "user "+id)
	}
	return &u, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "LOWER(email) = LOWER(?)", email).Error; err != nil {
		return nil, translate(err, "user "+email)
	}
	return &u, nil
}

// UpsertUser inserts the user or, when the id exists, overwrites its
// profile fields.
func (s *GormStore) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.UpdatedAt = s.now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "first_name", "last_name", "profile_image_url", "password_hash", "updated_at",
		}),
	}).Create(user).Error
	if err != nil {
		return nil, translate(err, "upserting user "+user.Email)
	}
	return s.GetUser(ctx, user.ID)
}

func (s *GormStore) GetDataFile(ctx context.Context, id string) (*models.DataFile, error) {
	var f models.DataFile
	if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, translate(err, "data file "+id)
	}
	return &f, nil
}

func (s *GormStore) ListDataFilesByUser(ctx context.Context, userID string) ([]models.DataFile, error) {
	list := make([]models.DataFile, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, translate(err, "listing data files")
	}
	return list, nil
}

func (s *GormStore) CreateDataFile(ctx context.Context, file *models.DataFile) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = s.now()
	}
	if file.Status == "" {
		file.Status = models.FileStatusPending
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(file).Error
	return translate(err, "creating data file")
}

// UpdateDataFileStatus applies upd if the stored status allows the move.
// The update is conditioned on the status that was read, so two racing
// writers cannot both advance the same file.
func (s *GormStore) UpdateDataFileStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.DataFile, error) {
	var out models.DataFile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.DataFile
		if err := tx.First(&cur, "id = ?", id).Error; err != nil {
			return translate(err, "data file "+id)
		}
		if !cur.Status.CanTransitionTo(upd.Status) {
			return fmt.Errorf("data file %s %s -> %s: %w", id, cur.Status, upd.Status, ErrInvalidTransition)
		}

		res := tx.Model(&models.DataFile{}).
			Where("id = ? AND status = ?", id, cur.Status).
			Updates(statusColumns(upd, s.now()))
		if res.Error != nil {
			return translate(res.Error, "updating data file "+id)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("data file %s changed concurrently: %w", id, ErrInvalidTransition)
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GormStore) GetDataTable(ctx context.Context, id string) (*models.DataTable, error) {
	var t models.DataTable
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err, "data table "+id)
	}
	return &t, nil
}

func (s *GormStore) ListDataTablesByFile(ctx context.Context, fileID string) ([]models.DataTable, error) {
	list := make([]models.DataTable, 0)
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	if err != nil {
		return nil, translate(err, "listing data tables")
	}
	return list, nil
}

func (s *GormStore) ListDataTablesByUser(ctx context.Context, userID string) ([]models.TableListing, error) {
	files, err := s.ListDataFilesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.TableListing, 0)
	if len(files) == 0 {
		return out, nil
	}

	byID := make(map[string]models.DataFile, len(files))
	ids := make([]string, 0, len(files))
	for _, f := range files {
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}

	var tables []models.DataTable
	err = s.db.WithContext(ctx).
		Where("file_id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&tables).Error
	if err != nil {
		return nil, translate(err, "listing data tables")
	}

	for _, t := range tables {
		f := byID[t.FileID]
		out = append(out, models.TableListing{
			DataTable:  t,
			FileName:   f.OriginalName,
			FileStatus: string(f.Status),
		})
	}
	return out, nil
}

func (s *GormStore) CreateDataTable(ctx context.Context, table *models.DataTable) error {
	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(table).Error
	return translate(err, "creating data table")
}

func (s *GormStore) UpdateDataTable(ctx context.Context, id string, upd models.TableUpdate) (*models.DataTable, error) {
	res := s.db.WithContext(ctx).Model(&models.DataTable{}).
		Where("id = ?", id).
		Updates(tableColumns(upd, s.now()))
	if res.Error != nil {
		return nil, translate(res.Error, "updating data table "+id)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("data table %s: %w", id, ErrNotFound)
	}
	return s.GetDataTable(ctx, id)
}

func (s *GormStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var r models.Report
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err, "report "+id)
	}
	return &r, nil
}

func (s *GormStore) ListReportsByUser(ctx context.Context, userID string) ([]models.Report, error) {
	list := make([]models.Report, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("generated_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, translate(err, "listing reports")
	}
	return list, nil
}

func (s *GormStore) CreateReport(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.now()
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(report).Error
	return translate(err, "creating report")
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*GormStore)(nil)
