package upload

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sheetflow/backend/internal/export"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/parser"
	"go.uber.org/zap"
)

// Store defines the interface needed from the storage layer.
type Store interface {
	UpdateDataFileStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.DataFile, error)
	CreateDataTable(ctx context.Context, table *models.DataTable) error
}

// Decoder turns raw file bytes into sheets. *parser.Registry implements it.
type Decoder interface {
	Decode(mimeType string, data []byte) ([]parser.Sheet, error)
}

// Task is one uploaded file waiting to be ingested. The DataFile must
// already exist in pending status.
type Task struct {
	FileID   string
	MimeType string
	Data     []byte
}

// Result reports how an ingestion run ended.
type Result struct {
	FileID   string            `json:"fileId"`
	Status   models.FileStatus `json:"status"`
	Tables   int               `json:"tables"`
	Records  int               `json:"records"`
	Duration time.Duration     `json:"duration"`
	Err      error             `json:"-"`
}

// Pipeline decodes an uploaded file and stores one table per non-empty
// sheet. Tables written before a failure are kept.
type Pipeline struct {
	store   Store
	decoder Decoder
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewPipeline creates a pipeline. log and metrics may be nil.
func NewPipeline(store Store, decoder Decoder, log *zap.Logger, metrics *Metrics) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pipeline{store: store, decoder: decoder, log: log, metrics: metrics, now: time.Now}
}

// Run ingests one file: processing, decode, tables, then completed or error.
func (p *Pipeline) Run(ctx context.Context, task Task) Result {
	start := p.now()
	log := p.log.With(zap.String("file_id", task.FileID))
	res := Result{FileID: task.FileID}

	if _, err := p.store.UpdateDataFileStatus(ctx, task.FileID, models.StatusUpdate{Status: models.FileStatusProcessing}); err != nil {
		log.Error("cannot mark file processing", zap.Error(err))
		res.Err = fmt.Errorf("marking processing: %w", err)
		p.metrics.observe(res)
		return res
	}
	res.Status = models.FileStatusProcessing
	log.Info("ingestion started", zap.String("mime_type", task.MimeType), zap.Int("bytes", len(task.Data)))

	sheets, err := p.decode(task)
	if err != nil {
		return p.fail(ctx, log, res, err)
	}

	for _, sheet := range sheets {
		if len(sheet.Rows) == 0 {
			log.Debug("skipping empty sheet", zap.String("sheet", sheet.Name))
			continue
		}

		table := newTable(task.FileID, sheet)
		if err := p.store.CreateDataTable(ctx, table); err != nil {
			return p.fail(ctx, log, res, fmt.Errorf("saving sheet %q: %w", sheet.Name, err))
		}
		res.Tables++
		res.Records += table.RecordCount
		p.metrics.Tables.Inc()
	}

	res.Duration = p.now().Sub(start)
	secs := res.Duration.Seconds()
	count := res.Records
	_, err = p.store.UpdateDataFileStatus(ctx, task.FileID, models.StatusUpdate{
		Status:         models.FileStatusCompleted,
		ProcessingTime: &secs,
		RecordCount:    &count,
	})
	if err != nil {
		log.Error("cannot mark file completed", zap.Error(err))
		res.Err = fmt.Errorf("marking completed: %w", err)
		p.metrics.observe(res)
		return res
	}

	res.Status = models.FileStatusCompleted
	log.Info("ingestion completed",
		zap.Int("tables", res.Tables),
		zap.Int("records", res.Records),
		zap.Duration("elapsed", res.Duration))
	p.metrics.observe(res)
	return res
}

// decode runs the decoder, turning a panic into an error.
func (p *Pipeline) decode(task Task) (sheets []parser.Sheet, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("decoder panicked",
				zap.String("file_id", task.FileID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("decoder panicked: %v", r)
		}
	}()
	return p.decoder.Decode(task.MimeType, task.Data)
}

// fail records cause on the file. Record count and duration stay unset.
func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, res Result, cause error) Result {
	msg := cause.Error()
	res.Err = cause
	res.Duration = 0

	if _, err := p.store.UpdateDataFileStatus(ctx, res.FileID, models.StatusUpdate{
		Status:       models.FileStatusError,
		ErrorMessage: &msg,
	}); err != nil {
		log.Error("cannot mark file failed", zap.NamedError("cause", cause), zap.Error(err))
		p.metrics.observe(res)
		return res
	}

	res.Status = models.FileStatusError
	log.Warn("ingestion failed", zap.Error(cause), zap.Int("tables_kept", res.Tables))
	p.metrics.observe(res)
	return res
}

func newTable(fileID string, sheet parser.Sheet) *models.DataTable {
	headers := make([]string, len(sheet.Rows[0]))
	for i, v := range sheet.Rows[0] {
		headers[i] = export.FormatCell(v)
	}

	data := make([][]any, 0, len(sheet.Rows)-1)
	data = append(data, sheet.Rows[1:]...)

	return &models.DataTable{
		FileID:      fileID,
		Name:        sheet.Name,
		Description: "Data from sheet: " + sheet.Name,
		Headers:     headers,
		Data:        data,
		RecordCount: len(data),
		IsActive:    true,
	}
}
