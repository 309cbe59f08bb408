// Package report renders stored reports from table data.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sheetflow/backend/internal/export"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/storage"
)

// DefaultSummaryLimit caps summary reports that do not set a limit.
const DefaultSummaryLimit = 20

// ErrInvalidConfig is returned when a report config cannot be applied.
var ErrInvalidConfig = errors.New("invalid report config")

// Config is the recognised part of a report's config object. Other keys
// are stored but ignored.
type Config struct {
	Columns []string `json:"columns,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
}

// ParseConfig decodes and checks a config object. null and empty input
// mean no options.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return cfg, nil
	}
	if raw[0] != '{' {
		return cfg, fmt.Errorf("%w: must be an object", ErrInvalidConfig)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Limit != nil && *cfg.Limit <= 0 {
		return cfg, fmt.Errorf("%w: limit must be positive", ErrInvalidConfig)
	}
	for _, c := range cfg.Columns {
		if c == "" {
			return cfg, fmt.Errorf("%w: empty column name", ErrInvalidConfig)
		}
	}
	return cfg, nil
}

// Project returns the header row followed by the data rows selected by cfg.
func Project(t *models.DataTable, typ models.ReportType, cfg Config) ([][]any, error) {
	idx := make([]int, 0, len(t.Headers))
	if len(cfg.Columns) == 0 {
		for i := range t.Headers {
			idx = append(idx, i)
		}
	} else {
		pos := make(map[string]int, len(t.Headers))
		for i, h := range t.Headers {
			if _, dup := pos[h]; !dup {
				pos[h] = i
			}
		}
		for _, c := range cfg.Columns {
			i, ok := pos[c]
			if !ok {
				return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidConfig, c)
			}
			idx = append(idx, i)
		}
	}

	limit := len(t.Data)
	if cfg.Limit != nil {
		limit = *cfg.Limit
	} else if typ == models.ReportTypeSummary {
		limit = DefaultSummaryLimit
	}
	if limit > len(t.Data) {
		limit = len(t.Data)
	}

	rows := make([][]any, 0, limit+1)
	header := make([]any, len(idx))
	for j, i := range idx {
		header[j] = t.Headers[i]
	}
	rows = append(rows, header)

	for _, src := range t.Data[:limit] {
		row := make([]any, len(idx))
		for j, i := range idx {
			if i < len(src) {
				row[j] = src[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ObjectStore persists rendered output.
type ObjectStore interface {
	SaveBytes(ext string, data []byte) (*storage.StoredObject, error)
}

// Generator renders reports and writes them to an ObjectStore.
type Generator struct {
	objects ObjectStore
	now     func() time.Time
}

func NewGenerator(objects ObjectStore) *Generator {
	return &Generator{objects: objects, now: time.Now}
}

// Generate renders r over table t, stores the output and sets r.FilePath
// and r.GeneratedAt. r is not persisted.
func (g *Generator) Generate(r *models.Report, t *models.DataTable) error {
	cfg, err := ParseConfig(r.Config)
	if err != nil {
		return err
	}
	rows, err := Project(t, r.ReportType, cfg)
	if err != nil {
		return err
	}

	r.GeneratedAt = g.now().UTC()
	data, err := Render(r, len(t.Data), rows)
	if err != nil {
		return fmt.Errorf("rendering %s report: %w", r.Format, err)
	}

	obj, err := g.objects.SaveBytes(r.Format.Extension(), data)
	if err != nil {
		return fmt.Errorf("storing report output: %w", err)
	}
	r.FilePath = &obj.Name
	return nil
}

// Render encodes rows in the report's format. total is the row count of
// the source table.
func Render(r *models.Report, total int, rows [][]any) ([]byte, error) {
	switch r.Format {
	case models.ReportFormatCSV:
		return export.CSV(rows), nil
	case models.ReportFormatExcel:
		return export.XLSX(rows)
	case models.ReportFormatPDF:
		return renderPDF(r, total, rows)
	}
	return nil, fmt.Errorf("unsupported report format %q", r.Format)
}

// ContentType returns the MIME type of a rendered report.
func ContentType(f models.ReportFormat) string {
	switch f {
	case models.ReportFormatCSV:
		return export.ContentTypeCSV
	case models.ReportFormatExcel:
		return export.ContentTypeXLSX
	default:
		return "application/pdf"
	}
}
