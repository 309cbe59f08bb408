// Package metrics computes dashboard statistics over a user's files and
// reports. Every call reads the store; nothing is cached.
package metrics

import (
	"context"
	"fmt"

	"github.com/sheetflow/backend/internal/models"
)

// Source is the subset of the store the aggregator reads from.
type Source interface {
	ListDataFilesByUser(ctx context.Context, userID string) ([]models.DataFile, error)
	ListReportsByUser(ctx context.Context, userID string) ([]models.Report, error)
}

// Aggregator computes metrics on demand.
type Aggregator struct {
	src Source
}

// NewAggregator creates an aggregator reading from src.
func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// ForUser returns the metrics for userID.
func (a *Aggregator) ForUser(ctx context.Context, userID string) (models.Metrics, error) {
	files, err := a.src.ListDataFilesByUser(ctx, userID)
	if err != nil {
		return models.Metrics{}, fmt.Errorf("listing files: %w", err)
	}
	reports, err := a.src.ListReportsByUser(ctx, userID)
	if err != nil {
		return models.Metrics{}, fmt.Errorf("listing reports: %w", err)
	}
	return Compute(files, len(reports)), nil
}

// Compute derives the metrics from a user's files and report count.
// Percentages are in [0, 100] and are not rounded.
func Compute(files []models.DataFile, reportCount int) models.Metrics {
	m := models.Metrics{
		TotalFiles:       len(files),
		ReportsGenerated: reportCount,
	}

	var completed, failed int
	var totalTime float64
	for _, f := range files {
		m.TotalRecords += f.RecordCount
		switch f.Status {
		case models.FileStatusCompleted:
			completed++
			if f.ProcessingTime != nil {
				totalTime += *f.ProcessingTime
			}
		case models.FileStatusError:
			failed++
		}
	}

	if completed > 0 {
		m.AvgProcessingTime = totalTime / float64(completed)
	}
	if m.TotalFiles > 0 {
		m.SuccessRate = float64(completed) / float64(m.TotalFiles) * 100
		m.ErrorRate = float64(failed) / float64(m.TotalFiles) * 100
	}
	return m
}
