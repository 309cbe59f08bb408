package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/sheetflow/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seconds(v float64) *float64 { return &v }

type fakeSource struct {
	files   []models.DataFile
	reports []models.Report
	err     error
}

func (f *fakeSource) ListDataFilesByUser(ctx context.Context, userID string) ([]models.DataFile, error) {
	return f.files, f.err
}

func (f *fakeSource) ListReportsByUser(ctx context.Context, userID string) ([]models.Report, error) {
	return f.reports, nil
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		files   []models.DataFile
		reports int
		want    models.Metrics
	}{
		{
			name: "no files",
			want: models.Metrics{},
		},
		{
			name: "two completed and one error",
			files: []models.DataFile{
				{Status: models.FileStatusCompleted, ProcessingTime: seconds(1.0), RecordCount: 10},
				{Status: models.FileStatusCompleted, ProcessingTime: seconds(3.0), RecordCount: 20},
				{Status: models.FileStatusError},
			},
			reports: 4,
			want: models.Metrics{
				TotalFiles:        3,
				TotalRecords:      30,
				ReportsGenerated:  4,
				AvgProcessingTime: 2.0,
				SuccessRate:       200.0 / 3,
				ErrorRate:         100.0 / 3,
			},
		},
		{
			name: "in-flight files count toward totals only",
			files: []models.DataFile{
				{Status: models.FileStatusPending},
				{Status: models.FileStatusProcessing},
				{Status: models.FileStatusCompleted, ProcessingTime: seconds(0.5), RecordCount: 7},
				{Status: models.FileStatusCompleted, ProcessingTime: seconds(1.5), RecordCount: 3},
			},
			want: models.Metrics{
				TotalFiles:        4,
				TotalRecords:      10,
				AvgProcessingTime: 1.0,
				SuccessRate:       50,
				ErrorRate:         0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.files, tt.reports)
			assert.Equal(t, tt.want.TotalFiles, got.TotalFiles)
			assert.Equal(t, tt.want.TotalRecords, got.TotalRecords)
			assert.Equal(t, tt.want.ReportsGenerated, got.ReportsGenerated)
			assert.InDelta(t, tt.want.AvgProcessingTime, got.AvgProcessingTime, 1e-9)
			assert.InDelta(t, tt.want.SuccessRate, got.SuccessRate, 1e-9)
			assert.InDelta(t, tt.want.ErrorRate, got.ErrorRate, 1e-9)
		})
	}
}

func TestCompute_RatesStayInRange(t *testing.T) {
	files := []models.DataFile{
		{Status: models.FileStatusError},
		{Status: models.FileStatusError},
	}
	got := Compute(files, 0)
	assert.Equal(t, 100.0, got.ErrorRate)
	assert.Equal(t, 0.0, got.SuccessRate)
	assert.Equal(t, 0.0, got.AvgProcessingTime)
}

func TestAggregator_ForUser(t *testing.T) {
	src := &fakeSource{
		files: []models.DataFile{
			{Status: models.FileStatusCompleted, ProcessingTime: seconds(2), RecordCount: 5},
		},
		reports: []models.Report{{ID: "r1"}, {ID: "r2"}},
	}

	got, err := NewAggregator(src).ForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalFiles)
	assert.Equal(t, 5, got.TotalRecords)
	assert.Equal(t, 2, got.ReportsGenerated)
	assert.Equal(t, 100.0, got.SuccessRate)
}

func TestAggregator_PropagatesStoreErrors(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}

	_, err := NewAggregator(src).ForUser(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing files")
}
