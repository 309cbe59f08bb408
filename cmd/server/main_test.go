package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// recorder notes the order in which components are stopped.
type recorder struct {
	calls []string
}

type fakeComponent struct {
	name string
	rec  *recorder
	err  error
}

func (f *fakeComponent) Shutdown(ctx context.Context) error {
	f.rec.calls = append(f.rec.calls, f.name)
	return f.err
}

func (f *fakeComponent) Close() error {
	f.rec.calls = append(f.rec.calls, f.name)
	return f.err
}

func TestShutdown(t *testing.T) {
	deadline := errors.New("waiting for ingestion workers: context deadline exceeded")

	tests := []struct {
		name         string
		httpErr      error
		ingestionErr error
		wantCalls    []string
		wantErr      []string
	}{
		{
			name:      "clean stop closes the store last",
			wantCalls: []string{"http", "ingestion", "store"},
		},
		{
			name:      "http error still stops workers and store",
			httpErr:   errors.New("listener busy"),
			wantCalls: []string{"http", "ingestion", "store"},
			wantErr:   []string{"http shutdown"},
		},
		{
			name:         "workers still running keep the store open",
			ingestionErr: deadline,
			wantCalls:    []string{"http", "ingestion"},
			wantErr:      []string{"ingestion shutdown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			httpServer := &fakeComponent{name: "http", rec: rec, err: tt.httpErr}
			ingestion := &fakeComponent{name: "ingestion", rec: rec, err: tt.ingestionErr}
			store := &fakeComponent{name: "store", rec: rec}

			err := shutdown(context.Background(), zap.NewNop(), httpServer, ingestion, store)

			assert.Equal(t, tt.wantCalls, rec.calls)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, msg := range tt.wantErr {
				assert.ErrorContains(t, err, msg)
			}
		})
	}
}
