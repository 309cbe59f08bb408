package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/parser"
	"github.com/sheetflow/backend/internal/storage"
	"github.com/sheetflow/backend/internal/testutil"
	"github.com/sheetflow/backend/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileHandler_HandleUploadFile(t *testing.T) {
	csv := []byte("name,qty\nbolts,4\nnuts,9\n")

	tests := []struct {
		name        string
		filename    string
		contentType string
		content     []byte
		noFile      bool
		wantStatus  int
		wantCode    string
	}{
		{
			name:        "csv upload",
			filename:    "parts.csv",
			contentType: MimeCSV,
			content:     csv,
			wantStatus:  http.StatusCreated,
		},
		{
			name:        "content type parameters are ignored",
			filename:    "parts.csv",
			contentType: "text/csv; charset=utf-8",
			content:     csv,
			wantStatus:  http.StatusCreated,
		},
		{
			name:        "xlsx upload",
			filename:    "book.xlsx",
			contentType: MimeXLSX,
			content:     []byte("PK\x03\x04"),
			wantStatus:  http.StatusCreated,
		},
		{
			name:        "disallowed type",
			filename:    "notes.txt",
			contentType: "text/plain",
			content:     []byte("hello"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "VALIDATION_ERROR",
		},
		{
			name:        "too large",
			filename:    "big.csv",
			contentType: MimeCSV,
			content:     []byte(strings.Repeat("x,y\n", 100)),
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantCode:    "PAYLOAD_TOO_LARGE",
		},
		{
			name:       "no file",
			noFile:     true,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, serverOptions{maxUploadBytes: 256})
			queue := srv.queue.(*recordingQueue)

			var req *http.Request
			if tt.noFile {
				req = httptest.NewRequest(http.MethodPost, "/api/files/upload", strings.NewReader("name=x"))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			} else {
				body, ct := multipartBody(t, tt.filename, tt.contentType, tt.content)
				req = httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
				req.Header.Set("Content-Type", ct)
			}
			rec := srv.do(req, srv.token)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeJSON[APIError](t, rec).Code)
				assert.Empty(t, queue.Tasks(), "rejected uploads must not be queued")
				files, err := srv.store.ListDataFilesByUser(context.Background(), srv.user.ID)
				require.NoError(t, err)
				assert.Empty(t, files, "rejected uploads must not be recorded")
				return
			}

			file := decodeJSON[models.DataFile](t, rec)
			assert.Equal(t, models.FileStatusPending, file.Status)
			assert.Equal(t, srv.user.ID, file.UserID)
			assert.Equal(t, tt.filename, file.OriginalName)
			assert.Equal(t, int64(len(tt.content)), file.FileSize)
			assert.Nil(t, file.ProcessedAt)

			tasks := queue.Tasks()
			require.Len(t, tasks, 1)
			assert.Equal(t, file.ID, tasks[0].FileID)
			assert.Equal(t, tt.content, tasks[0].Data)
			assert.NotContains(t, tasks[0].MimeType, ";")

			// The raw bytes are kept in the upload store.
			path, err := srv.uploads.Path(file.Filename)
			require.NoError(t, err)
			assert.FileExists(t, path)
		})
	}
}

func TestFileHandler_StatusRightAfterUploadIsPending(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	body, ct := multipartBody(t, "sales.csv", MimeCSV, []byte("a,b\n1,2\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := srv.do(req, srv.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decodeJSON[models.DataFile](t, rec)
	assert.Equal(t, models.FileStatusPending, file.Status)

	rec = srv.get("/api/files/"+file.ID+"/status", srv.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"pending","recordCount":0,"errorMessage":null}`, rec.Body.String())

	tasks := srv.queue.(*recordingQueue).Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, file.ID, tasks[0].FileID)
}

func TestFileHandler_UploadIngestsInBackground(t *testing.T) {
	srv := newTestServer(t, serverOptions{
		queue: func(store storage.Store) IngestionQueue {
			p := upload.NewPipeline(store, parser.NewRegistry(), zap.NewNop(), nil)
			m := upload.NewManager(p, upload.Config{Workers: 2, QueueSize: 4}, zap.NewNop())
			m.Start(context.Background())
			t.Cleanup(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				m.Shutdown(ctx)
			})
			return m
		},
	})

	book := testutil.BuildWorkbook(t,
		testutil.SheetFixture{Name: "Orders", Rows: [][]any{{"id", "total"}, {1, 9.5}, {2, 3}}},
		testutil.SheetFixture{Name: "Empty"},
		testutil.SheetFixture{Name: "Customers", Rows: [][]any{{"name"}, {"Ada"}, {"Grace"}, {"Linus"}}},
	)
	body, ct := multipartBody(t, "sales.xlsx", MimeXLSX, book)
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := srv.do(req, srv.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decodeJSON[models.DataFile](t, rec)

	require.Eventually(t, func() bool {
		rec := srv.get("/api/files/"+file.ID+"/status", srv.token)
		return decodeJSON[models.FileStatusView](t, rec).Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = srv.get("/api/files/"+file.ID+"/status", srv.token)
	assert.JSONEq(t, `{"status":"completed","recordCount":5,"errorMessage":null}`, rec.Body.String())

	rec = srv.get("/api/files/"+file.ID+"/tables", srv.token)
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decodeJSON[[]models.DataTable](t, rec)
	require.Len(t, tables, 2)
	names := []string{tables[0].Name, tables[1].Name}
	assert.ElementsMatch(t, []string{"Orders", "Customers"}, names)
}

func TestFileHandler_StatusAndOwnership(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	_, otherToken := srv.newUser(t, "other@example.com")

	file := testutil.CreatePendingFile(t, srv.store, srv.user.ID, "a.csv", MimeCSV, 3)
	_, err := srv.store.UpdateDataFileStatus(context.Background(), file.ID, models.StatusUpdate{Status: models.FileStatusProcessing})
	require.NoError(t, err)
	msg := "csv: bare quote in field"
	_, err = srv.store.UpdateDataFileStatus(context.Background(), file.ID, models.StatusUpdate{
		Status:       models.FileStatusError,
		ErrorMessage: &msg,
	})
	require.NoError(t, err)

	rec := srv.get("/api/files/"+file.ID+"/status", srv.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"error","recordCount":0,"errorMessage":"csv: bare quote in field"}`, rec.Body.String())

	paths := []string{
		"/api/files/" + file.ID,
		"/api/files/" + file.ID + "/status",
		"/api/files/" + file.ID + "/tables",
		"/api/files/" + file.ID + "/events",
	}
	for _, p := range paths {
		rec := srv.get(p, otherToken)
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}

	rec = srv.get("/api/files/does-not-exist/status", srv.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeJSON[APIError](t, rec).Code)
}

func TestFileHandler_HandleFileStatusStream(t *testing.T) {
	t.Run("terminal file sends one event", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{})
		file := srv.completedFile(t, srv.user.ID, "done.csv", 7)

		rec := srv.get("/api/files/"+file.ID+"/events", srv.token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, `data: {"status":"completed","recordCount":7,"errorMessage":null}`+"\n\n", rec.Body.String())
	})

	t.Run("streams until terminal", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{pollInterval: 5 * time.Millisecond})
		file := testutil.CreatePendingFile(t, srv.store, srv.user.ID, "slow.csv", MimeCSV, 3)

		go func() {
			time.Sleep(20 * time.Millisecond)
			srv.store.UpdateDataFileStatus(context.Background(), file.ID, models.StatusUpdate{Status: models.FileStatusProcessing})
			time.Sleep(20 * time.Millisecond)
			n := 2
			srv.store.UpdateDataFileStatus(context.Background(), file.ID, models.StatusUpdate{
				Status:      models.FileStatusCompleted,
				RecordCount: &n,
			})
		}()

		rec := srv.get("/api/files/"+file.ID+"/events", srv.token)
		events := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
		require.GreaterOrEqual(t, len(events), 2)
		assert.Contains(t, events[0], `"status":"pending"`)
		assert.Contains(t, events[len(events)-1], `"status":"completed"`)
	})
}

func TestFileHandler_HandleListFiles(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	other, _ := srv.newUser(t, "other@example.com")

	testutil.CreatePendingFile(t, srv.store, srv.user.ID, "mine.csv", MimeCSV, 1)
	testutil.CreatePendingFile(t, srv.store, other.ID, "theirs.csv", MimeCSV, 1)

	rec := srv.get("/api/files", srv.token)
	require.Equal(t, http.StatusOK, rec.Code)
	files := decodeJSON[[]models.DataFile](t, rec)
	require.Len(t, files, 1)
	assert.Equal(t, "mine.csv", files[0].OriginalName)
}

func TestDashboardHandler(t *testing.T) {
	t.Run("no files", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{})

		rec := srv.get("/api/dashboard/metrics", srv.token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"totalFiles":0,"totalRecords":0,"reportsGenerated":0,"avgProcessingTime":0,"successRate":0,"errorRate":0}`, rec.Body.String())

		rec = srv.get("/api/dashboard/activity", srv.token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("activity keeps the ten newest", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{})
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 12; i++ {
			f := &models.DataFile{
				UserID:       srv.user.ID,
				Filename:     fmt.Sprintf("stored-%d", i),
				OriginalName: fmt.Sprintf("file-%02d.csv", i),
				MimeType:     MimeCSV,
				UploadedAt:   base.Add(time.Duration(i) * time.Minute),
				Status:       models.FileStatusPending,
			}
			require.NoError(t, srv.store.CreateDataFile(context.Background(), f))
		}

		rec := srv.get("/api/dashboard/activity", srv.token)
		require.Equal(t, http.StatusOK, rec.Code)
		items := decodeJSON[[]models.ActivityItem](t, rec)
		require.Len(t, items, 10)
		assert.Equal(t, "file-11.csv", items[0].Filename)
		assert.Equal(t, "file-02.csv", items[9].Filename)
		assert.Equal(t, models.FileStatusPending, items[0].Status)
		assert.True(t, items[0].Timestamp.Equal(base.Add(11*time.Minute)))

		rec = srv.get("/api/dashboard/metrics", srv.token)
		m := decodeJSON[models.Metrics](t, rec)
		assert.Equal(t, 12, m.TotalFiles)
	})
}
