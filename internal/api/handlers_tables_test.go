package api

import (
	"bytes"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sheetflow/backend/internal/export"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xuri/excelize/v2"
)

func setupTable(t *testing.T, srv *testServer) *models.DataTable {
	t.Helper()
	file := srv.completedFile(t, srv.user.ID, "numbers.xlsx", 2)
	return testutil.CreateTable(t, srv.store, file.ID, "Numbers",
		[]string{"a", "b"}, [][]any{{1.0, 2.0}, {3.0, 4.0}})
}

func TestTableHandler_HandleExportTable(t *testing.T) {
	tests := []struct {
		name            string
		query           string
		wantStatus      int
		wantContentType string
		wantFilename    string
	}{
		{
			name:            "csv",
			query:           "?format=csv",
			wantStatus:      http.StatusOK,
			wantContentType: export.ContentTypeCSV,
			wantFilename:    "Numbers.csv",
		},
		{
			name:            "xlsx explicit",
			query:           "?format=xlsx",
			wantStatus:      http.StatusOK,
			wantContentType: export.ContentTypeXLSX,
			wantFilename:    "Numbers.xlsx",
		},
		{
			name:            "xlsx default",
			wantStatus:      http.StatusOK,
			wantContentType: export.ContentTypeXLSX,
			wantFilename:    "Numbers.xlsx",
		},
		{
			name:       "unknown format",
			query:      "?format=ods",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, serverOptions{})
			table := setupTable(t, srv)

			rec := srv.get("/api/tables/"+table.ID+"/export"+tt.query, srv.token)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				resp := decodeJSON[APIError](t, rec)
				assert.Equal(t, "VALIDATION_ERROR", resp.Code)
				require.Len(t, resp.Errors, 1)
				assert.Equal(t, "format", resp.Errors[0].Field)
				return
			}

			assert.Equal(t, tt.wantContentType, rec.Header().Get("Content-Type"))
			disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
			require.NoError(t, err)
			assert.Equal(t, "attachment", disposition)
			assert.Equal(t, tt.wantFilename, params["filename"])

			if tt.wantContentType == export.ContentTypeCSV {
				assert.Equal(t, "a,b\n1,2\n3,4", rec.Body.String())
				return
			}

			f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
			require.NoError(t, err)
			defer f.Close()
			assert.Equal(t, []string{export.SheetName}, f.GetSheetList())
			rows, err := f.GetRows(export.SheetName)
			require.NoError(t, err)
			assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}, {"3", "4"}}, rows)
		})
	}
}

func TestTableHandler_ExportFilenameIsQuoted(t *testing.T) {
	names := []string{`Q1 "final"; x=1`, "Résumé 2024", `back\slash`}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, serverOptions{})
			file := srv.completedFile(t, srv.user.ID, "q.csv", 1)
			table := testutil.CreateTable(t, srv.store, file.ID, name, []string{"a"}, [][]any{{1.0}})

			rec := srv.get("/api/tables/"+table.ID+"/export?format=csv", srv.token)
			require.Equal(t, http.StatusOK, rec.Code)

			disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
			require.NoError(t, err)
			assert.Equal(t, "attachment", disposition)
			assert.Equal(t, name+".csv", params["filename"])
			assert.Len(t, params, 1)
		})
	}
}

func TestTableHandler_NotFound(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	table := setupTable(t, srv)
	_, otherToken := srv.newUser(t, "other@example.com")

	tests := []struct {
		name  string
		path  string
		token string
	}{
		{"export unknown id", "/api/tables/nope/export?format=csv", srv.token},
		{"get unknown id", "/api/tables/nope", srv.token},
		{"export other user's table", "/api/tables/" + table.ID + "/export", otherToken},
		{"get other user's table", "/api/tables/" + table.ID, otherToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.get(tt.path, tt.token)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "NOT_FOUND", decodeJSON[APIError](t, rec).Code)
		})
	}
}

func TestTableHandler_HandleGetTable(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	table := setupTable(t, srv)

	rec := srv.get("/api/tables/"+table.ID, srv.token)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[models.DataTable](t, rec)
	assert.Equal(t, []string{"a", "b"}, []string(got.Headers))
	assert.Equal(t, 2, got.RecordCount)
	assert.Equal(t, "Data from sheet: Numbers", got.Description)

	req := httptest.NewRequest(http.MethodGet, "/api/tables/"+table.ID, nil)
	req.Header.Set("Accept", MimeMsgpack)
	rec = srv.do(req, srv.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MimeMsgpack, rec.Header().Get("Content-Type"))

	var decoded map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, table.ID, decoded["id"])
	assert.Equal(t, "Numbers", decoded["name"])
	assert.Len(t, decoded["data"], 2)
}

func TestTableHandler_HandleListTables(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	setupTable(t, srv)

	other, _ := srv.newUser(t, "other@example.com")
	otherFile := srv.completedFile(t, other.ID, "private.csv", 1)
	testutil.CreateTable(t, srv.store, otherFile.ID, "Private", []string{"x"}, [][]any{{"y"}})

	rec := srv.get("/api/tables", srv.token)
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decodeJSON[[]models.TableListing](t, rec)
	require.Len(t, tables, 1)
	assert.Equal(t, "Numbers", tables[0].Name)
	assert.Equal(t, "numbers.xlsx", tables[0].FileName)
	assert.Equal(t, "completed", tables[0].FileStatus)
}

func TestTableHandler_HandleUpdateTable(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
		check      func(t *testing.T, table models.DataTable)
	}{
		{
			name:       "rename and deactivate",
			body:       map[string]interface{}{"name": "Renamed", "isActive": false},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, table models.DataTable) {
				assert.Equal(t, "Renamed", table.Name)
				assert.False(t, table.IsActive)
				assert.Equal(t, "Data from sheet: Numbers", table.Description)
			},
		},
		{
			name:       "description only",
			body:       map[string]interface{}{"description": "quarterly"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, table models.DataTable) {
				assert.Equal(t, "Numbers", table.Name)
				assert.Equal(t, "quarterly", table.Description)
				assert.True(t, table.IsActive)
			},
		},
		{
			name:       "empty name",
			body:       map[string]interface{}{"name": ""},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "nothing to update",
			body:       map[string]interface{}{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, serverOptions{})
			table := setupTable(t, srv)

			rec := srv.sendJSON(http.MethodPatch, "/api/tables/"+table.ID, tt.body, srv.token)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, decodeJSON[models.DataTable](t, rec))
			}
		})
	}

	t.Run("other user's table", func(t *testing.T) {
		srv := newTestServer(t, serverOptions{})
		table := setupTable(t, srv)
		_, otherToken := srv.newUser(t, "other@example.com")

		rec := srv.sendJSON(http.MethodPatch, "/api/tables/"+table.ID, map[string]interface{}{"name": "x"}, otherToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
