// fixtures.go - Record fixtures for testing
package testutil

import (
	"context"
	"testing"

	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/storage"
)

// CreateUser stores a user with the given email.
func CreateUser(t *testing.T, s storage.Store, email string) *models.User {
	t.Helper()
	u, err := s.UpsertUser(context.Background(), &models.User{
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: []byte("fixture-hash"),
	})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return u
}

// CreatePendingFile stores a pending DataFile owned by userID.
func CreatePendingFile(t *testing.T, s storage.Store, userID, name, mimeType string, size int64) *models.DataFile {
	t.Helper()
	f := &models.DataFile{
		UserID:       userID,
		Filename:     name + ".stored",
		OriginalName: name,
		FileSize:     size,
		MimeType:     mimeType,
		Status:       models.FileStatusPending,
	}
	if err := s.CreateDataFile(context.Background(), f); err != nil {
		t.Fatalf("creating data file: %v", err)
	}
	return f
}

// CreateTable stores a table with the given headers and rows under fileID.
func CreateTable(t *testing.T, s storage.Store, fileID, name string, headers []string, rows [][]any) *models.DataTable {
	t.Helper()
	if rows == nil {
		rows = [][]any{}
	}
	tbl := &models.DataTable{
		FileID:      fileID,
		Name:        name,
		Description: "Data from sheet: " + name,
		Headers:     headers,
		Data:        rows,
		RecordCount: len(rows),
		IsActive:    true,
	}
	if err := s.CreateDataTable(context.Background(), tbl); err != nil {
		t.Fatalf("creating data table: %v", err)
	}
	return tbl
}
