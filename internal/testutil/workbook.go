// workbook.go - Spreadsheet fixtures for tests
package testutil

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// SheetFixture is one worksheet of a generated workbook.
type SheetFixture struct {
	Name string
	Rows [][]any
}

// BuildWorkbook renders sheets into xlsx bytes, in the given order. A sheet
// with no rows is still created.
func BuildWorkbook(t *testing.T, sheets ...SheetFixture) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				t.Fatalf("renaming first sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			t.Fatalf("creating sheet %s: %v", s.Name, err)
		}

		for r, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			values := row
			if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
				t.Fatalf("writing row %d of %s: %v", r+1, s.Name, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("writing workbook: %v", err)
	}
	return buf.Bytes()
}
