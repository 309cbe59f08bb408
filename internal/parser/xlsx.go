package parser

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var zipMagic = []byte("PK\x03\x04")

// XLSXDecoder reads Office Open XML workbooks.
type XLSXDecoder struct{}

func NewXLSXDecoder() *XLSXDecoder {
	return &XLSXDecoder{}
}

func (d *XLSXDecoder) Name() string {
	return "xlsx"
}

func (d *XLSXDecoder) Sniff(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

func (d *XLSXDecoder) Decode(data []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	pool := newStringPool()
	names := f.GetSheetList()
	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		rows, err := d.readSheet(f, name, pool)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

// readSheet returns the raw values of a worksheet. Text cells stay strings
// even when they look numeric; booleans and numbers get their JSON types.
func (d *XLSXDecoder) readSheet(f *excelize.File, name string, pool *stringPool) ([][]any, error) {
	raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(raw))
	for r, cells := range raw {
		row := make([]any, len(cells))
		for c, cell := range cells {
			if cell == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			typ, err := f.GetCellType(name, axis)
			if err != nil {
				return nil, err
			}
			row[c] = cellValue(typ, cell, pool)
		}
		rows = appendRow(rows, row)
	}
	return rows, nil
}

func cellValue(typ excelize.CellType, raw string, pool *stringPool) any {
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || raw == "TRUE" || raw == "true"
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return pool.intern(raw)
	default:
		return pool.value(raw)
	}
}
