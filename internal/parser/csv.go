package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

const sniffLen = 8192

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVDecoder reads comma separated text into a single sheet.
type CSVDecoder struct {
	sheetName string
}

func NewCSVDecoder() *CSVDecoder {
	return &CSVDecoder{sheetName: "Sheet1"}
}

func (d *CSVDecoder) Name() string {
	return "csv"
}

// Sniff accepts any payload without NUL bytes in its head.
func (d *CSVDecoder) Sniff(data []byte) bool {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	return bytes.IndexByte(head, 0) < 0
}

func (d *CSVDecoder) Decode(data []byte) ([]Sheet, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	pool := newStringPool()
	rows := make([][]any, 0)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}

		row := make([]any, len(rec))
		for i, cell := range rec {
			row[i] = pool.value(cell)
		}
		rows = appendRow(rows, row)
	}

	return []Sheet{{Name: d.sheetName, Rows: rows}}, nil
}
