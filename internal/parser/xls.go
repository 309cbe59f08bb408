package parser

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

var ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// XLSDecoder reads legacy BIFF (Excel 97-2003) workbooks.
type XLSDecoder struct {
	charset string
}

func NewXLSDecoder() *XLSDecoder {
	return &XLSDecoder{charset: "utf-8"}
}

func (d *XLSDecoder) Name() string {
	return "xls"
}

func (d *XLSDecoder) Sniff(data []byte) bool {
	return bytes.HasPrefix(data, ole2Magic)
}

func (d *XLSDecoder) Decode(data []byte) ([]Sheet, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), d.charset)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}

	pool := newStringPool()
	sheets := make([]Sheet, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}

		rows := make([][]any, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			xr := ws.Row(r)
			if xr == nil {
				continue
			}
			row := make([]any, xr.LastCol())
			for c := xr.FirstCol(); c < xr.LastCol(); c++ {
				row[c] = pool.value(xr.Col(c))
			}
			rows = appendRow(rows, row)
		}
		sheets = append(sheets, Sheet{Name: ws.Name, Rows: rows})
	}
	return sheets, nil
}
