package report

import (
	"fmt"

	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"
	"github.com/sheetflow/backend/internal/export"
	"github.com/sheetflow/backend/internal/models"
)

// maxPDFColumns is the widest table a 12-column grid can lay out.
const maxPDFColumns = 12

func renderPDF(r *models.Report, total int, rows [][]any) ([]byte, error) {
	m := pdf.NewMaroto(consts.Portrait, consts.A4)
	m.SetPageMargins(10, 15, 10)

	m.Row(12, func() {
		m.Col(12, func() {
			m.Text(r.Name, props.Text{Size: 16, Style: consts.Bold, Align: consts.Left})
		})
	})
	if r.Description != "" {
		m.Row(8, func() {
			m.Col(12, func() {
				m.Text(r.Description, props.Text{Size: 10, Align: consts.Left})
			})
		})
	}

	shown := len(rows) - 1
	m.Row(8, func() {
		m.Col(12, func() {
			m.Text(fmt.Sprintf("%s report, %d of %d rows, generated %s",
				r.ReportType, shown, total, r.GeneratedAt.Format("2006-01-02 15:04 MST")),
				props.Text{Size: 8, Align: consts.Left, Style: consts.Italic})
		})
	})

	header, contents := pdfTable(rows)
	if len(header) > 0 && len(contents) > 0 {
		m.Row(4, func() {})
		m.TableList(header, contents, props.TableList{
			HeaderProp:  props.TableListContent{Size: 9},
			ContentProp: props.TableListContent{Size: 8},
			Align:       consts.Left,
		})
	} else {
		m.Row(8, func() {
			m.Col(12, func() {
				m.Text("No rows", props.Text{Size: 10, Align: consts.Left})
			})
		})
	}

	buf, err := m.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to generate output: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfTable converts rows to text, keeping at most maxPDFColumns columns.
func pdfTable(rows [][]any) ([]string, [][]string) {
	if len(rows) == 0 {
		return nil, nil
	}

	width := len(rows[0])
	if width > maxPDFColumns {
		width = maxPDFColumns
	}

	header := make([]string, width)
	for i := range header {
		header[i] = export.FormatCell(rows[0][i])
	}

	contents := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			cells[i] = export.FormatCell(row[i])
		}
		contents = append(contents, cells)
	}
	return header, contents
}
