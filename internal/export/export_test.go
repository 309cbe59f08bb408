package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCSV(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		want string
	}{
		{
			name: "numbers without trailing newline",
			rows: [][]any{{"a", "b"}, {float64(1), float64(2)}, {float64(3), float64(4)}},
			want: "a,b\n1,2\n3,4",
		},
		{
			name: "nulls, bools and fractions",
			rows: [][]any{{"x", "y", "z"}, {nil, true, 2.5}},
			want: "x,y,z\n,true,2.5",
		},
		{
			name: "commas are not quoted",
			rows: [][]any{{"name"}, {"Doe, John"}},
			want: "name\nDoe, John",
		},
		{
			name: "header only",
			rows: [][]any{{"only"}},
			want: "only",
		},
		{
			name: "no rows",
			rows: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(CSV(tt.rows)))
		})
	}
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", FormatCell(nil))
	assert.Equal(t, "1000000", FormatCell(float64(1e6)))
	assert.Equal(t, "0.1", FormatCell(0.1))
	assert.Equal(t, "-7", FormatCell(-7))
	assert.Equal(t, "false", FormatCell(false))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatXLSX, false},
		{"xlsx", FormatXLSX, false},
		{"CSV", FormatCSV, false},
		{"pdf", "", true},
		{"json", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_ContentType(t *testing.T) {
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", FormatXLSX.ContentType())
	assert.Equal(t, "csv", FormatCSV.Extension())
	assert.Equal(t, "xlsx", FormatXLSX.Extension())
}

func TestXLSX(t *testing.T) {
	rows := [][]any{{"a", "b"}, {float64(1), "two"}, {nil, true}}
	data, err := XLSX(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Data"}, f.GetSheetList())

	got, err := f.GetRows("Data")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b"}, got[0])
	assert.Equal(t, []string{"1", "two"}, got[1])
	assert.Equal(t, []string{"", "TRUE"}, got[2])
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := Render(Format("pdf"), nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
