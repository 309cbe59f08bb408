package parser

import (
	"math"
	"strconv"
	"strings"
)

// Sheet is one named grid of cells decoded from an uploaded file. Rows keep
// their order in the source; fully blank rows are already removed.
type Sheet struct {
	Name string
	Rows [][]any
}

// Decoder defines the interface for spreadsheet decoders.
type Decoder interface {
	// Name returns the unique name of the decoder.
	Name() string
	// Sniff reports whether data looks like a file this decoder reads.
	Sniff(data []byte) bool
	// Decode returns every sheet of the file in source order.
	Decode(data []byte) ([]Sheet, error)
}

// InferValue turns a raw cell string into its JSON value: nil for empty
// cells, bool for TRUE/FALSE, float64 for decimal numbers and the original
// string otherwise.
func InferValue(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	switch strings.ToUpper(s) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}

	if isNumberFast(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
	}
	return raw
}

// isNumberFast checks for a plain decimal number without using regex:
// optional sign, digits with an optional fraction, optional exponent.
// Hex, underscores, thousands separators and NaN/Inf are rejected.
func isNumberFast(s string) bool {
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i++
	}

	digits := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

// isBlankRow reports whether every cell of row is nil.
func isBlankRow(row []any) bool {
	for _, v := range row {
		if v != nil {
			return false
		}
	}
	return true
}

// appendRow adds row to rows unless it is blank.
func appendRow(rows [][]any, row []any) [][]any {
	if isBlankRow(row) {
		return rows
	}
	return append(rows, row)
}
