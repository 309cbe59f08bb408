package parser

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned when no decoder recognises a payload.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Registry holds all available decoders and provides auto-detection.
type Registry struct {
	decoders []Decoder
}

// NewRegistry returns a registry with the xlsx, xls and csv decoders.
// csv accepts any text, so it is registered last.
func NewRegistry() *Registry {
	return &Registry{
		decoders: []Decoder{
			NewXLSXDecoder(),
			NewXLSDecoder(),
			NewCSVDecoder(),
		},
	}
}

// Register adds a decoder ahead of the csv fallback.
func (r *Registry) Register(d Decoder) {
	n := len(r.decoders)
	if n > 0 && r.decoders[n-1].Name() == "csv" {
		r.decoders = append(r.decoders[:n-1], d, r.decoders[n-1])
		return
	}
	r.decoders = append(r.decoders, d)
}

// Detect returns the first decoder whose sniff matches data. The declared
// MIME type is not trusted for the choice: browsers label csv files as
// application/vnd.ms-excel. It only appears in the error.
func (r *Registry) Detect(mimeType string, data []byte) (Decoder, error) {
	for _, d := range r.decoders {
		if d.Sniff(data) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w (declared %q)", ErrUnsupportedFormat, mimeType)
}

// Decode detects the decoder for data and runs it.
func (r *Registry) Decode(mimeType string, data []byte) ([]Sheet, error) {
	d, err := r.Detect(mimeType, data)
	if err != nil {
		return nil, err
	}
	sheets, err := d.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	return sheets, nil
}
