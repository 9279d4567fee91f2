// Package csvio converts between raw CSV bytes and the header/rows layout
// held by the table model.
package csvio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrEmptyFile is returned when the input holds no records at all.
var ErrEmptyFile = errors.New("empty file")

// utf8BOM is prepended by many Windows programs when saving as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoded is the result of decoding a CSV file.
type Decoded struct {
	Headers []string
	Rows    [][]string
}

// Decode reads all of r and splits it into a header row (the first record)
// and data rows. Fields are returned as written; nothing is coerced or
// trimmed. Records may have differing widths, and an all-blank first record
// is still the header.
func Decode(r io.Reader) (*Decoded, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) (*Decoded, error) {
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	records, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	return &Decoded{
		Headers: records[0],
		Rows:    records[1:],
	}, nil
}

func parse(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// sanitizeUTF8 replaces every byte that does not start a valid UTF-8
// sequence with U+FFFD. Valid input is returned unchanged.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 8)
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
		} else {
			buf.Write(data[:size])
		}
		data = data[size:]
	}
	return buf.Bytes()
}
