package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ExportPrefix is prepended to the source filename on export.
const ExportPrefix = "edited_"

// DefaultSourceName stands in for the source filename when none was recorded.
const DefaultSourceName = "data.csv"

// Encode writes headers followed by rows as comma-delimited CSV.
func Encode(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeBytes is Encode into a fresh buffer.
func EncodeBytes(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, headers, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SourceName reduces a client-supplied filename to its base name. Browsers
// on some platforms send full paths.
func SourceName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == "/" {
		return ""
	}
	return name
}

// ExportFilename derives the download name for an edited file.
func ExportFilename(source string) string {
	if source == "" {
		source = DefaultSourceName
	}
	return ExportPrefix + source
}
