package formatters

import (
	"encoding/json"
	"fmt"
	"io"
)

// Formatter defines the interface for tabular output format handlers.
type Formatter interface {
	// NewWriter creates a streaming writer for one table. The column list
	// fixes the header and the cell order of every subsequent chunk.
	NewWriter(w io.Writer, columns []string) (StreamWriter, error)

	// Extension returns the file extension for this format (e.g., ".csv", ".xlsx")
	Extension() string

	// MIMEType returns the MIME type for this format
	MIMEType() string
}

// StreamWriter writes table rows in chunks so large tables never have to be
// materialized in serialized form.
type StreamWriter interface {
	// WriteChunk writes a chunk of rows. Keys missing from a row serialize
	// as blank cells; keys not in the writer's column list are dropped.
	WriteChunk(rows []map[string]interface{}) error

	// Close finalizes the output. Must be called exactly once.
	Close() error
}

// GetFormatter returns the appropriate formatter based on the format string
func GetFormatter(format string) Formatter {
	switch format {
	case "xlsx":
		return NewXLSXFormatter()
	default:
		return NewCSVFormatter() // Default to CSV
	}
}

// CellString converts a single row value into an export-safe cell.
// Structured values (objects, arrays) become compact JSON so they occupy a
// single well-formed cell instead of corrupting the tabular layout.
func CellString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
