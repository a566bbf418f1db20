package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/exporthub/exporthub/cmd/formatters"
	"github.com/lib/pq"
)

// Export outcome status values
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusError   = "error"
)

// ErrTableNotAllowed guards the fixed export allow-list; table names are
// never taken from untrusted input, so hitting this is a programming error.
var ErrTableNotAllowed = errors.New("table is not in the export allow-list")

// ExportOutcome is one record per (project, table) export attempt.
//
// Invariants: status=success implies FileName is set and RowCount > 0;
// status=empty implies RowCount == 0 and no file; status=error implies
// RowCount == 0, no file, and a human-readable Error.
type ExportOutcome struct {
	Project  string  `json:"project"`
	Table    string  `json:"table"`
	FileName *string `json:"fileName"`
	RowCount int64   `json:"rowCount"`
	Status   string  `json:"status"`
	Error    string  `json:"error,omitempty"`
}

func successOutcome(project, table, fileName string, rowCount int64) ExportOutcome {
	return ExportOutcome{
		Project:  project,
		Table:    table,
		FileName: &fileName,
		RowCount: rowCount,
		Status:   StatusSuccess,
	}
}

func emptyOutcome(project, table string) ExportOutcome {
	return ExportOutcome{
		Project: project,
		Table:   table,
		Status:  StatusEmpty,
	}
}

func errorOutcome(project, table string, err error) ExportOutcome {
	return ExportOutcome{
		Project: project,
		Table:   table,
		Status:  StatusError,
		Error:   err.Error(),
	}
}

// exportTable fetches all rows of one table and streams them to a tabular
// file in dir, named <project>_<table> plus the formatter's extension.
// Failures never propagate: every path returns a well-formed outcome.
func (p *ExportPipeline) exportTable(ctx context.Context, db *sql.DB, project ProjectConfig, table, dir string, formatter formatters.Formatter) ExportOutcome {
	if !isAllowedTable(table) || !isValidTableName(table) {
		return errorOutcome(project.Name, table, fmt.Errorf("%w: %s", ErrTableNotAllowed, table))
	}

	// row_to_json preserves the table's column order in the object keys,
	// which drives the header of the exported file.
	quotedTable := pq.QuoteIdentifier(table)
	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t", quotedTable) //nolint:gosec // Table name is allow-listed and quoted

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return errorOutcome(project.Name, table, err)
	}
	defer rows.Close()

	fileName := project.Name + "_" + table + formatter.Extension()
	filePath := filepath.Join(dir, fileName)

	var (
		file     *os.File
		writer   formatters.StreamWriter
		chunk    []map[string]interface{}
		rowCount int64
	)

	// On any mid-stream failure the partial file must not survive: a
	// half-written file would otherwise be picked up by the archiver.
	fail := func(cause error) ExportOutcome {
		if writer != nil {
			_ = writer.Close()
		}
		if file != nil {
			file.Close()
			if err := os.Remove(filePath); err != nil {
				p.logger.Warn(fmt.Sprintf("Failed to remove partial export file %s: %v", fileName, err))
			}
		}
		return errorOutcome(project.Name, table, cause)
	}

	chunkSize := p.config.ChunkSize

	for rows.Next() {
		var raw json.RawMessage
		if err := rows.Scan(&raw); err != nil {
			return fail(err)
		}

		row, err := decodeRow(raw)
		if err != nil {
			return fail(err)
		}

		if writer == nil {
			// Header = first row's column order. Later rows with extra
			// keys lose them; missing keys serialize blank.
			columns, err := orderedJSONKeys(raw)
			if err != nil {
				return fail(err)
			}

			file, err = os.Create(filePath)
			if err != nil {
				return fail(err)
			}

			writer, err = formatter.NewWriter(file, columns)
			if err != nil {
				return fail(err)
			}
		}

		chunk = append(chunk, row)
		rowCount++

		if len(chunk) >= chunkSize {
			if err := writer.WriteChunk(chunk); err != nil {
				return fail(err)
			}
			chunk = chunk[:0]
		}
	}

	if err := rows.Err(); err != nil {
		return fail(err)
	}

	if rowCount == 0 {
		return emptyOutcome(project.Name, table)
	}

	if len(chunk) > 0 {
		if err := writer.WriteChunk(chunk); err != nil {
			return fail(err)
		}
	}

	if err := writer.Close(); err != nil {
		return fail(err)
	}
	if err := file.Close(); err != nil {
		return fail(err)
	}

	p.logger.Debug(fmt.Sprintf("  📄 Exported %d rows from %s.%s to %s", rowCount, project.Name, table, fileName))

	return successOutcome(project.Name, table, fileName, rowCount)
}

// decodeRow unmarshals one row_to_json object. Numbers stay json.Number so
// large integers and timestamps survive serialization verbatim.
func decodeRow(raw json.RawMessage) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var row map[string]interface{}
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return row, nil
}

// orderedJSONKeys extracts the top-level keys of a JSON object in document
// order, which Go maps discard.
func orderedJSONKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read row object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read object key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		keys = append(keys, key)

		// Skip the value
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to skip value for key %s: %w", key, err)
		}
	}

	return keys, nil
}
