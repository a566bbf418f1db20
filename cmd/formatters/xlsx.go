package formatters

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// XLSXFormatter handles spreadsheet output via excelize's stream writer,
// which spools rows to temp storage instead of keeping the sheet in memory.
type XLSXFormatter struct{}

// NewXLSXFormatter creates a new XLSX formatter
func NewXLSXFormatter() *XLSXFormatter {
	return &XLSXFormatter{}
}

// NewWriter creates a new XLSX stream writer and writes the header row.
func (f *XLSXFormatter) NewWriter(w io.Writer, columns []string) (StreamWriter, error) {
	file := excelize.NewFile()
	sw, err := file.NewStreamWriter(xlsxSheet)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create sheet stream writer: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write sheet header: %w", err)
	}

	return &xlsxStreamWriter{
		out:     w,
		file:    file,
		sheet:   sw,
		columns: columns,
		nextRow: 2,
	}, nil
}

// Extension returns the file extension for spreadsheet files
func (f *XLSXFormatter) Extension() string {
	return ".xlsx"
}

// MIMEType returns the MIME type for XLSX
func (f *XLSXFormatter) MIMEType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

type xlsxStreamWriter struct {
	out     io.Writer
	file    *excelize.File
	sheet   *excelize.StreamWriter
	columns []string
	nextRow int
}

// WriteChunk appends a chunk of rows to the sheet
func (w *xlsxStreamWriter) WriteChunk(rows []map[string]interface{}) error {
	for _, row := range rows {
		record := make([]interface{}, len(w.columns))
		for i, col := range w.columns {
			record[i] = CellString(row[col])
		}

		cell, err := excelize.CoordinatesToCellName(1, w.nextRow)
		if err != nil {
			return fmt.Errorf("failed to compute cell coordinate: %w", err)
		}
		if err := w.sheet.SetRow(cell, record); err != nil {
			return fmt.Errorf("failed to write sheet row: %w", err)
		}
		w.nextRow++
	}

	return nil
}

// Close flushes the stream writer and serializes the workbook to the output.
func (w *xlsxStreamWriter) Close() error {
	defer w.file.Close()

	if err := w.sheet.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet stream writer: %w", err)
	}
	if err := w.file.Write(w.out); err != nil {
		return fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return nil
}
