package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"

	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	minColumnWidth = 15
)

// Table is one sheet of an export.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]interface{}
}

// Filename builds "<prefix><YYYY-MM-DD>.<ext>" using the UTC date.
func Filename(prefix string, now time.Time, format string) string {
	return fmt.Sprintf("%s%s.%s", prefix, now.UTC().Format("2006-01-02"), format)
}

func ContentType(format string) string {
	if format == FormatXLSX {
		return ContentTypeXLSX
	}
	return ContentTypeCSV
}

func WriteCSV(w io.Writer, table Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Headers); err != nil {
		return err
	}
	record := make([]string, len(table.Headers))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellString(row[i])
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes each table to its own sheet in order.
func WriteXLSX(w io.Writer, tables ...Table) error {
	book := excelize.NewFile()
	defer book.Close()

	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, table := range tables {
		if i == 0 {
			if err := book.SetSheetName(book.GetSheetName(0), table.Sheet); err != nil {
				return err
			}
		} else if _, err := book.NewSheet(table.Sheet); err != nil {
			return err
		}
		if err := writeSheet(book, table, bold); err != nil {
			return fmt.Errorf("write sheet %s: %w", table.Sheet, err)
		}
	}
	return book.Write(w)
}

func writeSheet(book *excelize.File, table Table, headerStyle int) error {
	headers := make([]interface{}, len(table.Headers))
	for i, header := range table.Headers {
		headers[i] = header
	}
	if err := book.SetSheetRow(table.Sheet, "A1", &headers); err != nil {
		return err
	}
	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = sheetValue(value)
		}
		if err := book.SetSheetRow(table.Sheet, cell, &values); err != nil {
			return err
		}
	}
	if len(table.Headers) == 0 {
		return nil
	}
	if err := book.SetRowStyle(table.Sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, header := range table.Headers {
		column, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(len(header))
		if width < minColumnWidth {
			width = minColumnWidth
		}
		if err := book.SetColWidth(table.Sheet, column, column, width); err != nil {
			return err
		}
	}
	return nil
}

func sheetValue(value interface{}) interface{} {
	if amount, ok := value.(decimal.Decimal); ok {
		return amount.InexactFloat64()
	}
	return cellValue(value)
}

func cellValue(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return formatTime(v)
	case *time.Time:
		if v == nil {
			return ""
		}
		return formatTime(*v)
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

func cellString(value interface{}) string {
	switch v := cellValue(value).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
