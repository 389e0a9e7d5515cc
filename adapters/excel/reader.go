package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"hydrocast/domain/series"
)

// DataReader reads the daily observation table from an Excel or CSV file.
// The table needs a header row with a date column plus streamflow and
// rainfall columns; empty cells and "NA" mark missing values.
type DataReader struct {
	filePath string
	sheet    string
	fileType string // "xlsx" or "csv"
}

// DailyTable is the parsed, still-natural-scale input.
type DailyTable struct {
	Dates []time.Time
	Flow  []float64
	Rain  []float64
}

// NewDataReader creates a reader that handles both Excel and CSV files.
func NewDataReader(filePath, sheet string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &DataReader{filePath: filePath, sheet: sheet, fileType: fileType}
}

// ReadDaily reads and parses the table.
func (r *DataReader) ReadDaily() (*DailyTable, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, err
	}
	return parseRows(rows)
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", r.sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return rows, nil
}

// parseRows locates the date/flow/rain columns by header name and parses
// every data row.
func parseRows(rows [][]string) (*DailyTable, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("table needs a header row and at least one data row")
	}

	dateCol, flowCol, rainCol := -1, -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "day":
			dateCol = i
		case "flow", "streamflow", "discharge":
			flowCol = i
		case "rain", "rainfall", "precip", "precipitation":
			rainCol = i
		}
	}
	if dateCol < 0 || flowCol < 0 || rainCol < 0 {
		return nil, fmt.Errorf("header must name date, streamflow and rainfall columns, got %v", rows[0])
	}

	table := &DailyTable{}
	for rowIdx, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		if dateCol >= len(row) {
			return nil, fmt.Errorf("row %d has no date cell", rowIdx+2)
		}
		date, err := parseDate(row[dateCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowIdx+2, err)
		}

		table.Dates = append(table.Dates, date)
		table.Flow = append(table.Flow, parseCell(row, flowCol))
		table.Rain = append(table.Rain, parseCell(row, rainCol))
	}
	return table, nil
}

func parseDate(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	for _, layout := range []string{"2006-01-02", "01/02/2006", "2006/01/02", "01-02-06"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", cell)
}

// parseCell returns the numeric value of a cell, or the missing sentinel
// for blank, NA or unparsable cells.
func parseCell(row []string, col int) float64 {
	if col >= len(row) {
		return series.MissingValue()
	}
	s := strings.TrimSpace(row[col])
	if s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan") {
		return series.MissingValue()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return series.MissingValue()
	}
	return v
}
