// Package parser turns raw xlsx grids into canonical measurement records.
//
// The source files share a fixed header block:
//
//	row 0: column numbers
//	row 1: station codes
//	row 2: indicator name (same for every data column)
//	row 3: averaging time, e.g. 24g, 1g
//	row 4: per-column units, e.g. ug/m3
//	row 5: position code header, or "Data od"/"Data do" in the
//	       date-range layout
//
// Data rows follow, with the measurement timestamp in column 0.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Record is one measurement cell. Value is nil when the cell is empty or not
// parseable as a number; such records are emitted anyway so the caller can
// count them as skipped.
type Record struct {
	StationCode   string
	IndicatorName string
	Unit          string
	AveragingTime string
	MeasuredAt    time.Time
	Value         *float64
	SourceFile    string
}

const (
	headerStationRow   = 1
	headerIndicatorRow = 2
	headerAveragingRow = 3
	headerUnitRow      = 4
	layoutMarkerRow    = 5

	// layoutMarker in row 5 column 0 flags the date-range layout where data
	// columns start at index 2 instead of 1.
	layoutMarker = "Data"

	defaultDataStartRow = 6
)

type fileMetadata struct {
	indicatorName string
	averagingTime string
	stationCodes  []string
	units         []string
	dataStartCol  int
	dataStartRow  int
}

// ParseWorkbook parses one spreadsheet into measurement records. It fails
// only on an unreadable workbook; malformed data rows are skipped.
func ParseWorkbook(content []byte, sourceFile string) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", sourceFile, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("workbook %s has no sheets", sourceFile)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s of %s: %w", sheetName, sourceFile, err)
	}
	if len(rows) <= headerUnitRow {
		return nil, fmt.Errorf("workbook %s has no header block", sourceFile)
	}

	meta := parseMetadata(rows)

	var records []Record
	for rowIdx := meta.dataStartRow; rowIdx < len(rows); rowIdx++ {
		measuredAt, ok := parseTimestamp(cellAt(rows, rowIdx, 0))
		if !ok {
			continue
		}

		for colOffset, stationCode := range meta.stationCodes {
			if stationCode == "" {
				continue
			}
			records = append(records, Record{
				StationCode:   stationCode,
				IndicatorName: meta.indicatorName,
				Unit:          meta.units[colOffset],
				AveragingTime: meta.averagingTime,
				MeasuredAt:    measuredAt,
				Value:         parseValue(cellAt(rows, rowIdx, meta.dataStartCol+colOffset)),
				SourceFile:    sourceFile,
			})
		}
	}

	return records, nil
}

func parseMetadata(rows [][]string) fileMetadata {
	dataStartCol := detectDataStartCol(rows)
	dataStartRow := detectDataStartRow(rows)

	stationRow := rows[headerStationRow]
	var stationCodes []string
	for col := dataStartCol; col < len(stationRow); col++ {
		stationCodes = append(stationCodes, strings.TrimSpace(stationRow[col]))
	}

	units := make([]string, len(stationCodes))
	for i := range units {
		units[i] = cellAt(rows, headerUnitRow, dataStartCol+i)
	}

	return fileMetadata{
		indicatorName: cellAt(rows, headerIndicatorRow, dataStartCol),
		averagingTime: cellAt(rows, headerAveragingRow, dataStartCol),
		stationCodes:  stationCodes,
		units:         units,
		dataStartCol:  dataStartCol,
		dataStartRow:  dataStartRow,
	}
}

// detectDataStartCol distinguishes the two known layouts. The standard layout
// has the timestamp in column 0 and data from column 1; the date-range layout
// has "Data od"/"Data do" in columns 0-1 and data from column 2.
func detectDataStartCol(rows [][]string) int {
	if strings.Contains(cellAt(rows, layoutMarkerRow, 0), layoutMarker) {
		return 2
	}
	return 1
}

// detectDataStartRow scans rows 5..14 of column 0 for the first cell that
// parses as a timestamp. Some files carry an extra header row, so the data
// offset is not fixed.
func detectDataStartRow(rows [][]string) int {
	limit := 15
	if len(rows) < limit {
		limit = len(rows)
	}
	for idx := layoutMarkerRow; idx < limit; idx++ {
		if _, ok := parseTimestamp(cellAt(rows, idx, 0)); ok {
			return idx
		}
	}
	return defaultDataStartRow
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"01-02-06 15:04",
}

func parseTimestamp(cell string) (time.Time, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}

	// Unformatted date cells surface as the raw Excel serial number. The
	// threshold keeps bare year headers like "2024" from passing as dates.
	if serial, err := strconv.ParseFloat(cell, 64); err == nil && serial > 10000 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// parseValue parses a decimal cell, accepting a comma as the decimal
// separator. Missing or non-numeric cells yield nil.
func parseValue(cell string) *float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &value
}

func cellAt(rows [][]string, row, col int) string {
	if row >= len(rows) || col >= len(rows[row]) {
		return ""
	}
	return strings.TrimSpace(rows[row][col])
}
