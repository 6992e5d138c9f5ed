package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// IsDelimited reports whether the file is read as CSV. Any other name is
// read as an Excel workbook.
func IsDelimited(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

// ParseFile reads an uploaded file into a Table with inferred column types.
// The first row is the header. A ".csv" name (any case) selects the CSV
// reader; everything else is opened as a workbook and its first sheet is read.
func ParseFile(name string, data []byte) (*Table, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}

	if IsDelimited(name) {
		header, rows, err := readDelimited(data)
		if err != nil {
			return nil, err
		}
		return buildTable(header, rows, nil), nil
	}

	header, rows, dates, err := readWorkbook(data)
	if err != nil {
		return nil, err
	}
	return buildTable(header, rows, dates), nil
}

// readDelimited parses CSV bytes into a header and data rows. A UTF-8 BOM is
// dropped and invalid UTF-8 is replaced with U+FFFD.
func readDelimited(data []byte) ([]string, [][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("\uFFFD"))
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var header []string
	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
		}
		if isBlankRow(record) {
			continue
		}
		if header == nil {
			header = record
			continue
		}
		if len(record) > len(header) {
			line, _ := r.FieldPos(0)
			return nil, nil, fmt.Errorf("%w: line %d: expected %d fields, saw %d",
				ErrInvalidCSV, line, len(header), len(record))
		}
		rows = append(rows, record)
	}

	if header == nil {
		return nil, nil, ErrEmptyFile
	}
	return header, rows, nil
}

// readWorkbook reads the first sheet of an Excel workbook.
// Numeric cells are read raw; a numeric cell whose display text is a date is
// returned as that text and flagged in dates.
func readWorkbook(data []byte) ([]string, [][]string, [][]bool, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrInvalidSpreadsheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidSpreadsheet)
	}
	sheet := sheets[0]

	shown, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: read sheet %q: %w", ErrInvalidSpreadsheet, sheet, err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: read sheet %q: %w", ErrInvalidSpreadsheet, sheet, err)
	}

	var header []string
	var rows [][]string
	var dates [][]bool
	for i, rawRow := range raw {
		if isBlankRow(rawRow) {
			continue
		}
		if header == nil {
			header = rawRow
			continue
		}

		var shownRow []string
		if i < len(shown) {
			shownRow = shown[i]
		}

		row := make([]string, len(rawRow))
		isDate := make([]bool, len(rawRow))
		for j, cell := range rawRow {
			row[j] = cell
			if j >= len(shownRow) || shownRow[j] == cell {
				continue
			}
			// Boolean cells read raw as 1/0 and display as TRUE/FALSE.
			if _, ok := parseBoolLiteral(shownRow[j]); ok && (cell == "1" || cell == "0") {
				row[j] = shownRow[j]
				continue
			}
			if _, isNum := ParseFloat(cell); !isNum {
				continue
			}
			if _, ok := ParseTimestamp(shownRow[j]); ok {
				row[j] = shownRow[j]
				isDate[j] = true
			}
		}
		rows = append(rows, row)
		dates = append(dates, isDate)
	}

	if header == nil {
		return nil, nil, nil, ErrEmptyFile
	}
	if dates == nil {
		dates = [][]bool{}
	}
	return header, rows, dates, nil
}

// buildTable names the columns and infers each column's type.
// dates is nil for delimited input, which never infers timestamps.
func buildTable(header []string, rows [][]string, dates [][]bool) *Table {
	width := len(header)
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	names := columnNames(header, width)
	t := &Table{Columns: make([]Column, width), Rows: len(rows)}

	for j := 0; j < width; j++ {
		cells := make([]string, len(rows))
		var isDate []bool
		if dates != nil {
			isDate = make([]bool, len(rows))
		}
		for i, row := range rows {
			if j < len(row) {
				cells[i] = CleanCell(row[j])
			}
			if isDate != nil && j < len(dates[i]) {
				isDate[i] = dates[i][j]
			}
		}
		t.Columns[j] = inferColumn(names[j], cells, isDate)
	}

	return t
}

// columnNames fills blank headers with "Unnamed: <i>" and suffixes
// duplicates with ".1", ".2" and so on.
func columnNames(header []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]bool, width)
	counts := make(map[string]int, width)

	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}

		base := name
		for seen[name] {
			counts[base]++
			name = base + "." + strconv.Itoa(counts[base])
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

// inferColumn picks the narrowest type every present cell fits:
// int64, then float64, then bool, then (spreadsheets only) timestamp,
// falling back to string. An integer column with missing cells becomes
// float64, and an all-missing column is float64.
func inferColumn(name string, cells []string, isDate []bool) Column {
	present := 0
	allInt, allFloat, allBool, allDate := true, true, true, isDate != nil
	for i, c := range cells {
		if IsMissing(c) {
			continue
		}
		present++
		if allInt {
			if _, ok := ParseInt(c); !ok {
				allInt = false
			}
		}
		if allFloat {
			if _, ok := ParseFloat(c); !ok {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBoolLiteral(c); !ok {
				allBool = false
			}
		}
		if allDate && !isDate[i] {
			allDate = false
		}
	}
	hasMissing := present < len(cells)

	col := Column{Name: name, Values: make([]any, len(cells))}
	switch {
	case present == 0:
		col.Type = TypeFloat64
	case allInt && !hasMissing:
		col.Type = TypeInt64
		for i, c := range cells {
			col.Values[i], _ = ParseInt(c)
		}
	case allFloat:
		col.Type = TypeFloat64
		for i, c := range cells {
			if !IsMissing(c) {
				col.Values[i], _ = ParseFloat(c)
			}
		}
	case allBool && !hasMissing:
		col.Type = TypeBool
		for i, c := range cells {
			col.Values[i], _ = parseBoolLiteral(c)
		}
	case allDate:
		col.Type = TypeTimestamp
		for i, c := range cells {
			if !IsMissing(c) {
				if ts, ok := ParseTimestamp(c); ok {
					col.Values[i] = ts
				}
			}
		}
	default:
		col.Type = TypeString
		for i, c := range cells {
			if !IsMissing(c) {
				col.Values[i] = c
			}
		}
	}
	return col
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
