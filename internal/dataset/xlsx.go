package dataset

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// maxXLSXUnzipBytes caps the decompressed size of a workbook so a small
// archive cannot expand past what a session may hold.
const maxXLSXUnzipBytes = 256 << 20

// ReadXLSX reads the first worksheet of an Office Open XML workbook. The
// first non-blank row is the header. Numbers in date formatted cells are
// rendered as ISO dates, honouring the 1904 date system.
func ReadXLSX(data []byte) (*Frame, error) {
	return readXLSX(data, maxXLSXUnzipBytes)
}

func readXLSX(data []byte, unzipLimit int64) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	wb, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{
		UnzipSizeLimit:    unzipLimit,
		UnzipXMLSizeLimit: unzipLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrUnsupportedFormat, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyInput
	}
	sheet := sheets[0]

	dates := newDateCells(wb, sheet)
	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read worksheet: %w", err)
	}
	defer rows.Close()

	var (
		headers []string
		records [][]string
		rowNum  int
	)
	for rows.Next() {
		rowNum++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read worksheet row %d: %w", rowNum, err)
		}
		if blankRow(cells) {
			continue
		}
		if headers == nil {
			headers = cells
			continue
		}
		for col, raw := range cells {
			cells[col] = dates.render(col, rowNum, raw)
		}
		records = append(records, cells)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read worksheet: %w", err)
	}
	if headers == nil {
		return nil, ErrEmptyInput
	}
	return New(headers, records), nil
}

// dateCells renders numeric cells whose style carries a date format.
type dateCells struct {
	wb       *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(wb *excelize.File, sheet string) *dateCells {
	d := &dateCells{wb: wb, sheet: sheet, styles: map[int]bool{}}
	if props, err := wb.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateCells) render(col, row int, raw string) string {
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil || serial < 0 {
		return raw
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return raw
	}
	style, err := d.wb.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(style) {
		return raw
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return raw
	}
	t = t.Round(time.Second)
	if serial == math.Floor(serial) {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

func (d *dateCells) isDateStyle(idx int) bool {
	if v, ok := d.styles[idx]; ok {
		return v
	}
	isDate := false
	if st, err := d.wb.GetStyle(idx); err == nil && st != nil {
		if st.CustomNumFmt != nil {
			isDate = isDateFormat(*st.CustomNumFmt)
		} else {
			isDate = builtinDateFormat(st.NumFmt)
		}
	}
	d.styles[idx] = isDate
	return isDate
}

// builtinDateFormat covers the built-in date and time formats, including
// the East Asian ones.
func builtinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

func isDateFormat(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range code {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	lower := strings.ToLower(b.String())
	return strings.ContainsAny(lower, "dy") || (strings.Contains(lower, "mm") && strings.ContainsAny(lower, "hs"))
}
