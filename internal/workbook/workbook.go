// Package workbook reads report worksheets into plain string grids.
package workbook

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet: its first non-empty row as header and the rows
// below it.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Reader opens workbooks with excelize.
type Reader struct{}

// Sheets reads at most maxSheets worksheets of the workbook at path, in
// workbook order. maxSheets <= 0 reads them all.
func (Reader) Sheets(path string, maxSheets int) ([]Sheet, error) {
	return Read(path, maxSheets)
}

// Read is the function form of Reader.Sheets.
func Read(path string, maxSheets int) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if maxSheets > 0 && len(names) > maxSheets {
		names = names[:maxSheets]
	}

	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets = append(sheets, newSheet(name, rows))
	}
	return sheets, nil
}

func newSheet(name string, rows [][]string) Sheet {
	s := Sheet{Name: name}
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		if s.Header == nil {
			s.Header = row
			for _, rest := range rows[i+1:] {
				if !isBlank(rest) {
					s.Rows = append(s.Rows, rest)
				}
			}
			break
		}
	}
	return s
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Tail returns the last n data rows.
func (s Sheet) Tail(n int) [][]string {
	if n <= 0 || len(s.Rows) == 0 {
		return nil
	}
	if n >= len(s.Rows) {
		return s.Rows
	}
	return s.Rows[len(s.Rows)-n:]
}

// Width returns the widest row length, header included.
func (s Sheet) Width() int {
	w := len(s.Header)
	for _, r := range s.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// ColumnName returns the header text of column i, or a spreadsheet letter
// when the header cell is empty.
func (s Sheet) ColumnName(i int) string {
	if i < len(s.Header) && strings.TrimSpace(s.Header[i]) != "" {
		return strings.TrimSpace(s.Header[i])
	}
	name, err := excelize.ColumnNumberToName(i + 1)
	if err != nil {
		return strconv.Itoa(i + 1)
	}
	return name
}

// NumericSeries returns the rightmost column in which most non-empty cells
// are numbers, with its parsed values in row order. ok is false when no
// column qualifies.
func (s Sheet) NumericSeries() (column string, values []float64, ok bool) {
	for col := s.Width() - 1; col >= 0; col-- {
		var nums []float64
		filled := 0
		for _, row := range s.Rows {
			if col >= len(row) || strings.TrimSpace(row[col]) == "" {
				continue
			}
			filled++
			if v, isNum := ParseNumber(row[col]); isNum {
				nums = append(nums, v)
			}
		}
		if len(nums) > 0 && len(nums)*2 >= filled {
			return s.ColumnName(col), nums, true
		}
	}
	return "", nil, false
}

// ParseNumber parses raw and locale-formatted numbers such as "1 234,5",
// "12%" or "99.90 €".
func ParseNumber(raw string) (float64, bool) {
	v := strings.TrimSpace(raw)
	v = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "€", "", "%", "").Replace(v)
	if v == "" {
		return 0, false
	}
	if strings.Contains(v, ",") {
		if strings.Contains(v, ".") {
			v = strings.ReplaceAll(v, ",", "")
		} else {
			v = strings.ReplaceAll(v, ",", ".")
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
