// Package sheet reads and writes the school's .xlsx exchange format.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrFormat = errors.New("invalid spreadsheet")

// CheckExtension 只接受 .xlsx
func CheckExtension(filename string) error {
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return fmt.Errorf("%w: only .xlsx files are allowed", ErrFormat)
	}
	return nil
}

// table 首行为表头，列名大小写不敏感
type table struct {
	cols map[string]int
	rows [][]string
}

func readTable(r io.Reader, required ...string) (*table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet is empty", ErrFormat)
	}

	t := &table{cols: map[string]int{}, rows: rows[1:]}
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := t.cols[h]; h != "" && !dup {
			t.cols[h] = i
		}
	}
	var missing []string
	for _, c := range required {
		if !t.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrFormat, strings.Join(missing, ", "))
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.cols[strings.ToLower(col)]
	return ok
}

// get 去空白；pandas 风格的 "nan" 当作空
func (t *table) get(row []string, col string) string {
	i, ok := t.cols[strings.ToLower(col)]
	if !ok || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// sheetRowNumber 数据第 i 行在表格中的行号（表头为第 1 行）
func sheetRowNumber(i int) int { return i + 2 }

type writer struct {
	f     *excelize.File
	sheet string
	row   int
}

func newWriter(header []string) (*writer, error) {
	w := &writer{f: excelize.NewFile(), sheet: "Sheet1"}
	if err := w.append(toAny(header)); err != nil {
		_ = w.f.Close()
		return nil, err
	}
	return w, nil
}

func (w *writer) append(values []any) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	return w.f.SetSheetRow(w.sheet, cell, &values)
}

func (w *writer) flush(out io.Writer) error {
	defer w.f.Close()
	return w.f.Write(out)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
