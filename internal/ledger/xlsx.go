package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

// moneyNumFmt is the built-in "0.00" number format.
const moneyNumFmt = 2

// XLSXStore keeps the ledger in a local workbook. The file is rewritten after
// every mutation.
type XLSXStore struct {
	mu         sync.Mutex
	path       string
	sheet      string
	f          *excelize.File
	moneyStyle int
}

// OpenXLSXStore opens the workbook at path, creating the file and sheet when missing.
func OpenXLSXStore(path, sheet string) (*XLSXStore, error) {
	if sheet == "" {
		sheet = "Simulations"
	}
	var f *excelize.File
	if _, err := os.Stat(path); err == nil {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("xlsx open: %w", err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("xlsx rename sheet: %w", err)
		}
	} else {
		return nil, fmt.Errorf("xlsx stat: %w", err)
	}

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx sheet index: %w", err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("xlsx new sheet: %w", err)
		}
	}
	style, err := f.NewStyle(&excelize.Style{NumFmt: moneyNumFmt})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx style: %w", err)
	}
	s := &XLSXStore{path: path, sheet: sheet, f: f, moneyStyle: style}
	if err := f.SaveAs(path); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx save: %w", err)
	}
	return s, nil
}

// Close releases the workbook.
func (x *XLSXStore) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.f.Close()
}

// FirstRow implements Store.
func (x *XLSXStore) FirstRow(_ context.Context) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	rows, err := x.f.GetRows(x.sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// InsertFirstRow implements Store.
func (x *XLSXStore) InsertFirstRow(_ context.Context, cells []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.f.InsertRows(x.sheet, 1, 1); err != nil {
		return err
	}
	values := interfaceCells(cells)
	if err := x.f.SetSheetRow(x.sheet, "A1", &values); err != nil {
		return err
	}
	return x.f.SaveAs(x.path)
}

// ColumnValues implements Store.
func (x *XLSXStore) ColumnValues(_ context.Context, column int) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	rows, err := x.f.GetRows(x.sheet)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if column < len(row) {
			out = append(out, row[column])
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}

// AppendRow implements Store. Counts are written as numbers and amounts as
// two-decimal numbers so the workbook stays usable for formulas.
func (x *XLSXStore) AppendRow(_ context.Context, row Row) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	rows, err := x.f.GetRows(x.sheet)
	if err != nil {
		return err
	}
	next := len(rows) + 1
	start, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	values := row.Values()
	if err := x.f.SetSheetRow(x.sheet, start, &values); err != nil {
		return err
	}
	from, err := excelize.CoordinatesToCellName(8, next)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(len(Columns), next)
	if err != nil {
		return err
	}
	if err := x.f.SetCellStyle(x.sheet, from, to, x.moneyStyle); err != nil {
		return err
	}
	return x.f.SaveAs(x.path)
}

// Ping implements Pinger.
func (x *XLSXStore) Ping(_ context.Context) error {
	_, err := os.Stat(x.path)
	return err
}
