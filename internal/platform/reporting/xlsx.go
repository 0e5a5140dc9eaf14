package reporting

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Report"

// RenderXLSX writes t to a single sheet: the header row, then every row in
// order.
func RenderXLSX(t Table, sheet string) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = defaultSheet
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := t.Header()
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if len(header) > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return nil, fmt.Errorf("header style: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return nil, fmt.Errorf("apply header style: %w", err)
		}
	}

	for i := range t.Rows {
		row := t.Row(i)
		for j, v := range row {
			if ts, ok := v.(time.Time); ok {
				row[j] = ts.Format("2006-01-02")
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
