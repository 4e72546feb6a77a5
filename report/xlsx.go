package report

import (
	"fmt"
	"io"

	"github.com/warp/attendance-engine/payroll"
	"github.com/xuri/excelize/v2"
)

const (
	// XLSXFilename is the suggested download name for the workbook export.
	XLSXFilename = "attendance_payroll.xlsx"

	// SheetName is the single sheet of the workbook.
	SheetName = "Attendance"
)

// WriteXLSX writes the export as a single-sheet workbook. Hours and payroll
// are numeric cells; everything else matches ToCSV's text.
func WriteXLSX(w io.Writer, records []payroll.DerivedRecord, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		hours, _ := r.HoursWorked.Float64()
		pay, _ := r.Payroll.Float64()
		row := []any{
			r.EmployeeID,
			r.EmployeeName,
			r.Date,
			opts.timeOfDay(r.CheckIn),
			opts.timeOfDay(r.CheckOut),
			hours,
			string(r.Status),
			pay,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
