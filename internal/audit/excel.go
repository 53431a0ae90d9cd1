package audit

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"turnero/internal/model"
)

var exportColumns = []string{
	"ID", "Practitioner", "Patient", "Start", "End", "Duration (min)",
	"Status", "Reason", "Cancellation Reason", "Cancelled By",
	"Rescheduled From", "Rescheduled To", "Created At",
}

// writeWorkbook renders terminal bookings into one sheet per month.
func writeWorkbook(bookings []model.Booking) (*excelize.File, error) {
	f := excelize.NewFile()

	bySheet := make(map[string][]model.Booking)
	var order []string
	for _, b := range bookings {
		sheet := b.StartTime.Format("2006-01")
		if _, ok := bySheet[sheet]; !ok {
			order = append(order, sheet)
		}
		bySheet[sheet] = append(bySheet[sheet], b)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	for i, sheet := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, fmt.Errorf("create sheet %s: %w", sheet, err)
			}
		}

		for col, name := range exportColumns {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, name); err != nil {
				return nil, err
			}
		}
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, headerStyle)

		for row, b := range bySheet[sheet] {
			values := []any{
				b.ID, b.PractitionerID, b.PatientID,
				b.StartTime.Format("2006-01-02 15:04"),
				b.EndTime.Format("2006-01-02 15:04"),
				b.Duration, string(b.Status), b.Reason,
				b.CancellationReason, b.CancelledBy,
				b.RescheduledFrom, b.RescheduledTo,
				b.CreatedAt.Format("2006-01-02 15:04"),
			}
			for col, val := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, row+2)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(sheet, cell, val); err != nil {
					return nil, err
				}
			}
		}
	}
	return f, nil
}
