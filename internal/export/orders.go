// Package export renders order lists as XLSX workbooks for download.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/harentsoaR/dentalab-api/internal/models"
)

const (
	SheetName   = "Orders"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateLayout  = "2006-01-02"
)

var OrderHeader = []string{
	"Case ID",
	"Patient",
	"Doctor",
	"Clinic",
	"Tooth",
	"Shade",
	"Work Type",
	"Status",
	"Priority",
	"Submitted",
	"Due",
	"Technician",
	"Technician History",
	"Notes",
}

var columnWidths = []float64{14, 22, 22, 24, 8, 8, 22, 16, 10, 12, 12, 20, 30, 40}

func orderRow(o models.Order) []any {
	return []any{
		o.ID,
		o.PatientName,
		o.DoctorName,
		o.ClinicName,
		o.ToothNumber,
		o.Shade,
		o.WorkType,
		string(o.Status),
		string(o.Priority),
		formatDate(o.SubmissionDate),
		formatDate(o.DueDate),
		o.AssignedTech,
		strings.Join(o.TechnicianHistory, " > "),
		o.Notes,
	}
}

// Orders builds a single-sheet workbook with one row per order.
func Orders(orders []models.Order) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(SheetName); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}
	// deleting Sheet1 renumbers the remaining sheets
	index, err := f.GetSheetIndex(SheetName)
	if err != nil {
		return nil, fmt.Errorf("locate sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &OrderHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(OrderHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, o := range orders {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := orderRow(o)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write order %s: %w", o.ID, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
