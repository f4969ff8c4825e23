package finance

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// MONTH REPORT
// =============================================================================

// Report returns every caregiver of month: persisted settlements first, then
// the candidates still pending.
func (a *Aggregator) Report(ctx context.Context, month staffing.Month) ([]staffing.SettlementDetail, error) {
	settled, err := a.History(ctx, month)
	if err != nil {
		return nil, err
	}
	pending, err := a.Candidates(ctx, month)
	if err != nil {
		return nil, err
	}

	report := make([]staffing.SettlementDetail, 0, len(settled)+len(pending))
	for _, st := range settled {
		caregiver, err := a.store.GetCaregiver(ctx, st.CaregiverID)
		if err != nil {
			return nil, a.fail("report", err)
		}
		report = append(report, DetailFromSettlement(st, caregiver))
	}
	sort.SliceStable(report, func(i, j int) bool {
		return report[i].CaregiverName < report[j].CaregiverName
	})
	return append(report, pending...), nil
}

// DetailFromSettlement rebuilds the candidate view of a persisted settlement.
func DetailFromSettlement(st staffing.SalarySettlement, caregiver *staffing.Caregiver) staffing.SettlementDetail {
	d := staffing.SettlementDetail{
		CaregiverID:      st.CaregiverID,
		Month:            st.Month,
		TotalDays:        decimal.Zero,
		TotalAmount:      st.TotalAmount,
		OrderCount:       len(st.Details),
		AllOrdersSettled: true,
		Items:            st.Details,
		Status:           st.Status,
	}
	if caregiver != nil {
		d.CaregiverName = caregiver.Name
		d.WorkerID = caregiver.WorkerID
	}
	for _, item := range st.Details {
		d.TotalDays = d.TotalDays.Add(item.ActualDays)
	}
	return d
}

// =============================================================================
// SPREADSHEET EXPORT
// =============================================================================

var exportHeader = []string{
	"Caregiver", "Worker ID", "Status", "Order No", "Client",
	"Start", "End", "Billed From", "Billed To",
	"Days", "Daily Rate", "Amount", "Type", "Order Settled",
}

var exportWidths = []float64{16, 12, 10, 26, 16, 12, 12, 12, 12, 8, 12, 12, 10, 14}

// ExportWorkbook writes month's report as an xlsx workbook: one row per
// settlement item and a closing total row.
func ExportWorkbook(w io.Writer, month staffing.Month, report []staffing.SettlementDetail) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := month.String()
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create total style: %w", err)
	}

	for col, title := range exportHeader {
		if err := setCell(f, sheet, col+1, 1, title); err != nil {
			return err
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, name, name, exportWidths[col]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	row := 2
	total := decimal.Zero
	for _, d := range report {
		for _, item := range d.Items {
			values := []any{
				d.CaregiverName, d.WorkerID, string(d.Status), item.OrderNo, item.ClientName,
				item.Start.String(), item.End.String(), item.CalcStart.String(), item.CalcEnd.String(),
				item.ActualDays.InexactFloat64(), item.DailyRate.InexactFloat64(), item.Amount.InexactFloat64(),
				string(item.SettlementType), yesNo(item.IsOrderSettled),
			}
			for col, v := range values {
				if err := setCell(f, sheet, col+1, row, v); err != nil {
					return err
				}
			}
			row++
		}
		total = total.Add(d.TotalAmount)
	}

	if err := setCell(f, sheet, 1, row, "Total"); err != nil {
		return err
	}
	if err := setCell(f, sheet, 12, row, total.InexactFloat64()); err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	end, _ := excelize.CoordinatesToCellName(len(exportHeader), row)
	if err := f.SetCellStyle(sheet, first, end, totalStyle); err != nil {
		return fmt.Errorf("failed to set total style: %w", err)
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
