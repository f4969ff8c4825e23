package finance

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/homecare/settlement-engine/staffing"
)

// WriteSlip renders a caregiver's monthly settlement as a one-page PDF.
func WriteSlip(w io.Writer, d staffing.SettlementDetail) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Salary Settlement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Caregiver: %s (%s)", d.CaregiverName, d.WorkerID))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Month: %s", d.Month))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s", d.Status))
	pdf.Ln(10)

	widths := []float64{46, 34, 44, 16, 22, 22}
	pdf.SetFont("Helvetica", "B", 10)
	for i, title := range []string{"Order", "Client", "Billed", "Days", "Rate", "Amount"} {
		pdf.CellFormat(widths[i], 7, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range d.Items {
		pdf.CellFormat(widths[0], 7, item.OrderNo, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, item.ClientName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 7, item.CalcStart.String()+" ~ "+item.CalcEnd.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 7, item.ActualDays.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 7, item.DailyRate.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 7, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Total days: %s", d.TotalDays.String()))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Total amount: %s", d.TotalAmount.StringFixed(2)))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render settlement slip: %w", err)
	}
	return nil
}
