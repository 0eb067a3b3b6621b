package reports

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

func title(r *Report) string {
	kind := string(r.Kind)
	return strings.ToUpper(kind[:1]) + kind[1:] + " Energy Report"
}

func deviceLabel(r *Report) string {
	if r.DeviceID == "" {
		return "all devices"
	}
	return r.DeviceID
}

// RenderPDF renders a report as an A4 landscape PDF.
func RenderPDF(r *Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, title(r))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Devices: %s", deviceLabel(r)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", r.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(9)
	pdf.Cell(0, 6, fmt.Sprintf("Total Energy (kWh): %.3f", r.TotalEnergyKWh))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Peak / Off-peak (kWh): %.3f / %.3f", r.PeakEnergyKWh, r.OffPeakKWh))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Cost (%s): %.2f", r.Currency, r.TotalCost))
	pdf.Ln(8)

	widths := []float64{28, 60, 32, 32, 32, 28, 24, 28}
	headers := []string{"Day", "Device", "Energy (kWh)", "Peak (kWh)", "Off-peak (kWh)", "Cost", "Peak hour", "Ratio"}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range r.Rows {
		name := row.DeviceName
		if name == "" {
			name = row.DeviceID
		}
		pdf.CellFormat(widths[0], 6, row.Date.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 6, name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, fmt.Sprintf("%.3f", row.TotalEnergyKWh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, fmt.Sprintf("%.3f", row.PeakEnergyKWh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, fmt.Sprintf("%.3f", row.OffPeakEnergyKWh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 6, fmt.Sprintf("%.2f", row.TotalCost), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[6], 6, fmt.Sprintf("%02d:00", row.PeakHour), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[7], 6, fmt.Sprintf("%.2f", row.PeakToOffPeakRatio), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderXLSX renders a report as a workbook with summary and days sheets.
func RenderXLSX(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	daysSheet := "days"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", title(r))
	_ = f.SetCellValue(summarySheet, "A3", "Period start")
	_ = f.SetCellValue(summarySheet, "B3", r.PeriodStart.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A4", "Period end")
	_ = f.SetCellValue(summarySheet, "B4", r.PeriodEnd.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A5", "Devices")
	_ = f.SetCellValue(summarySheet, "B5", deviceLabel(r))
	_ = f.SetCellValue(summarySheet, "A6", "Total Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "B6", r.TotalEnergyKWh)
	_ = f.SetCellValue(summarySheet, "A7", "Peak Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "B7", r.PeakEnergyKWh)
	_ = f.SetCellValue(summarySheet, "A8", "Off-peak Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "B8", r.OffPeakKWh)
	_ = f.SetCellValue(summarySheet, "A9", "Total Cost")
	_ = f.SetCellValue(summarySheet, "B9", r.TotalCost)
	_ = f.SetCellValue(summarySheet, "A10", "Currency")
	_ = f.SetCellValue(summarySheet, "B10", r.Currency)
	_ = f.SetCellValue(summarySheet, "A11", "Generated")
	_ = f.SetCellValue(summarySheet, "B11", r.GeneratedAt.Format(time.RFC3339))

	headers := []string{"Day", "Device ID", "Device", "Energy (kWh)", "Peak (kWh)", "Off-peak (kWh)", "Cost", "Peak hour", "Peak/Off-peak ratio"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(daysSheet, cell, h)
	}
	for i, row := range r.Rows {
		n := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", n), row.Date.Format("2006-01-02"))
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", n), row.DeviceID)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", n), row.DeviceName)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("D%d", n), row.TotalEnergyKWh)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("E%d", n), row.PeakEnergyKWh)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("F%d", n), row.OffPeakEnergyKWh)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("G%d", n), row.TotalCost)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("H%d", n), row.PeakHour)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("I%d", n), row.PeakToOffPeakRatio)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
