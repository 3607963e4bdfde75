// Package report renders analytics responses as downloadable documents.
package report

import (
	"bytes"
	"fmt"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "summary"
	PointsSheet  = "points"

	// ContentTypeXLSX is the media type of the workbooks built here.
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var hundred = decimal.NewFromInt(100)

// Margin is profit as a percentage of revenue, rounded to two places. It is
// zero when there is no revenue.
func Margin(revenue, profit decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return profit.Mul(hundred).DivRound(revenue, 2)
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// FinancialXLSX renders financial metrics as a workbook with a summary sheet
// and one row per data point. Money cells are rounded to cents.
func FinancialXLSX(m apiclient.FinancialMetricsResponse, currency string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(PointsSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	if currency == "" {
		currency = "USD"
	}

	summary := [][2]interface{}{
		{"Financial Metrics", nil},
		{nil, nil},
		{"Period Start", m.PeriodStart},
		{"Period End", m.PeriodEnd},
		{"Currency", currency},
		{"Total Revenue", money(m.TotalRevenue)},
		{"Total Costs", money(m.TotalCosts)},
		{"Net Profit", money(m.NetProfit)},
		{"Margin (%)", Margin(m.TotalRevenue, m.NetProfit).InexactFloat64()},
		{"ROI", m.ROI},
	}
	for i, row := range summary {
		r := i + 1
		if row[0] != nil {
			if err := f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", r), row[0]); err != nil {
				return nil, err
			}
		}
		if row[1] != nil {
			if err := f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", r), row[1]); err != nil {
				return nil, err
			}
		}
	}

	header := []interface{}{"Timestamp", "Revenue", "Costs", "Profit", "Margin (%)"}
	if err := f.SetSheetRow(PointsSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, p := range m.DataPoints {
		row := []interface{}{
			p.Timestamp,
			money(p.Revenue),
			money(p.Costs),
			money(p.Profit),
			Margin(p.Revenue, p.Profit).InexactFloat64(),
		}
		if err := f.SetSheetRow(PointsSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// FinancialFilename names the export of a period.
func FinancialFilename(start, end string) string {
	if start == "" && end == "" {
		return "financial-metrics.xlsx"
	}
	return fmt.Sprintf("financial-metrics_%s_%s.xlsx", orAll(start), orAll(end))
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}
