// Package report exports enriched approval requests as spreadsheets.
package report

import (
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/warp/approval-desk/approval"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Requests"

var requestHeaders = []string{
	"ID", "Budget ID", "Requested By", "Email", "Department", "Business Unit",
	"Designation", "Date", "Category", "Type", "Reason", "Total", "Total (display)",
	"Amount in Words", "Status", "Level", "Max Level", "Rejection Reason",
}

var columnWidths = []float64{6, 12, 20, 26, 16, 16, 16, 20, 14, 14, 30, 12, 16, 40, 10, 7, 9, 30}

// Requests writes reqs to a new workbook, one row per request in input
// order, followed by a summary row.
func Requests(reqs []approval.EnrichedRequest) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, h := range requestHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(requestHeaders))
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, err
	}

	for i, r := range reqs {
		row := rowOf(r)
		if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := writeSummary(f, len(reqs), lastCol); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, w); err != nil {
			return nil, fmt.Errorf("column %s width: %w", col, err)
		}
	}
	return f, nil
}

// writeSummary adds the totals row below n request rows.
func writeSummary(f *excelize.File, n int, lastCol string) error {
	row := n + 2
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellValue(SheetName, fmt.Sprintf("A%d", row), "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(SheetName, fmt.Sprintf("C%d", row), fmt.Sprintf("%d requests", n)); err != nil {
		return err
	}
	if err := f.SetCellFormula(SheetName, fmt.Sprintf("L%d", row), fmt.Sprintf("SUM(L2:L%d)", row-1)); err != nil {
		return err
	}
	return f.SetCellStyle(SheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), style)
}

func rowOf(r approval.EnrichedRequest) []interface{} {
	reason := ""
	if r.RejectionReason != nil {
		reason = *r.RejectionReason
	}
	return []interface{}{
		int64(r.ID),
		r.BudgetID,
		r.UserName,
		r.UserEmail,
		r.DepartmentName,
		r.BusinessUnitName,
		r.DesignationName,
		r.FormattedDate,
		r.ApprovalCategory,
		r.ApprovalType,
		r.Reason,
		r.Total.InexactFloat64(),
		r.FormattedTotal,
		r.TotalInWords,
		string(approval.StateOf(r.ApprovalRequest).Kind),
		r.CurrentLevel,
		r.MaxLevel,
		reason,
	}
}

// FileName returns a download name such as
// "approval-requests-pending-2025-03-21.xlsx".
func FileName(title string, at time.Time) string {
	s := slug.Make(title)
	if s == "" {
		s = "approval-requests"
	}
	return fmt.Sprintf("%s-%s.xlsx", s, at.Format("2006-01-02"))
}
