package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/report"
	"github.com/xuri/excelize/v2"
)

func enriched(id approval.RequestID, user string, total int64, rejected bool) approval.EnrichedRequest {
	r := approval.EnrichedRequest{
		ApprovalRequest: approval.ApprovalRequest{
			ID:            id,
			BudgetID:      "B-1",
			Total:         decimal.NewFromInt(total),
			CurrentStatus: approval.StatusPending,
			CurrentLevel:  2,
			MaxLevel:      3,
		},
		UserName:       user,
		DepartmentName: "Operations",
		FormattedTotal: approval.FormatCurrency(decimal.NewFromInt(total)),
	}
	if rejected {
		reason := "Over budget for the quarter"
		r.Rejected = true
		r.RejectionReason = &reason
		r.CurrentStatus = approval.StatusRejected
	}
	return r
}

func TestRequests_WritesRowsInOrder(t *testing.T) {
	// GIVEN: Two enriched requests
	reqs := []approval.EnrichedRequest{
		enriched(7, "Asha Nair", 1234567, false),
		enriched(3, "Ravi Kumar", 5000, true),
	}

	// WHEN: Exporting and reading the workbook back
	f, err := report.Requests(reqs)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	back, err := excelize.OpenReader(&buf)
	require.NoError(t, err)

	rows, err := back.GetRows(report.SheetName)
	require.NoError(t, err)

	// THEN: Header, one row per request in input order, then the summary
	require.Len(t, rows, 4)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "Requested By", rows[0][2])

	assert.Equal(t, "7", rows[1][0])
	assert.Equal(t, "Asha Nair", rows[1][2])
	assert.Equal(t, "1234567", rows[1][11])
	assert.Equal(t, "₹12,34,567", rows[1][12])
	assert.Equal(t, "pending", rows[1][14])

	assert.Equal(t, "3", rows[2][0])
	assert.Equal(t, "rejected", rows[2][14])
	assert.Equal(t, "Over budget for the quarter", rows[2][17])

	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "2 requests", rows[3][2])

	formula, err := back.GetCellFormula(report.SheetName, "L4")
	require.NoError(t, err)
	assert.Equal(t, "SUM(L2:L3)", formula)
}

func TestRequests_Empty(t *testing.T) {
	f, err := report.Requests(nil)
	require.NoError(t, err)

	rows, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0 requests", rows[1][2])
}

func TestFileName(t *testing.T) {
	at := time.Date(2025, 3, 21, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, "approval-requests-pending-2025-03-21.xlsx", report.FileName("Approval Requests: Pending", at))
	assert.Equal(t, "approval-requests-2025-03-21.xlsx", report.FileName("", at))
}

func TestRequests_SingleRowReadsBack(t *testing.T) {
	// GIVEN: One request
	f, err := report.Requests([]approval.EnrichedRequest{enriched(1, "Asha Nair", 900, false)})

	// THEN: The row lands between header and summary
	require.NoError(t, err)
	rows, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Asha Nair", rows[1][2])
	assert.Equal(t, "₹900", rows[1][12])
	assert.Equal(t, "1 requests", rows[2][2])

	formula, err := f.GetCellFormula(report.SheetName, "L3")
	require.NoError(t, err)
	assert.Equal(t, "SUM(L2:L2)", formula)
}
