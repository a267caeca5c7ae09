package sandbox

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/approval-desk/approval"
)

// =============================================================================
// DEMO ORGANISATION
// =============================================================================

// Seed ids, exported so tests and docs can refer to them.
const (
	BURetail    approval.BusinessUnitID = 1
	BUCorporate approval.BusinessUnitID = 2

	DeptFinance    approval.DepartmentID = 1
	DeptOperations approval.DepartmentID = 2
	DeptMarketing  approval.DepartmentID = 3

	DesigAssociate approval.DesignationID = 1 // level 1
	DesigManager   approval.DesignationID = 2 // level 2
	DesigDirector  approval.DesignationID = 3 // level 3
	DesigVP        approval.DesignationID = 4 // level 4

	UserAsha   approval.UserID = 101 // Operations, Associate
	UserRavi   approval.UserID = 102 // Operations, Manager
	UserMeera  approval.UserID = 103 // Operations, Director
	UserKaran  approval.UserID = 104 // Finance, Manager
	UserPriya  approval.UserID = 105 // Marketing, Associate
	UserVikram approval.UserID = 106 // Operations, Vice President

	ReqLaptops     approval.RequestID = 1 // Operations, awaiting level 2
	ReqCampaign    approval.RequestID = 2 // Marketing, awaiting level 1
	ReqApproved    approval.RequestID = 3 // Operations, fully approved
	ReqRejected    approval.RequestID = 4 // Finance, rejected
	ReqWarehouse   approval.RequestID = 5 // Operations, awaiting level 3
	ReqStaleStatus approval.RequestID = 6 // Operations, Approved status at level 2
)

// NewSeeded returns a backend holding the demo organisation.
func NewSeeded() *Backend {
	b := New()
	Seed(b)
	return b
}

// Seed loads the demo organisation into b.
func Seed(b *Backend) {
	for _, bu := range []approval.BusinessUnit{
		{ID: BURetail, Name: "Retail"},
		{ID: BUCorporate, Name: "Corporate"},
	} {
		b.PutBusinessUnit(bu)
	}

	for _, d := range []approval.Department{
		{ID: DeptFinance, Name: "Finance", BusinessUnit: BUCorporate},
		{ID: DeptOperations, Name: "Operations", BusinessUnit: BURetail},
		{ID: DeptMarketing, Name: "Marketing", BusinessUnit: BURetail},
	} {
		b.PutDepartment(d)
	}

	for _, d := range []approval.Designation{
		{ID: DesigAssociate, Name: "Associate", Level: 1},
		{ID: DesigManager, Name: "Manager", Level: 2},
		{ID: DesigDirector, Name: "Director", Level: 3},
		{ID: DesigVP, Name: "Vice President", Level: 4},
	} {
		b.PutDesignation(d)
	}

	for _, u := range []approval.User{
		user(UserAsha, "Asha Rao", "asha.rao@example.com", DeptOperations, DesigAssociate, BURetail),
		user(UserRavi, "Ravi Kumar", "ravi.kumar@example.com", DeptOperations, DesigManager, BURetail),
		user(UserMeera, "Meera Iyer", "meera.iyer@example.com", DeptOperations, DesigDirector, BURetail),
		user(UserKaran, "Karan Shah", "karan.shah@example.com", DeptFinance, DesigManager, BUCorporate),
		user(UserPriya, "Priya Nair", "priya.nair@example.com", DeptMarketing, DesigAssociate, BURetail),
		user(UserVikram, "Vikram Singh", "vikram.singh@example.com", DeptOperations, DesigVP, BURetail),
	} {
		b.PutUser(u)
	}

	for _, a := range []approval.Approver{
		{User: UserRavi, BusinessUnit: BURetail, Department: DeptOperations, Level: 2},
		{User: UserMeera, BusinessUnit: BURetail, Department: DeptOperations, Level: 3},
		{User: UserVikram, BusinessUnit: BURetail, Department: DeptOperations, Level: 4},
		{User: UserKaran, BusinessUnit: BUCorporate, Department: DeptFinance, Level: 2},
	} {
		b.AddApprover(a)
	}

	rejectReason := "Duplicate of an earlier audit engagement"
	for _, r := range []approval.ApprovalRequest{
		{
			ID: ReqLaptops, BudgetID: "BUD-2025-0001", Date: "2025-03-21T15:30:00Z",
			Total: decimal.NewFromInt(1234567), Reason: "Laptop refresh for the Q2 store rollout",
			PolicyAgreement: true, CurrentStatus: approval.StatusPending, CurrentLevel: 2, MaxLevel: 3,
			User: UserAsha, BusinessUnit: BURetail, Department: DeptOperations, Designation: DesigAssociate,
			ApprovalCategory: "Capex", ApprovalType: "Asset",
		},
		{
			ID: ReqCampaign, BudgetID: "BUD-2025-0002", Date: "2025-04-02T10:05:00Z",
			Total: decimal.NewFromInt(85000), Reason: "Festive season print campaign",
			PolicyAgreement: true, CurrentStatus: approval.StatusPending, CurrentLevel: 1, MaxLevel: 2,
			User: UserPriya, BusinessUnit: BURetail, Department: DeptMarketing, Designation: DesigAssociate,
			ApprovalCategory: "Opex", ApprovalType: "Budget",
		},
		{
			ID: ReqApproved, BudgetID: "BUD-2025-0003", Date: "2025-02-14T09:00:00Z",
			Total: decimal.NewFromInt(250000), Reason: "Handheld scanners",
			PolicyAgreement: true, CurrentStatus: approval.StatusApproved, CurrentLevel: 4, MaxLevel: 3,
			User: UserAsha, BusinessUnit: BURetail, Department: DeptOperations, Designation: DesigAssociate,
			ApprovalCategory: "Capex", ApprovalType: "Asset",
		},
		{
			ID: ReqRejected, BudgetID: "BUD-2025-0004", Date: "2025-03-01T12:45:00Z",
			Total: decimal.NewFromInt(600000), Reason: "External audit support",
			PolicyAgreement: true, CurrentStatus: approval.StatusRejected, CurrentLevel: 2, MaxLevel: 2,
			Rejected: true, RejectionReason: &rejectReason,
			User: UserKaran, BusinessUnit: BUCorporate, Department: DeptFinance, Designation: DesigManager,
			ApprovalCategory: "Opex", ApprovalType: "Service",
		},
		{
			ID: ReqWarehouse, BudgetID: "BUD-2025-0005", Date: "2025-03-28T17:20:00Z",
			Total: decimal.RequireFromString("4500000.50"), Reason: "Warehouse racking upgrade",
			PolicyAgreement: true, CurrentStatus: approval.StatusPending, CurrentLevel: 3, MaxLevel: 4,
			User: UserRavi, BusinessUnit: BURetail, Department: DeptOperations, Designation: DesigManager,
			ApprovalCategory: "Capex", ApprovalType: "Asset",
		},
		{
			// Status and level disagree: Approved, yet current_level still
			// matches a level-2 approver.
			ID: ReqStaleStatus, BudgetID: "BUD-2025-0006", Date: "2025-01-10T08:00:00Z",
			Total: decimal.NewFromInt(42000), Reason: "Safety signage",
			PolicyAgreement: true, CurrentStatus: approval.StatusApproved, CurrentLevel: 2, MaxLevel: 3,
			User: UserAsha, BusinessUnit: BURetail, Department: DeptOperations, Designation: DesigAssociate,
			ApprovalCategory: "Opex", ApprovalType: "Asset",
		},
	} {
		b.PutRequest(r)
	}

	b.PutItem(approval.Item{
		ID: 1, Request: ReqLaptops, Name: "Laptop", Description: "14-inch, 16 GB",
		Quantity: 10, UnitPrice: decimal.NewFromInt(85000), Total: decimal.NewFromInt(850000),
	})
	b.PutItem(approval.Item{
		ID: 2, Request: ReqLaptops, Name: "Monitor", Description: "27-inch",
		Quantity: 12, UnitPrice: decimal.RequireFromString("32047.25"), Total: decimal.NewFromInt(384567),
	})
	b.PutAttachment(approval.Attachment{
		ID: 1, Request: ReqLaptops, Name: "vendor-quote.pdf",
		File: "/media/attachments/vendor-quote.pdf", UploadedAt: "2025-03-21T15:31:00Z",
	})

	b.AddComment(approval.Comment{
		Request: ReqLaptops, Author: UserAsha, Level: 1,
		Text:      "Submitted for the Q2 rollout, quote attached",
		Timestamp: time.Date(2025, time.March, 21, 15, 32, 0, 0, time.UTC),
	})
}

func user(id approval.UserID, name, email string, dept approval.DepartmentID, desig approval.DesignationID, bu approval.BusinessUnitID) approval.User {
	return approval.User{
		ID:           id,
		Name:         name,
		Email:        email,
		Department:   &dept,
		Designation:  &desig,
		BusinessUnit: &bu,
	}
}
