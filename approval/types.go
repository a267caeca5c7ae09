/*
Package approval provides the decision logic of the approval desk.

PURPOSE:
  The approvals backend owns persistence and authorization. What the desk
  owns is the logic every screen used to repeat on its own: turning foreign
  keys into names, deciding whether the viewer may act on a request, and
  carrying an approve/reject action through to a refreshed record.

KEY CONCEPTS IN THIS FILE (types.go):
  - Organisation: BusinessUnit > Department > Designation (level), User
  - ApprovalRequest: the mutable record that moves through levels
  - Approver: an assignment of a user to (business unit, department, level)
  - Comment: append-only chat attached to a request

INVARIANTS (ApprovalRequest):
  1. CurrentLevel never decreases while the request is open
  2. Rejected == true is terminal
  3. Status "Approved" <=> CurrentLevel > MaxLevel
  4. RejectionReason is set only when Rejected

SEE ALSO:
  - registry.go: id -> entity lookups with fallback labels
  - enrich.go: display fields for requests and approvers
  - eligibility.go: who may act on a request
  - dispatch.go: approve / reject
*/
package approval

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID int64
type DepartmentID int64
type BusinessUnitID int64
type DesignationID int64
type RequestID int64
type ApproverID int64
type CommentID int64

// =============================================================================
// ORGANISATION
// =============================================================================

// User is a requester, approver or commenter as returned by /userInfo/.
// The organisational fields are optional; not every user has them filled.
type User struct {
	ID           UserID          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Department   *DepartmentID   `json:"department,omitempty"`
	Designation  *DesignationID  `json:"designation,omitempty"`
	BusinessUnit *BusinessUnitID `json:"business_unit,omitempty"`
}

// Designation carries the approval level. Higher level = more authority.
type Designation struct {
	ID         DesignationID `json:"id"`
	Name       string        `json:"name"`
	Level      int           `json:"level"`
	Department *DepartmentID `json:"department,omitempty"`
}

type Department struct {
	ID           DepartmentID   `json:"id"`
	Name         string         `json:"name"`
	BusinessUnit BusinessUnitID `json:"business_unit"`
}

type BusinessUnit struct {
	ID   BusinessUnitID `json:"id"`
	Name string         `json:"name"`
}

// =============================================================================
// APPROVAL REQUEST
// =============================================================================

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Is compares statuses case-insensitively; the backend is not consistent
// about casing.
func (s Status) Is(other Status) bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), string(other))
}

// Normalize maps known statuses to their canonical casing and leaves
// anything else untouched.
func (s Status) Normalize() Status {
	for _, known := range []Status{StatusPending, StatusApproved, StatusRejected} {
		if s.Is(known) {
			return known
		}
	}
	return s
}

// ApprovalRequest is a budget/asset request moving through approval levels.
type ApprovalRequest struct {
	ID               RequestID       `json:"id"`
	BudgetID         string          `json:"budget_id"`
	Date             string          `json:"date"`
	Total            decimal.Decimal `json:"total"`
	Reason           string          `json:"reason"`
	PolicyAgreement  bool            `json:"policy_agreement"`
	CurrentStatus    Status          `json:"current_status"`
	CurrentLevel     int             `json:"current_level"`
	MaxLevel         int             `json:"max_level"`
	Rejected         bool            `json:"rejected"`
	RejectionReason  *string         `json:"rejection_reason"`
	User             UserID          `json:"user"`
	BusinessUnit     BusinessUnitID  `json:"business_unit"`
	Department       DepartmentID    `json:"department"`
	Designation      DesignationID   `json:"designation"`
	ApprovalCategory string          `json:"approval_category"`
	ApprovalType     string          `json:"approval_type"`
}

// Approver declares that User may approve requests of (BusinessUnit,
// Department) at exactly Level.
type Approver struct {
	ID           ApproverID     `json:"id"`
	User         UserID         `json:"user"`
	BusinessUnit BusinessUnitID `json:"business_unit"`
	Department   DepartmentID   `json:"department"`
	Level        int            `json:"level"`
}

// Item is a line of an approval request (/approval-items/).
type Item struct {
	ID          int64           `json:"id"`
	Request     RequestID       `json:"approval_request"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Attachment is a file uploaded against a request (/approval-attachments).
type Attachment struct {
	ID         int64     `json:"id"`
	Request    RequestID `json:"approval_request"`
	Name       string    `json:"name"`
	File       string    `json:"file"`
	UploadedAt string    `json:"uploaded_at,omitempty"`
}

// =============================================================================
// COMMENTS
// =============================================================================

// Comment is a chat message on a request. Comments are never edited or
// deleted; their order is insertion order.
type Comment struct {
	ID        CommentID `json:"id"`
	Request   RequestID `json:"approval_request"`
	Author    UserID    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`

	// Synthetic marks a comment created locally for an action that the
	// backend has not (yet) echoed back.
	Synthetic bool `json:"-"`
}
