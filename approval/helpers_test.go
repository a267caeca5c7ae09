package approval_test

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/approval-desk/approval"
)

// =============================================================================
// FAKE DIRECTORY
// =============================================================================

var errBackendDown = errors.New("backend down")

// fakeDirectory serves entities from maps and counts detail calls.
type fakeDirectory struct {
	mu sync.Mutex

	users         map[approval.UserID]approval.User
	departments   map[approval.DepartmentID]approval.Department
	businessUnits map[approval.BusinessUnitID]approval.BusinessUnit
	designations  map[approval.DesignationID]approval.Designation

	failDepartments map[approval.DepartmentID]bool
	failLists       bool

	userCalls        []approval.UserID
	departmentCalls  []approval.DepartmentID
	designationCalls []approval.DesignationID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:           map[approval.UserID]approval.User{},
		departments:     map[approval.DepartmentID]approval.Department{},
		businessUnits:   map[approval.BusinessUnitID]approval.BusinessUnit{},
		designations:    map[approval.DesignationID]approval.Designation{},
		failDepartments: map[approval.DepartmentID]bool{},
	}
}

func (f *fakeDirectory) ListUsers(context.Context) ([]approval.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLists {
		return nil, errBackendDown
	}
	var out []approval.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeDirectory) ListDepartments(context.Context) ([]approval.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLists {
		return nil, errBackendDown
	}
	var out []approval.Department
	for _, d := range f.departments {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDirectory) ListBusinessUnits(context.Context) ([]approval.BusinessUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLists {
		return nil, errBackendDown
	}
	var out []approval.BusinessUnit
	for _, b := range f.businessUnits {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeDirectory) ListDesignations(context.Context) ([]approval.Designation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLists {
		return nil, errBackendDown
	}
	var out []approval.Designation
	for _, d := range f.designations {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDirectory) GetUser(_ context.Context, id approval.UserID) (*approval.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls = append(f.userCalls, id)
	u, ok := f.users[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return &u, nil
}

func (f *fakeDirectory) GetDepartment(_ context.Context, id approval.DepartmentID) (*approval.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.departmentCalls = append(f.departmentCalls, id)
	if f.failDepartments[id] {
		return nil, errBackendDown
	}
	d, ok := f.departments[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return &d, nil
}

func (f *fakeDirectory) GetBusinessUnit(_ context.Context, id approval.BusinessUnitID) (*approval.BusinessUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.businessUnits[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return &b, nil
}

func (f *fakeDirectory) GetDesignation(_ context.Context, id approval.DesignationID) (*approval.Designation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.designationCalls = append(f.designationCalls, id)
	d, ok := f.designations[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return &d, nil
}

func (f *fakeDirectory) departmentCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.departmentCalls)
}

// =============================================================================
// FAKE WORKFLOW
// =============================================================================

// fakeWorkflow records calls and applies the level-advance semantics.
type fakeWorkflow struct {
	mu       sync.Mutex
	requests map[approval.RequestID]approval.ApprovalRequest

	actionErr  error
	refreshErr error
	commentErr error

	approveCalls int
	rejectCalls  int
	payloads     []approval.ActionPayload
	comments     []approval.Comment
}

func newFakeWorkflow(reqs ...approval.ApprovalRequest) *fakeWorkflow {
	f := &fakeWorkflow{requests: map[approval.RequestID]approval.ApprovalRequest{}}
	for _, r := range reqs {
		f.requests[r.ID] = r
	}
	return f
}

func (f *fakeWorkflow) GetRequest(_ context.Context, id approval.RequestID) (*approval.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	r, ok := f.requests[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return &r, nil
}

func (f *fakeWorkflow) ApproveRequest(_ context.Context, id approval.RequestID, p approval.ActionPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveCalls++
	f.payloads = append(f.payloads, p)
	if f.actionErr != nil {
		return f.actionErr
	}
	r := f.requests[id]
	r.CurrentLevel++
	if r.CurrentLevel > r.MaxLevel {
		r.CurrentStatus = approval.StatusApproved
	}
	f.requests[id] = r
	return nil
}

func (f *fakeWorkflow) RejectRequest(_ context.Context, id approval.RequestID, p approval.ActionPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectCalls++
	f.payloads = append(f.payloads, p)
	if f.actionErr != nil {
		return f.actionErr
	}
	r := f.requests[id]
	r.Rejected = true
	r.CurrentStatus = approval.StatusRejected
	reason := p.Reason
	r.RejectionReason = &reason
	f.requests[id] = r
	return nil
}

func (f *fakeWorkflow) PostComment(_ context.Context, c approval.Comment) (*approval.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	c.ID = approval.CommentID(len(f.comments) + 1)
	f.comments = append(f.comments, c)
	return &c, nil
}

// =============================================================================
// FIXTURES
// =============================================================================

func pendingRequest(id approval.RequestID, user approval.UserID, dept approval.DepartmentID, level int) approval.ApprovalRequest {
	return approval.ApprovalRequest{
		ID:            id,
		BudgetID:      "BUD-001",
		Date:          "2025-03-21T15:30:00Z",
		Total:         decimal.NewFromInt(1234567),
		CurrentStatus: approval.StatusPending,
		CurrentLevel:  level,
		MaxLevel:      3,
		User:          user,
		Department:    dept,
		BusinessUnit:  1,
		Designation:   1,
	}
}
