package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/warp/approval-desk/approval"
)

// Backend paths.
const (
	PathUsers         = "/userInfo/"
	PathDepartments   = "/departments/"
	PathBusinessUnits = "/business-units/"
	PathDesignations  = "/designations/"
	PathApprovers     = "/approver/"
	PathRequests      = "/approval-requests/"
	PathItems         = "/approval-items/"
	PathChats         = "/chats"
	PathAttachments   = "/approval-attachments"
)

var (
	_ approval.Directory = (*Client)(nil)
	_ approval.Workflow  = (*Client)(nil)
)

func detail(base string, id int64) string {
	return base + strconv.FormatInt(id, 10) + "/"
}

func byRequest(id approval.RequestID) url.Values {
	return url.Values{"approval_request": {strconv.FormatInt(int64(id), 10)}}
}

// =============================================================================
// DIRECTORY (approval.Directory interface)
// =============================================================================

func (c *Client) ListUsers(ctx context.Context) ([]approval.User, error) {
	return listAll[approval.User](ctx, c, PathUsers, nil)
}

func (c *Client) ListDepartments(ctx context.Context) ([]approval.Department, error) {
	return listAll[approval.Department](ctx, c, PathDepartments, nil)
}

func (c *Client) ListBusinessUnits(ctx context.Context) ([]approval.BusinessUnit, error) {
	return listAll[approval.BusinessUnit](ctx, c, PathBusinessUnits, nil)
}

func (c *Client) ListDesignations(ctx context.Context) ([]approval.Designation, error) {
	return listAll[approval.Designation](ctx, c, PathDesignations, nil)
}

func (c *Client) GetUser(ctx context.Context, id approval.UserID) (*approval.User, error) {
	var u approval.User
	if err := c.get(ctx, detail(PathUsers, int64(id)), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GetDepartment(ctx context.Context, id approval.DepartmentID) (*approval.Department, error) {
	var d approval.Department
	if err := c.get(ctx, detail(PathDepartments, int64(id)), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) GetBusinessUnit(ctx context.Context, id approval.BusinessUnitID) (*approval.BusinessUnit, error) {
	var b approval.BusinessUnit
	if err := c.get(ctx, detail(PathBusinessUnits, int64(id)), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) GetDesignation(ctx context.Context, id approval.DesignationID) (*approval.Designation, error) {
	var d approval.Designation
	if err := c.get(ctx, detail(PathDesignations, int64(id)), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// =============================================================================
// APPROVAL REQUESTS (approval.Workflow interface)
// =============================================================================

// RequestFilter narrows ListRequests. Zero fields are not sent.
type RequestFilter struct {
	Status     approval.Status
	Department approval.DepartmentID
	User       approval.UserID
}

func (f RequestFilter) query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("current_status", string(f.Status.Normalize()))
	}
	if f.Department != 0 {
		q.Set("department", strconv.FormatInt(int64(f.Department), 10))
	}
	if f.User != 0 {
		q.Set("user", strconv.FormatInt(int64(f.User), 10))
	}
	return q
}

func (c *Client) ListRequests(ctx context.Context, f RequestFilter) ([]approval.ApprovalRequest, error) {
	return listAll[approval.ApprovalRequest](ctx, c, PathRequests, f.query())
}

func (c *Client) GetRequest(ctx context.Context, id approval.RequestID) (*approval.ApprovalRequest, error) {
	var r approval.ApprovalRequest
	if err := c.get(ctx, detail(PathRequests, int64(id)), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) ApproveRequest(ctx context.Context, id approval.RequestID, p approval.ActionPayload) error {
	return c.post(ctx, detail(PathRequests, int64(id))+"approve/", p, nil)
}

func (c *Client) RejectRequest(ctx context.Context, id approval.RequestID, p approval.ActionPayload) error {
	return c.post(ctx, detail(PathRequests, int64(id))+"reject/", p, nil)
}

// =============================================================================
// REQUEST DETAILS
// =============================================================================

func (c *Client) ListItems(ctx context.Context, id approval.RequestID) ([]approval.Item, error) {
	return listAll[approval.Item](ctx, c, PathItems, byRequest(id))
}

func (c *Client) ListAttachments(ctx context.Context, id approval.RequestID) ([]approval.Attachment, error) {
	return listAll[approval.Attachment](ctx, c, PathAttachments, byRequest(id))
}

func (c *Client) ListComments(ctx context.Context, id approval.RequestID) ([]approval.Comment, error) {
	return listAll[approval.Comment](ctx, c, PathChats, byRequest(id))
}

type chatPayload struct {
	Request   approval.RequestID `json:"approval_request"`
	Author    approval.UserID    `json:"author"`
	Text      string             `json:"text"`
	Level     int                `json:"level"`
	Timestamp time.Time          `json:"timestamp"`
}

func (c *Client) PostComment(ctx context.Context, cm approval.Comment) (*approval.Comment, error) {
	var out approval.Comment
	err := c.post(ctx, PathChats, chatPayload{
		Request:   cm.Request,
		Author:    cm.Author,
		Text:      cm.Text,
		Level:     cm.Level,
		Timestamp: cm.Timestamp,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// APPROVER ASSIGNMENTS
// =============================================================================

func (c *Client) ListApprovers(ctx context.Context) ([]approval.Approver, error) {
	return listAll[approval.Approver](ctx, c, PathApprovers, nil)
}

// CreateApprover posts a new assignment; the ID of a is ignored.
func (c *Client) CreateApprover(ctx context.Context, a approval.Approver) (*approval.Approver, error) {
	if a.Level < 1 {
		return nil, &approval.ValidationError{
			Field:   "level",
			Message: fmt.Sprintf("must be at least 1, got %d", a.Level),
		}
	}
	var out approval.Approver
	if err := c.post(ctx, PathApprovers, approverPayload(a), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteApprover(ctx context.Context, id approval.ApproverID) error {
	return c.delete(ctx, detail(PathApprovers, int64(id)))
}

type approverBody struct {
	User         approval.UserID         `json:"user"`
	BusinessUnit approval.BusinessUnitID `json:"business_unit"`
	Department   approval.DepartmentID   `json:"department"`
	Level        int                     `json:"level"`
}

func approverPayload(a approval.Approver) approverBody {
	return approverBody{User: a.User, BusinessUnit: a.BusinessUnit, Department: a.Department, Level: a.Level}
}
