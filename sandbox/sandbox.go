/*
Package sandbox is an in-memory stand-in for the approvals REST backend.

PURPOSE:
  Runs the desk without the real backend (server -sandbox) and gives the
  backend client and API tests a real HTTP peer.

WORKFLOW SEMANTICS:
  approve: current_level += 1; once current_level > max_level the status
           becomes Approved
  reject:  rejected = true, rejection_reason set, status Rejected
  Acting on a request that is Approved or Rejected answers 409.
  An action whose level differs from current_level answers 409.

LIST ENCODINGS:
  userInfo, approval-requests and approver answer paginated envelopes
  ({count, next, previous, results}); every other list is a bare array.
  Both decode paths of the client are exercised that way.

NOT MODELLED:
  Authorization. Any bearer token, or none, is accepted.
*/
package sandbox

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/approval-desk/approval"
)

const DefaultPageSize = 20

// Backend holds the sandbox state. All methods are safe for concurrent use.
type Backend struct {
	mu sync.RWMutex

	users         map[approval.UserID]approval.User
	departments   map[approval.DepartmentID]approval.Department
	businessUnits map[approval.BusinessUnitID]approval.BusinessUnit
	designations  map[approval.DesignationID]approval.Designation
	requests      map[approval.RequestID]approval.ApprovalRequest
	approvers     map[approval.ApproverID]approval.Approver
	items         []approval.Item
	attachments   []approval.Attachment
	comments      []approval.Comment

	nextApprover approval.ApproverID
	nextComment  approval.CommentID

	PageSize int
	Now      func() time.Time
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		users:         map[approval.UserID]approval.User{},
		departments:   map[approval.DepartmentID]approval.Department{},
		businessUnits: map[approval.BusinessUnitID]approval.BusinessUnit{},
		designations:  map[approval.DesignationID]approval.Designation{},
		requests:      map[approval.RequestID]approval.ApprovalRequest{},
		approvers:     map[approval.ApproverID]approval.Approver{},
		nextApprover:  1,
		nextComment:   1,
		PageSize:      DefaultPageSize,
		Now:           time.Now,
	}
}

// =============================================================================
// STATE ACCESS
// =============================================================================

func (b *Backend) PutUser(u approval.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[u.ID] = u
}

func (b *Backend) PutDepartment(d approval.Department) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.departments[d.ID] = d
}

func (b *Backend) PutBusinessUnit(bu approval.BusinessUnit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.businessUnits[bu.ID] = bu
}

func (b *Backend) PutDesignation(d approval.Designation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.designations[d.ID] = d
}

func (b *Backend) PutRequest(r approval.ApprovalRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests[r.ID] = r
}

func (b *Backend) PutItem(it approval.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, it)
}

func (b *Backend) PutAttachment(a approval.Attachment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attachments = append(b.attachments, a)
}

// AddApprover stores an assignment and returns it with its new id.
func (b *Backend) AddApprover(a approval.Approver) approval.Approver {
	b.mu.Lock()
	defer b.mu.Unlock()
	a.ID = b.nextApprover
	b.nextApprover++
	b.approvers[a.ID] = a
	return a
}

// AddComment appends a chat message and returns it with its new id.
func (b *Backend) AddComment(c approval.Comment) approval.Comment {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.ID = b.nextComment
	b.nextComment++
	if c.Timestamp.IsZero() {
		c.Timestamp = b.now()
	}
	c.Synthetic = false
	b.comments = append(b.comments, c)
	return c
}

// Request returns a copy of a stored request.
func (b *Backend) Request(id approval.RequestID) (approval.ApprovalRequest, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.requests[id]
	return r, ok
}

func (b *Backend) now() time.Time {
	if b.Now == nil {
		return time.Now().UTC()
	}
	return b.Now().UTC()
}

// =============================================================================
// ROUTER
// =============================================================================

// Router returns the REST surface. Mount it wherever the base URL points,
// e.g. r.Mount("/api", backend.Router()).
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/userInfo/", b.listUsers)
	r.Get("/userInfo/{id}/", b.getUser)
	r.Get("/departments/", b.listDepartments)
	r.Get("/departments/{id}/", b.getDepartment)
	r.Get("/business-units/", b.listBusinessUnits)
	r.Get("/business-units/{id}/", b.getBusinessUnit)
	r.Get("/designations/", b.listDesignations)
	r.Get("/designations/{id}/", b.getDesignation)

	r.Get("/approver/", b.listApprovers)
	r.Post("/approver/", b.createApprover)
	r.Delete("/approver/{id}/", b.deleteApprover)

	r.Get("/approval-requests/", b.listRequests)
	r.Get("/approval-requests/{id}/", b.getRequest)
	r.Post("/approval-requests/{id}/approve/", b.approve)
	r.Post("/approval-requests/{id}/reject/", b.reject)

	r.Get("/approval-items/", b.listItems)
	r.Get("/approval-attachments", b.listAttachments)
	r.Get("/chats", b.listChats)
	r.Post("/chats", b.postChat)

	return r
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func queryID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id
}

// sortedValues returns map values ordered by key.
func sortedValues[K ~int64, V any](m map[K]V) []V {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// =============================================================================
// PAGINATION
// =============================================================================

type envelope struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  any     `json:"results"`
}

// writePage answers a paginated envelope for list, honouring ?page= and
// ?page_size=. Next/previous links are absolute.
func writePage[T any](w http.ResponseWriter, r *http.Request, pageSize int, list []T) {
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 {
		pageSize = n
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page := 1
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		page = n
	}

	start := (page - 1) * pageSize
	if start > len(list) {
		start = len(list)
	}
	end := start + pageSize
	if end > len(list) {
		end = len(list)
	}

	results := list[start:end]
	if results == nil {
		results = []T{}
	}
	env := envelope{Count: len(list), Results: results}
	if end < len(list) {
		next := pageURL(r, page+1)
		env.Next = &next
	}
	if page > 1 {
		prev := pageURL(r, page-1)
		env.Previous = &prev
	}
	writeJSON(w, http.StatusOK, env)
}

func pageURL(r *http.Request, page int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	return scheme + "://" + r.Host + r.URL.Path + "?" + q.Encode()
}

// writeBare answers a bare JSON array, never null.
func writeBare[T any](w http.ResponseWriter, list []T) {
	if list == nil {
		list = []T{}
	}
	writeJSON(w, http.StatusOK, list)
}
