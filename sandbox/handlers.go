package sandbox

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/warp/approval-desk/approval"
)

// =============================================================================
// ORGANISATION
// =============================================================================

func (b *Backend) listUsers(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	list := sortedValues(b.users)
	b.mu.RUnlock()
	writePage(w, r, b.PageSize, list)
}

func (b *Backend) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	b.mu.RLock()
	u, found := b.users[approval.UserID(id)]
	b.mu.RUnlock()
	if !ok || !found {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) listDepartments(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	list := sortedValues(b.departments)
	b.mu.RUnlock()
	writeBare(w, list)
}

func (b *Backend) getDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	b.mu.RLock()
	d, found := b.departments[approval.DepartmentID(id)]
	b.mu.RUnlock()
	if !ok || !found {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (b *Backend) listBusinessUnits(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	list := sortedValues(b.businessUnits)
	b.mu.RUnlock()
	writeBare(w, list)
}

func (b *Backend) getBusinessUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	b.mu.RLock()
	bu, found := b.businessUnits[approval.BusinessUnitID(id)]
	b.mu.RUnlock()
	if !ok || !found {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, bu)
}

func (b *Backend) listDesignations(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	list := sortedValues(b.designations)
	b.mu.RUnlock()
	writeBare(w, list)
}

func (b *Backend) getDesignation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	b.mu.RLock()
	d, found := b.designations[approval.DesignationID(id)]
	b.mu.RUnlock()
	if !ok || !found {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// =============================================================================
// APPROVERS
// =============================================================================

func (b *Backend) listApprovers(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	list := sortedValues(b.approvers)
	b.mu.RUnlock()
	writePage(w, r, b.PageSize, list)
}

func (b *Backend) createApprover(w http.ResponseWriter, r *http.Request) {
	var a approval.Approver
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if a.Level < 1 {
		writeError(w, http.StatusBadRequest, "level must be at least 1")
		return
	}

	b.mu.RLock()
	_, userOK := b.users[a.User]
	_, deptOK := b.departments[a.Department]
	b.mu.RUnlock()
	if !userOK || !deptOK {
		writeError(w, http.StatusBadRequest, "unknown user or department")
		return
	}

	writeJSON(w, http.StatusCreated, b.AddApprover(a))
}

func (b *Backend) deleteApprover(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	b.mu.Lock()
	_, found := b.approvers[approval.ApproverID(id)]
	if found {
		delete(b.approvers, approval.ApproverID(id))
	}
	b.mu.Unlock()
	if !ok || !found {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// APPROVAL REQUESTS
// =============================================================================

func (b *Backend) listRequests(w http.ResponseWriter, r *http.Request) {
	status := approval.Status(r.URL.Query().Get("current_status"))
	dept := approval.DepartmentID(queryID(r, "department"))
	user := approval.UserID(queryID(r, "user"))

	b.mu.RLock()
	all := sortedValues(b.requests)
	b.mu.RUnlock()

	list := make([]approval.ApprovalRequest, 0, len(all))
	for _, req := range all {
		if status != "" && !req.CurrentStatus.Is(status) {
			continue
		}
		if dept != 0 && req.Department != dept {
			continue
		}
		if user != 0 && req.User != user {
			continue
		}
		list = append(list, req)
	}
	writePage(w, r, b.PageSize, list)
}

func (b *Backend) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	req, found := b.Request(approval.RequestID(id))
	if !ok || !found {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (b *Backend) approve(w http.ResponseWriter, r *http.Request) {
	b.act(w, r, func(req *approval.ApprovalRequest, p approval.ActionPayload) (int, string) {
		req.CurrentLevel++
		if req.CurrentLevel > req.MaxLevel {
			req.CurrentStatus = approval.StatusApproved
		}
		return http.StatusOK, ""
	})
}

func (b *Backend) reject(w http.ResponseWriter, r *http.Request) {
	b.act(w, r, func(req *approval.ApprovalRequest, p approval.ActionPayload) (int, string) {
		reason := strings.TrimSpace(p.Reason)
		if reason == "" {
			return http.StatusBadRequest, "reason is required"
		}
		req.Rejected = true
		req.RejectionReason = &reason
		req.CurrentStatus = approval.StatusRejected
		return http.StatusOK, ""
	})
}

// act applies one transition under the write lock.
func (b *Backend) act(w http.ResponseWriter, r *http.Request, apply func(*approval.ApprovalRequest, approval.ActionPayload) (int, string)) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}

	var p approval.ActionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	req, found := b.requests[approval.RequestID(id)]
	if !found {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	if approval.StateOf(req).IsTerminal() {
		writeError(w, http.StatusConflict, "request is already "+string(approval.StateOf(req).Kind))
		return
	}
	if p.Level != 0 && p.Level != req.CurrentLevel {
		writeError(w, http.StatusConflict, "request is not awaiting this level")
		return
	}

	if status, msg := apply(&req, p); status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	b.requests[req.ID] = req
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// ITEMS, ATTACHMENTS, CHATS
// =============================================================================

func (b *Backend) listItems(w http.ResponseWriter, r *http.Request) {
	id := approval.RequestID(queryID(r, "approval_request"))
	b.mu.RLock()
	defer b.mu.RUnlock()

	var list []approval.Item
	for _, it := range b.items {
		if id == 0 || it.Request == id {
			list = append(list, it)
		}
	}
	writeBare(w, list)
}

func (b *Backend) listAttachments(w http.ResponseWriter, r *http.Request) {
	id := approval.RequestID(queryID(r, "approval_request"))
	b.mu.RLock()
	defer b.mu.RUnlock()

	var list []approval.Attachment
	for _, a := range b.attachments {
		if id == 0 || a.Request == id {
			list = append(list, a)
		}
	}
	writeBare(w, list)
}

func (b *Backend) listChats(w http.ResponseWriter, r *http.Request) {
	id := approval.RequestID(queryID(r, "approval_request"))
	b.mu.RLock()
	defer b.mu.RUnlock()

	var list []approval.Comment
	for _, c := range b.comments {
		if id == 0 || c.Request == id {
			list = append(list, c)
		}
	}
	writeBare(w, list)
}

func (b *Backend) postChat(w http.ResponseWriter, r *http.Request) {
	var c approval.Comment
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(c.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if _, ok := b.Request(c.Request); !ok {
		writeError(w, http.StatusBadRequest, "unknown approval_request")
		return
	}
	writeJSON(w, http.StatusCreated, b.AddComment(c))
}
