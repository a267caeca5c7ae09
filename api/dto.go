/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Requests:
    RequestDTO (enriched request + can_act), RequestDetailResponse,
    StateDTO

  Actions:
    ApproveRequest, RejectRequest, ActionResultResponse, ActionRecordDTO

  Viewer:
    MeDTO

  Admin:
    AdminSessionRequest, AdminSessionResponse, CreateApproverRequest

Enriched records already carry their JSON shape (see approval/enrich.go);
DTOs here only add what the API decides per viewer.
*/
package api

import (
	"time"

	"github.com/warp/approval-desk/approval"
)

// =============================================================================
// REQUESTS
// =============================================================================

// RequestDTO is an enriched request as seen by one viewer.
type RequestDTO struct {
	approval.EnrichedRequest

	CanAct     bool                `json:"can_act"`
	DenyReason approval.DenyReason `json:"deny_reason,omitempty"`
	State      StateDTO            `json:"state"`
}

// StateDTO is the derived request state plus any drift between the fields
// it was derived from.
type StateDTO struct {
	Kind            approval.StateKind `json:"kind"`
	Level           int                `json:"level,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	Inconsistencies []string           `json:"inconsistencies,omitempty"`
}

// RequestDetailResponse is the single-request page.
type RequestDetailResponse struct {
	Request     RequestDTO                 `json:"request"`
	Comments    []approval.EnrichedComment `json:"comments"`
	Items       []approval.Item            `json:"items"`
	Attachments []approval.Attachment      `json:"attachments"`
}

// =============================================================================
// ACTIONS
// =============================================================================

// ApproveRequest is the body of POST /api/requests/{id}/approve.
type ApproveRequest struct {
	Comment string `json:"comment"`
}

// RejectRequest is the body of POST /api/requests/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// ActionResultResponse is returned after a successful action. Request is
// nil when the re-fetch failed; Refreshed tells the client to reload.
type ActionResultResponse struct {
	ActionID  string                   `json:"action_id"`
	Refreshed bool                     `json:"refreshed"`
	Request   *RequestDTO              `json:"request,omitempty"`
	Comment   approval.EnrichedComment `json:"comment"`
	Synthetic bool                     `json:"synthetic"`
}

// ActionRecordDTO is one journal entry.
type ActionRecordDTO struct {
	ID          string  `json:"id"`
	RequestID   int64   `json:"request_id"`
	ActorID     int64   `json:"actor_id"`
	Action      string  `json:"action"`
	Level       int     `json:"level"`
	Designation int64   `json:"designation"`
	Text        string  `json:"text,omitempty"`
	Outcome     string  `json:"outcome"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// =============================================================================
// VIEWER
// =============================================================================

// MeDTO describes the authenticated viewer.
type MeDTO struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	DepartmentID     int64  `json:"department_id,omitempty"`
	DepartmentName   string `json:"department_name,omitempty"`
	DesignationID    int64  `json:"designation_id,omitempty"`
	DesignationName  string `json:"designation_name,omitempty"`
	DesignationLevel int    `json:"designation_level"`
	CanApprove       bool   `json:"can_approve"`
}

// =============================================================================
// ADMIN
// =============================================================================

type AdminSessionRequest struct {
	Passcode string `json:"passcode"`
}

type AdminSessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type CreateApproverRequest struct {
	User         int64 `json:"user"`
	BusinessUnit int64 `json:"business_unit"`
	Department   int64 `json:"department"`
	Level        int   `json:"level"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toStateDTO(r approval.ApprovalRequest) StateDTO {
	st := approval.StateOf(r)
	dto := StateDTO{Kind: st.Kind, Level: st.Level, Reason: st.Reason}
	for _, inc := range approval.CheckConsistency(r) {
		dto.Inconsistencies = append(dto.Inconsistencies, string(inc))
	}
	return dto
}

func toActionRecordDTO(rec approval.ActionRecord) ActionRecordDTO {
	dto := ActionRecordDTO{
		ID:          rec.ID,
		RequestID:   int64(rec.RequestID),
		ActorID:     int64(rec.ActorID),
		Action:      string(rec.Action),
		Level:       rec.Level,
		Designation: int64(rec.Designation),
		Text:        rec.Text,
		Outcome:     string(rec.Outcome),
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.Error != "" {
		dto.Error = &rec.Error
	}
	return dto
}

func toActionRecordDTOs(recs []approval.ActionRecord) []ActionRecordDTO {
	dtos := make([]ActionRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toActionRecordDTO(rec)
	}
	return dtos
}
