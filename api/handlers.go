/*
handlers.go - HTTP API handlers for the approval desk

PURPOSE:
  Exposes enrichment, eligibility and action dispatch to the dashboard.
  Every read goes to the backend with the viewer's own token; the desk keeps
  only the action journal and lockout state locally.

ENDPOINTS:
  Viewer:
    GET    /api/me                       Viewer profile and level

  Requests:
    GET    /api/requests                 Enriched list + can_act
    GET    /api/requests/export          Same list as .xlsx
    GET    /api/requests/{id}            Request, comments, items, attachments
    POST   /api/requests/{id}/approve    Approve at the viewer's level
    POST   /api/requests/{id}/reject     Reject with a reason (>= 10 chars)
    GET    /api/requests/{id}/actions    Action journal

  Admin:
    POST   /api/admin/session            Passcode login (lockout guarded)
    DELETE /api/admin/session            Logout
    GET    /api/admin/approvers          Enriched approver assignments
    POST   /api/admin/approvers          Create assignment
    DELETE /api/admin/approvers/{id}     Delete assignment

REQUEST FLOW (actions):
  1. Reject only: validate the reason locally; too short = 400, no call
  2. Fetch the request and the viewer; evaluate eligibility (403)
  3. Dispatch once; backend failure = 502 (409 when the backend says so)
  4. Re-fetch and enrich the request for the response

ERROR HANDLING:
  Errors are returned as JSON {error, details} with the status from
  statusFor:
  - 400: Validation errors, invalid input
  - 401: Missing/invalid token, wrong passcode
  - 403: Viewer may not act, admin disabled
  - 404: Request or record not found
  - 409: Backend refused the transition
  - 423: Too many passcode attempts
  - 502: Backend failed
  - 504: Backend call canceled or timed out

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Viewer and admin authentication
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/backend"
	"github.com/warp/approval-desk/lockout"
	"github.com/warp/approval-desk/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the part of the REST backend the API uses. *backend.Client
// implements it.
type Backend interface {
	approval.Directory
	approval.Workflow

	ListRequests(ctx context.Context, f backend.RequestFilter) ([]approval.ApprovalRequest, error)
	ListItems(ctx context.Context, id approval.RequestID) ([]approval.Item, error)
	ListAttachments(ctx context.Context, id approval.RequestID) ([]approval.Attachment, error)
	ListComments(ctx context.Context, id approval.RequestID) ([]approval.Comment, error)

	ListApprovers(ctx context.Context) ([]approval.Approver, error)
	CreateApprover(ctx context.Context, a approval.Approver) (*approval.Approver, error)
	DeleteApprover(ctx context.Context, id approval.ApproverID) error
}

var _ Backend = (*backend.Client)(nil)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Backend    Backend
	Journal    approval.Journal
	Dispatcher *approval.Dispatcher
	Evaluator  approval.Evaluator
	Log        zerolog.Logger

	// Dates formats request dates and comment times.
	Dates approval.DateFormatter
	// EnrichConcurrency bounds parallel detail fetches per request.
	EnrichConcurrency int

	// Admin is nil when no passcode is configured.
	Gate     *lockout.Gate
	Sessions *lockout.Sessions

	Now func() time.Time
}

// NewHandler wires a handler over the backend and journal.
func NewHandler(b Backend, journal approval.Journal, log zerolog.Logger) *Handler {
	return &Handler{
		Backend:           b,
		Journal:           journal,
		Dispatcher:        approval.NewDispatcher(b, journal, log),
		Log:               log,
		EnrichConcurrency: approval.DefaultEnrichConcurrency,
		Now:               time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// enricher builds the request-scoped registries and enricher.
func (h *Handler) enricher(ctx context.Context) *approval.Enricher {
	regs := approval.LoadRegistries(ctx, h.Backend, h.Log)
	e := approval.NewEnricher(h.Backend, regs, h.Log)
	e.Dates = h.Dates
	e.Concurrency = h.EnrichConcurrency
	return e
}

// viewer loads the calling user and resolves their designation level.
func (h *Handler) viewer(ctx context.Context, e *approval.Enricher) (*approval.User, approval.Viewer, error) {
	id, ok := ViewerID(ctx)
	if !ok {
		return nil, approval.Viewer{}, errNoViewer
	}
	u, err := h.Backend.GetUser(ctx, id)
	if err != nil {
		return nil, approval.Viewer{}, fmt.Errorf("load viewer %d: %w", id, err)
	}
	return u, e.Viewer(ctx, *u), nil
}

func (h *Handler) requestDTO(v approval.Viewer, er approval.EnrichedRequest) RequestDTO {
	d := h.Evaluator.Evaluate(v, er.ApprovalRequest)
	if d.StateConflict {
		h.Log.Debug().
			Int64("request_id", int64(er.ID)).
			Str("status", string(er.CurrentStatus)).
			Int("current_level", er.CurrentLevel).
			Bool("allowed", d.Allowed).
			Msg("eligibility passed on a request that is not pending")
	}
	return RequestDTO{
		EnrichedRequest: er,
		CanAct:          d.Allowed,
		DenyReason:      d.Reason,
		State:           toStateDTO(er.ApprovalRequest),
	}
}

// =============================================================================
// VIEWER
// =============================================================================

// GetMe returns the viewer's profile.
// GET /api/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := h.enricher(ctx)

	u, v, err := h.viewer(ctx, e)
	if err != nil {
		writeError(w, statusFor(err), "Failed to load viewer", err)
		return
	}

	dto := MeDTO{
		ID:               int64(u.ID),
		Name:             u.Name,
		Email:            u.Email,
		DesignationLevel: v.DesignationLevel,
		CanApprove:       v.HasDesignation(),
	}
	if u.Department != nil {
		dto.DepartmentID = int64(*u.Department)
		dto.DepartmentName = e.Registries.Departments.Label(*u.Department)
	}
	if u.Designation != nil {
		dto.DesignationID = int64(*u.Designation)
		dto.DesignationName = e.Registries.Designations.Label(*u.Designation)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// ListRequests returns enriched requests with per-viewer eligibility.
// GET /api/requests?status=pending&department=2
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	dtos, err := h.listRequests(r)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportRequests returns the same list as ListRequests as a spreadsheet.
// GET /api/requests/export
func (h *Handler) ExportRequests(w http.ResponseWriter, r *http.Request) {
	dtos, err := h.listRequests(r)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list requests", err)
		return
	}

	enriched := make([]approval.EnrichedRequest, len(dtos))
	for i, d := range dtos {
		enriched[i] = d.EnrichedRequest
	}
	f, err := report.Requests(enriched)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build export", err)
		return
	}
	defer f.Close()

	title := "approval requests " + r.URL.Query().Get("status")
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(title, h.now())))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		h.Log.Error().Err(err).Msg("write export")
	}
}

func (h *Handler) listRequests(r *http.Request) ([]RequestDTO, error) {
	ctx := r.Context()

	filter, err := parseRequestFilter(r)
	if err != nil {
		return nil, err
	}

	e := h.enricher(ctx)
	_, v, err := h.viewer(ctx, e)
	if err != nil {
		return nil, err
	}

	reqs, err := h.Backend.ListRequests(ctx, filter)
	if err != nil {
		return nil, err
	}

	enriched := e.Requests(ctx, reqs)
	dtos := make([]RequestDTO, len(enriched))
	for i, er := range enriched {
		dtos[i] = h.requestDTO(v, er)
	}
	return dtos, nil
}

func parseRequestFilter(r *http.Request) (backend.RequestFilter, error) {
	q := r.URL.Query()
	f := backend.RequestFilter{Status: approval.Status(strings.TrimSpace(q.Get("status")))}
	if raw := q.Get("department"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return f, &approval.ValidationError{Field: "department", Message: fmt.Sprintf("invalid id %q", raw)}
		}
		f.Department = approval.DepartmentID(id)
	}
	return f, nil
}

// GetRequest returns one request with its comments, items and attachments.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	e := h.enricher(ctx)
	_, v, err := h.viewer(ctx, e)
	if err != nil {
		writeError(w, statusFor(err), "Failed to load viewer", err)
		return
	}

	var (
		req         *approval.ApprovalRequest
		comments    []approval.Comment
		items       []approval.Item
		attachments []approval.Attachment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		req, err = h.Backend.GetRequest(gctx, id)
		return err
	})
	g.Go(func() error {
		comments = guardedList(gctx, h.Log, "comments", id, func(ctx context.Context) ([]approval.Comment, error) {
			return h.Backend.ListComments(ctx, id)
		})
		return nil
	})
	g.Go(func() error {
		items = guardedList(gctx, h.Log, "items", id, func(ctx context.Context) ([]approval.Item, error) {
			return h.Backend.ListItems(ctx, id)
		})
		return nil
	})
	g.Go(func() error {
		attachments = guardedList(gctx, h.Log, "attachments", id, func(ctx context.Context) ([]approval.Attachment, error) {
			return h.Backend.ListAttachments(ctx, id)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		writeError(w, statusFor(err), "Failed to get request", err)
		return
	}

	writeJSON(w, http.StatusOK, RequestDetailResponse{
		Request:     h.requestDTO(v, e.Request(ctx, *req)),
		Comments:    e.Comments(ctx, comments),
		Items:       items,
		Attachments: attachments,
	})
}

// guardedList degrades a failed secondary fetch to an empty list.
func guardedList[T any](ctx context.Context, log zerolog.Logger, name string, id approval.RequestID, fetch func(context.Context) ([]T, error)) []T {
	list, err := fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("list", name).Int64("request_id", int64(id)).Msg("request detail: list fetch failed, showing none")
		return []T{}
	}
	if list == nil {
		return []T{}
	}
	return list
}

// ListActions returns the action journal for a request.
// GET /api/requests/{id}/actions
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	if h.Journal == nil {
		writeJSON(w, http.StatusOK, []ActionRecordDTO{})
		return
	}

	recs, err := h.Journal.ListByRequest(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list actions", err)
		return
	}
	writeJSON(w, http.StatusOK, toActionRecordDTOs(recs))
}

// =============================================================================
// ACTION HANDLERS
// =============================================================================

// ApproveRequest approves the request at the viewer's level.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var body ApproveRequest
	if !decodeOptional(w, r, &body) {
		return
	}
	h.act(w, r, approval.ActionApprove, body.Comment)
}

// RejectRequest rejects the request with a reason.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var body RejectRequest
	if !decodeOptional(w, r, &body) {
		return
	}
	h.act(w, r, approval.ActionReject, body.Reason)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, action approval.Action, text string) {
	ctx := r.Context()
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	actor, _ := ViewerID(ctx)
	in := approval.ActionInput{RequestID: id, ActorID: actor, Text: text}

	// A short reason never reaches the backend.
	if action == approval.ActionReject {
		if err := approval.ValidateRejectReason(text); err != nil {
			h.Dispatcher.Refuse(ctx, action, in, err)
			writeError(w, http.StatusBadRequest, "Rejection reason too short",
				fmt.Sprintf("reason must be at least %d characters", approval.MinRejectReasonLength))
			return
		}
	}

	e := h.enricher(ctx)
	u, v, err := h.viewer(ctx, e)
	if err != nil {
		writeError(w, statusFor(err), "Failed to load viewer", err)
		return
	}
	req, err := h.Backend.GetRequest(ctx, id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get request", err)
		return
	}

	in.ActingLevel = v.DesignationLevel
	if u.Designation != nil {
		in.ActingDesignation = *u.Designation
	}

	if d := h.Evaluator.Evaluate(v, *req); !d.Allowed {
		h.Dispatcher.Refuse(ctx, action, in, fmt.Errorf("%w: %s", approval.ErrNotEligible, d.Reason))
		writeError(w, http.StatusForbidden, "You may not act on this request", string(d.Reason))
		return
	}

	var res *approval.Result
	if action == approval.ActionApprove {
		res, err = h.Dispatcher.Approve(ctx, in)
	} else {
		res, err = h.Dispatcher.Reject(ctx, in)
	}
	if err != nil {
		writeError(w, statusFor(err), "Action failed", err)
		return
	}

	resp := ActionResultResponse{
		ActionID:  res.ActionID,
		Refreshed: res.Refreshed,
		Synthetic: res.Comment.Synthetic,
	}
	if comments := e.Comments(ctx, []approval.Comment{res.Comment}); len(comments) == 1 {
		resp.Comment = comments[0]
	}
	if res.Refreshed {
		dto := h.requestDTO(v, e.Request(ctx, *res.Request))
		resp.Request = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdminSession exchanges the admin passcode for a session token.
// POST /api/admin/session
func (h *Handler) CreateAdminSession(w http.ResponseWriter, r *http.Request) {
	if h.Gate == nil || h.Sessions == nil || !h.Gate.Enabled() {
		writeError(w, http.StatusForbidden, "Admin access is not configured", nil)
		return
	}

	var body AdminSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	key := clientKey(r)
	if err := h.Gate.Verify(r.Context(), key, body.Passcode); err != nil {
		var locked *lockout.LockedError
		var wrong *lockout.PasscodeError
		switch {
		case errors.As(err, &locked):
			w.Header().Set("Retry-After", strconv.Itoa(int(locked.RetryAfter.Seconds()+0.5)))
			writeError(w, http.StatusLocked, "Too many failed attempts", locked.Error())
		case errors.As(err, &wrong):
			writeError(w, http.StatusUnauthorized, "Invalid passcode",
				map[string]int{"remaining_attempts": wrong.Remaining})
		default:
			writeError(w, http.StatusInternalServerError, "Failed to verify passcode", err)
		}
		return
	}

	token, expiresAt, err := h.Sessions.Issue(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue session", err)
		return
	}
	writeJSON(w, http.StatusCreated, AdminSessionResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// DeleteAdminSession revokes the caller's admin session.
// DELETE /api/admin/session
func (h *Handler) DeleteAdminSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := adminClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing admin session", nil)
		return
	}
	if err := h.Sessions.Revoke(r.Context(), claims); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to revoke session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListApprovers returns enriched approver assignments.
// GET /api/admin/approvers
func (h *Handler) ListApprovers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Backend.ListApprovers(ctx)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list approvers", err)
		return
	}
	writeJSON(w, http.StatusOK, h.enricher(ctx).Approvers(ctx, list))
}

// CreateApprover assigns a user as approver for a department level.
// POST /api/admin/approvers
func (h *Handler) CreateApprover(w http.ResponseWriter, r *http.Request) {
	var body CreateApproverRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if body.User < 1 || body.Department < 1 || body.BusinessUnit < 1 {
		writeError(w, http.StatusBadRequest, "user, department and business_unit are required", nil)
		return
	}

	created, err := h.Backend.CreateApprover(r.Context(), approval.Approver{
		User:         approval.UserID(body.User),
		BusinessUnit: approval.BusinessUnitID(body.BusinessUnit),
		Department:   approval.DepartmentID(body.Department),
		Level:        body.Level,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to create approver", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// DeleteApprover removes an approver assignment.
// DELETE /api/admin/approvers/{id}
func (h *Handler) DeleteApprover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid approver id", nil)
		return
	}
	if err := h.Backend.DeleteApprover(r.Context(), approval.ApproverID(id)); err != nil {
		writeError(w, statusFor(err), "Failed to delete approver", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func requestID(w http.ResponseWriter, r *http.Request) (approval.RequestID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid request id", nil)
		return 0, false
	}
	return approval.RequestID(id), true
}

// decodeOptional decodes a JSON body; an empty body leaves v untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

// statusFor maps domain and backend errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case approval.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, errNoViewer):
		return http.StatusUnauthorized
	case errors.Is(err, approval.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, lockout.ErrLockedOut):
		return http.StatusLocked
	case errors.Is(err, approval.ErrActionFailed):
		switch backend.StatusCode(err) {
		case http.StatusConflict:
			return http.StatusConflict
		case http.StatusNotFound:
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case approval.IsNotFound(err):
		return http.StatusNotFound
	case backend.StatusCode(err) == http.StatusUnauthorized:
		return http.StatusUnauthorized
	case backend.StatusCode(err) != 0:
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	resp := ErrorResponse{Error: message}
	switch d := details.(type) {
	case nil:
	case error:
		resp.Details = d.Error()
	default:
		resp.Details = d
	}
	writeJSON(w, status, resp)
}
