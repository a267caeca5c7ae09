/*
dispatch.go - Approve / reject a request and reconcile with the backend

FLOW:
  1. Validate (reject needs a reason of at least MinRejectReasonLength)
  2. Call the workflow endpoint once; no retry
  3. On success, re-fetch the request: the backend is the source of truth
     for current_level, current_status and rejected
  4. Build the comment that represents the action text

RESULT:
  Approve/Reject return (*Result, error). Nothing is mutated on error; the
  caller keeps showing its last known request. A successful action whose
  re-fetch fails still returns a Result, with Refreshed == false.

JOURNAL:
  Every attempt is journaled, including those refused by validation.
  Journal failures are logged and never change the outcome.
*/
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MinRejectReasonLength is counted in characters after trimming.
const MinRejectReasonLength = 10

// ValidateRejectReason returns a *ValidationError wrapping ErrReasonTooShort
// when reason is too short.
func ValidateRejectReason(reason string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < MinRejectReasonLength {
		return &ValidationError{
			Field:   "reason",
			Message: fmt.Sprintf("must be at least %d characters", MinRejectReasonLength),
			Err:     ErrReasonTooShort,
		}
	}
	return nil
}

// CanReject reports whether the reject action should be enabled.
func CanReject(reason string) bool {
	return ValidateRejectReason(reason) == nil
}

// =============================================================================
// DISPATCHER
// =============================================================================

// ActionInput is what the acting viewer submits.
type ActionInput struct {
	RequestID         RequestID
	ActorID           UserID
	ActingLevel       int
	ActingDesignation DesignationID

	// Text is the approval comment or the rejection reason.
	Text string
}

type Result struct {
	ActionID string

	// Request is the re-fetched record. It is nil when Refreshed is false.
	Request   *ApprovalRequest
	Refreshed bool

	// Comment carries the action text. It is Synthetic unless the backend
	// stored it.
	Comment Comment
}

type Dispatcher struct {
	Workflow Workflow
	Journal  Journal // optional
	Log      zerolog.Logger
	Now      func() time.Time

	// PersistComments posts the action text to /chats after a successful
	// action.
	PersistComments bool
}

func NewDispatcher(wf Workflow, journal Journal, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Workflow: wf,
		Journal:  journal,
		Log:      log,
		Now:      time.Now,
	}
}

func (d *Dispatcher) Approve(ctx context.Context, in ActionInput) (*Result, error) {
	return d.dispatch(ctx, ActionApprove, in)
}

func (d *Dispatcher) Reject(ctx context.Context, in ActionInput) (*Result, error) {
	if err := ValidateRejectReason(in.Text); err != nil {
		d.record(ctx, ActionReject, in, OutcomeRefused, err)
		return nil, err
	}
	return d.dispatch(ctx, ActionReject, in)
}

// Refuse journals an action stopped before dispatch for a reason outside
// the dispatcher, such as eligibility.
func (d *Dispatcher) Refuse(ctx context.Context, action Action, in ActionInput, cause error) {
	d.record(ctx, action, in, OutcomeRefused, cause)
}

func (d *Dispatcher) dispatch(ctx context.Context, action Action, in ActionInput) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	payload := ActionPayload{
		Level:       in.ActingLevel,
		Designation: in.ActingDesignation,
	}

	var err error
	switch action {
	case ActionApprove:
		payload.Comment = text
		err = d.Workflow.ApproveRequest(ctx, in.RequestID, payload)
	case ActionReject:
		payload.Reason = text
		err = d.Workflow.RejectRequest(ctx, in.RequestID, payload)
	default:
		err = fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		d.record(ctx, action, in, OutcomeFailed, err)
		return nil, &ActionError{Op: action, RequestID: in.RequestID, Err: err}
	}

	res := &Result{
		ActionID: d.record(ctx, action, in, OutcomeAccepted, nil),
		Comment:  d.comment(ctx, action, in, text),
	}

	refreshed, err := d.Workflow.GetRequest(ctx, in.RequestID)
	if err != nil {
		d.Log.Warn().Err(err).
			Int64("request_id", int64(in.RequestID)).
			Str("action", string(action)).
			Msg("dispatch: refresh after action failed")
		return res, nil
	}
	res.Request = refreshed
	res.Refreshed = refreshed != nil
	return res, nil
}

// comment builds the comment for a successful action and, when enabled,
// stores it on the backend.
func (d *Dispatcher) comment(ctx context.Context, action Action, in ActionInput, text string) Comment {
	c := Comment{
		Request:   in.RequestID,
		Author:    in.ActorID,
		Text:      CommentText(action, in.ActingLevel, text),
		Timestamp: d.now(),
		Level:     in.ActingLevel,
		Synthetic: true,
	}
	if !d.PersistComments {
		return c
	}

	stored, err := d.Workflow.PostComment(ctx, c)
	if err != nil || stored == nil {
		d.Log.Warn().Err(err).
			Int64("request_id", int64(in.RequestID)).
			Msg("dispatch: comment not persisted, keeping local copy")
		return c
	}
	stored.Synthetic = false
	return *stored
}

// CommentText is the chat line recorded for an action.
func CommentText(action Action, level int, text string) string {
	switch action {
	case ActionReject:
		return "Rejected: " + text
	default:
		if text == "" {
			return fmt.Sprintf("Approved at level %d", level)
		}
		return text
	}
}

func (d *Dispatcher) record(ctx context.Context, action Action, in ActionInput, outcome Outcome, cause error) string {
	rec := ActionRecord{
		ID:          uuid.NewString(),
		RequestID:   in.RequestID,
		ActorID:     in.ActorID,
		Action:      action,
		Level:       in.ActingLevel,
		Designation: in.ActingDesignation,
		Text:        strings.TrimSpace(in.Text),
		Outcome:     outcome,
		CreatedAt:   d.now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if d.Journal == nil {
		return rec.ID
	}
	if err := d.Journal.Record(ctx, rec); err != nil {
		d.Log.Warn().Err(err).
			Str("action_id", rec.ID).
			Int64("request_id", int64(in.RequestID)).
			Msg("dispatch: journal write failed")
	}
	return rec.ID
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}
