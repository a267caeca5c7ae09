package approval

import "fmt"

// =============================================================================
// REQUEST STATE - One tagged value instead of three loose fields
// =============================================================================

// The backend reports "is this still actionable" through three separately
// updated fields: rejected, current_status and current_level/max_level.
// RequestState folds them into Pending(level) | Approved | Rejected(reason).

type StateKind string

const (
	StatePending  StateKind = "pending"
	StateApproved StateKind = "approved"
	StateRejected StateKind = "rejected"
)

type RequestState struct {
	Kind   StateKind
	Level  int    // Pending only
	Reason string // Rejected only
}

func Pending(level int) RequestState { return RequestState{Kind: StatePending, Level: level} }
func Approved() RequestState { return RequestState{Kind: StateApproved} }
func Rejected(reason string) RequestState { return RequestState{Kind: StateRejected, Reason: reason} }

func (s RequestState) IsPending() bool { return s.Kind == StatePending }
func (s RequestState) IsTerminal() bool { return s.Kind != StatePending }

func (s RequestState) String() string {
	switch s.Kind {
	case StatePending:
		return fmt.Sprintf("pending(level %d)", s.Level)
	case StateRejected:
		return fmt.Sprintf("rejected(%q)", s.Reason)
	default:
		return string(s.Kind)
	}
}

// StateOf derives the state of a request. Rejection wins over everything,
// then either approval signal is enough to call the request approved.
func StateOf(r ApprovalRequest) RequestState {
	if r.Rejected || r.CurrentStatus.Is(StatusRejected) {
		reason := ""
		if r.RejectionReason != nil {
			reason = *r.RejectionReason
		}
		return Rejected(reason)
	}
	if r.CurrentStatus.Is(StatusApproved) || fullyTraversed(r) {
		return Approved()
	}
	return Pending(r.CurrentLevel)
}

func fullyTraversed(r ApprovalRequest) bool {
	return r.MaxLevel > 0 && r.CurrentLevel > r.MaxLevel
}

// =============================================================================
// CONSISTENCY
// =============================================================================

type Inconsistency string

const (
	RejectedFlagWithoutStatus Inconsistency = "rejected flag set but status is not Rejected"
	RejectedStatusWithoutFlag Inconsistency = "status is Rejected but rejected flag is false"
	ApprovedBeforeMaxLevel    Inconsistency = "status is Approved but current_level <= max_level"
	TraversedButNotApproved   Inconsistency = "current_level > max_level but status is not Approved"
	ReasonWithoutRejection    Inconsistency = "rejection_reason set on a request that is not rejected"
)

// CheckConsistency reports drift between the signals StateOf combines.
// A nil result means the record is coherent.
func CheckConsistency(r ApprovalRequest) []Inconsistency {
	var out []Inconsistency

	statusRejected := r.CurrentStatus.Is(StatusRejected)
	if r.Rejected && !statusRejected {
		out = append(out, RejectedFlagWithoutStatus)
	}
	if statusRejected && !r.Rejected {
		out = append(out, RejectedStatusWithoutFlag)
	}

	statusApproved := r.CurrentStatus.Is(StatusApproved)
	if statusApproved && !fullyTraversed(r) {
		out = append(out, ApprovedBeforeMaxLevel)
	}
	if fullyTraversed(r) && !statusApproved && !r.Rejected {
		out = append(out, TraversedButNotApproved)
	}

	if r.RejectionReason != nil && !r.Rejected {
		out = append(out, ReasonWithoutRejection)
	}
	return out
}
