/*
eligibility.go - May this viewer approve or reject this request right now?

RULE (all must hold):
  1. viewer.ID != request.User               no self-approval
  2. viewer level == request.CurrentLevel    exact match, not >=
  3. viewer department == request.Department no cross-department approval
  4. !request.Rejected                       rejection is absorbing

A viewer without a resolvable designation never qualifies.

CanAct does NOT look at current_status. A request already Approved whose
current_level happens to equal the viewer's level still passes. Evaluator
reports that case as a StateConflict and, when StrictStatus is set, refuses
it.
*/
package approval

// Viewer is the person looking at a request.
type Viewer struct {
	ID         UserID
	Department DepartmentID

	// DesignationLevel is 0 when the viewer's designation is unknown.
	DesignationLevel int
}

// HasDesignation reports whether the viewer's level could be resolved.
func (v Viewer) HasDesignation() bool {
	return v.DesignationLevel >= 1
}

// ViewerFor resolves a user's designation level through the registries.
func ViewerFor(u User, regs *Registries) Viewer {
	v := Viewer{ID: u.ID}
	if u.Department != nil {
		v.Department = *u.Department
	}
	if u.Designation != nil && regs != nil && regs.Designations != nil {
		if d, ok := regs.Designations.Get(*u.Designation); ok {
			v.DesignationLevel = d.Level
		}
	}
	return v
}

// CanAct applies the four-part rule. It is pure and never panics.
func CanAct(v Viewer, r ApprovalRequest) bool {
	if !v.HasDesignation() {
		return false
	}
	return v.ID != r.User &&
		v.DesignationLevel == r.CurrentLevel &&
		v.Department == r.Department &&
		!r.Rejected
}

// =============================================================================
// EVALUATOR - CanAct plus the reason and the status gate
// =============================================================================

type DenyReason string

const (
	DenyNone               DenyReason = ""
	DenyNoDesignation      DenyReason = "no_designation"
	DenyOwnRequest         DenyReason = "own_request"
	DenyRejected           DenyReason = "rejected"
	DenyLevelMismatch      DenyReason = "level_mismatch"
	DenyDepartmentMismatch DenyReason = "department_mismatch"
	DenyNotPending         DenyReason = "not_pending"
)

type Decision struct {
	Allowed bool
	Reason  DenyReason

	// StateConflict is set when the four-part rule passes on a request whose
	// derived state is not Pending.
	StateConflict bool
}

type Evaluator struct {
	// StrictStatus additionally requires StateOf(request) to be Pending.
	StrictStatus bool
}

func (e Evaluator) Evaluate(v Viewer, r ApprovalRequest) Decision {
	switch {
	case !v.HasDesignation():
		return Decision{Reason: DenyNoDesignation}
	case v.ID == r.User:
		return Decision{Reason: DenyOwnRequest}
	case r.Rejected:
		return Decision{Reason: DenyRejected}
	case v.DesignationLevel != r.CurrentLevel:
		return Decision{Reason: DenyLevelMismatch}
	case v.Department != r.Department:
		return Decision{Reason: DenyDepartmentMismatch}
	}

	if StateOf(r).IsPending() {
		return Decision{Allowed: true}
	}
	if e.StrictStatus {
		return Decision{Reason: DenyNotPending, StateConflict: true}
	}
	return Decision{Allowed: true, StateConflict: true}
}
