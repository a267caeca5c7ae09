/*
store.go - Interfaces between the desk logic and the outside world

KEY INTERFACES:
  Directory: organisation lookups (bulk lists + single records)
  Workflow:  approval request reads and approve/reject actions
  KV:        small expiring key-value state (lockout counters, sessions)
  Journal:   append-only record of dispatched actions

IMPLEMENTATIONS:
  - backend.Client:          Directory + Workflow over the REST backend
  - approval/store.Memory:   KV + Journal in memory (tests, dev)
  - store/sqlite.Store:      KV + Journal in SQLite
  - store/redis.Store:       KV in Redis

The Journal is APPEND-ONLY: no update, no delete.
*/
package approval

import (
	"context"
	"time"
)

// =============================================================================
// BACKEND - Provided by the approvals REST service
// =============================================================================

// Directory resolves organisation entities.
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	ListBusinessUnits(ctx context.Context) ([]BusinessUnit, error)
	ListDesignations(ctx context.Context) ([]Designation, error)

	GetUser(ctx context.Context, id UserID) (*User, error)
	GetDepartment(ctx context.Context, id DepartmentID) (*Department, error)
	GetBusinessUnit(ctx context.Context, id BusinessUnitID) (*BusinessUnit, error)
	GetDesignation(ctx context.Context, id DesignationID) (*Designation, error)
}

// Workflow reads requests and performs state transitions.
type Workflow interface {
	GetRequest(ctx context.Context, id RequestID) (*ApprovalRequest, error)
	ApproveRequest(ctx context.Context, id RequestID, payload ActionPayload) error
	RejectRequest(ctx context.Context, id RequestID, payload ActionPayload) error
	PostComment(ctx context.Context, c Comment) (*Comment, error)
}

// ActionPayload is the body sent to /approve/ and /reject/.
type ActionPayload struct {
	Level       int           `json:"level"`
	Designation DesignationID `json:"designation"`
	Comment     string        `json:"comment,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

// =============================================================================
// KEY-VALUE - Expiring local state
// =============================================================================

// KV stores small values with an optional time-to-live.
// A ttl <= 0 means the value does not expire.
type KV interface {
	// Get returns ErrKeyNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Purger is implemented by KV stores that do not expire keys on their own.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// =============================================================================
// JOURNAL - Who did what when
// =============================================================================

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type Outcome string

const (
	OutcomeAccepted Outcome = "accepted" // backend accepted the action
	OutcomeRefused  Outcome = "refused"  // stopped before dispatch
	OutcomeFailed   Outcome = "failed"   // backend or network error
)

// ActionRecord is one journal entry.
type ActionRecord struct {
	ID          string
	RequestID   RequestID
	ActorID     UserID
	Action      Action
	Level       int
	Designation DesignationID
	Text        string
	Outcome     Outcome
	Error       string
	CreatedAt   time.Time
}

// Journal stores action records. Also append-only.
type Journal interface {
	Record(ctx context.Context, rec ActionRecord) error
	ListByRequest(ctx context.Context, id RequestID) ([]ActionRecord, error)
}
