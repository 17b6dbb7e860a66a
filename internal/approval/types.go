package approval

import (
	"errors"
	"fmt"
	"time"
)

// Level is the ordered approval tier required for an action.
type Level int

const (
	LevelBasic Level = iota + 1
	LevelStandard
	LevelCritical
	LevelExecutive
)

// String returns the config/wire name of the level.
func (l Level) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelStandard:
		return "standard"
	case LevelCritical:
		return "critical"
	case LevelExecutive:
		return "executive"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "basic":
		return LevelBasic, nil
	case "standard":
		return LevelStandard, nil
	case "critical":
		return LevelCritical, nil
	case "executive":
		return LevelExecutive, nil
	default:
		return 0, fmt.Errorf("unknown approval level: %q", s)
	}
}

// Status of an approval request. Transitions are monotonic: Pending is the
// only non-terminal status; escalation keeps a request Pending at a higher
// level and is tracked through EscalationCount and Notes.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// SystemApprover is recorded as the approver on auto-approved requests.
const SystemApprover = "system"

// Request is a single approval request. After creation it is append-only
// except for the status and approval-set fields; it is never deleted, only
// advanced, and every state change is persisted for audit.
type Request struct {
	ID              string                 `json:"id"`
	ActionType      string                 `json:"action_type"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Requester       string                 `json:"requester"`
	Level           Level                  `json:"level"`
	Status          Status                 `json:"status"`
	Approvers       []string               `json:"approvers"`
	ApprovedBy      []string               `json:"approved_by,omitempty"`
	RejectedBy      []string               `json:"rejected_by,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	ExpiresAt       *time.Time             `json:"expires_at,omitempty"`
	DecidedAt       *time.Time             `json:"decided_at,omitempty"`
	EscalationCount int                    `json:"escalation_count"`
	Notes           string                 `json:"notes,omitempty"`
}

// Terminal reports whether the request has reached a terminal status.
func (r *Request) Terminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// Statistics summarizes the gate's request table.
type Statistics struct {
	Total           int            `json:"total"`
	Pending         int            `json:"pending"`
	Approved        int            `json:"approved"`
	Rejected        int            `json:"rejected"`
	AutoApproved    int            `json:"auto_approved"`
	Escalations     int            `json:"escalations"`
	ByLevel         map[string]int `json:"by_level"`
	AvgDecisionTime time.Duration  `json:"avg_decision_time"`
}

// Sentinel errors for the approval package.
var (
	ErrNotFound               = errors.New("approval request not found")
	ErrPermissionDenied       = errors.New("approver not authorized")
	ErrInvalidStateTransition = errors.New("approval request already decided")
)
