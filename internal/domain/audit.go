package domain

import "time"

type AuditStatus string

const (
	AuditStatusPending   AuditStatus = "pending"
	AuditStatusConfirmed AuditStatus = "confirmed"
	AuditStatusCompleted AuditStatus = "completed"
	AuditStatusFailed    AuditStatus = "failed"
	AuditStatusRejected  AuditStatus = "rejected"
	AuditStatusReverted  AuditStatus = "reverted"
)

// auditTransitions is the one-directional lifecycle. Rejected is only
// reachable at creation time and, like failed and reverted, is terminal.
var auditTransitions = map[AuditStatus][]AuditStatus{
	AuditStatusPending:   {AuditStatusConfirmed, AuditStatusCompleted, AuditStatusFailed},
	AuditStatusConfirmed: {AuditStatusCompleted, AuditStatusFailed},
	AuditStatusCompleted: {AuditStatusReverted},
}

func (s AuditStatus) CanTransitionTo(next AuditStatus) bool {
	for _, allowed := range auditTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s AuditStatus) Terminal() bool {
	return len(auditTransitions[s]) == 0
}

// Executable reports whether an entry in this status may still be driven
// through execution by a preview-token resubmission.
func (s AuditStatus) Executable() bool {
	return s == AuditStatusPending || s == AuditStatusConfirmed
}

// AuditEntry is the durable record of one action attempt. It is created at
// decision time (rejected attempts included) and only the action executor
// moves its status forward.
type AuditEntry struct {
	ID        string
	UserID    string
	UserRole  string
	SessionID string
	IPAddress string
	UserAgent string

	ActionType       ActionType
	Status           AuditStatus
	Label            string
	Target           string
	TargetCollection string
	TargetRecordID   string

	Params     map[string]any
	BeforeData map[string]any
	AfterData  map[string]any

	IsRevertible bool
	ErrorMessage string
	DurationMs   int64

	RevertedBy   string
	RevertReason string

	CreatedAt   time.Time
	CompletedAt *time.Time
	RevertedAt  *time.Time
}

// Revertible applies the ledger rule: an entry can be reverted only while
// it is completed and the pre-mutation snapshot was captured.
func (e AuditEntry) Revertible() bool {
	return e.IsRevertible && e.Status == AuditStatusCompleted && e.BeforeData != nil
}
