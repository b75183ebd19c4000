package usecase

import (
	"context"
	"time"

	"steward/internal/domain"
)

type SettingsRepository interface {
	Get(ctx context.Context) (domain.GovernanceSettings, error)
	Update(ctx context.Context, settings domain.GovernanceSettings) (domain.GovernanceSettings, error)
}

type RuleRepository interface {
	// Resolve returns the collection-specific rule for (collection, actionType)
	// if one exists, otherwise the global rule for actionType, otherwise nil.
	Resolve(ctx context.Context, collection string, actionType domain.ActionType) (*domain.PermissionRule, error)
	List(ctx context.Context) ([]domain.PermissionRule, error)
	Upsert(ctx context.Context, rule domain.PermissionRule) (domain.PermissionRule, error)
	Delete(ctx context.Context, id string) error
}

// AuditTransition is one forward move of an entry's status plus the fields
// written alongside it. Nil pointer fields are left untouched.
type AuditTransition struct {
	To           domain.AuditStatus
	BeforeData   map[string]any
	AfterData    map[string]any
	IsRevertible *bool
	ErrorMessage string
	DurationMs   *int64
	CompletedAt  *time.Time
	RevertedAt   *time.Time
	RevertedBy   string
	RevertReason string
}

type AuditRepository interface {
	Create(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
	GetByID(ctx context.Context, id string) (*domain.AuditEntry, error)
	// Transition atomically moves the entry to tr.To provided its current
	// status is one of from; it returns domain.ErrStatusConflict when the
	// compare-and-set loses.
	Transition(ctx context.Context, id string, from []domain.AuditStatus, tr AuditTransition) (*domain.AuditEntry, error)
	CountSince(ctx context.Context, userID string, since time.Time) (int64, error)
	OldestSince(ctx context.Context, userID string, since time.Time) (*time.Time, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error)
	// ListStuck returns executable entries created before cutoff, for the
	// external reconciliation sweep over crash-orphaned executions.
	ListStuck(ctx context.Context, cutoff time.Time) ([]domain.AuditEntry, error)
}

// AuditCounter is the slice of the ledger the rate window reads.
type AuditCounter interface {
	CountSince(ctx context.Context, userID string, since time.Time) (int64, error)
	OldestSince(ctx context.Context, userID string, since time.Time) (*time.Time, error)
}
