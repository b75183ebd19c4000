package domain

import (
	"context"
	"time"
)

// GovernanceSettings is the singleton governance configuration for one
// deployment. It is created once with safe defaults and updated in place by
// administrators; the evaluator re-reads it on every check.
type GovernanceSettings struct {
	Enabled      bool
	ReadOnlyMode bool

	AllowCreate  bool
	AllowUpdate  bool
	AllowDelete  bool
	AllowExecute bool

	SystemReadOnlyCollections   []string
	DefaultRequiresConfirmation bool

	UserRateLimitPerHour   int
	GlobalRateLimitPerHour int

	UpdatedAt time.Time
}

func DefaultGovernanceSettings() GovernanceSettings {
	return GovernanceSettings{
		Enabled:                     true,
		AllowCreate:                 true,
		AllowUpdate:                 true,
		AllowDelete:                 true,
		AllowExecute:                true,
		DefaultRequiresConfirmation: true,
		UserRateLimitPerHour:        50,
		GlobalRateLimitPerHour:      500,
	}
}

func (s GovernanceSettings) ActionTypeAllowed(t ActionType) bool {
	switch t {
	case ActionNavigate:
		return true
	case ActionCreate:
		return s.AllowCreate
	case ActionUpdate:
		return s.AllowUpdate
	case ActionDelete:
		return s.AllowDelete
	case ActionExecute:
		return s.AllowExecute
	}
	return false
}

func (s GovernanceSettings) IsSystemReadOnly(collection string) bool {
	for _, code := range s.SystemReadOnlyCollections {
		if code == collection {
			return true
		}
	}
	return false
}

// PermissionRule binds one (collection, action type) pair to role
// constraints. An empty CollectionCode marks the global default rule for
// the action type; a collection-specific rule always wins over it.
type PermissionRule struct {
	ID                   string
	CollectionCode       string
	ActionType           ActionType
	IsEnabled            bool
	AllowedRoles         []string
	ExcludedRoles        []string
	RequiresConfirmation bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (r PermissionRule) RoleExcluded(role string) bool {
	for _, excluded := range r.ExcludedRoles {
		if excluded == role {
			return true
		}
	}
	return false
}

func (r PermissionRule) RoleAllowed(role string) bool {
	if len(r.AllowedRoles) == 0 {
		return true
	}
	for _, allowed := range r.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

type PermissionDecision struct {
	Allowed              bool
	RequiresConfirmation bool
	RejectionReason      string
	MatchedRuleID        string
}

type RateCheck struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is the perimeter request limiter used by the HTTP layer. The
// governance window in the evaluator is a separate mechanism that counts
// audit rows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
