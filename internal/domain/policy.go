package domain

import "context"

// PolicyInput is the document handed to the optional rego policy bundle.
type PolicyInput struct {
	ActionType string         `json:"action_type"`
	Collection string         `json:"collection"`
	RecordID   string         `json:"record_id,omitempty"`
	UserID     string         `json:"user_id"`
	UserRole   string         `json:"user_role"`
	Params     map[string]any `json:"params,omitempty"`
}

type PolicyDenial struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PolicyResult struct {
	Deny []PolicyDenial `json:"deny"`
}

// PolicyGuard is an optional extra deny source consulted after the
// built-in governance checks pass. A nil guard means no bundle is
// configured and the built-in checks are the whole decision.
type PolicyGuard interface {
	Evaluate(ctx context.Context, input PolicyInput) (PolicyResult, error)
}
