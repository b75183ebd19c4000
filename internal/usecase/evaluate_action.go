package usecase

import (
	"context"
	"fmt"
	"time"

	"steward/internal/domain"
)

// EvaluateAction produces one governance decision per proposed action:
// allow, allow-with-confirmation, or deny with a user-facing reason. The
// checks run in a fixed order and short-circuit on the first failure; each
// failing check yields its own reason string because rejections are shown
// to the end user verbatim.
type EvaluateAction struct {
	Settings SettingsRepository
	Rules    RuleRepository
	Window   *RateWindow

	// Policy is the optional rego bundle guard; nil when no bundle is
	// configured.
	Policy domain.PolicyGuard
}

func (uc *EvaluateAction) Execute(ctx context.Context, action domain.ProposedAction, actor domain.ActorContext) (domain.PermissionDecision, error) {
	settings, err := uc.Settings.Get(ctx)
	if err != nil {
		// Fail closed: an unreachable policy store never defaults to allow.
		return domain.PermissionDecision{}, fmt.Errorf("%w: load governance settings: %v", domain.ErrInternal, err)
	}

	if !settings.Enabled {
		return deny("assistant actions are disabled for this workspace"), nil
	}

	if action.Type == domain.ActionNavigate {
		return domain.PermissionDecision{Allowed: true}, nil
	}

	if settings.ReadOnlyMode {
		return deny("the workspace is in read-only mode; only navigation is available"), nil
	}

	if !settings.ActionTypeAllowed(action.Type) {
		return deny(fmt.Sprintf("%s actions are disabled for this workspace", action.Type)), nil
	}

	collection := action.Collection()
	if settings.IsSystemReadOnly(collection) {
		return deny(fmt.Sprintf("collection %q is read-only and cannot be modified", collection)), nil
	}

	rate, err := uc.Window.Check(ctx, actor.UserID, settings)
	if err != nil {
		return domain.PermissionDecision{}, fmt.Errorf("%w: rate window check: %v", domain.ErrInternal, err)
	}
	if !rate.Allowed {
		return deny(fmt.Sprintf("rate limit exceeded; the limit resets at %s", rate.ResetAt.UTC().Format(time.RFC3339))), nil
	}

	rule, err := uc.Rules.Resolve(ctx, collection, action.Type)
	if err != nil {
		return domain.PermissionDecision{}, fmt.Errorf("%w: resolve permission rule: %v", domain.ErrInternal, err)
	}

	decision := domain.PermissionDecision{
		Allowed:              true,
		RequiresConfirmation: settings.DefaultRequiresConfirmation,
	}
	if rule != nil {
		if !rule.IsEnabled {
			return deny(fmt.Sprintf("%s actions on %q are currently disabled", action.Type, collection)), nil
		}
		if rule.RoleExcluded(actor.UserRole) {
			return deny(fmt.Sprintf("role %q is not permitted to %s records in %q", actor.UserRole, action.Type, collection)), nil
		}
		if !rule.RoleAllowed(actor.UserRole) {
			return deny(fmt.Sprintf("role %q is not in the allowed roles for %s on %q", actor.UserRole, action.Type, collection)), nil
		}
		decision.RequiresConfirmation = rule.RequiresConfirmation
		decision.MatchedRuleID = rule.ID
	}

	if uc.Policy != nil {
		result, err := uc.Policy.Evaluate(ctx, domain.PolicyInput{
			ActionType: string(action.Type),
			Collection: collection,
			RecordID:   action.RecordID(),
			UserID:     actor.UserID,
			UserRole:   actor.UserRole,
			Params:     actionParams(action),
		})
		if err != nil {
			return deny("the policy bundle could not be evaluated; the action was denied"), nil
		}
		if len(result.Deny) > 0 {
			return deny(result.Deny[0].Message), nil
		}
	}

	return decision, nil
}

func deny(reason string) domain.PermissionDecision {
	return domain.PermissionDecision{RejectionReason: reason}
}

func actionParams(action domain.ProposedAction) map[string]any {
	switch action.Type {
	case domain.ActionCreate:
		if action.Create != nil {
			return action.Create.Values
		}
	case domain.ActionUpdate:
		if action.Update != nil {
			return action.Update.Values
		}
	case domain.ActionExecute:
		if action.Execute != nil {
			return action.Execute.Payload
		}
	}
	return nil
}
