package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"steward/internal/domain"
)

type OutcomeKind string

const (
	OutcomeCompleted            OutcomeKind = "completed"
	OutcomeFailed               OutcomeKind = "failed"
	OutcomeRejected             OutcomeKind = "rejected"
	OutcomeConfirmationRequired OutcomeKind = "confirmation_required"
)

type SubmitRequest struct {
	Action domain.ProposedAction
	Actor  domain.ActorContext

	// PreviewID is the pending entry id returned by a prior
	// confirmation-required submission, re-supplied once the user confirms.
	PreviewID string
}

type SubmitResponse struct {
	Outcome         OutcomeKind
	AuditID         string
	PreviewID       string
	RejectionReason string
	RedirectTo      string
	Result          map[string]any
	ErrorMessage    string
}

// SubmitAction drives the full lifecycle of one proposed action:
// governance check, optional confirmation round-trip, before-state capture,
// side-effecting dispatch, and audit finalization. Every attempt terminates
// with the entry in completed, failed, or rejected.
type SubmitAction struct {
	Evaluate *EvaluateAction
	Audit    AuditRepository
	Rows     domain.RowStore
	Resolver domain.CollectionResolver
	Events   domain.EventPublisher
	Now      func() time.Time
}

func (uc *SubmitAction) Execute(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if err := req.Action.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAction, err)
	}

	decision, evalErr := uc.Evaluate.Execute(ctx, req.Action, req.Actor)
	if evalErr != nil {
		// Best-effort rejected record; the governance stores may be the
		// very thing that is down.
		_, _ = uc.Audit.Create(ctx, uc.newEntry(req, domain.AuditStatusRejected, "governance check unavailable"))
		return nil, evalErr
	}

	if !decision.Allowed {
		entry, err := uc.Audit.Create(ctx, uc.newEntry(req, domain.AuditStatusRejected, decision.RejectionReason))
		if err != nil {
			return nil, fmt.Errorf("%w: record rejection: %v", domain.ErrInternal, err)
		}
		return &SubmitResponse{
			Outcome:         OutcomeRejected,
			AuditID:         entry.ID,
			RejectionReason: decision.RejectionReason,
		}, nil
	}

	var entry domain.AuditEntry
	if req.PreviewID == "" {
		created, err := uc.Audit.Create(ctx, uc.newEntry(req, domain.AuditStatusPending, ""))
		if err != nil {
			return nil, fmt.Errorf("%w: record attempt: %v", domain.ErrInternal, err)
		}
		entry = created
		if decision.RequiresConfirmation {
			return &SubmitResponse{
				Outcome:   OutcomeConfirmationRequired,
				AuditID:   entry.ID,
				PreviewID: entry.ID,
			}, nil
		}
	} else {
		claimed, err := uc.claimPreview(ctx, req)
		if err != nil {
			return nil, err
		}
		entry = *claimed
	}

	return uc.execute(ctx, req, entry)
}

// claimPreview resolves a resubmitted preview token. The pending ->
// confirmed compare-and-set is the exclusive claim: of two racing
// resubmissions only the one whose transition lands gets to execute. An
// entry found already confirmed belongs to an earlier claimer; if that
// claimer died mid-execution the stuck-entry sweep picks the entry up.
func (uc *SubmitAction) claimPreview(ctx context.Context, req SubmitRequest) (*domain.AuditEntry, error) {
	entry, err := uc.Audit.GetByID(ctx, req.PreviewID)
	if err != nil {
		return nil, fmt.Errorf("%w: load preview: %v", domain.ErrInternal, err)
	}
	if entry == nil {
		return nil, domain.ErrPreviewNotFound
	}
	if entry.UserID != req.Actor.UserID {
		return nil, domain.ErrPreviewAccessDenied
	}
	if entry.ActionType != req.Action.Type || entry.Target != req.Action.Target {
		return nil, fmt.Errorf("%w: resubmitted action does not match the previewed action", domain.ErrPreviewInvalidState)
	}
	if entry.Status != domain.AuditStatusPending {
		return nil, fmt.Errorf("%w: entry is %s", domain.ErrPreviewInvalidState, entry.Status)
	}
	confirmed, err := uc.Audit.Transition(ctx, entry.ID,
		[]domain.AuditStatus{domain.AuditStatusPending},
		AuditTransition{To: domain.AuditStatusConfirmed})
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: entry was already claimed", domain.ErrPreviewInvalidState)
		}
		return nil, fmt.Errorf("%w: confirm preview: %v", domain.ErrInternal, err)
	}
	return confirmed, nil
}

func (uc *SubmitAction) execute(ctx context.Context, req SubmitRequest, entry domain.AuditEntry) (*SubmitResponse, error) {
	started := uc.now()

	result, execErr := uc.dispatch(ctx, req, entry)
	durationMs := uc.now().Sub(started).Milliseconds()

	if execErr != nil {
		return uc.finishFailed(ctx, entry, execErr, durationMs)
	}

	completedAt := uc.now()
	revertible := result.revertible
	_, err := uc.Audit.Transition(ctx, entry.ID,
		[]domain.AuditStatus{domain.AuditStatusPending, domain.AuditStatusConfirmed},
		AuditTransition{
			To:           domain.AuditStatusCompleted,
			BeforeData:   result.before,
			AfterData:    result.after,
			IsRevertible: &revertible,
			DurationMs:   &durationMs,
			CompletedAt:  &completedAt,
		})
	if err != nil {
		return nil, fmt.Errorf("%w: finalize audit entry: %v", domain.ErrInternal, err)
	}

	return &SubmitResponse{
		Outcome:    OutcomeCompleted,
		AuditID:    entry.ID,
		RedirectTo: result.redirectTo,
		Result:     result.after,
	}, nil
}

type dispatchResult struct {
	before     map[string]any
	after      map[string]any
	revertible bool
	redirectTo string
}

// dispatch performs the side effect for one action. A panic inside a
// handler is converted into an execution failure so the entry never stays
// executable.
func (uc *SubmitAction) dispatch(ctx context.Context, req SubmitRequest, entry domain.AuditEntry) (result dispatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", domain.ErrExecutionFailed, r)
		}
	}()

	action := req.Action
	switch action.Type {
	case domain.ActionNavigate:
		return dispatchResult{redirectTo: action.Target}, nil
	case domain.ActionCreate:
		return uc.dispatchCreate(ctx, action, entry)
	case domain.ActionUpdate:
		return uc.dispatchUpdate(ctx, action, entry)
	case domain.ActionDelete:
		return uc.dispatchDelete(ctx, action, entry)
	case domain.ActionExecute:
		return uc.dispatchExecute(ctx, action, entry)
	}
	return dispatchResult{}, fmt.Errorf("%w: no handler for action type %q", domain.ErrExecutionFailed, action.Type)
}

func (uc *SubmitAction) dispatchCreate(ctx context.Context, action domain.ProposedAction, entry domain.AuditEntry) (dispatchResult, error) {
	table, err := uc.Resolver.TableFor(action.Collection())
	if err != nil {
		return dispatchResult{}, fmt.Errorf("%w: %v", domain.ErrExecutionFailed, err)
	}
	inserted, err := uc.Rows.InsertRow(ctx, table, action.Create.Values)
	if err != nil {
		return dispatchResult{}, fmt.Errorf("%w: insert row: %v", domain.ErrExecutionFailed, err)
	}
	uc.publish(ctx, domain.EventActionCreate, entry, action.Collection(), asString(inserted["id"]), inserted)
	// The empty before snapshot records that the row did not exist, which
	// is what revert needs to know to delete it again.
	return dispatchResult{before: map[string]any{}, after: inserted, revertible: true}, nil
}

func (uc *SubmitAction) dispatchUpdate(ctx context.Context, action domain.ProposedAction, entry domain.AuditEntry) (dispatchResult, error) {
	table, err := uc.Resolver.TableFor(action.Collection())
	if err != nil {
		return dispatchResult{}, fmt.Errorf("%w: %v", domain.ErrExecutionFailed, err)
	}
	recordID := action.RecordID()
	before, err := uc.Rows.ReadRow(ctx, table, recordID)
	if err != nil {
		return dispatchResult{}, fmt.Errorf("%w: capture current state: %v", domain.ErrExecutionFailed, err)
	}
	if before == nil {
		return dispatchResult{}, fmt.Errorf("%w: record %s/%s not found", domain.ErrExecutionFailed, action.Collection(), recordID)
	}
	if err := uc.Rows.UpdateRow(ctx, table, recordID, action.Update.Values); err != nil {
		return dispatchResult{}, fmt.Errorf("%w: update row: %v", domain.ErrExecutionFailed, err)
	}
	after, err := uc.Rows.ReadRow(ctx, table, recordID)
	if err != nil || after == nil {
		after = mergedRow(before, action.Update.Values)
	}
	uc.publish(ctx, domain.EventActionUpdate, entry, action.Collection(), recordID, after)
	return dispatchResult{before: before, after: after, revertible: true}, nil
}

func (uc *SubmitAction) dispatchDelete(ctx context.Context, action domain.ProposedAction, entry domain.AuditEntry) (dispatchResult, error) {
	table, err := uc.Resolver.TableFor(action.Collection())
	if err != nil {
		return dispatchResult{}, fmt.Errorf("%w: %v", domain.ErrExecutionFailed, err)
	}
	recordID := action.RecordID()
	before, err := uc.Rows.ReadRow(ctx, table, recordID)
	if err != nil {
		return dispatchResult{}, fmt.Errorf("%w: capture current state: %v", domain.ErrExecutionFailed, err)
	}
	if before == nil {
		return dispatchResult{}, fmt.Errorf("%w: record %s/%s not found", domain.ErrExecutionFailed, action.Collection(), recordID)
	}
	if err := uc.Rows.DeleteRow(ctx, table, recordID); err != nil {
		return dispatchResult{}, fmt.Errorf("%w: delete row: %v", domain.ErrExecutionFailed, err)
	}
	return dispatchResult{before: before, revertible: true}, nil
}

func (uc *SubmitAction) dispatchExecute(ctx context.Context, action domain.ProposedAction, entry domain.AuditEntry) (dispatchResult, error) {
	// The engine does not know the semantics of execute; the event is the
	// side effect, so a publish failure is a handler failure.
	event := domain.ActionEvent{
		Kind:       domain.EventActionExecute,
		AuditID:    entry.ID,
		UserID:     entry.UserID,
		Collection: action.Collection(),
		RecordID:   action.RecordID(),
		Name:       action.Execute.Event,
		Payload:    action.Execute.Payload,
		OccurredAt: uc.now(),
	}
	if uc.Events == nil {
		return dispatchResult{}, fmt.Errorf("%w: no event publisher configured", domain.ErrExecutionFailed)
	}
	if err := uc.Events.Publish(ctx, event); err != nil {
		return dispatchResult{}, fmt.Errorf("%w: publish %s: %v", domain.ErrExecutionFailed, event.Name, err)
	}
	return dispatchResult{after: map[string]any{"event": action.Execute.Event}}, nil
}

func (uc *SubmitAction) finishFailed(ctx context.Context, entry domain.AuditEntry, execErr error, durationMs int64) (*SubmitResponse, error) {
	_, err := uc.Audit.Transition(ctx, entry.ID,
		[]domain.AuditStatus{domain.AuditStatusPending, domain.AuditStatusConfirmed},
		AuditTransition{
			To:           domain.AuditStatusFailed,
			ErrorMessage: execErr.Error(),
			DurationMs:   &durationMs,
		})
	if err != nil {
		return nil, fmt.Errorf("%w: record failure: %v", domain.ErrInternal, err)
	}
	return &SubmitResponse{
		Outcome:      OutcomeFailed,
		AuditID:      entry.ID,
		ErrorMessage: fmt.Sprintf("the action could not be completed; reference audit entry %s", entry.ID),
	}, nil
}

// publish emits fire-and-forget notifications for create and update
// effects. Losing one does not fail the action.
func (uc *SubmitAction) publish(ctx context.Context, kind domain.ActionEventKind, entry domain.AuditEntry, collection, recordID string, payload map[string]any) {
	if uc.Events == nil {
		return
	}
	_ = uc.Events.Publish(ctx, domain.ActionEvent{
		Kind:       kind,
		AuditID:    entry.ID,
		UserID:     entry.UserID,
		Collection: collection,
		RecordID:   recordID,
		Payload:    payload,
		OccurredAt: uc.now(),
	})
}

func (uc *SubmitAction) newEntry(req SubmitRequest, status domain.AuditStatus, errorMessage string) domain.AuditEntry {
	collection, recordID := domain.SplitTarget(req.Action.Target)
	return domain.AuditEntry{
		UserID:           req.Actor.UserID,
		UserRole:         req.Actor.UserRole,
		SessionID:        req.Actor.SessionID,
		IPAddress:        req.Actor.IPAddress,
		UserAgent:        req.Actor.UserAgent,
		ActionType:       req.Action.Type,
		Status:           status,
		Label:            req.Action.Label,
		Target:           req.Action.Target,
		TargetCollection: collection,
		TargetRecordID:   recordID,
		Params:           actionParams(req.Action),
		ErrorMessage:     errorMessage,
		CreatedAt:        uc.now(),
	}
}

func (uc *SubmitAction) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrStatusConflict)
}

func mergedRow(before, changes map[string]any) map[string]any {
	merged := make(map[string]any, len(before)+len(changes))
	for k, v := range before {
		merged[k] = v
	}
	for k, v := range changes {
		merged[k] = v
	}
	return merged
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
