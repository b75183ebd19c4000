package usecase

import (
	"context"
	"fmt"
	"time"

	"steward/internal/domain"
)

type RevertRequest struct {
	AuditID    string
	RevertedBy string
	Reason     string
}

type RevertResponse struct {
	AuditID  string
	Restored map[string]any
}

// RevertAction restores the target record to the state captured immediately
// before a completed action mutated it, then marks the original entry
// reverted. The completed -> reverted compare-and-set makes a second revert
// of the same entry fail instead of double-applying the restore.
type RevertAction struct {
	Audit    AuditRepository
	Rows     domain.RowStore
	Resolver domain.CollectionResolver
	Now      func() time.Time
}

func (uc *RevertAction) Execute(ctx context.Context, req RevertRequest) (*RevertResponse, error) {
	entry, err := uc.Audit.GetByID(ctx, req.AuditID)
	if err != nil {
		return nil, fmt.Errorf("%w: load audit entry: %v", domain.ErrInternal, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: audit entry not found", domain.ErrRevertFailed)
	}
	if !entry.IsRevertible {
		return nil, fmt.Errorf("%w: entry is not revertible", domain.ErrRevertFailed)
	}
	if entry.Status == domain.AuditStatusReverted {
		return nil, fmt.Errorf("%w: already reverted", domain.ErrRevertFailed)
	}
	if entry.Status != domain.AuditStatusCompleted {
		return nil, fmt.Errorf("%w: entry is %s, not completed", domain.ErrRevertFailed, entry.Status)
	}
	if entry.BeforeData == nil {
		return nil, fmt.Errorf("%w: no captured before state", domain.ErrRevertFailed)
	}

	restored, err := uc.restore(ctx, *entry)
	if err != nil {
		return nil, err
	}

	revertedAt := uc.now()
	_, err = uc.Audit.Transition(ctx, entry.ID,
		[]domain.AuditStatus{domain.AuditStatusCompleted},
		AuditTransition{
			To:           domain.AuditStatusReverted,
			RevertedAt:   &revertedAt,
			RevertedBy:   req.RevertedBy,
			RevertReason: req.Reason,
		})
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: already reverted", domain.ErrRevertFailed)
		}
		return nil, fmt.Errorf("%w: finalize revert: %v", domain.ErrInternal, err)
	}

	return &RevertResponse{AuditID: entry.ID, Restored: restored}, nil
}

func (uc *RevertAction) restore(ctx context.Context, entry domain.AuditEntry) (map[string]any, error) {
	table, err := uc.Resolver.TableFor(entry.TargetCollection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRevertFailed, err)
	}

	switch entry.ActionType {
	case domain.ActionUpdate:
		values := make(map[string]any, len(entry.BeforeData))
		for k, v := range entry.BeforeData {
			if k == "id" {
				continue
			}
			values[k] = v
		}
		if err := uc.Rows.UpdateRow(ctx, table, entry.TargetRecordID, values); err != nil {
			return nil, fmt.Errorf("%w: restore previous values: %v", domain.ErrRevertFailed, err)
		}
		return entry.BeforeData, nil
	case domain.ActionCreate:
		// The target of a create may carry a placeholder segment ("new");
		// the authoritative id is the one captured at completion.
		createdID := asString(entry.AfterData["id"])
		if createdID == "" {
			createdID = entry.TargetRecordID
		}
		if createdID == "" {
			return nil, fmt.Errorf("%w: created record id unknown", domain.ErrRevertFailed)
		}
		if err := uc.Rows.DeleteRow(ctx, table, createdID); err != nil {
			return nil, fmt.Errorf("%w: delete created row: %v", domain.ErrRevertFailed, err)
		}
		return nil, nil
	case domain.ActionDelete:
		if _, err := uc.Rows.InsertRow(ctx, table, entry.BeforeData); err != nil {
			return nil, fmt.Errorf("%w: re-insert deleted row: %v", domain.ErrRevertFailed, err)
		}
		return entry.BeforeData, nil
	}
	return nil, fmt.Errorf("%w: %s actions are not revertible", domain.ErrRevertFailed, entry.ActionType)
}

func (uc *RevertAction) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}
