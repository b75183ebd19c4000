package db

import (
	"context"
	"errors"
	"time"

	"steward/internal/domain"
	"steward/internal/usecase"

	"gorm.io/gorm"
)

type AuditEntryRepository struct {
	db *gorm.DB
}

func NewAuditEntryRepository(db *gorm.DB) *AuditEntryRepository {
	return &AuditEntryRepository{db: db}
}

func (r *AuditEntryRepository) Create(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if r.db == nil {
		return domain.AuditEntry{}, errDBUnavailable
	}
	if entry.ID == "" {
		id, err := newUUID()
		if err != nil {
			return domain.AuditEntry{}, err
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	} else {
		entry.CreatedAt = entry.CreatedAt.UTC()
	}
	if entry.Status == "" {
		return domain.AuditEntry{}, errors.New("status is required")
	}
	if entry.UserID == "" {
		return domain.AuditEntry{}, errors.New("user_id is required")
	}

	model, err := auditEntryModelFromDomain(entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.AuditEntry{}, err
	}
	return entry, nil
}

func (r *AuditEntryRepository) GetByID(ctx context.Context, id string) (*domain.AuditEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model AuditEntryModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry, err := auditEntryFromModel(model)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Transition is the single write path for status changes. The status check
// happens inside the UPDATE itself so two racing callers cannot both move
// the same entry forward.
func (r *AuditEntryRepository) Transition(ctx context.Context, id string, from []domain.AuditStatus, tr usecase.AuditTransition) (*domain.AuditEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if !transitionLegal(from, tr.To) {
		return nil, domain.ErrStatusConflict
	}

	updates := map[string]any{"status": string(tr.To)}
	if tr.BeforeData != nil {
		raw, err := marshalMap(tr.BeforeData)
		if err != nil {
			return nil, err
		}
		updates["before_json"] = raw
	}
	if tr.AfterData != nil {
		raw, err := marshalMap(tr.AfterData)
		if err != nil {
			return nil, err
		}
		updates["after_json"] = raw
	}
	if tr.IsRevertible != nil {
		updates["is_revertible"] = *tr.IsRevertible
	}
	if tr.ErrorMessage != "" {
		updates["error_message"] = tr.ErrorMessage
	}
	if tr.DurationMs != nil {
		updates["duration_ms"] = *tr.DurationMs
	}
	if tr.CompletedAt != nil {
		updates["completed_at"] = tr.CompletedAt.UTC()
	}
	if tr.RevertedAt != nil {
		updates["reverted_at"] = tr.RevertedAt.UTC()
	}
	if tr.RevertedBy != "" {
		updates["reverted_by"] = tr.RevertedBy
	}
	if tr.RevertReason != "" {
		updates["revert_reason"] = tr.RevertReason
	}

	fromStatuses := make([]string, 0, len(from))
	for _, status := range from {
		fromStatuses = append(fromStatuses, string(status))
	}

	res := r.db.WithContext(ctx).
		Model(&AuditEntryModel{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&AuditEntryModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrStatusConflict
	}
	return r.GetByID(ctx, id)
}

func (r *AuditEntryRepository) CountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Model(&AuditEntryModel{}).Where("created_at > ?", since.UTC())
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *AuditEntryRepository) OldestSince(ctx context.Context, userID string, since time.Time) (*time.Time, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Model(&AuditEntryModel{}).Where("created_at > ?", since.UTC())
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var model AuditEntryModel
	err := q.Order("created_at ASC").Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	createdAt := model.CreatedAt.UTC()
	return &createdAt, nil
}

func (r *AuditEntryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 50
	}
	var models []AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return auditEntriesFromModels(models)
}

func (r *AuditEntryRepository) ListStuck(ctx context.Context, cutoff time.Time) ([]domain.AuditEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]string{string(domain.AuditStatusPending), string(domain.AuditStatusConfirmed)},
			cutoff.UTC()).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return auditEntriesFromModels(models)
}

func transitionLegal(from []domain.AuditStatus, to domain.AuditStatus) bool {
	for _, status := range from {
		if status.CanTransitionTo(to) {
			return true
		}
	}
	return false
}

func auditEntriesFromModels(models []AuditEntryModel) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, 0, len(models))
	for _, model := range models {
		entry, err := auditEntryFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func auditEntryModelFromDomain(entry domain.AuditEntry) (AuditEntryModel, error) {
	paramsJSON, err := marshalMap(entry.Params)
	if err != nil {
		return AuditEntryModel{}, err
	}
	beforeJSON, err := marshalMap(entry.BeforeData)
	if err != nil {
		return AuditEntryModel{}, err
	}
	afterJSON, err := marshalMap(entry.AfterData)
	if err != nil {
		return AuditEntryModel{}, err
	}
	return AuditEntryModel{
		ID:               entry.ID,
		UserID:           entry.UserID,
		UserRole:         entry.UserRole,
		SessionID:        stringPtrIfNotEmpty(entry.SessionID),
		IPAddress:        stringPtrIfNotEmpty(entry.IPAddress),
		UserAgent:        stringPtrIfNotEmpty(entry.UserAgent),
		ActionType:       string(entry.ActionType),
		Status:           string(entry.Status),
		Label:            stringPtrIfNotEmpty(entry.Label),
		Target:           entry.Target,
		TargetCollection: stringPtrIfNotEmpty(entry.TargetCollection),
		TargetRecordID:   stringPtrIfNotEmpty(entry.TargetRecordID),
		ParamsJSON:       paramsJSON,
		BeforeJSON:       beforeJSON,
		AfterJSON:        afterJSON,
		IsRevertible:     entry.IsRevertible,
		ErrorMessage:     stringPtrIfNotEmpty(entry.ErrorMessage),
		DurationMs:       entry.DurationMs,
		RevertedBy:       stringPtrIfNotEmpty(entry.RevertedBy),
		RevertReason:     stringPtrIfNotEmpty(entry.RevertReason),
		CreatedAt:        entry.CreatedAt.UTC(),
		CompletedAt:      entry.CompletedAt,
		RevertedAt:       entry.RevertedAt,
	}, nil
}

func auditEntryFromModel(model AuditEntryModel) (domain.AuditEntry, error) {
	params, err := unmarshalMap(model.ParamsJSON)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	before, err := unmarshalMap(model.BeforeJSON)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	after, err := unmarshalMap(model.AfterJSON)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return domain.AuditEntry{
		ID:               model.ID,
		UserID:           model.UserID,
		UserRole:         model.UserRole,
		SessionID:        stringValue(model.SessionID),
		IPAddress:        stringValue(model.IPAddress),
		UserAgent:        stringValue(model.UserAgent),
		ActionType:       domain.ActionType(model.ActionType),
		Status:           domain.AuditStatus(model.Status),
		Label:            stringValue(model.Label),
		Target:           model.Target,
		TargetCollection: stringValue(model.TargetCollection),
		TargetRecordID:   stringValue(model.TargetRecordID),
		Params:           params,
		BeforeData:       before,
		AfterData:        after,
		IsRevertible:     model.IsRevertible,
		ErrorMessage:     stringValue(model.ErrorMessage),
		DurationMs:       model.DurationMs,
		RevertedBy:       stringValue(model.RevertedBy),
		RevertReason:     stringValue(model.RevertReason),
		CreatedAt:        model.CreatedAt.UTC(),
		CompletedAt:      model.CompletedAt,
		RevertedAt:       model.RevertedAt,
	}, nil
}
