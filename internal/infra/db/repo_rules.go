package db

import (
	"context"
	"errors"
	"time"

	"steward/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PermissionRuleRepository struct {
	db *gorm.DB
}

func NewPermissionRuleRepository(db *gorm.DB) *PermissionRuleRepository {
	return &PermissionRuleRepository{db: db}
}

// Resolve applies rule precedence: the collection-specific rule for the
// action type wins over the global (empty collection code) rule.
func (r *PermissionRuleRepository) Resolve(ctx context.Context, collection string, actionType domain.ActionType) (*domain.PermissionRule, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if collection != "" {
		rule, err := r.lookup(ctx, collection, actionType)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			return rule, nil
		}
	}
	return r.lookup(ctx, "", actionType)
}

func (r *PermissionRuleRepository) lookup(ctx context.Context, collection string, actionType domain.ActionType) (*domain.PermissionRule, error) {
	var model PermissionRuleModel
	err := r.db.WithContext(ctx).
		Where("collection_code = ? AND action_type = ?", collection, string(actionType)).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rule, err := ruleFromModel(model)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *PermissionRuleRepository) List(ctx context.Context) ([]domain.PermissionRule, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []PermissionRuleModel
	if err := r.db.WithContext(ctx).
		Order("collection_code ASC, action_type ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PermissionRule, 0, len(models))
	for _, model := range models {
		rule, err := ruleFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Upsert keeps the at-most-one-rule-per-(collection, actionType) invariant
// by conflicting on the pair rather than the id.
func (r *PermissionRuleRepository) Upsert(ctx context.Context, rule domain.PermissionRule) (domain.PermissionRule, error) {
	if r.db == nil {
		return domain.PermissionRule{}, errDBUnavailable
	}
	if !rule.ActionType.Valid() {
		return domain.PermissionRule{}, errors.New("invalid action type")
	}
	if rule.ID == "" {
		id, err := newUUID()
		if err != nil {
			return domain.PermissionRule{}, err
		}
		rule.ID = id
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	model, err := ruleModelFromDomain(rule)
	if err != nil {
		return domain.PermissionRule{}, err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection_code"}, {Name: "action_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_enabled", "allowed_roles_json", "excluded_roles_json",
			"requires_confirmation", "updated_at",
		}),
	}).Create(&model).Error
	if err != nil {
		return domain.PermissionRule{}, err
	}

	stored, err := r.lookup(ctx, rule.CollectionCode, rule.ActionType)
	if err != nil {
		return domain.PermissionRule{}, err
	}
	if stored == nil {
		return domain.PermissionRule{}, errors.New("rule not persisted")
	}
	return *stored, nil
}

func (r *PermissionRuleRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&PermissionRuleModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func ruleModelFromDomain(rule domain.PermissionRule) (PermissionRuleModel, error) {
	allowedJSON, err := marshalStrings(rule.AllowedRoles)
	if err != nil {
		return PermissionRuleModel{}, err
	}
	excludedJSON, err := marshalStrings(rule.ExcludedRoles)
	if err != nil {
		return PermissionRuleModel{}, err
	}
	return PermissionRuleModel{
		ID:                   rule.ID,
		CollectionCode:       rule.CollectionCode,
		ActionType:           string(rule.ActionType),
		IsEnabled:            rule.IsEnabled,
		AllowedRolesJSON:     allowedJSON,
		ExcludedRolesJSON:    excludedJSON,
		RequiresConfirmation: rule.RequiresConfirmation,
		CreatedAt:            rule.CreatedAt.UTC(),
		UpdatedAt:            rule.UpdatedAt.UTC(),
	}, nil
}

func ruleFromModel(model PermissionRuleModel) (domain.PermissionRule, error) {
	allowed, err := unmarshalStrings(model.AllowedRolesJSON)
	if err != nil {
		return domain.PermissionRule{}, err
	}
	excluded, err := unmarshalStrings(model.ExcludedRolesJSON)
	if err != nil {
		return domain.PermissionRule{}, err
	}
	return domain.PermissionRule{
		ID:                   model.ID,
		CollectionCode:       model.CollectionCode,
		ActionType:           domain.ActionType(model.ActionType),
		IsEnabled:            model.IsEnabled,
		AllowedRoles:         allowed,
		ExcludedRoles:        excluded,
		RequiresConfirmation: model.RequiresConfirmation,
		CreatedAt:            model.CreatedAt.UTC(),
		UpdatedAt:            model.UpdatedAt.UTC(),
	}, nil
}
