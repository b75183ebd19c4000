package db

import (
	"context"
	"errors"
	"time"

	"steward/internal/domain"

	"gorm.io/gorm"
)

// settingsRowID pins the governance settings to a single row.
const settingsRowID = "governance"

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// EnsureDefaults seeds the singleton row when it is missing. Get fails
// rather than falling back to allow-all, so a fresh deployment must run
// this once at startup.
func (r *SettingsRepository) EnsureDefaults(ctx context.Context, defaults domain.GovernanceSettings) error {
	if r.db == nil {
		return errDBUnavailable
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&GovernanceSettingsModel{}).
		Where("id = ?", settingsRowID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	model, err := settingsModelFromDomain(defaults)
	if err != nil {
		return err
	}
	model.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.GovernanceSettings, error) {
	if r.db == nil {
		return domain.GovernanceSettings{}, errDBUnavailable
	}
	var model GovernanceSettingsModel
	err := r.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.GovernanceSettings{}, errors.New("governance settings not initialized")
	}
	if err != nil {
		return domain.GovernanceSettings{}, err
	}
	return settingsFromModel(model)
}

func (r *SettingsRepository) Update(ctx context.Context, settings domain.GovernanceSettings) (domain.GovernanceSettings, error) {
	if r.db == nil {
		return domain.GovernanceSettings{}, errDBUnavailable
	}
	model, err := settingsModelFromDomain(settings)
	if err != nil {
		return domain.GovernanceSettings{}, err
	}
	model.UpdatedAt = time.Now().UTC()
	// Last writer wins; settings changes are rare administrative edits.
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return domain.GovernanceSettings{}, err
	}
	settings.UpdatedAt = model.UpdatedAt
	return settings, nil
}

func settingsModelFromDomain(settings domain.GovernanceSettings) (GovernanceSettingsModel, error) {
	collectionsJSON, err := marshalStrings(settings.SystemReadOnlyCollections)
	if err != nil {
		return GovernanceSettingsModel{}, err
	}
	return GovernanceSettingsModel{
		ID:                          settingsRowID,
		Enabled:                     settings.Enabled,
		ReadOnlyMode:                settings.ReadOnlyMode,
		AllowCreate:                 settings.AllowCreate,
		AllowUpdate:                 settings.AllowUpdate,
		AllowDelete:                 settings.AllowDelete,
		AllowExecute:                settings.AllowExecute,
		ReadOnlyCollectionsJSON:     collectionsJSON,
		DefaultRequiresConfirmation: settings.DefaultRequiresConfirmation,
		UserRateLimitPerHour:        settings.UserRateLimitPerHour,
		GlobalRateLimitPerHour:      settings.GlobalRateLimitPerHour,
		UpdatedAt:                   settings.UpdatedAt,
	}, nil
}

func settingsFromModel(model GovernanceSettingsModel) (domain.GovernanceSettings, error) {
	collections, err := unmarshalStrings(model.ReadOnlyCollectionsJSON)
	if err != nil {
		return domain.GovernanceSettings{}, err
	}
	return domain.GovernanceSettings{
		Enabled:                     model.Enabled,
		ReadOnlyMode:                model.ReadOnlyMode,
		AllowCreate:                 model.AllowCreate,
		AllowUpdate:                 model.AllowUpdate,
		AllowDelete:                 model.AllowDelete,
		AllowExecute:                model.AllowExecute,
		SystemReadOnlyCollections:   collections,
		DefaultRequiresConfirmation: model.DefaultRequiresConfirmation,
		UserRateLimitPerHour:        model.UserRateLimitPerHour,
		GlobalRateLimitPerHour:      model.GlobalRateLimitPerHour,
		UpdatedAt:                   model.UpdatedAt.UTC(),
	}, nil
}
