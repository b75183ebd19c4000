package db

import "time"

type AuditEntryModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"index:idx_audit_user_created;not null"`
	UserRole  string `gorm:"not null"`
	SessionID *string
	IPAddress *string
	UserAgent *string

	ActionType       string `gorm:"not null"`
	Status           string `gorm:"index;not null"`
	Label            *string
	Target           string `gorm:"not null"`
	TargetCollection *string
	TargetRecordID   *string

	ParamsJSON []byte `gorm:"type:jsonb"`
	BeforeJSON []byte `gorm:"type:jsonb"`
	AfterJSON  []byte `gorm:"type:jsonb"`

	IsRevertible bool `gorm:"not null"`
	ErrorMessage *string
	DurationMs   int64 `gorm:"not null;default:0"`

	RevertedBy   *string
	RevertReason *string

	CreatedAt   time.Time `gorm:"index:idx_audit_user_created;index;not null"`
	CompletedAt *time.Time
	RevertedAt  *time.Time
}

func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

type GovernanceSettingsModel struct {
	ID           string `gorm:"primaryKey"`
	Enabled      bool   `gorm:"not null"`
	ReadOnlyMode bool   `gorm:"not null"`

	AllowCreate  bool `gorm:"not null"`
	AllowUpdate  bool `gorm:"not null"`
	AllowDelete  bool `gorm:"not null"`
	AllowExecute bool `gorm:"not null"`

	ReadOnlyCollectionsJSON []byte `gorm:"type:jsonb"`

	DefaultRequiresConfirmation bool `gorm:"not null"`
	UserRateLimitPerHour        int  `gorm:"not null"`
	GlobalRateLimitPerHour      int  `gorm:"not null"`

	UpdatedAt time.Time `gorm:"not null"`
}

func (GovernanceSettingsModel) TableName() string {
	return "governance_settings"
}

type PermissionRuleModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	CollectionCode string `gorm:"uniqueIndex:uq_rule_collection_action;not null;default:''"`
	ActionType     string `gorm:"uniqueIndex:uq_rule_collection_action;not null"`
	IsEnabled      bool   `gorm:"not null"`

	AllowedRolesJSON  []byte `gorm:"type:jsonb"`
	ExcludedRolesJSON []byte `gorm:"type:jsonb"`

	RequiresConfirmation bool      `gorm:"not null"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

func (PermissionRuleModel) TableName() string {
	return "permission_rules"
}
