//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"steward/internal/domain"
	"steward/internal/usecase"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	dbConn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := &Store{DB: dbConn}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := dbConn.Exec(`CREATE TABLE IF NOT EXISTS data_incidents (
		id TEXT PRIMARY KEY,
		title TEXT,
		status TEXT
	)`).Error; err != nil {
		t.Fatalf("create business table: %v", err)
	}
	return dbConn
}

func resetDB(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	if err := dbConn.Exec(`TRUNCATE audit_entries, governance_settings, permission_rules, data_incidents RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func TestAuditEntryRepository_CreateAndTransition(t *testing.T) {
	dbConn := setupTestDB(t)
	resetDB(t, dbConn)

	repo := NewAuditEntryRepository(dbConn)
	created, err := repo.Create(context.Background(), domain.AuditEntry{
		UserID:           "u1",
		UserRole:         "user",
		ActionType:       domain.ActionUpdate,
		Status:           domain.AuditStatusPending,
		Target:           "/incidents/42",
		TargetCollection: "incidents",
		TargetRecordID:   "42",
		Params:           map[string]any{"status": "closed"},
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	confirmed, err := repo.Transition(context.Background(), created.ID,
		[]domain.AuditStatus{domain.AuditStatusPending},
		usecase.AuditTransition{To: domain.AuditStatusConfirmed})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.AuditStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}

	// The compare-and-set loses when the entry already moved on.
	_, err = repo.Transition(context.Background(), created.ID,
		[]domain.AuditStatus{domain.AuditStatusPending},
		usecase.AuditTransition{To: domain.AuditStatusConfirmed})
	if err == nil {
		t.Fatal("expected conflict on second confirm")
	}

	revertible := true
	durationMs := int64(12)
	completedAt := time.Now().UTC()
	completed, err := repo.Transition(context.Background(), created.ID,
		[]domain.AuditStatus{domain.AuditStatusPending, domain.AuditStatusConfirmed},
		usecase.AuditTransition{
			To:           domain.AuditStatusCompleted,
			BeforeData:   map[string]any{"status": "open"},
			AfterData:    map[string]any{"status": "closed"},
			IsRevertible: &revertible,
			DurationMs:   &durationMs,
			CompletedAt:  &completedAt,
		})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !completed.IsRevertible || completed.BeforeData["status"] != "open" {
		t.Fatalf("snapshot fields not persisted: %+v", completed)
	}

	loaded, err := repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != domain.AuditStatusCompleted || loaded.CompletedAt == nil {
		t.Fatalf("unexpected stored entry: %+v", loaded)
	}
}

func TestAuditEntryRepository_CountAndOldest(t *testing.T) {
	dbConn := setupTestDB(t)
	resetDB(t, dbConn)

	repo := NewAuditEntryRepository(dbConn)
	base := time.Now().UTC().Add(-30 * time.Minute)
	for i, userID := range []string{"u1", "u1", "u2"} {
		_, err := repo.Create(context.Background(), domain.AuditEntry{
			UserID:           userID,
			ActionType:       domain.ActionCreate,
			Status:           domain.AuditStatusCompleted,
			Target:           "/incidents",
			TargetCollection: "incidents",
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}

	since := time.Now().UTC().Add(-time.Hour)
	userCount, err := repo.CountSince(context.Background(), "u1", since)
	if err != nil {
		t.Fatalf("count user: %v", err)
	}
	if userCount != 2 {
		t.Fatalf("expected 2 for u1, got %d", userCount)
	}
	globalCount, err := repo.CountSince(context.Background(), "", since)
	if err != nil {
		t.Fatalf("count global: %v", err)
	}
	if globalCount != 3 {
		t.Fatalf("expected 3 global, got %d", globalCount)
	}

	oldest, err := repo.OldestSince(context.Background(), "u1", since)
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}
	if oldest == nil || oldest.Sub(base) > time.Second {
		t.Fatalf("expected oldest near %s, got %v", base, oldest)
	}
}

func TestSettingsRepository_SeedAndUpdate(t *testing.T) {
	dbConn := setupTestDB(t)
	resetDB(t, dbConn)

	repo := NewSettingsRepository(dbConn)
	if _, err := repo.Get(context.Background()); err == nil {
		t.Fatal("expected error before seeding")
	}

	if err := repo.EnsureDefaults(context.Background(), domain.DefaultGovernanceSettings()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	settings, err := repo.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !settings.Enabled || settings.UserRateLimitPerHour != 50 {
		t.Fatalf("unexpected defaults: %+v", settings)
	}

	settings.ReadOnlyMode = true
	settings.SystemReadOnlyCollections = []string{"billing"}
	updated, err := repo.Update(context.Background(), settings)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.ReadOnlyMode {
		t.Fatal("read-only flag lost")
	}

	// Seeding again must not clobber the admin's changes.
	if err := repo.EnsureDefaults(context.Background(), domain.DefaultGovernanceSettings()); err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	settings, _ = repo.Get(context.Background())
	if !settings.ReadOnlyMode || len(settings.SystemReadOnlyCollections) != 1 {
		t.Fatalf("re-seed overwrote settings: %+v", settings)
	}
}

func TestPermissionRuleRepository_ResolvePrecedence(t *testing.T) {
	dbConn := setupTestDB(t)
	resetDB(t, dbConn)

	repo := NewPermissionRuleRepository(dbConn)
	global, err := repo.Upsert(context.Background(), domain.PermissionRule{
		ActionType:           domain.ActionUpdate,
		IsEnabled:            true,
		RequiresConfirmation: true,
	})
	if err != nil {
		t.Fatalf("upsert global: %v", err)
	}
	specific, err := repo.Upsert(context.Background(), domain.PermissionRule{
		CollectionCode:       "incidents",
		ActionType:           domain.ActionUpdate,
		IsEnabled:            true,
		RequiresConfirmation: false,
	})
	if err != nil {
		t.Fatalf("upsert specific: %v", err)
	}

	rule, err := repo.Resolve(context.Background(), "incidents", domain.ActionUpdate)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rule == nil || rule.ID != specific.ID {
		t.Fatalf("expected collection rule to win, got %+v", rule)
	}

	rule, err = repo.Resolve(context.Background(), "orders", domain.ActionUpdate)
	if err != nil {
		t.Fatalf("resolve fallback: %v", err)
	}
	if rule == nil || rule.ID != global.ID {
		t.Fatalf("expected global fallback, got %+v", rule)
	}

	rule, err = repo.Resolve(context.Background(), "orders", domain.ActionDelete)
	if err != nil {
		t.Fatalf("resolve none: %v", err)
	}
	if rule != nil {
		t.Fatalf("expected nil for unmatched type, got %+v", rule)
	}

	// Upserting the same (collection, type) pair replaces the rule.
	replaced, err := repo.Upsert(context.Background(), domain.PermissionRule{
		CollectionCode:       "incidents",
		ActionType:           domain.ActionUpdate,
		IsEnabled:            false,
		RequiresConfirmation: true,
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.IsEnabled {
		t.Fatal("expected replacement to stick")
	}
	rules, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules after replace, got %d", len(rules))
	}
}

func TestRowRepository_RoundTrip(t *testing.T) {
	dbConn := setupTestDB(t)
	resetDB(t, dbConn)

	repo := NewRowRepository(dbConn)
	inserted, err := repo.InsertRow(context.Background(), "data_incidents", map[string]any{
		"title":  "disk full",
		"status": "open",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, _ := inserted["id"].(string)
	if id == "" {
		t.Fatal("expected generated id")
	}

	if err := repo.UpdateRow(context.Background(), "data_incidents", id, map[string]any{"status": "closed"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	row, err := repo.ReadRow(context.Background(), "data_incidents", id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row["status"] != "closed" {
		t.Fatalf("expected closed, got %v", row)
	}

	if err := repo.DeleteRow(context.Background(), "data_incidents", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	row, err = repo.ReadRow(context.Background(), "data_incidents", id)
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	if row != nil {
		t.Fatalf("expected row gone, got %v", row)
	}
	if err := repo.DeleteRow(context.Background(), "data_incidents", id); err == nil {
		t.Fatal("expected error deleting a missing row")
	}
}
