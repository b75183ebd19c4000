package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"steward/internal/domain"
)

type fakeSettings struct {
	settings domain.GovernanceSettings
	err      error
}

func (f *fakeSettings) Get(context.Context) (domain.GovernanceSettings, error) {
	return f.settings, f.err
}

func (f *fakeSettings) Update(_ context.Context, settings domain.GovernanceSettings) (domain.GovernanceSettings, error) {
	f.settings = settings
	return settings, nil
}

type fakeRules struct {
	rules []domain.PermissionRule
	err   error
}

func (f *fakeRules) Resolve(_ context.Context, collection string, actionType domain.ActionType) (*domain.PermissionRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var global *domain.PermissionRule
	for i := range f.rules {
		rule := f.rules[i]
		if rule.ActionType != actionType {
			continue
		}
		if rule.CollectionCode == collection {
			return &rule, nil
		}
		if rule.CollectionCode == "" {
			global = &rule
		}
	}
	return global, nil
}

func (f *fakeRules) List(context.Context) ([]domain.PermissionRule, error) {
	return f.rules, f.err
}

func (f *fakeRules) Upsert(_ context.Context, rule domain.PermissionRule) (domain.PermissionRule, error) {
	f.rules = append(f.rules, rule)
	return rule, f.err
}

func (f *fakeRules) Delete(context.Context, string) error {
	return f.err
}

// fakeAudit is an in-memory ledger with the same compare-and-set semantics
// as the postgres repository.
type fakeAudit struct {
	mu      sync.Mutex
	entries map[string]*domain.AuditEntry
	seq     int

	createErr error
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{entries: make(map[string]*domain.AuditEntry)}
}

func (f *fakeAudit) Create(_ context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if f.createErr != nil {
		return domain.AuditEntry{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("audit-%d", f.seq)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	stored := entry
	f.entries[entry.ID] = &stored
	return entry, nil
}

func (f *fakeAudit) GetByID(_ context.Context, id string) (*domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[id]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeAudit) Transition(_ context.Context, id string, from []domain.AuditStatus, tr AuditTransition) (*domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	matched := false
	for _, status := range from {
		if entry.Status == status {
			matched = true
			break
		}
	}
	if !matched || !entry.Status.CanTransitionTo(tr.To) {
		return nil, fmt.Errorf("%w: entry is %s", domain.ErrStatusConflict, entry.Status)
	}
	entry.Status = tr.To
	if tr.BeforeData != nil {
		entry.BeforeData = tr.BeforeData
	}
	if tr.AfterData != nil {
		entry.AfterData = tr.AfterData
	}
	if tr.IsRevertible != nil {
		entry.IsRevertible = *tr.IsRevertible
	}
	if tr.ErrorMessage != "" {
		entry.ErrorMessage = tr.ErrorMessage
	}
	if tr.DurationMs != nil {
		entry.DurationMs = *tr.DurationMs
	}
	if tr.CompletedAt != nil {
		entry.CompletedAt = tr.CompletedAt
	}
	if tr.RevertedAt != nil {
		entry.RevertedAt = tr.RevertedAt
	}
	if tr.RevertedBy != "" {
		entry.RevertedBy = tr.RevertedBy
	}
	if tr.RevertReason != "" {
		entry.RevertReason = tr.RevertReason
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeAudit) CountSince(_ context.Context, userID string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, entry := range f.entries {
		if userID != "" && entry.UserID != userID {
			continue
		}
		if entry.CreatedAt.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

func (f *fakeAudit) OldestSince(_ context.Context, userID string, since time.Time) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *time.Time
	for _, entry := range f.entries {
		if userID != "" && entry.UserID != userID {
			continue
		}
		if entry.CreatedAt.Before(since) {
			continue
		}
		at := entry.CreatedAt
		if oldest == nil || at.Before(*oldest) {
			oldest = &at
		}
	}
	return oldest, nil
}

func (f *fakeAudit) ListByUser(_ context.Context, userID string, limit int) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEntry
	for _, entry := range f.entries {
		if entry.UserID == userID {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAudit) ListStuck(_ context.Context, cutoff time.Time) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEntry
	for _, entry := range f.entries {
		if entry.Status.Executable() && entry.CreatedAt.Before(cutoff) {
			out = append(out, *entry)
		}
	}
	return out, nil
}

// fakeRows holds tables as nested maps. Handy failure switches mimic a
// datastore that rejects a specific verb.
type fakeRows struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]any
	seq    int

	insertErr error
	updateErr error
	deleteErr error
	readErr   error
}

func newFakeRows() *fakeRows {
	return &fakeRows{tables: make(map[string]map[string]map[string]any)}
}

func (f *fakeRows) seed(table, id string, row map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]map[string]any)
	}
	stored := map[string]any{"id": id}
	for k, v := range row {
		stored[k] = v
	}
	f.tables[table][id] = stored
}

func (f *fakeRows) ReadRow(_ context.Context, table, id string) (map[string]any, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.tables[table][id]
	if !ok {
		return nil, nil
	}
	copied := make(map[string]any, len(row))
	for k, v := range row {
		copied[k] = v
	}
	return copied, nil
}

func (f *fakeRows) InsertRow(_ context.Context, table string, values map[string]any) (map[string]any, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]map[string]any)
	}
	row := make(map[string]any, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	id, _ := row["id"].(string)
	if id == "" {
		f.seq++
		id = fmt.Sprintf("row-%d", f.seq)
		row["id"] = id
	}
	f.tables[table][id] = row
	copied := make(map[string]any, len(row))
	for k, v := range row {
		copied[k] = v
	}
	return copied, nil
}

func (f *fakeRows) UpdateRow(_ context.Context, table, id string, values map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.tables[table][id]
	if !ok {
		return errors.New("row not found")
	}
	for k, v := range values {
		row[k] = v
	}
	return nil
}

func (f *fakeRows) DeleteRow(_ context.Context, table, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[table][id]; !ok {
		return errors.New("row not found")
	}
	delete(f.tables[table], id)
	return nil
}

type fakeResolver struct{}

func (fakeResolver) TableFor(collection string) (string, error) {
	if collection == "" {
		return "", errors.New("empty collection")
	}
	return "data_" + collection, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.ActionEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event domain.ActionEvent) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) kinds() []domain.ActionEventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ActionEventKind, 0, len(f.events))
	for _, event := range f.events {
		out = append(out, event.Kind)
	}
	return out
}

type fakePolicy struct {
	result domain.PolicyResult
	err    error
}

func (f *fakePolicy) Evaluate(context.Context, domain.PolicyInput) (domain.PolicyResult, error) {
	return f.result, f.err
}
