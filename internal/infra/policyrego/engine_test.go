package policyrego

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"steward/internal/domain"
)

const testPolicy = `package steward.policy

result := {"deny": denials}

denials[entry] {
	input.collection == "billing"
	entry := {"code": "COLLECTION_FROZEN", "message": "billing records are frozen"}
}

denials[entry] {
	input.action_type == "delete"
	input.user_role != "admin"
	entry := {"code": "DELETE_RESTRICTED", "message": "only admins may delete records"}
}
`

func writePolicy(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.rego")
	if err := os.WriteFile(path, []byte(testPolicy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestEngineEvaluateDenies(t *testing.T) {
	engine, err := NewEngineFromBundlePath(context.Background(), writePolicy(t))
	if err != nil {
		t.Fatalf("prepare engine: %v", err)
	}

	result, err := engine.Evaluate(context.Background(), domain.PolicyInput{
		ActionType: "update",
		Collection: "billing",
		UserID:     "u1",
		UserRole:   "user",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Deny) != 1 || result.Deny[0].Code != "COLLECTION_FROZEN" {
		t.Fatalf("expected frozen denial, got %+v", result.Deny)
	}
}

func TestEngineEvaluateAllows(t *testing.T) {
	engine, err := NewEngineFromBundlePath(context.Background(), writePolicy(t))
	if err != nil {
		t.Fatalf("prepare engine: %v", err)
	}

	result, err := engine.Evaluate(context.Background(), domain.PolicyInput{
		ActionType: "update",
		Collection: "incidents",
		UserID:     "u1",
		UserRole:   "user",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Deny) != 0 {
		t.Fatalf("expected no denials, got %+v", result.Deny)
	}
}

func TestEngineDenialsAreSorted(t *testing.T) {
	engine, err := NewEngineFromBundlePath(context.Background(), writePolicy(t))
	if err != nil {
		t.Fatalf("prepare engine: %v", err)
	}

	result, err := engine.Evaluate(context.Background(), domain.PolicyInput{
		ActionType: "delete",
		Collection: "billing",
		UserID:     "u1",
		UserRole:   "user",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Deny) != 2 {
		t.Fatalf("expected two denials, got %+v", result.Deny)
	}
	if result.Deny[0].Code != "COLLECTION_FROZEN" || result.Deny[1].Code != "DELETE_RESTRICTED" {
		t.Fatalf("expected sorted denial codes, got %+v", result.Deny)
	}
}

func TestEngineRejectsMissingBundle(t *testing.T) {
	if _, err := NewEngineFromBundlePath(context.Background(), filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Fatalf("expected error for missing bundle")
	}
}
