package domain

import "testing"

func TestAuditStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AuditStatus
		ok       bool
	}{
		{AuditStatusPending, AuditStatusConfirmed, true},
		{AuditStatusPending, AuditStatusCompleted, true},
		{AuditStatusPending, AuditStatusFailed, true},
		{AuditStatusPending, AuditStatusReverted, false},
		{AuditStatusConfirmed, AuditStatusCompleted, true},
		{AuditStatusConfirmed, AuditStatusFailed, true},
		{AuditStatusConfirmed, AuditStatusPending, false},
		{AuditStatusCompleted, AuditStatusReverted, true},
		{AuditStatusCompleted, AuditStatusFailed, false},
		{AuditStatusRejected, AuditStatusCompleted, false},
		{AuditStatusFailed, AuditStatusCompleted, false},
		{AuditStatusReverted, AuditStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v", tc.from, tc.to, tc.ok)
		}
	}
}

func TestAuditStatusTerminal(t *testing.T) {
	for _, status := range []AuditStatus{AuditStatusRejected, AuditStatusFailed, AuditStatusReverted} {
		if !status.Terminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []AuditStatus{AuditStatusPending, AuditStatusConfirmed, AuditStatusCompleted} {
		if status.Terminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}

func TestAuditStatusExecutable(t *testing.T) {
	if !AuditStatusPending.Executable() || !AuditStatusConfirmed.Executable() {
		t.Fatalf("pending and confirmed are executable")
	}
	for _, status := range []AuditStatus{AuditStatusCompleted, AuditStatusFailed, AuditStatusRejected, AuditStatusReverted} {
		if status.Executable() {
			t.Fatalf("%s should not be executable", status)
		}
	}
}

func TestRevertible(t *testing.T) {
	entry := AuditEntry{
		Status:       AuditStatusCompleted,
		IsRevertible: true,
		BeforeData:   map[string]any{},
	}
	if !entry.Revertible() {
		t.Fatalf("completed entry with snapshot should be revertible")
	}

	noSnapshot := entry
	noSnapshot.BeforeData = nil
	if noSnapshot.Revertible() {
		t.Fatalf("missing snapshot blocks revert")
	}

	reverted := entry
	reverted.Status = AuditStatusReverted
	if reverted.Revertible() {
		t.Fatalf("already-reverted entry cannot be reverted again")
	}
}
