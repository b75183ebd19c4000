package usecase

import (
	"context"
	"time"

	"steward/internal/domain"
)

const rateWindowSpan = time.Hour

// RateWindow counts audit entries in the trailing hour, per user and
// globally, against the thresholds in the governance settings. The count is
// recomputed from rows on every check so multiple instances need no shared
// counter state. ResetAt is advisory: it reports when the oldest in-window
// entry ages out, which is when the count next decreases, not when the
// caller is guaranteed headroom.
type RateWindow struct {
	Audit AuditCounter
	Now   func() time.Time
}

func (w *RateWindow) Check(ctx context.Context, userID string, settings domain.GovernanceSettings) (domain.RateCheck, error) {
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	since := now.Add(-rateWindowSpan)

	userCount, err := w.Audit.CountSince(ctx, userID, since)
	if err != nil {
		return domain.RateCheck{}, err
	}
	globalCount, err := w.Audit.CountSince(ctx, "", since)
	if err != nil {
		return domain.RateCheck{}, err
	}

	userLimit := int64(settings.UserRateLimitPerHour)
	globalLimit := int64(settings.GlobalRateLimitPerHour)

	allowed := true
	if userLimit > 0 && userCount >= userLimit {
		allowed = false
	}
	if globalLimit > 0 && globalCount >= globalLimit {
		allowed = false
	}

	// Remaining is the tighter of whichever limits are enabled; a disabled
	// limit must not shadow the other side's headroom.
	remaining := int64(-1)
	if userLimit > 0 {
		remaining = userLimit - userCount
		if remaining < 0 {
			remaining = 0
		}
	}
	if globalLimit > 0 {
		globalRemaining := globalLimit - globalCount
		if globalRemaining < 0 {
			globalRemaining = 0
		}
		if remaining < 0 || globalRemaining < remaining {
			remaining = globalRemaining
		}
	}
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if !allowed {
		scope := userID
		if userLimit <= 0 || (globalLimit > 0 && globalCount >= globalLimit) {
			scope = ""
		}
		oldest, err := w.Audit.OldestSince(ctx, scope, since)
		if err != nil {
			return domain.RateCheck{}, err
		}
		if oldest != nil {
			resetAt = oldest.Add(rateWindowSpan)
		}
	}

	return domain.RateCheck{
		Allowed:   allowed,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}, nil
}
