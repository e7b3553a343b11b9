package authcore

import (
	"context"
	"strconv"
	"time"
)

// CleanupStalePendingUsers deletes accounts that never completed onboarding:
// still pending approval, email unverified, and older than cutoff. A zero
// cutoff uses the configured default. Only an active system owner may run it.
func (e *Engine) CleanupStalePendingUsers(ctx context.Context, actorID string, cutoff time.Duration) (*CleanupResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireSystemOwner(ctx, actorID); err != nil {
		return nil, err
	}
	return e.cleanupStalePendingUsers(ctx, actorID, cutoff)
}

// cleanupStalePendingUsers is the unauthorized inner sweep shared with the
// background [Sweeper].
func (e *Engine) cleanupStalePendingUsers(ctx context.Context, actorID string, cutoff time.Duration) (*CleanupResult, error) {
	if cutoff <= 0 {
		cutoff = e.config.Cleanup.PendingCutoff
	}

	before := time.Now().Add(-cutoff)
	deleted, err := e.userStore.DeleteStalePendingUsers(ctx, before)
	if err != nil {
		return nil, err
	}

	if deleted > 0 {
		e.emitAudit(ctx, auditEventUserCleanup, true, actorID, "", "", nil, func() map[string]string {
			return map[string]string{
				"deleted": strconv.FormatInt(deleted, 10),
				"cutoff":  before.UTC().Format(time.RFC3339),
			}
		})
	}

	return &CleanupResult{DeletedUsers: deleted, Cutoff: cutoff}, nil
}
