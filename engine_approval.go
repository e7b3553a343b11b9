package authcore

import (
	"context"
)

// ListPendingApprovals returns the accounts waiting on a system-owner
// decision. Only system owners may call it.
func (e *Engine) ListPendingApprovals(ctx context.Context, actorID string) ([]UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireSystemOwner(ctx, actorID); err != nil {
		return nil, err
	}

	return e.userStore.ListPendingUsers(ctx)
}

// ApproveUser moves a pending account to approved. The transition is atomic
// in the store: approving an account that is not pending (already decided,
// or racing with another approver) yields [ErrInvalidState]. If the account
// is also email-verified the approval activates it.
func (e *Engine) ApproveUser(ctx context.Context, actorID, targetUserID string) (UserRecord, error) {
	if err := e.ready(); err != nil {
		return UserRecord{}, err
	}
	if err := e.requireSystemOwner(ctx, actorID); err != nil {
		return UserRecord{}, err
	}

	user, err := e.userStore.SetApprovalStatus(ctx, targetUserID, ApprovalPending, ApprovalApproved)
	if err != nil {
		e.emitAudit(ctx, auditEventUserApproved, false, actorID, targetUserID, "", err, nil)
		return UserRecord{}, err
	}

	e.emitAudit(ctx, auditEventUserApproved, true, actorID, targetUserID, "", nil, func() map[string]string {
		return map[string]string{"role": string(user.Role)}
	})

	if err := e.activateIfReady(ctx, user); err != nil {
		return UserRecord{}, err
	}

	return user, nil
}

// RejectUser moves a pending account to rejected. Rejection is terminal;
// the account can never authenticate and its eventual cleanup is handled by
// the maintenance sweep.
func (e *Engine) RejectUser(ctx context.Context, actorID, targetUserID string) (UserRecord, error) {
	if err := e.ready(); err != nil {
		return UserRecord{}, err
	}
	if err := e.requireSystemOwner(ctx, actorID); err != nil {
		return UserRecord{}, err
	}

	user, err := e.userStore.SetApprovalStatus(ctx, targetUserID, ApprovalPending, ApprovalRejected)
	if err != nil {
		e.emitAudit(ctx, auditEventUserRejected, false, actorID, targetUserID, "", err, nil)
		return UserRecord{}, err
	}

	e.emitAudit(ctx, auditEventUserRejected, true, actorID, targetUserID, "", nil, nil)

	// Rejected accounts keep no sessions.
	if _, err := e.sessionStore.DeleteAllForUser(ctx, targetUserID); err != nil {
		e.logger.Warn(ctx, "session revocation after rejection failed", "user_id", targetUserID, "err", err)
	}

	return user, nil
}

func (e *Engine) requireSystemOwner(ctx context.Context, actorID string) error {
	if actorID == "" {
		return ErrForbidden
	}
	actor, err := e.loadActingUser(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role != RoleSystemOwner || !actor.Active() {
		return ErrForbidden
	}
	return nil
}
