package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/retailstack/authcore/session"
)

// ListSessions returns session metadata for targetUserID. Users may list
// their own sessions; system owners may list anyone's. Raw refresh material
// never appears in the result.
func (e *Engine) ListSessions(ctx context.Context, actorID, targetUserID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.authorizeSessionAccess(ctx, actorID, targetUserID); err != nil {
		return nil, err
	}

	sessions, err := e.sessionStore.ListForUser(ctx, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sessionInfoOf(sess))
	}
	return infos, nil
}

// RevokeSession revokes one session of targetUserID. The owner-or-system-
// owner rule applies; a session that does not exist (or belongs to someone
// else) reports [ErrSessionNotFound] either way.
func (e *Engine) RevokeSession(ctx context.Context, actorID, targetUserID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.authorizeSessionAccess(ctx, actorID, targetUserID); err != nil {
		return err
	}

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if sess.UserID != targetUserID {
		return ErrSessionNotFound
	}

	if _, err := e.sessionStore.Delete(ctx, targetUserID, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.emitAudit(ctx, auditEventSessionRevoked, true, actorID, targetUserID, sessionID, nil, nil)
	return nil
}

// RevokeAllSessions revokes every session of targetUserID and returns how
// many were live.
func (e *Engine) RevokeAllSessions(ctx context.Context, actorID, targetUserID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := e.authorizeSessionAccess(ctx, actorID, targetUserID); err != nil {
		return 0, err
	}

	n, err := e.sessionStore.DeleteAllForUser(ctx, targetUserID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.emitAudit(ctx, auditEventSessionRevokedAll, true, actorID, targetUserID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}

// authorizeSessionAccess enforces the owner-or-system-owner rule for session
// management.
func (e *Engine) authorizeSessionAccess(ctx context.Context, actorID, targetUserID string) error {
	if actorID == "" || targetUserID == "" {
		return ErrForbidden
	}
	if actorID == targetUserID {
		return nil
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

func sessionInfoOf(sess *session.Session) SessionInfo {
	return SessionInfo{
		SessionID:  sess.SessionID,
		UserID:     sess.UserID,
		IPAddress:  sess.IPAddress,
		UserAgent:  sess.UserAgent,
		CreatedAt:  sess.CreatedAt,
		ExpiresAt:  sess.ExpiresAt,
		LastUsedAt: sess.LastUsedAt,
	}
}
