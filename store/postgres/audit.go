package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	authcore "github.com/retailstack/authcore"
	"github.com/retailstack/authcore/logging"
)

// AuditSink persists engine audit events to the audit_logs table. Inserts
// that fail are logged and dropped so a database hiccup never blocks the
// engine's audit dispatcher.
type AuditSink struct {
	db     *sql.DB
	logger logging.Logger
}

// NewAuditSink wraps an open connection pool. A nil logger discards errors.
func NewAuditSink(db *sql.DB, logger logging.Logger) *AuditSink {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &AuditSink{db: db, logger: logger}
}

// Emit implements authcore.AuditSink.
func (s *AuditSink) Emit(ctx context.Context, event authcore.AuditEvent) {
	var metadata []byte
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			s.logger.Error(ctx, "audit metadata marshal failed", "event_type", event.EventType, "error", err)
		} else {
			metadata = b
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs
			(ts, event_type, actor_id, target_id, session_id, ip, user_agent, success, error, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.Timestamp.UTC(), event.EventType, event.ActorID, event.TargetID,
		event.SessionID, event.IP, event.UserAgent, event.Success, event.Error, metadata,
	)
	if err != nil {
		s.logger.Error(ctx, "audit insert failed", "event_type", event.EventType, "error", err)
	}
}
