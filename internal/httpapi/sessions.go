package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authcore "github.com/retailstack/authcore"
)

type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func sessionResponseOf(info authcore.SessionInfo) sessionResponse {
	return sessionResponse{
		SessionID:  info.SessionID,
		UserID:     info.UserID,
		IPAddress:  info.IPAddress,
		UserAgent:  info.UserAgent,
		CreatedAt:  info.CreatedAt,
		ExpiresAt:  info.ExpiresAt,
		LastUsedAt: info.LastUsedAt,
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	targetUserID := chi.URLParam(r, "userID")

	sessions, err := s.engine.ListSessions(r.Context(), claims.UserID, targetUserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, info := range sessions {
		out = append(out, sessionResponseOf(info))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "count": len(out)})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	targetUserID := chi.URLParam(r, "userID")
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.engine.RevokeSession(r.Context(), claims.UserID, targetUserID, sessionID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (s *Server) handleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	targetUserID := chi.URLParam(r, "userID")

	count, err := s.engine.RevokeAllSessions(r.Context(), claims.UserID, targetUserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": count})
}
