package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authcore "github.com/retailstack/authcore"
)

type pendingUserResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ShopID    string    `json:"shop_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	pending, err := s.engine.ListPendingApprovals(r.Context(), claims.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	out := make([]pendingUserResponse, 0, len(pending))
	for _, u := range pending {
		out = append(out, pendingUserResponse{
			UserID:    u.UserID,
			Email:     u.Email,
			Username:  u.Username,
			Role:      string(u.Role),
			ShopID:    u.ShopID,
			CreatedAt: u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": out, "count": len(out)})
}

func (s *Server) handleApproveUser(w http.ResponseWriter, r *http.Request) {
	s.decideApproval(w, r, s.engine.ApproveUser)
}

func (s *Server) handleRejectUser(w http.ResponseWriter, r *http.Request) {
	s.decideApproval(w, r, s.engine.RejectUser)
}

func (s *Server) decideApproval(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, actorID, targetUserID string) (authcore.UserRecord, error),
) {
	claims := claimsFromContext(r.Context())
	targetUserID := chi.URLParam(r, "userID")

	user, err := decide(r.Context(), claims.UserID, targetUserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":         user.UserID,
		"approval_status": string(user.ApprovalStatus),
		"active":          user.Active(),
	})
}

type cleanupRequest struct {
	CutoffHours int `json:"cutoff_hours,omitempty"`
}

func (s *Server) handleCleanupPendingUsers(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req cleanupRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	result, err := s.engine.CleanupStalePendingUsers(r.Context(), claims.UserID,
		time.Duration(req.CutoffHours)*time.Hour)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_users": result.DeletedUsers,
		"cutoff":        result.Cutoff.String(),
	})
}
