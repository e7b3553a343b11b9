package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.clientContextMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Unauthenticated auth endpoints.
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/login/mfa", s.handleConfirmLoginMFA)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)
		r.Post("/auth/verification/request", s.handleRequestVerification)
		r.Post("/auth/verification/confirm", s.handleConfirmVerification)
		r.Post("/auth/password-reset/request", s.handleRequestPasswordReset)
		r.Post("/auth/password-reset/confirm", s.handleConfirmPasswordReset)

		// Protected routes.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/password", s.handleChangePassword)

			r.Route("/auth/totp", func(r chi.Router) {
				r.Post("/setup", s.handleSetupTOTP)
				r.Post("/enable", s.handleEnableTOTP)
				r.Post("/disable", s.handleDisableTOTP)
			})

			r.Route("/users/{userID}/sessions", func(r chi.Router) {
				r.Get("/", s.handleListSessions)
				r.Delete("/", s.handleRevokeAllSessions)
				r.Delete("/{sessionID}", s.handleRevokeSession)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Get("/approvals", s.handleListPendingApprovals)
				r.Post("/approvals/{userID}/approve", s.handleApproveUser)
				r.Post("/approvals/{userID}/reject", s.handleRejectUser)
				r.Post("/cleanup/pending-users", s.handleCleanupPendingUsers)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
