package httpapi

import (
	"encoding/json"
	"net/http"

	authcore "github.com/retailstack/authcore"
)

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	ShopID   string `json:"shop_id,omitempty"`
	Role     string `json:"role,omitempty"`
}

type signupResponse struct {
	UserID                    string `json:"user_id"`
	Email                     string `json:"email"`
	Username                  string `json:"username"`
	Role                      string `json:"role"`
	ApprovalStatus            string `json:"approval_status"`
	EmailVerificationRequired bool   `json:"email_verification_required"`
	DebugToken                string `json:"debug_token,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		writeBadRequest(w, "email, username, and password are required")
		return
	}

	result, err := s.engine.Signup(r.Context(), authcore.SignupRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		ShopID:   req.ShopID,
		Role:     authcore.Role(req.Role),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, signupResponse{
		UserID:                    result.UserID,
		Email:                     result.Email,
		Username:                  result.Username,
		Role:                      string(result.Role),
		ApprovalStatus:            string(result.ApprovalStatus),
		EmailVerificationRequired: result.EmailVerificationRequired,
		DebugToken:                result.DebugToken,
	})
}

type loginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	MFARequired  bool   `json:"mfa_required,omitempty"`
	MFAChallenge string `json:"mfa_challenge,omitempty"`
}

func loginResponseOf(result *authcore.LoginResult) loginResponse {
	return loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		SessionID:    result.SessionID,
		MFARequired:  result.MFARequired,
		MFAChallenge: result.MFAChallenge,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Identity == "" || req.Password == "" {
		writeBadRequest(w, "identity and password are required")
		return
	}

	result, err := s.engine.Login(r.Context(), req.Identity, req.Password)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponseOf(result))
}

type confirmMFARequest struct {
	Challenge string `json:"challenge"`
	Code      string `json:"code"`
}

func (s *Server) handleConfirmLoginMFA(w http.ResponseWriter, r *http.Request) {
	var req confirmMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Challenge == "" || req.Code == "" {
		writeBadRequest(w, "challenge and code are required")
		return
	}

	result, err := s.engine.ConfirmLoginMFA(r.Context(), req.Challenge, req.Code)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponseOf(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	result, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponseOf(result))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := s.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

type identityRequest struct {
	Identity string `json:"identity"`
}

type tokenIssueResponse struct {
	Requested  bool   `json:"requested"`
	DebugToken string `json:"debug_token,omitempty"`
}

func (s *Server) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Identity == "" {
		writeBadRequest(w, "identity is required")
		return
	}

	result, err := s.engine.RequestEmailVerification(r.Context(), req.Identity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, tokenIssueResponse{Requested: true, DebugToken: result.DebugToken})
}

type confirmTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleConfirmVerification(w http.ResponseWriter, r *http.Request) {
	var req confirmTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	user, err := s.engine.ConfirmEmailVerification(r.Context(), req.Token)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.UserID,
		"verified": true,
		"active":   user.Active(),
	})
}

func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Identity == "" {
		writeBadRequest(w, "identity is required")
		return
	}

	result, err := s.engine.RequestPasswordReset(r.Context(), req.Identity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, tokenIssueResponse{Requested: true, DebugToken: result.DebugToken})
}

type confirmResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeBadRequest(w, "token and new_password are required")
		return
	}

	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeBadRequest(w, "current_password and new_password are required")
		return
	}

	claims := claimsFromContext(r.Context())
	err := s.engine.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword, claims.SessionID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}
