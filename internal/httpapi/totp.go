package httpapi

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleSetupTOTP(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	setup, err := s.engine.SetupTOTP(r.Context(), claims.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":        setup.SecretBase32,
		"provision_uri": setup.ProvisionURI,
	})
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleEnableTOTP(w http.ResponseWriter, r *http.Request) {
	var req totpCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	claims := claimsFromContext(r.Context())
	if err := s.engine.EnableTOTP(r.Context(), claims.UserID, req.Code); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (s *Server) handleDisableTOTP(w http.ResponseWriter, r *http.Request) {
	var req totpCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	claims := claimsFromContext(r.Context())
	if err := s.engine.DisableTOTP(r.Context(), claims.UserID, req.Code); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disabled": true})
}
