package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/retailstack/authcore"
	"github.com/retailstack/authcore/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authcore.DefaultConfig()
	cfg.JWT.SecretKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.TOTP.SecretEncryptionKey = []byte("fedcba9876543210fedcba9876543210")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.ExposeDebugTokens = true

	engine, err := authcore.NewBuilder().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(memory.New()).
		Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	t.Cleanup(engine.Close)

	srv := httptest.NewServer(NewServer(engine, nil, "test").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSignupLoginLogoutOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv, "/api/v1/auth/signup", "", map[string]any{
		"email":    "owner@example.com",
		"username": "owner",
		"password": "correct-password-123",
		"role":     "system_owner",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%v)", resp.StatusCode, body)
	}
	debugToken, _ := body["debug_token"].(string)
	if debugToken == "" {
		t.Fatalf("expected debug token in signup response: %v", body)
	}

	resp, _ = postJSON(t, srv, "/api/v1/auth/verification/confirm", "", map[string]any{
		"token": debugToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verification confirm: expected 200, got %d", resp.StatusCode)
	}

	resp, body = postJSON(t, srv, "/api/v1/auth/login", "", map[string]any{
		"identity": "owner@example.com",
		"password": "correct-password-123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("incomplete login response: %v", body)
	}

	// A protected operation accepts the issued access token.
	resp, body = postJSON(t, srv, "/api/v1/auth/password", access, map[string]any{
		"current_password": "correct-password-123",
		"new_password":     "rotated-password-456",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: expected 200, got %d (%v)", resp.StatusCode, body)
	}

	resp, _ = postJSON(t, srv, "/api/v1/auth/logout", "", map[string]any{
		"refresh_token": refresh,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
}

func TestLoginErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv, "/api/v1/auth/login", "", map[string]any{
		"identity": "nobody@example.com",
		"password": "not-the-password-1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body["code"] != "unauthorized" {
		t.Fatalf("unexpected error body: %v", body)
	}
	if msg, _ := body["message"].(string); msg != authcore.ErrInvalidCredentials.Error() {
		t.Fatalf("expected sentinel text only, got %q", msg)
	}
}

func TestSignupMalformedIdentityMapsBadRequest(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv, "/api/v1/auth/signup", "", map[string]any{
		"email":    "not-an-email",
		"username": "alice",
		"password": "correct-password-123",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "validation_error" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv, "/api/v1/auth/password", "", map[string]any{
		"current_password": "a-password-that-is-long",
		"new_password":     "another-password-456789",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv, "/api/v1/auth/password", "not-a-jwt", map[string]any{
		"current_password": "a-password-that-is-long",
		"new_password":     "another-password-456789",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", resp.StatusCode)
	}
}

func TestRateLimitedLoginCarriesRetryAfter(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 10; i++ {
		resp, _ := postJSON(t, srv, "/api/v1/auth/login", "", map[string]any{
			"identity": "nobody@example.com",
			"password": "not-the-password-1",
		})
		if resp.StatusCode == http.StatusTooManyRequests {
			if resp.Header.Get("Retry-After") == "" {
				t.Fatal("429 response missing Retry-After header")
			}
			return
		}
	}
	t.Fatal("login was never rate limited")
}
