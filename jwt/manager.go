package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired is returned by [Manager.ParseAccess] for a structurally
	// valid token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other parse failure: bad signature, malformed
	// claims, wrong algorithm, unknown issuer.
	ErrInvalid = errors.New("token invalid")
)

// Config controls token signing and verification.
//
// PreviousSecretKey is optional. When set, verification accepts tokens signed
// with it so a key rotation does not invalidate access tokens mid-flight; new
// tokens are always signed with SecretKey.
type Config struct {
	AccessTTL         time.Duration
	Issuer            string
	SecretKey         []byte
	PreviousSecretKey []byte
	Leeway            time.Duration
}

// Manager signs and verifies HS256 access tokens. A Manager is immutable
// after construction and safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the claim set carried by every access token. SessionID ties
// the token to the refresh session it was minted under, so revoking a session
// can be correlated with outstanding short-lived tokens.
type AccessClaims struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.SecretKey) < 32 {
		return nil, errors.New("hs256 secret key must be at least 32 bytes")
	}
	if n := len(cfg.PreviousSecretKey); n > 0 && n < 32 {
		return nil, errors.New("hs256 previous secret key must be at least 32 bytes")
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess signs an access token for the given user, role, and session.
func (j *Manager) CreateAccess(uid, role, sid string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UID:  uid,
		Role: role,
		SID:  sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.SecretKey)
}

// ParseAccess verifies tokenStr and returns its claims. Verification tries
// the current key first and falls back to the previous key when one is
// configured. Failures map onto [ErrExpired] and [ErrInvalid].
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims, err := j.parseWithKey(tokenStr, j.config.SecretKey)
	if err == nil {
		return claims, nil
	}
	// An expired token signed with the current key stays expired; only
	// signature failures justify trying the rotation fallback.
	if errors.Is(err, ErrExpired) || len(j.config.PreviousSecretKey) == 0 {
		return nil, err
	}

	return j.parseWithKey(tokenStr, j.config.PreviousSecretKey)
}

func (j *Manager) parseWithKey(tokenStr string, key []byte) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}
