package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/retailstack/authcore/internal/audit"
)

// Role is the access role attached to every account.
type Role string

const (
	// RoleSystemOwner administers the whole installation: approvals,
	// cross-shop session revocation, maintenance cleanup.
	RoleSystemOwner Role = "system_owner"
	// RoleBusinessOwner owns a single shop.
	RoleBusinessOwner Role = "business_owner"
	// RoleEmployee is the default role assigned when signup omits one.
	RoleEmployee Role = "employee"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystemOwner, RoleBusinessOwner, RoleEmployee:
		return true
	}
	return false
}

// ApprovalStatus is the approval workflow state of an account.
type ApprovalStatus string

const (
	// ApprovalPending awaits a system-owner decision.
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved is the accepting terminal decision.
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected is terminal; no transition leads out of it.
	ApprovalRejected ApprovalStatus = "rejected"
)

// roleInitialApproval maps a role to the approval state assigned at signup.
// System owners bootstrap the installation and are approved immediately.
var roleInitialApproval = map[Role]ApprovalStatus{
	RoleSystemOwner:   ApprovalApproved,
	RoleBusinessOwner: ApprovalPending,
	RoleEmployee:      ApprovalPending,
}

// computeActive is the single derivation of the "active" account property.
// Every call site that gates on activation goes through it.
func computeActive(emailVerified bool, status ApprovalStatus) bool {
	return emailVerified && status == ApprovalApproved
}

// UserRecord is the full account record exchanged with a [UserStore].
type UserRecord struct {
	UserID         string
	Email          string
	Username       string
	PasswordHash   string
	Role           Role
	ShopID         string
	ApprovalStatus ApprovalStatus
	EmailVerified  bool
	TOTPEnabled    bool
	CreatedAt      time.Time
	ActivatedAt    *time.Time
	LastLoginAt    *time.Time
}

// Active reports whether the account may authenticate.
func (u UserRecord) Active() bool {
	return computeActive(u.EmailVerified, u.ApprovalStatus)
}

// TOTPRecord carries the MFA state for one account. Secret and PendingSecret
// are ciphertext as stored; the engine decrypts them with the configured key.
// LastUsedStep is the replay guard: a code for step <= LastUsedStep never
// verifies again.
type TOTPRecord struct {
	Secret        []byte
	PendingSecret []byte
	Enabled       bool
	LastUsedStep  int64
}

// CreateUserInput is the persistence-side input for [UserStore.CreateUser].
// The engine computes ApprovalStatus and EmailVerified before calling.
type CreateUserInput struct {
	UserID         string
	Email          string
	Username       string
	PasswordHash   string
	Role           Role
	ShopID         string
	ApprovalStatus ApprovalStatus
	EmailVerified  bool
}

// UserStore is the authoritative credential store contract. store/postgres is
// the production implementation; store/memory backs tests and examples.
//
// Implementations report [ErrDuplicateIdentity], [ErrUserNotFound], and
// [ErrInvalidState] through the corresponding sentinels and wrap backend
// failures with [ErrUnavailable].
type UserStore interface {
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	// GetUserByIdentity resolves an email or username, case-insensitively.
	GetUserByIdentity(ctx context.Context, identity string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	// SetApprovalStatus transitions from→to atomically; a target in any other
	// state yields ErrInvalidState.
	SetApprovalStatus(ctx context.Context, userID string, from, to ApprovalStatus) (UserRecord, error)
	SetEmailVerified(ctx context.Context, userID string) (UserRecord, error)
	// MarkActivated stamps activated_at once; it returns false when the
	// account was already activated (idempotent).
	MarkActivated(ctx context.Context, userID string, at time.Time) (bool, error)
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	ListPendingUsers(ctx context.Context) ([]UserRecord, error)

	GetTOTP(ctx context.Context, userID string) (TOTPRecord, error)
	SetPendingTOTPSecret(ctx context.Context, userID string, encryptedSecret []byte) error
	// EnableTOTP promotes the pending secret to the active one.
	EnableTOTP(ctx context.Context, userID string) error
	DisableTOTP(ctx context.Context, userID string) error
	UpdateTOTPLastUsedStep(ctx context.Context, userID string, step int64) error

	// DeleteStalePendingUsers removes accounts that are pending, unverified,
	// and created before cutoff. Idempotent: re-running with the same cutoff
	// deletes nothing new.
	DeleteStalePendingUsers(ctx context.Context, cutoff time.Time) (int64, error)
}

// Mailer is the outbound email boundary. The engine hands it raw one-time
// tokens exactly once and never logs them; dispatch happens asynchronously so
// token issuance does not block on transport.
type Mailer interface {
	SendEmailVerification(ctx context.Context, email, rawToken string) error
	SendPasswordReset(ctx context.Context, email, rawToken string) error
}

// NoOpMailer discards all outbound mail. It is the default when no Mailer is
// configured.
type NoOpMailer struct{}

// SendEmailVerification implements [Mailer].
func (NoOpMailer) SendEmailVerification(context.Context, string, string) error { return nil }

// SendPasswordReset implements [Mailer].
func (NoOpMailer) SendPasswordReset(context.Context, string, string) error { return nil }

// SignupRequest is the input for [Engine.Signup]. Role defaults to
// [RoleEmployee] when empty.
type SignupRequest struct {
	Email    string
	Username string
	Password string
	ShopID   string
	Role     Role
}

// SignupResult reports the created account and whether a verification token
// was issued and queued for email dispatch.
type SignupResult struct {
	UserID                    string
	Email                     string
	Username                  string
	Role                      Role
	ApprovalStatus            ApprovalStatus
	EmailVerificationRequired bool
	// DebugToken carries the raw verification token only when
	// Security.ExposeDebugTokens is on outside production posture.
	DebugToken string
}

// LoginResult is returned by [Engine.Login] and [Engine.ConfirmLoginMFA].
// When MFARequired is set, the token fields are empty and MFAChallenge must
// be presented to ConfirmLoginMFA together with a valid code.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string

	MFARequired  bool
	MFAChallenge string
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID    string
	Role      Role
	SessionID string
	ExpiresAt time.Time
}

// SessionInfo is session metadata safe to show to the session's owner.
// It never contains the raw refresh token or its hash.
type SessionInfo struct {
	SessionID  string
	UserID     string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
}

// TOTPSetup is returned by [Engine.SetupTOTP]: the base32 secret and an
// otpauth:// URI suitable for QR rendering. The account is not protected
// until [Engine.EnableTOTP] confirms possession.
type TOTPSetup struct {
	SecretBase32 string
	ProvisionURI string
}

// OneTimeTokenIssue is the success-shaped result of the verification and
// reset request endpoints. It looks identical whether or not the account
// exists, to avoid leaking account existence.
type OneTimeTokenIssue struct {
	// DebugToken carries the raw token only when Security.ExposeDebugTokens
	// is on outside production posture.
	DebugToken string
}

// CleanupResult reports a maintenance cleanup run.
type CleanupResult struct {
	DeletedUsers int64
	Cutoff       time.Duration
}

// AuditEvent is the immutable security event record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's async dispatcher.
// Sinks must tolerate concurrent Emit calls.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink], useful in tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
