package riskgate

import (
	"context"
	"time"
)

// Role is the coarse authorization level carried by identities and credentials.
type Role string

const (
	// RoleAdmin grants access to the administrative surface.
	RoleAdmin Role = "ADMIN"
	// RoleStandard is the default role for ordinary identities.
	RoleStandard Role = "STANDARD"
)

// IdentityRecord is the caller-owned identity row consumed by the pipeline.
//
// The engine never persists IdentityRecord itself; all mutation happens
// through the [IdentityProvider] methods so the durable store stays the
// single source of truth.
type IdentityRecord struct {
	IdentityID          string
	Username            string
	PasswordHash        string
	Role                Role
	SecondFactorSecret  []byte
	SecondFactorEnabled bool
	Locked              bool
	FailedAttempts      int

	LastOrigin          string
	LastClient          string
	LastLatitude        float64
	LastLongitude       float64
	HasLocation         bool
	LastAuthenticatedAt int64
}

// LoginContextUpdate carries the last-known context written back to the
// identity store after a successful credential issuance.
type LoginContextUpdate struct {
	Origin          string
	Client          string
	Latitude        float64
	Longitude       float64
	HasLocation     bool
	AuthenticatedAt int64
}

// IdentityProvider is the durable identity store boundary. Implementations
// are expected to be backed by a transactional relational store; counter
// updates should be applied as single atomic update-or-insert operations.
type IdentityProvider interface {
	GetByUsername(ctx context.Context, username string) (IdentityRecord, error)
	GetByID(ctx context.Context, identityID string) (IdentityRecord, error)
	RecordFailure(ctx context.Context, identityID string) error
	ResetFailures(ctx context.Context, identityID string) error
	UpdateLoginContext(ctx context.Context, identityID string, update LoginContextUpdate) error
	SetSecondFactorSecret(ctx context.Context, identityID string, secret []byte) error
	EnableSecondFactor(ctx context.Context, identityID string) error
	SetLocked(ctx context.Context, identityID string, locked bool) error
}

// Location is a resolved network-origin location.
type Location struct {
	Country   string
	Latitude  float64
	Longitude float64
	Known     bool
}

// LocationProvider resolves a network origin to a geographic location.
// Lookup failures are treated as an unknown location, never as a pipeline
// error: geography degrades to a no-signal, it does not fail logins.
type LocationProvider interface {
	Lookup(ctx context.Context, origin string) (Location, error)
}

// CaptchaVerifier is the third-party CAPTCHA verification boundary.
// Verify is called with the caller-supplied proof and the request origin
// and is bounded by Config.Captcha.VerifyTimeout.
type CaptchaVerifier interface {
	Verify(ctx context.Context, proof, origin string) (bool, error)
}

// PasswordVerifier is the opaque credential check primitive.
type PasswordVerifier interface {
	Verify(candidate, encodedHash string) (bool, error)
}

// LoginResult is the successful (or escalated) outcome of Login and
// VerifySecondFactor. Exactly one of AccessToken or PendingToken is set.
//
// On an ErrInvalidCredentials rejection Login still returns a non-nil
// result whose CaptchaRequiredNext field tells the caller whether the
// following attempt from the same origin will be CAPTCHA-gated.
type LoginResult struct {
	AccessToken string
	Role        Role
	BindingID   string

	SecondFactorRequired bool
	PendingToken         string

	CaptchaRequiredNext bool
}

// AuthResult is the outcome of a successful Validate call.
type AuthResult struct {
	IdentityID string
	Username   string
	Role       Role
	BindingID  string
}

// SecondFactorSetup carries freshly provisioned second-factor enrollment material.
type SecondFactorSetup struct {
	SecretBase32 string
	ProvisionURI string
}

// BindingInfo is the administrative view of a live session binding.
type BindingInfo struct {
	BindingID      string
	IdentityID     string
	Username       string
	Role           Role
	Origin         string
	Client         string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// OriginBan records an administrative ban of a network origin.
type OriginBan struct {
	Origin   string
	Reason   string
	Actor    string
	BannedAt time.Time
}

// InvestigationStatus tracks the administrative triage state of a risk event.
type InvestigationStatus string

const (
	// InvestigationNew marks a freshly recorded risk event.
	InvestigationNew InvestigationStatus = "new"
	// InvestigationInProgress marks an event under review.
	InvestigationInProgress InvestigationStatus = "investigating"
	// InvestigationResolved marks an event closed as handled.
	InvestigationResolved InvestigationStatus = "resolved"
	// InvestigationDismissed marks an event closed as a non-issue.
	InvestigationDismissed InvestigationStatus = "dismissed"
)

func validInvestigationStatus(status InvestigationStatus) bool {
	switch status {
	case InvestigationNew, InvestigationInProgress, InvestigationResolved, InvestigationDismissed:
		return true
	default:
		return false
	}
}

// RiskEvent is the append-only audit record produced for every pipeline
// decision. External reporting tools rely on this shape; only
// InvestigationStatus is ever mutated after the fact.
type RiskEvent struct {
	EventID             string              `json:"event_id"`
	IdentityID          string              `json:"identity_id,omitempty"`
	Username            string              `json:"username,omitempty"`
	Origin              string              `json:"origin"`
	Action              string              `json:"action"`
	Outcome             string              `json:"outcome"`
	RiskScore           int                 `json:"risk_score"`
	Likelihood          int                 `json:"likelihood"`
	Impact              int                 `json:"impact"`
	Detail              map[string]string   `json:"detail,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	InvestigationStatus InvestigationStatus `json:"investigation_status"`
}
