package riskgate

import (
	"errors"
	"time"
)

// Config carries every engine tuning knob. Populate it once before
// [Builder.Build]; the engine clones it and never reads the original again.
type Config struct {
	Token      TokenConfig
	Pending    PendingConfig
	BruteForce BruteForceConfig
	Captcha    CaptchaConfig
	Session    SessionConfig
	TOTP       TOTPConfig
	Events     EventConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access and pending-token signing.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PENDING SECOND FACTOR CONFIG
====================================
*/

// PendingConfig controls the short-lived pending second-factor window.
type PendingConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
BRUTE FORCE CONFIG
====================================
*/

// BruteForceConfig controls the per-origin failure counter. A zero
// CounterTTL keeps counters forever; they are reset, never deleted.
type BruteForceConfig struct {
	CaptchaThreshold int
	CounterTTL       time.Duration
}

/*
====================================
CAPTCHA CONFIG
====================================
*/

// CaptchaPolicy selects pipeline behavior when a CAPTCHA challenge is
// required but the verification service is unreachable or unconfigured.
type CaptchaPolicy string

const (
	// CaptchaFailClosed rejects the attempt with ErrUpstreamUnavailable. Default.
	CaptchaFailClosed CaptchaPolicy = "fail_closed"
	// CaptchaEscalate raises the risk tally and continues without a proof.
	CaptchaEscalate CaptchaPolicy = "escalate"
)

// CaptchaConfig controls the CAPTCHA gate. VerifyTimeout bounds the
// third-party call so the pipeline can never hang a login request.
type CaptchaConfig struct {
	OnUnavailable CaptchaPolicy
	VerifyTimeout time.Duration

	// Severity applied by the escalate policy.
	EscalateLikelihood int
	EscalateImpact     int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the binding registry. StaleAfter is the
// inactivity threshold applied by SweepStaleBindings; TTL is the hard
// Redis expiry backstopping bindings that are never swept.
type SessionConfig struct {
	TTL        time.Duration
	StaleAfter time.Duration
	KeyPrefix  string
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls one-time-code verification. Skew is the number of
// accepted clock-skew steps on each side of the current period.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string // SHA1 (default), SHA256, SHA512
}

/*
====================================
RISK EVENT CONFIG
====================================
*/

// EventConfig controls the risk-event trail.
type EventConfig struct {
	MaxStored        int
	DefaultListLimit int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the atomic metric set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Token keys must still
// be supplied by the caller.
func DefaultConfig() *Config {
	return &Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		Pending: PendingConfig{
			TTL:         3 * time.Minute,
			MaxAttempts: 5,
		},
		BruteForce: BruteForceConfig{
			CaptchaThreshold: 3,
		},
		Captcha: CaptchaConfig{
			OnUnavailable:      CaptchaFailClosed,
			VerifyTimeout:      10 * time.Second,
			EscalateLikelihood: 3,
			EscalateImpact:     5,
		},
		Session: SessionConfig{
			TTL:        24 * time.Hour,
			StaleAfter: time.Hour,
			KeyPrefix:  "rb",
		},
		TOTP: TOTPConfig{
			Issuer:    "riskgate",
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		Events: EventConfig{
			MaxStored:        1000,
			DefaultListLimit: 50,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}

	if c.Token.AccessTTL <= 0 {
		return errors.New("token access TTL must be positive")
	}
	switch c.Token.SigningMethod {
	case "hs256", "ed25519":
	default:
		return errors.New("unsupported token signing method")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("token private key is required")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token leeway out of range")
	}

	if c.Pending.TTL <= 0 {
		return errors.New("pending TTL must be positive")
	}
	if c.Pending.MaxAttempts <= 0 {
		return errors.New("pending max attempts must be positive")
	}

	if c.BruteForce.CaptchaThreshold <= 0 {
		return errors.New("captcha threshold must be positive")
	}
	if c.BruteForce.CounterTTL < 0 {
		return errors.New("brute force counter TTL cannot be negative")
	}

	switch c.Captcha.OnUnavailable {
	case CaptchaFailClosed, CaptchaEscalate:
	default:
		return errors.New("unknown captcha unavailable policy")
	}
	if c.Captcha.VerifyTimeout <= 0 {
		return errors.New("captcha verify timeout must be positive")
	}
	if c.Captcha.OnUnavailable == CaptchaEscalate {
		if c.Captcha.EscalateLikelihood < 1 || c.Captcha.EscalateLikelihood > 5 {
			return errors.New("captcha escalate likelihood out of range")
		}
		if c.Captcha.EscalateImpact < 1 || c.Captcha.EscalateImpact > 5 {
			return errors.New("captcha escalate impact out of range")
		}
	}

	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.StaleAfter <= 0 {
		return errors.New("session stale threshold must be positive")
	}
	if c.Session.StaleAfter > c.Session.TTL {
		return errors.New("session stale threshold exceeds session TTL")
	}
	if c.Session.KeyPrefix == "" {
		return errors.New("session key prefix is required")
	}

	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("totp digits out of range")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 4 {
		return errors.New("totp skew out of range")
	}
	switch c.TOTP.Algorithm {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("unsupported totp algorithm")
	}

	if c.Events.MaxStored <= 0 {
		return errors.New("event retention must be positive")
	}
	if c.Events.DefaultListLimit <= 0 {
		return errors.New("event list limit must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size cannot be negative")
	}

	return nil
}

func cloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c
	clone.Token.PrivateKey = append([]byte(nil), c.Token.PrivateKey...)
	clone.Token.PublicKey = append([]byte(nil), c.Token.PublicKey...)
	return &clone
}
