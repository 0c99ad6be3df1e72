package riskgate

import "errors"

var (
	// ErrOriginBanned rejects every authentication attempt from a banned origin.
	ErrOriginBanned = errors.New("origin banned")
	// ErrIdentityLocked rejects attempts against an administratively locked identity.
	ErrIdentityLocked = errors.New("identity locked")
	// ErrRuleBlocked rejects attempts matched by an active BLOCK policy rule.
	ErrRuleBlocked = errors.New("blocked by policy rule")
	// ErrCaptchaRequired signals that the attempt must be retried with a CAPTCHA proof.
	ErrCaptchaRequired = errors.New("captcha required")
	// ErrInvalidCredentials covers unknown identities and failed password checks.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrImpossibleTravel rejects a correct-password attempt whose travel profile is impossible.
	ErrImpossibleTravel = errors.New("impossible travel detected")
	// ErrInvalidPendingToken covers malformed, expired, or already consumed pending second-factor tokens.
	ErrInvalidPendingToken = errors.New("invalid pending second-factor token")
	// ErrPendingTokenReplay marks a pending token presented after it was already exchanged.
	ErrPendingTokenReplay = errors.New("pending second-factor token replay detected")
	// ErrInvalidSecondFactorCode marks a failed one-time-code verification.
	ErrInvalidSecondFactorCode = errors.New("invalid second-factor code")
	// ErrSecondFactorAttemptsExceeded invalidates a pending challenge after too many bad codes.
	ErrSecondFactorAttemptsExceeded = errors.New("second-factor attempts exceeded")
	// ErrSecondFactorNotProvisioned is returned when no second-factor secret exists for the identity.
	ErrSecondFactorNotProvisioned = errors.New("second factor not provisioned")
	// ErrSecondFactorAlreadyEnabled rejects provisioning for an identity with an active second factor.
	ErrSecondFactorAlreadyEnabled = errors.New("second factor already enabled")
	// ErrSessionNotFound rejects a protected call whose credential has no live session binding.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenInvalid covers signature, claim, and purpose failures on presented credentials.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUpstreamUnavailable is a hard failure of a mandatory third-party verification call.
	ErrUpstreamUnavailable = errors.New("upstream verification unavailable")
	// ErrBackendUnavailable wraps Redis faults surfaced by the engine stores.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrIdentityNotFound is returned by identity providers for unknown identities.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrRuleNotFound is returned for policy-rule lookups that miss.
	ErrRuleNotFound = errors.New("policy rule not found")
	// ErrRuleInvalid rejects policy rules with unknown fields, operators, or out-of-range severities.
	ErrRuleInvalid = errors.New("invalid policy rule")
	// ErrEventNotFound is returned for risk-event lookups that miss.
	ErrEventNotFound = errors.New("risk event not found")
	// ErrInvestigationStatusInvalid rejects unknown investigation states.
	ErrInvestigationStatusInvalid = errors.New("invalid investigation status")
	// ErrEngineNotReady is returned when an Engine method runs before Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)
