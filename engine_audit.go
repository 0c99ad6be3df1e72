package riskgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventOriginBanned         = "origin_banned"
	auditEventIdentityLocked       = "identity_locked"
	auditEventRuleBlocked          = "rule_blocked"
	auditEventCaptchaRequired      = "captcha_required"
	auditEventCaptchaEscalated     = "captcha_escalated"
	auditEventImpossibleTravel     = "impossible_travel"
	auditEventSecondFactorRequired = "second_factor_required"
	auditEventSecondFactorSuccess  = "second_factor_success"
	auditEventSecondFactorFailure  = "second_factor_failure"
	auditEventSecondFactorReplay   = "second_factor_replay"
	auditEventSecondFactorSetup    = "second_factor_setup"
	auditEventLogoutSession        = "logout_session"
	auditEventBindingKilled        = "binding_killed"
	auditEventBindingsSwept        = "bindings_swept"
	auditEventIdentityLock         = "identity_lock"
	auditEventIdentityUnlock       = "identity_unlock"
	auditEventOriginBan            = "origin_ban"
	auditEventOriginUnban          = "origin_unban"
	auditEventRuleChange           = "rule_change"
	auditEventRiskEventRecorded    = "risk_event_recorded"
)

// AuditErrorCode is the stable error vocabulary carried in audit records.
// Codes are part of the observable surface; downstream alerting keys on
// them, so values never change even when the sentinel wording does.
type AuditErrorCode string

const (
	auditErrOriginBanned        AuditErrorCode = "origin_banned"
	auditErrIdentityLocked      AuditErrorCode = "identity_locked"
	auditErrRuleBlocked         AuditErrorCode = "rule_blocked"
	auditErrCaptchaRequired     AuditErrorCode = "captcha_required"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrImpossibleTravel    AuditErrorCode = "impossible_travel"
	auditErrInvalidPendingToken AuditErrorCode = "invalid_pending_token"
	auditErrPendingReplay       AuditErrorCode = "pending_token_replay"
	auditErrInvalidCode         AuditErrorCode = "invalid_second_factor_code"
	auditErrAttemptsExceeded    AuditErrorCode = "attempts_exceeded"
	auditErrNotProvisioned      AuditErrorCode = "second_factor_not_provisioned"
	auditErrAlreadyEnabled      AuditErrorCode = "second_factor_already_enabled"
	auditErrSessionNotFound     AuditErrorCode = "session_not_found"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrUpstream            AuditErrorCode = "upstream_unavailable"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrIdentityNotFound    AuditErrorCode = "identity_not_found"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	bindingID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		Origin:     originFromContext(ctx),
		BindingID:  bindingID,
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrOriginBanned):
		return auditErrOriginBanned
	case errors.Is(err, ErrIdentityLocked):
		return auditErrIdentityLocked
	case errors.Is(err, ErrRuleBlocked):
		return auditErrRuleBlocked
	case errors.Is(err, ErrCaptchaRequired):
		return auditErrCaptchaRequired
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrImpossibleTravel):
		return auditErrImpossibleTravel
	case errors.Is(err, ErrPendingTokenReplay):
		return auditErrPendingReplay
	case errors.Is(err, ErrInvalidPendingToken):
		return auditErrInvalidPendingToken
	case errors.Is(err, ErrInvalidSecondFactorCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrSecondFactorAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrSecondFactorNotProvisioned):
		return auditErrNotProvisioned
	case errors.Is(err, ErrSecondFactorAlreadyEnabled):
		return auditErrAlreadyEnabled
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUpstreamUnavailable):
		return auditErrUpstream
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrIdentityNotFound):
		return auditErrIdentityNotFound
	default:
		return auditErrInternal
	}
}
