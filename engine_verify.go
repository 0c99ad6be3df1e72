package riskgate

import (
	"context"
	"errors"
	"time"

	"github.com/velkorin/riskgate/internal/stores"
	"github.com/velkorin/riskgate/jwt"
)

// VerifySecondFactor exchanges a pending token plus a one-time code for a
// full credential. The pending challenge is single-use: the first
// successful exchange consumes it and any later presentation of the same
// token is rejected as a replay.
func (e *Engine) VerifySecondFactor(ctx context.Context, pendingToken, code string) (*LoginResult, error) {
	if e == nil || e.tokens == nil || e.pending == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(pendingToken)
	if err != nil || claims.Purpose != jwt.PurposeSecondFactor || claims.ChallengeID == "" {
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, "", "", ErrInvalidPendingToken, func() map[string]string {
			return map[string]string{"reason": "token_parse_failed"}
		})
		return nil, ErrInvalidPendingToken
	}

	challenge, err := e.pending.Get(ctx, claims.ChallengeID)
	if err != nil {
		if errors.Is(err, stores.ErrPendingChallengeBackend) {
			return nil, ErrBackendUnavailable
		}
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, claims.Subject, "", ErrInvalidPendingToken, func() map[string]string {
			return map[string]string{"reason": "challenge_missing_or_expired"}
		})
		return nil, ErrInvalidPendingToken
	}
	if challenge.IdentityID != claims.Subject {
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, claims.Subject, "", ErrInvalidPendingToken, func() map[string]string {
			return map[string]string{"reason": "challenge_identity_mismatch"}
		})
		return nil, ErrInvalidPendingToken
	}

	identity, err := e.identities.GetByID(ctx, challenge.IdentityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrInvalidPendingToken
		}
		return nil, ErrBackendUnavailable
	}

	// Lock state is rechecked at exchange time: a lock placed while the
	// challenge was outstanding still wins.
	if identity.Locked {
		e.metricInc(MetricIdentityLocked)
		e.emitAudit(ctx, auditEventIdentityLocked, false, identity.IdentityID, "", ErrIdentityLocked, nil)
		return nil, ErrIdentityLocked
	}

	if len(identity.SecondFactorSecret) == 0 {
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, identity.IdentityID, "", ErrSecondFactorNotProvisioned, nil)
		return nil, ErrSecondFactorNotProvisioned
	}

	ok, err := e.totp.VerifyCode(identity.SecondFactorSecret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.rejectBadCode(ctx, identity, claims.ChallengeID, challenge.Origin)
	}

	consumed, err := e.pending.Delete(ctx, claims.ChallengeID)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	if !consumed {
		e.metricInc(MetricSecondFactorReplay)
		e.emitAudit(ctx, auditEventSecondFactorReplay, false, identity.IdentityID, "", ErrPendingTokenReplay, nil)
		e.recordRiskEvent(ctx, identity.IdentityID, identity.Username, challenge.Origin, riskActionSecondFactor, riskOutcomeReplayDetected, NewRiskTally(), nil)
		return nil, ErrPendingTokenReplay
	}

	if challenge.FirstTimeSetup {
		if err := e.identities.EnableSecondFactor(ctx, identity.IdentityID); err != nil {
			return nil, ErrBackendUnavailable
		}
		identity.SecondFactorEnabled = true
	}

	loc := Location{
		Latitude:  challenge.Latitude,
		Longitude: challenge.Longitude,
		Known:     challenge.HasLocation,
	}

	e.metricInc(MetricSecondFactorSuccess)
	e.emitAudit(ctx, auditEventSecondFactorSuccess, true, identity.IdentityID, "", nil, nil)

	return e.issueCredential(ctx, identity, challenge.Origin, challenge.Client, loc, NewRiskTally(), map[string]string{
		"via": "second_factor",
	})
}

func (e *Engine) rejectBadCode(ctx context.Context, identity IdentityRecord, challengeID, origin string) error {
	exceeded, err := e.pending.RecordFailure(ctx, challengeID, e.config.Pending.MaxAttempts)
	if err != nil {
		if errors.Is(err, stores.ErrPendingChallengeBackend) {
			return ErrBackendUnavailable
		}
		// Challenge expired or vanished under the failed attempt.
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, identity.IdentityID, "", ErrInvalidPendingToken, nil)
		return ErrInvalidPendingToken
	}

	e.metricInc(MetricSecondFactorFailure)
	if exceeded {
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, identity.IdentityID, "", ErrSecondFactorAttemptsExceeded, nil)
		e.recordRiskEvent(ctx, identity.IdentityID, identity.Username, origin, riskActionSecondFactor, riskOutcomeSecondFactorFailed, NewRiskTally(), map[string]string{
			"reason": "attempts_exceeded",
		})
		return ErrSecondFactorAttemptsExceeded
	}

	e.emitAudit(ctx, auditEventSecondFactorFailure, false, identity.IdentityID, "", ErrInvalidSecondFactorCode, nil)
	e.recordRiskEvent(ctx, identity.IdentityID, identity.Username, origin, riskActionSecondFactor, riskOutcomeSecondFactorFailed, NewRiskTally(), nil)
	return ErrInvalidSecondFactorCode
}

// ProvisionSecondFactor generates and stores a fresh authenticator
// secret for the identity named by tokenStr, which may be either a
// pending token (first-time setup mid-login) or an access token
// (enrollment from a live session). Identities with an active second
// factor must be reset administratively before re-provisioning.
func (e *Engine) ProvisionSecondFactor(ctx context.Context, tokenStr string) (*SecondFactorSetup, error) {
	if e == nil || e.tokens == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	switch claims.Purpose {
	case jwt.PurposeSecondFactor:
		if claims.ChallengeID == "" {
			return nil, ErrInvalidPendingToken
		}
		challenge, err := e.pending.Get(ctx, claims.ChallengeID)
		if err != nil {
			if errors.Is(err, stores.ErrPendingChallengeBackend) {
				return nil, ErrBackendUnavailable
			}
			return nil, ErrInvalidPendingToken
		}
		if challenge.IdentityID != claims.Subject || !challenge.FirstTimeSetup {
			return nil, ErrInvalidPendingToken
		}
	case jwt.PurposeAccess:
		if claims.BindingID == "" {
			return nil, ErrTokenInvalid
		}
		if _, err := e.bindings.Get(ctx, claims.BindingID); err != nil {
			return nil, ErrSessionNotFound
		}
	default:
		return nil, ErrTokenInvalid
	}

	identity, err := e.identities.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, ErrBackendUnavailable
	}
	if identity.SecondFactorEnabled {
		return nil, ErrSecondFactorAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.identities.SetSecondFactorSecret(ctx, identity.IdentityID, secret); err != nil {
		return nil, ErrBackendUnavailable
	}

	e.emitAudit(ctx, auditEventSecondFactorSetup, true, identity.IdentityID, "", nil, nil)

	return &SecondFactorSetup{
		SecretBase32: secretBase32,
		ProvisionURI: e.totp.ProvisionURI(secretBase32, identity.Username),
	}, nil
}
