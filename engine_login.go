package riskgate

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/velkorin/riskgate/internal/stores"
	"github.com/velkorin/riskgate/session"
)

// Risk event action and outcome vocabulary. Stable strings; external
// reporting keys on them.
const (
	riskActionLogin        = "login"
	riskActionSecondFactor = "second_factor"
	riskActionAdmin        = "admin"

	riskOutcomeSuccess              = "success"
	riskOutcomeOriginBanned         = "origin_banned"
	riskOutcomeIdentityLocked       = "identity_locked"
	riskOutcomeRuleBlocked          = "rule_blocked"
	riskOutcomeCaptchaRequired      = "captcha_required"
	riskOutcomeInvalidCredentials   = "invalid_credentials"
	riskOutcomeImpossibleTravel     = "impossible_travel"
	riskOutcomeSecondFactorRequired = "second_factor_required"
	riskOutcomeSecondFactorFailed   = "second_factor_failed"
	riskOutcomeReplayDetected       = "replay_detected"
)

// Login runs the full risk pipeline for one authentication attempt.
// Origin, client, and an optional CAPTCHA proof come from ctx via
// [WithOrigin], [WithClient], and [WithCaptchaProof].
//
// The pipeline stages run in a fixed order; the first terminal rejection
// wins and later stages never execute. On ErrInvalidCredentials the
// returned result is non-nil and CaptchaRequiredNext reports whether the
// next attempt from this origin will be CAPTCHA-gated.
func (e *Engine) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if e == nil || e.identities == nil || e.passwords == nil {
		return nil, ErrEngineNotReady
	}

	origin := originFromContext(ctx)
	client := clientFromContext(ctx)
	now := time.Now()
	tally := NewRiskTally()

	// Origin ban is absolute and precedes everything else.
	banned, err := e.bans.IsBanned(ctx, origin)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	if banned {
		e.metricInc(MetricOriginBanned)
		tally.Raise(impossibleLikelihood, impossibleImpact)
		e.emitAudit(ctx, auditEventOriginBanned, false, "", "", ErrOriginBanned, func() map[string]string {
			return map[string]string{"identifier": username}
		})
		e.recordRiskEvent(ctx, "", username, origin, riskActionLogin, riskOutcomeOriginBanned, tally, map[string]string{
			"reason": "origin_banned",
		})
		return nil, ErrOriginBanned
	}

	identity, identityErr := e.identities.GetByUsername(ctx, username)
	identityKnown := identityErr == nil
	if identityErr != nil && !errors.Is(identityErr, ErrIdentityNotFound) {
		return nil, ErrBackendUnavailable
	}

	if identityKnown && identity.Locked {
		e.metricInc(MetricIdentityLocked)
		e.emitAudit(ctx, auditEventIdentityLocked, false, identity.IdentityID, "", ErrIdentityLocked, nil)
		e.recordRiskEvent(ctx, identity.IdentityID, username, origin, riskActionLogin, riskOutcomeIdentityLocked, tally, nil)
		return nil, ErrIdentityLocked
	}

	loc := e.resolveLocation(ctx, origin)

	ruleCtx := RuleContext{
		Origin:  origin,
		Country: loc.Country,
		Client:  client,
		Hour:    now.UTC().Hour(),
		HasHour: true,
	}
	if identityKnown {
		ruleCtx.Role = identity.Role
	}
	outcome := EvaluateRules(e.loadActiveRules(ctx), ruleCtx)
	tally.Raise(outcome.Likelihood, outcome.Impact)

	if outcome.Has(ActionBlock) {
		e.metricInc(MetricRuleBlocked)
		e.emitAudit(ctx, auditEventRuleBlocked, false, identity.IdentityID, "", ErrRuleBlocked, func() map[string]string {
			return map[string]string{"rules": joinRuleNames(outcome.Matched)}
		})
		e.recordRiskEvent(ctx, identity.IdentityID, username, origin, riskActionLogin, riskOutcomeRuleBlocked, tally, map[string]string{
			"rules": joinRuleNames(outcome.Matched),
		})
		return nil, ErrRuleBlocked
	}

	if err := e.enforceCaptchaGate(ctx, username, origin, &tally); err != nil {
		return nil, err
	}

	passwordOK := false
	if identityKnown && password != "" {
		ok, verr := e.passwords.Verify(password, identity.PasswordHash)
		passwordOK = verr == nil && ok
	}
	password = ""

	if !passwordOK {
		return e.rejectBadPassword(ctx, identity, identityKnown, username, origin, tally)
	}

	// Correct password: consecutive-failure counters reset before any
	// further gating so a later rejection cannot stack the next attempt.
	if err := e.identities.ResetFailures(ctx, identity.IdentityID); err != nil {
		log.Print("riskgate: identity failure counter reset failed")
	}
	if err := e.guard.Reset(ctx, origin); err != nil {
		log.Print("riskgate: origin failure counter reset failed")
	}

	locationChanged := false
	if identity.HasLocation && loc.Known {
		travel := AssessTravel(
			identity.LastLatitude, identity.LastLongitude, time.Unix(identity.LastAuthenticatedAt, 0),
			loc.Latitude, loc.Longitude, now,
		)
		switch travel.Class {
		case TravelImpossible:
			tally.Raise(impossibleLikelihood, impossibleImpact)
			e.metricInc(MetricImpossibleTravel)
			e.emitAudit(ctx, auditEventImpossibleTravel, false, identity.IdentityID, "", ErrImpossibleTravel, func() map[string]string {
				return travelDetail(travel)
			})
			e.recordRiskEvent(ctx, identity.IdentityID, username, origin, riskActionLogin, riskOutcomeImpossibleTravel, tally, travelDetail(travel))
			return nil, ErrImpossibleTravel
		case TravelLocationChange:
			locationChanged = true
			tally.Raise(locationChangeMinLike, locationChangeMinImp)
		case TravelNone:
		}
	}

	// The trusted shortcut only applies to enrolled identities. An
	// identity without a second factor always goes through the pending
	// step, which doubles as first-time setup.
	if identity.SecondFactorEnabled && IsTrustedDevice(identity, origin, client, locationChanged, outcome.Has(ActionRequireMFA)) {
		return e.issueCredential(ctx, identity, origin, client, loc, tally, nil)
	}

	return e.createPendingChallenge(ctx, identity, origin, client, loc, tally)
}

func (e *Engine) resolveLocation(ctx context.Context, origin string) Location {
	if e.locations == nil || origin == "" {
		return Location{}
	}
	loc, err := e.locations.Lookup(ctx, origin)
	if err != nil {
		// No geographic signal; never a login failure.
		return Location{}
	}
	return loc
}

func (e *Engine) loadActiveRules(ctx context.Context) []PolicyRule {
	records, err := e.rules.List(ctx)
	if err != nil {
		// Rules fail open: a rule-store outage must not take logins down
		// with it. Ban and lock checks above stay fail-closed.
		log.Print("riskgate: policy rule load failed")
		return nil
	}

	rules := make([]PolicyRule, 0, len(records))
	for _, record := range records {
		rule, err := ruleFromRecord(record)
		if err != nil {
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

// enforceCaptchaGate rejects the attempt when the origin is over the
// failure threshold and no valid proof accompanies the request.
func (e *Engine) enforceCaptchaGate(ctx context.Context, username, origin string, tally *RiskTally) error {
	challenged, err := e.guard.ShouldChallenge(ctx, origin)
	if err != nil {
		return ErrBackendUnavailable
	}
	if !challenged {
		return nil
	}

	proof := captchaProofFromContext(ctx)
	if proof == "" {
		e.metricInc(MetricCaptchaRequired)
		e.emitAudit(ctx, auditEventCaptchaRequired, false, "", "", ErrCaptchaRequired, func() map[string]string {
			return map[string]string{"identifier": username}
		})
		e.recordRiskEvent(ctx, "", username, origin, riskActionLogin, riskOutcomeCaptchaRequired, *tally, nil)
		return ErrCaptchaRequired
	}

	if e.captcha == nil {
		return e.captchaUnavailable(ctx, username, origin, tally)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, e.config.Captcha.VerifyTimeout)
	defer cancel()

	ok, verifyErr := e.captcha.Verify(verifyCtx, proof, origin)
	if verifyErr != nil {
		return e.captchaUnavailable(ctx, username, origin, tally)
	}
	if !ok {
		e.metricInc(MetricCaptchaRequired)
		e.emitAudit(ctx, auditEventCaptchaRequired, false, "", "", ErrCaptchaRequired, func() map[string]string {
			return map[string]string{"identifier": username, "reason": "proof_rejected"}
		})
		e.recordRiskEvent(ctx, "", username, origin, riskActionLogin, riskOutcomeCaptchaRequired, *tally, map[string]string{
			"reason": "proof_rejected",
		})
		return ErrCaptchaRequired
	}
	return nil
}

func (e *Engine) captchaUnavailable(ctx context.Context, username, origin string, tally *RiskTally) error {
	if e.config.Captcha.OnUnavailable == CaptchaEscalate {
		tally.Raise(e.config.Captcha.EscalateLikelihood, e.config.Captcha.EscalateImpact)
		e.metricInc(MetricCaptchaEscalated)
		e.emitAudit(ctx, auditEventCaptchaEscalated, true, "", "", nil, func() map[string]string {
			return map[string]string{"identifier": username}
		})
		return nil
	}

	e.emitAudit(ctx, auditEventCaptchaRequired, false, "", "", ErrUpstreamUnavailable, func() map[string]string {
		return map[string]string{"identifier": username, "reason": "verifier_unavailable"}
	})
	e.recordRiskEvent(ctx, "", username, origin, riskActionLogin, riskOutcomeCaptchaRequired, *tally, map[string]string{
		"reason": "verifier_unavailable",
	})
	return ErrUpstreamUnavailable
}

func (e *Engine) rejectBadPassword(
	ctx context.Context,
	identity IdentityRecord,
	identityKnown bool,
	username, origin string,
	tally RiskTally,
) (*LoginResult, error) {
	tally.Raise(badPasswordLikelihood, badPasswordImpact)

	if identityKnown {
		if err := e.identities.RecordFailure(ctx, identity.IdentityID); err != nil {
			log.Print("riskgate: identity failure counter update failed")
		}
	}

	captchaNext := false
	count, err := e.guard.RecordFailure(ctx, origin)
	if err != nil {
		log.Print("riskgate: origin failure counter update failed")
	} else {
		captchaNext = count >= int64(e.config.BruteForce.CaptchaThreshold)
	}

	reason := "password_mismatch"
	if !identityKnown {
		reason = "identity_not_found"
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, identity.IdentityID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": username,
			"reason":     reason,
		}
	})
	e.recordRiskEvent(ctx, identity.IdentityID, username, origin, riskActionLogin, riskOutcomeInvalidCredentials, tally, map[string]string{
		"reason": reason,
	})

	return &LoginResult{CaptchaRequiredNext: captchaNext}, ErrInvalidCredentials
}

// issueCredential creates or refreshes the session binding for the
// attempt's (identity, origin, client) tuple and signs the access token
// against it.
func (e *Engine) issueCredential(
	ctx context.Context,
	identity IdentityRecord,
	origin, client string,
	loc Location,
	tally RiskTally,
	detail map[string]string,
) (*LoginResult, error) {
	now := time.Now()

	candidate := &session.Binding{
		BindingID:      uuid.NewString(),
		IdentityID:     identity.IdentityID,
		Username:       identity.Username,
		Role:           string(identity.Role),
		Origin:         origin,
		Client:         client,
		CreatedAt:      now.Unix(),
		LastActivityAt: now.Unix(),
	}

	b, created, err := e.bindings.Upsert(ctx, candidate)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.IdentityID, "", ErrBackendUnavailable, func() map[string]string {
			return map[string]string{"reason": "binding_upsert_failed"}
		})
		return nil, ErrBackendUnavailable
	}
	if created {
		e.metricInc(MetricBindingCreated)
	} else {
		e.metricInc(MetricBindingRefreshed)
	}

	access, err := e.tokens.CreateAccess(identity.IdentityID, identity.Username, string(identity.Role), b.BindingID)
	if err != nil {
		_, _ = e.bindings.Delete(ctx, b.BindingID)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.IdentityID, b.BindingID, err, func() map[string]string {
			return map[string]string{"reason": "token_signing_failed"}
		})
		return nil, err
	}

	update := LoginContextUpdate{
		Origin:          origin,
		Client:          client,
		AuthenticatedAt: now.Unix(),
	}
	if loc.Known {
		update.Latitude = loc.Latitude
		update.Longitude = loc.Longitude
		update.HasLocation = true
	} else {
		update.Latitude = identity.LastLatitude
		update.Longitude = identity.LastLongitude
		update.HasLocation = identity.HasLocation
	}
	if err := e.identities.UpdateLoginContext(ctx, identity.IdentityID, update); err != nil {
		log.Print("riskgate: login context update failed")
	}

	e.metricInc(MetricLoginSuccess)
	e.notifier.NotifyAdmins(Notification{Type: NotificationSessionUpdate})
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity.IdentityID, b.BindingID, nil, func() map[string]string {
		return map[string]string{"identifier": identity.Username}
	})
	e.recordRiskEvent(ctx, identity.IdentityID, identity.Username, origin, riskActionLogin, riskOutcomeSuccess, tally, detail)

	return &LoginResult{
		AccessToken: access,
		Role:        identity.Role,
		BindingID:   b.BindingID,
	}, nil
}

// createPendingChallenge parks the attempt behind second-factor
// verification. The challenge snapshots the request context so the
// verify step issues against the same tuple.
func (e *Engine) createPendingChallenge(
	ctx context.Context,
	identity IdentityRecord,
	origin, client string,
	loc Location,
	tally RiskTally,
) (*LoginResult, error) {
	challengeID := uuid.NewString()
	expires := time.Now().Add(e.config.Pending.TTL)

	record := &stores.PendingChallenge{
		IdentityID:     identity.IdentityID,
		Origin:         origin,
		Client:         client,
		FirstTimeSetup: !identity.SecondFactorEnabled,
		ExpiresAt:      expires.Unix(),
	}
	if loc.Known {
		record.Latitude = loc.Latitude
		record.Longitude = loc.Longitude
		record.HasLocation = true
	}

	if err := e.pending.Save(ctx, challengeID, record, e.config.Pending.TTL); err != nil {
		return nil, ErrBackendUnavailable
	}

	pendingToken, err := e.tokens.CreatePending(identity.IdentityID, identity.Username, challengeID, e.config.Pending.TTL)
	if err != nil {
		_, _ = e.pending.Delete(ctx, challengeID)
		return nil, err
	}

	e.metricInc(MetricSecondFactorRequired)
	e.emitAudit(ctx, auditEventSecondFactorRequired, true, identity.IdentityID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier":       identity.Username,
			"first_time_setup": strconv.FormatBool(record.FirstTimeSetup),
		}
	})
	e.recordRiskEvent(ctx, identity.IdentityID, identity.Username, origin, riskActionLogin, riskOutcomeSecondFactorRequired, tally, nil)

	return &LoginResult{
		Role:                 identity.Role,
		SecondFactorRequired: true,
		PendingToken:         pendingToken,
	}, nil
}

// recordRiskEvent persists one pipeline decision and broadcasts it to
// admin observers. Best-effort with a single retry; event loss never
// changes the decision that produced it.
func (e *Engine) recordRiskEvent(
	ctx context.Context,
	identityID, username, origin, action, outcome string,
	tally RiskTally,
	detail map[string]string,
) {
	if e.events == nil {
		return
	}

	event := &RiskEvent{
		EventID:             uuid.NewString(),
		IdentityID:          identityID,
		Username:            username,
		Origin:              origin,
		Action:              action,
		Outcome:             outcome,
		RiskScore:           tally.Score(),
		Likelihood:          tally.Likelihood,
		Impact:              tally.Impact,
		Detail:              detail,
		CreatedAt:           time.Now().UTC(),
		InvestigationStatus: InvestigationNew,
	}

	record := riskEventToRecord(event)
	if err := e.events.Append(ctx, record); err != nil {
		if err := e.events.Append(ctx, record); err != nil {
			log.Print("riskgate: risk event append failed")
			return
		}
	}

	e.metricInc(MetricRiskEventRecorded)
	e.notifier.NotifyAdmins(Notification{Type: NotificationNewRiskEvent, Event: event})
}

func travelDetail(travel TravelAssessment) map[string]string {
	return map[string]string{
		"distance_km":   strconv.FormatFloat(travel.DistanceKM, 'f', 1, 64),
		"speed_kmh":     strconv.FormatFloat(travel.SpeedKMH, 'f', 1, 64),
		"elapsed_hours": strconv.FormatFloat(travel.ElapsedHours, 'f', 2, 64),
	}
}

func joinRuleNames(names []string) string {
	return strings.Join(names, ",")
}
