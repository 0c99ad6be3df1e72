package riskgate

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/velkorin/riskgate/internal/stores"
)

// LockIdentity locks the identity and revokes every live binding it
// holds. Locked identities fail the pipeline before credential checks
// until unlocked.
func (e *Engine) LockIdentity(ctx context.Context, identityID, actor string) error {
	if e == nil || e.identities == nil {
		return ErrEngineNotReady
	}

	if err := e.identities.SetLocked(ctx, identityID, true); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrIdentityNotFound
		}
		return ErrBackendUnavailable
	}

	revoked, err := e.bindings.DeleteAllForIdentity(ctx, identityID)
	if err != nil {
		e.emitAudit(ctx, auditEventIdentityLock, false, identityID, "", ErrBackendUnavailable, nil)
		return ErrBackendUnavailable
	}
	for range revoked {
		e.metricInc(MetricBindingRevoked)
	}

	e.notifier.NotifyIdentity(identityID, Notification{
		Type:   NotificationForceLogout,
		Reason: "account_locked",
	})
	e.notifier.NotifyAdmins(Notification{Type: NotificationSessionUpdate})

	e.emitAudit(ctx, auditEventIdentityLock, true, identityID, "", nil, func() map[string]string {
		return map[string]string{
			"actor":         actor,
			"revoked_count": strconv.Itoa(len(revoked)),
		}
	})
	e.recordRiskEvent(ctx, identityID, "", originFromContext(ctx), riskActionAdmin, riskOutcomeIdentityLocked, NewRiskTally(), map[string]string{
		"actor": actor,
	})
	return nil
}

// UnlockIdentity clears the lock and the identity's consecutive failure
// counter so the next attempt starts clean.
func (e *Engine) UnlockIdentity(ctx context.Context, identityID, actor string) error {
	if e == nil || e.identities == nil {
		return ErrEngineNotReady
	}

	if err := e.identities.SetLocked(ctx, identityID, false); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrIdentityNotFound
		}
		return ErrBackendUnavailable
	}
	if err := e.identities.ResetFailures(ctx, identityID); err != nil {
		return ErrBackendUnavailable
	}

	e.emitAudit(ctx, auditEventIdentityUnlock, true, identityID, "", nil, func() map[string]string {
		return map[string]string{"actor": actor}
	})
	return nil
}

// BanOrigin bans the origin and revokes every binding created from it.
// Each affected identity is told to log out.
func (e *Engine) BanOrigin(ctx context.Context, origin, reason, actor string) error {
	if e == nil || e.bans == nil {
		return ErrEngineNotReady
	}

	ban := &stores.OriginBan{
		Origin:   origin,
		Reason:   reason,
		Actor:    actor,
		BannedAt: time.Now().Unix(),
	}
	if err := e.bans.Ban(ctx, ban); err != nil {
		return ErrBackendUnavailable
	}

	revoked, err := e.bindings.DeleteAllForOrigin(ctx, origin)
	if err != nil {
		e.emitAudit(ctx, auditEventOriginBan, false, "", "", ErrBackendUnavailable, nil)
		return ErrBackendUnavailable
	}

	notified := make(map[string]struct{}, len(revoked))
	for _, b := range revoked {
		e.metricInc(MetricBindingRevoked)
		if _, done := notified[b.IdentityID]; done {
			continue
		}
		notified[b.IdentityID] = struct{}{}
		e.notifier.NotifyIdentity(b.IdentityID, Notification{
			Type:   NotificationForceLogout,
			Reason: "origin_banned",
		})
	}
	e.notifier.NotifyAdmins(Notification{Type: NotificationSessionUpdate})

	e.emitAudit(ctx, auditEventOriginBan, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"target_origin": origin,
			"actor":         actor,
			"reason":        reason,
			"revoked_count": strconv.Itoa(len(revoked)),
		}
	})
	e.recordRiskEvent(ctx, "", "", origin, riskActionAdmin, riskOutcomeOriginBanned, NewRiskTally(), map[string]string{
		"actor":  actor,
		"reason": reason,
	})
	return nil
}

// UnbanOrigin lifts an origin ban. Idempotent; lifting an absent ban is
// not an error. The origin's failure counter survives the unban.
func (e *Engine) UnbanOrigin(ctx context.Context, origin, actor string) error {
	if e == nil || e.bans == nil {
		return ErrEngineNotReady
	}

	existed, err := e.bans.Unban(ctx, origin)
	if err != nil {
		return ErrBackendUnavailable
	}

	e.emitAudit(ctx, auditEventOriginUnban, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"target_origin": origin,
			"actor":         actor,
			"existed":       strconv.FormatBool(existed),
		}
	})
	return nil
}

// ListOriginBans returns every active origin ban.
func (e *Engine) ListOriginBans(ctx context.Context) ([]OriginBan, error) {
	if e == nil || e.bans == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.bans.List(ctx)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	bans := make([]OriginBan, 0, len(records))
	for _, record := range records {
		bans = append(bans, OriginBan{
			Origin:   record.Origin,
			Reason:   record.Reason,
			Actor:    record.Actor,
			BannedAt: time.Unix(record.BannedAt, 0).UTC(),
		})
	}
	return bans, nil
}

// ListBindings returns every live session binding.
func (e *Engine) ListBindings(ctx context.Context) ([]BindingInfo, error) {
	if e == nil || e.bindings == nil {
		return nil, ErrEngineNotReady
	}

	all, err := e.bindings.List(ctx)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	infos := make([]BindingInfo, 0, len(all))
	for _, b := range all {
		infos = append(infos, bindingInfo(b))
	}
	return infos, nil
}

// ListBindingsForIdentity returns the identity's live bindings.
func (e *Engine) ListBindingsForIdentity(ctx context.Context, identityID string) ([]BindingInfo, error) {
	if e == nil || e.bindings == nil {
		return nil, ErrEngineNotReady
	}

	all, err := e.bindings.ListForIdentity(ctx, identityID)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	infos := make([]BindingInfo, 0, len(all))
	for _, b := range all {
		infos = append(infos, bindingInfo(b))
	}
	return infos, nil
}

// KillBinding revokes one binding by ID. The next Validate against its
// credential fails with ErrSessionNotFound regardless of remaining token
// lifetime. Killing an absent binding returns ErrSessionNotFound.
func (e *Engine) KillBinding(ctx context.Context, bindingID, actor string) error {
	if e == nil || e.bindings == nil {
		return ErrEngineNotReady
	}

	b, err := e.bindings.Get(ctx, bindingID)
	if err != nil {
		e.emitAudit(ctx, auditEventBindingKilled, false, "", bindingID, ErrSessionNotFound, nil)
		return ErrSessionNotFound
	}

	existed, err := e.bindings.Delete(ctx, bindingID)
	if err != nil {
		return ErrBackendUnavailable
	}
	if !existed {
		return ErrSessionNotFound
	}

	e.metricInc(MetricBindingRevoked)
	e.notifier.NotifyIdentity(b.IdentityID, Notification{
		Type:   NotificationForceLogout,
		Reason: "session_killed",
	})
	e.notifier.NotifyAdmins(Notification{Type: NotificationSessionUpdate})

	e.emitAudit(ctx, auditEventBindingKilled, true, b.IdentityID, bindingID, nil, func() map[string]string {
		return map[string]string{"actor": actor}
	})
	return nil
}

// SweepStaleBindings revokes every binding idle longer than
// Config.Session.StaleAfter and returns the number removed. Intended to
// run on a caller-owned schedule.
func (e *Engine) SweepStaleBindings(ctx context.Context) (int, error) {
	if e == nil || e.bindings == nil {
		return 0, ErrEngineNotReady
	}

	cutoff := time.Now().Add(-e.config.Session.StaleAfter).Unix()
	removed, err := e.bindings.SweepStale(ctx, cutoff)
	if err != nil {
		return len(removed), ErrBackendUnavailable
	}

	notified := make(map[string]struct{}, len(removed))
	for _, b := range removed {
		e.metricInc(MetricBindingRevoked)
		if _, done := notified[b.IdentityID]; done {
			continue
		}
		notified[b.IdentityID] = struct{}{}
		e.notifier.NotifyIdentity(b.IdentityID, Notification{
			Type:   NotificationForceLogout,
			Reason: "session_stale",
		})
	}
	if len(removed) > 0 {
		e.notifier.NotifyAdmins(Notification{Type: NotificationSessionUpdate})
	}

	e.emitAudit(ctx, auditEventBindingsSwept, true, "", "", nil, func() map[string]string {
		return map[string]string{"removed_count": strconv.Itoa(len(removed))}
	})
	return len(removed), nil
}

// CreateRule validates and stores a new policy rule, assigning its ID.
func (e *Engine) CreateRule(ctx context.Context, rule PolicyRule) (PolicyRule, error) {
	if e == nil || e.rules == nil {
		return PolicyRule{}, ErrEngineNotReady
	}
	if err := ValidateRule(rule); err != nil {
		return PolicyRule{}, err
	}

	rule.RuleID = uuid.NewString()
	record, err := ruleToRecord(rule)
	if err != nil {
		return PolicyRule{}, err
	}
	if err := e.rules.Save(ctx, record); err != nil {
		return PolicyRule{}, ErrBackendUnavailable
	}

	e.emitAudit(ctx, auditEventRuleChange, true, "", "", nil, func() map[string]string {
		return map[string]string{"op": "create", "rule_id": rule.RuleID, "rule_name": rule.Name}
	})
	return rule, nil
}

// UpdateRule replaces an existing rule wholesale. The rule takes effect
// on the next login attempt; in-flight evaluations keep their snapshot.
func (e *Engine) UpdateRule(ctx context.Context, rule PolicyRule) (PolicyRule, error) {
	if e == nil || e.rules == nil {
		return PolicyRule{}, ErrEngineNotReady
	}
	if err := ValidateRule(rule); err != nil {
		return PolicyRule{}, err
	}

	if _, err := e.rules.Get(ctx, rule.RuleID); err != nil {
		if errors.Is(err, stores.ErrRuleRecordNotFound) {
			return PolicyRule{}, ErrRuleNotFound
		}
		return PolicyRule{}, ErrBackendUnavailable
	}

	record, err := ruleToRecord(rule)
	if err != nil {
		return PolicyRule{}, err
	}
	if err := e.rules.Save(ctx, record); err != nil {
		return PolicyRule{}, ErrBackendUnavailable
	}

	e.emitAudit(ctx, auditEventRuleChange, true, "", "", nil, func() map[string]string {
		return map[string]string{"op": "update", "rule_id": rule.RuleID, "rule_name": rule.Name}
	})
	return rule, nil
}

// DeleteRule removes a rule. Deleting an absent rule returns ErrRuleNotFound.
func (e *Engine) DeleteRule(ctx context.Context, ruleID string) error {
	if e == nil || e.rules == nil {
		return ErrEngineNotReady
	}

	existed, err := e.rules.Delete(ctx, ruleID)
	if err != nil {
		return ErrBackendUnavailable
	}
	if !existed {
		return ErrRuleNotFound
	}

	e.emitAudit(ctx, auditEventRuleChange, true, "", "", nil, func() map[string]string {
		return map[string]string{"op": "delete", "rule_id": ruleID}
	})
	return nil
}

// GetRule fetches one rule by ID.
func (e *Engine) GetRule(ctx context.Context, ruleID string) (PolicyRule, error) {
	if e == nil || e.rules == nil {
		return PolicyRule{}, ErrEngineNotReady
	}

	record, err := e.rules.Get(ctx, ruleID)
	if err != nil {
		if errors.Is(err, stores.ErrRuleRecordNotFound) {
			return PolicyRule{}, ErrRuleNotFound
		}
		return PolicyRule{}, ErrBackendUnavailable
	}
	return ruleFromRecord(record)
}

// ListRules returns every stored rule, active or not.
func (e *Engine) ListRules(ctx context.Context) ([]PolicyRule, error) {
	if e == nil || e.rules == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.rules.List(ctx)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	rules := make([]PolicyRule, 0, len(records))
	for _, record := range records {
		rule, err := ruleFromRecord(record)
		if err != nil {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ListRiskEvents returns up to limit events, newest first. A
// non-positive limit uses Config.Events.DefaultListLimit.
func (e *Engine) ListRiskEvents(ctx context.Context, limit int) ([]RiskEvent, error) {
	if e == nil || e.events == nil {
		return nil, ErrEngineNotReady
	}
	if limit <= 0 {
		limit = e.config.Events.DefaultListLimit
	}

	records, err := e.events.List(ctx, limit)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	events := make([]RiskEvent, 0, len(records))
	for _, record := range records {
		events = append(events, riskEventFromRecord(record))
	}
	return events, nil
}

// ListRiskEventsForIdentity returns up to limit events recorded against
// one identity, newest first. The retained window is scanned in full;
// the limit caps the result, not the scan.
func (e *Engine) ListRiskEventsForIdentity(ctx context.Context, identityID string, limit int) ([]RiskEvent, error) {
	if e == nil || e.events == nil {
		return nil, ErrEngineNotReady
	}
	if limit <= 0 {
		limit = e.config.Events.DefaultListLimit
	}

	records, err := e.events.List(ctx, 0)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	events := make([]RiskEvent, 0, limit)
	for _, record := range records {
		if record.IdentityID != identityID {
			continue
		}
		events = append(events, riskEventFromRecord(record))
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

// GetRiskEvent fetches one event by ID.
func (e *Engine) GetRiskEvent(ctx context.Context, eventID string) (RiskEvent, error) {
	if e == nil || e.events == nil {
		return RiskEvent{}, ErrEngineNotReady
	}

	record, err := e.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, stores.ErrRiskEventNotFound) {
			return RiskEvent{}, ErrEventNotFound
		}
		return RiskEvent{}, ErrBackendUnavailable
	}
	return riskEventFromRecord(record), nil
}

// SetInvestigationStatus moves an event's triage state. Every other
// event field is append-only and never changes.
func (e *Engine) SetInvestigationStatus(ctx context.Context, eventID string, status InvestigationStatus) (RiskEvent, error) {
	if e == nil || e.events == nil {
		return RiskEvent{}, ErrEngineNotReady
	}
	if !validInvestigationStatus(status) {
		return RiskEvent{}, ErrInvestigationStatusInvalid
	}

	record, err := e.events.SetStatus(ctx, eventID, string(status))
	if err != nil {
		if errors.Is(err, stores.ErrRiskEventNotFound) {
			return RiskEvent{}, ErrEventNotFound
		}
		return RiskEvent{}, ErrBackendUnavailable
	}
	return riskEventFromRecord(record), nil
}

func ruleToRecord(rule PolicyRule) (*stores.RuleRecord, error) {
	fieldName, err := ruleFieldName(rule.Field)
	if err != nil {
		return nil, err
	}
	opName, err := ruleOpName(rule.Op)
	if err != nil {
		return nil, err
	}

	return &stores.RuleRecord{
		RuleID:     rule.RuleID,
		Name:       rule.Name,
		Field:      fieldName,
		Op:         opName,
		Value:      rule.Value,
		Action:     string(rule.Action),
		Likelihood: rule.Likelihood,
		Impact:     rule.Impact,
		Active:     rule.Active,
	}, nil
}

func ruleFromRecord(record *stores.RuleRecord) (PolicyRule, error) {
	field, err := parseRuleField(record.Field)
	if err != nil {
		return PolicyRule{}, err
	}
	op, err := parseRuleOp(record.Op)
	if err != nil {
		return PolicyRule{}, err
	}

	return PolicyRule{
		RuleID:     record.RuleID,
		Name:       record.Name,
		Field:      field,
		Op:         op,
		Value:      record.Value,
		Action:     RuleAction(record.Action),
		Likelihood: record.Likelihood,
		Impact:     record.Impact,
		Active:     record.Active,
	}, nil
}

func riskEventToRecord(event *RiskEvent) *stores.RiskEventRecord {
	detail := ""
	if len(event.Detail) > 0 {
		if encoded, err := json.Marshal(event.Detail); err == nil {
			detail = string(encoded)
		}
	}

	return &stores.RiskEventRecord{
		EventID:             event.EventID,
		IdentityID:          event.IdentityID,
		Username:            event.Username,
		Origin:              event.Origin,
		Action:              event.Action,
		Outcome:             event.Outcome,
		RiskScore:           event.RiskScore,
		Likelihood:          event.Likelihood,
		Impact:              event.Impact,
		Detail:              detail,
		CreatedAt:           event.CreatedAt.Unix(),
		InvestigationStatus: string(event.InvestigationStatus),
	}
}

func riskEventFromRecord(record *stores.RiskEventRecord) RiskEvent {
	var detail map[string]string
	if record.Detail != "" {
		_ = json.Unmarshal([]byte(record.Detail), &detail)
	}

	return RiskEvent{
		EventID:             record.EventID,
		IdentityID:          record.IdentityID,
		Username:            record.Username,
		Origin:              record.Origin,
		Action:              record.Action,
		Outcome:             record.Outcome,
		RiskScore:           record.RiskScore,
		Likelihood:          record.Likelihood,
		Impact:              record.Impact,
		Detail:              detail,
		CreatedAt:           time.Unix(record.CreatedAt, 0).UTC(),
		InvestigationStatus: InvestigationStatus(record.InvestigationStatus),
	}
}
