package riskgate

import (
	"context"
	"errors"
	"time"

	"github.com/velkorin/riskgate/internal/rate"
	"github.com/velkorin/riskgate/internal/stores"
	"github.com/velkorin/riskgate/jwt"
	"github.com/velkorin/riskgate/session"
)

// Engine is the risk-adaptive authentication gateway. Build one with
// [Builder] during initialization and treat it as immutable afterwards;
// every method is safe for concurrent use.
type Engine struct {
	config *Config

	identities IdentityProvider
	locations  LocationProvider
	captcha    CaptchaVerifier
	passwords  PasswordVerifier

	bindings *session.Store
	pending  *stores.PendingChallengeStore
	bans     *stores.OriginBanStore
	rules    *stores.RuleStore
	events   *stores.RiskEventStore
	guard    *rate.Guard

	tokens   *jwt.Manager
	totp     *totpManager
	audit    *auditDispatcher
	metrics  *Metrics
	notifier Notifier
}

// Close drains and stops the audit dispatcher. The engine must not be
// used after Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the count of audit events discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters and histograms for export.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Validate authorizes one protected call. The access token signature and
// claims are checked first, then the session binding it names must still
// exist; a revoked binding invalidates the credential immediately
// regardless of remaining token lifetime. Validation refreshes the
// binding's last-activity watermark.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.tokens == nil || e.bindings == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.Enabled() {
		start := time.Now()
		defer e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != jwt.PurposeAccess || claims.BindingID == "" {
		return nil, ErrTokenInvalid
	}

	b, err := e.bindings.Touch(ctx, claims.BindingID, time.Now().Unix())
	if err != nil {
		if errors.Is(err, session.ErrBindingNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, ErrBackendUnavailable
	}
	if b.IdentityID != claims.Subject {
		return nil, ErrSessionNotFound
	}

	return &AuthResult{
		IdentityID: b.IdentityID,
		Username:   b.Username,
		Role:       Role(b.Role),
		BindingID:  b.BindingID,
	}, nil
}

// Logout revokes the session binding named by the access token. Revoking
// an already absent binding returns [ErrSessionNotFound].
func (e *Engine) Logout(ctx context.Context, tokenStr string) error {
	if e == nil || e.tokens == nil || e.bindings == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil || claims.Purpose != jwt.PurposeAccess || claims.BindingID == "" {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	existed, err := e.bindings.Delete(ctx, claims.BindingID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, claims.Subject, claims.BindingID, ErrBackendUnavailable, nil)
		return ErrBackendUnavailable
	}
	if !existed {
		e.emitAudit(ctx, auditEventLogoutSession, false, claims.Subject, claims.BindingID, ErrSessionNotFound, nil)
		return ErrSessionNotFound
	}

	e.metricInc(MetricLogout)
	e.notifier.NotifyAdmins(Notification{Type: NotificationSessionUpdate})
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.Subject, claims.BindingID, nil, nil)
	return nil
}

// Ping reports storage backend reachability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.bindings == nil {
		return 0, ErrEngineNotReady
	}
	return e.bindings.Ping(ctx)
}

func bindingInfo(b *session.Binding) BindingInfo {
	return BindingInfo{
		BindingID:      b.BindingID,
		IdentityID:     b.IdentityID,
		Username:       b.Username,
		Role:           Role(b.Role),
		Origin:         b.Origin,
		Client:         b.Client,
		CreatedAt:      time.Unix(b.CreatedAt, 0).UTC(),
		LastActivityAt: time.Unix(b.LastActivityAt, 0).UTC(),
	}
}
