package riskgate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/velkorin/riskgate/internal/rate"
	"github.com/velkorin/riskgate/internal/stores"
	"github.com/velkorin/riskgate/jwt"
	"github.com/velkorin/riskgate/password"
	"github.com/velkorin/riskgate/session"
)

// Builder assembles an [Engine]. Chain the With* setters, then call
// Build exactly once. A Builder is not safe for concurrent use.
type Builder struct {
	config *Config
	redis  redis.UniversalClient

	identities IdentityProvider
	locations  LocationProvider
	captcha    CaptchaVerifier
	passwords  PasswordVerifier
	notifier   Notifier
	auditSink  AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg *Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing bindings, challenges, bans,
// rules, events, and failure counters. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider sets the durable identity store. Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identities = p
	return b
}

// WithLocationProvider sets the origin geolocation resolver. Optional;
// without one every attempt carries no geographic signal.
func (b *Builder) WithLocationProvider(p LocationProvider) *Builder {
	b.locations = p
	return b
}

// WithCaptchaVerifier sets the third-party CAPTCHA verifier. Optional;
// without one the Config.Captcha.OnUnavailable policy governs gated
// attempts.
func (b *Builder) WithCaptchaVerifier(v CaptchaVerifier) *Builder {
	b.captcha = v
	return b
}

// WithPasswordVerifier overrides the default argon2id credential check.
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.passwords = v
	return b
}

// WithNotifier sets the live notification channel. Optional; defaults to
// dropping every notification.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the atomic metric set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles validation latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every store and manager, and
// returns the ready engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity provider required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		identities: b.identities,
		locations:  b.locations,
		captcha:    b.captcha,
		notifier:   b.notifier,
	}
	if engine.notifier == nil {
		engine.notifier = NoOpNotifier{}
	}

	engine.bindings = session.NewStore(b.redis, cfg.Session.KeyPrefix, cfg.Session.TTL)
	engine.pending = stores.NewPendingChallengeStore(b.redis, "")
	engine.bans = stores.NewOriginBanStore(b.redis, "")
	engine.rules = stores.NewRuleStore(b.redis, "")
	engine.events = stores.NewRiskEventStore(b.redis, "", cfg.Events.MaxStored)
	engine.guard = rate.New(b.redis, rate.Config{
		CaptchaThreshold: cfg.BruteForce.CaptchaThreshold,
		CounterTTL:       cfg.BruteForce.CounterTTL,
	})

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	engine.passwords = b.passwords
	if engine.passwords == nil {
		ph, err := password.NewArgon2(password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		})
		if err != nil {
			return nil, err
		}
		engine.passwords = ph
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	b.built = true

	return engine, nil
}
