package riskgate

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkValidate(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	ctx := requestCtx("203.0.113.9", "cli/1.0")
	result, err := engine.Login(ctx, "alice", "correct-horse")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Validate(ctx, result.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkLogin(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	ctx := requestCtx("203.0.113.9", "cli/1.0")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := engine.Login(ctx, "alice", "correct-horse")
		if err != nil {
			b.Fatalf("login failed: %v", err)
		}
		_ = engine.Logout(ctx, result.AccessToken)
	}
}

func BenchmarkEvaluateRules(b *testing.B) {
	rules := []PolicyRule{
		activeRule("night", FieldHourOfDay, OpLessThan, "6", ActionAlert, 2, 2),
		activeRule("bad-origin", FieldOrigin, OpEquals, "198.51.100.4", ActionBlock, 4, 4),
		activeRule("cli", FieldClient, OpContains, "bot", ActionRequireMFA, 3, 2),
		activeRule("geo", FieldCountry, OpEquals, "ZZ", ActionBlock, 5, 5),
	}
	rctx := RuleContext{
		Origin:  "203.0.113.9",
		Country: "DE",
		Client:  "cli/1.0",
		Hour:    14,
		HasHour: true,
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = EvaluateRules(rules, rctx)
	}
}

func newBenchmarkEngine(tb testing.TB) (*Engine, func()) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("bench-hmac-secret-of-decent-size")
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false

	ids := newMemIdentities()
	ids.put(IdentityRecord{
		IdentityID:          "id-alice",
		Username:            "alice",
		PasswordHash:        "correct-horse",
		Role:                RoleStandard,
		SecondFactorEnabled: true,
		SecondFactorSecret:  []byte("12345678901234567890"),
		LastOrigin:          "203.0.113.9",
		LastClient:          "cli/1.0",
		LastAuthenticatedAt: time.Now().Unix(),
	})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(ids).
		WithPasswordVerifier(plainVerifier{}).
		Build()
	if err != nil {
		tb.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}