package riskgate

import (
	"errors"
	"testing"
)

// secondFactorAlice is enrolled and logs in from an untrusted origin, so
// every login escalates to the pending-token exchange.
func secondFactorAlice() IdentityRecord {
	alice := trustedAlice()
	alice.LastOrigin = ""
	alice.LastClient = ""
	alice.SecondFactorEnabled = true
	alice.SecondFactorSecret = []byte("12345678901234567890")
	return alice
}

func pendingLogin(t *testing.T, f *engineFixture) *LoginResult {
	t.Helper()
	ctx := requestCtx("203.0.113.9", "cli/1.0")
	result, err := f.engine.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !result.SecondFactorRequired || result.PendingToken == "" {
		t.Fatalf("expected pending escalation: %+v", result)
	}
	return result
}

func TestVerifySecondFactorSuccess(t *testing.T) {
	f := newTestEngine(t, fixtureOptions{})
	f.seedIdentity(secondFactorAlice())
	ctx := requestCtx("203.0.113.9", "cli/1.0")

	pending := pendingLogin(t, f)
	code := currentCode(t, []byte("12345678901234567890"))

	result, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.AccessToken == "" || result.BindingID == "" {
		t.Fatalf("expected full credential: %+v", result)
	}

	auth, err := f.engine.Validate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("validate issued credential: %v", err)
	}
	if auth.IdentityID != "id-alice" {
		t.Fatalf("unexpected identity: %+v", auth)
	}
}

func TestVerifySecondFactorTokenIsSingleUse(t *testing.T) {
	f := newTestEngine(t, fixtureOptions{})
	f.seedIdentity(secondFactorAlice())
	ctx := requestCtx("203.0.113.9", "cli/1.0")

	pending := pendingLogin(t, f)
	code := currentCode(t, []byte("12345678901234567890"))

	if _, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, code); err != nil {
		t.Fatalf("first exchange: %v", err)
	}

	// The challenge was consumed; the same token buys nothing twice.
	if _, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, code); !errors.Is(err, ErrInvalidPendingToken) {
		t.Fatalf("second exchange = %v, want ErrInvalidPendingToken", err)
	}
}

func TestVerifySecondFactorBadCodeAndAttemptBudget(t *testing.T) {
	f := newTestEngine(t, fixtureOptions{})
	f.seedIdentity(secondFactorAlice())
	ctx := requestCtx("203.0.113.9", "cli/1.0")

	pending := pendingLogin(t, f)

	// Failures below the budget report a bad code.
	for i := 0; i < f.engine.config.Pending.MaxAttempts-1; i++ {
		if _, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, "000000"); !errors.Is(err, ErrInvalidSecondFactorCode) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidSecondFactorCode", i+1, err)
		}
	}

	// The final failure burns the challenge.
	if _, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, "000000"); !errors.Is(err, ErrSecondFactorAttemptsExceeded) {
		t.Fatalf("final attempt = %v, want ErrSecondFactorAttemptsExceeded", err)
	}

	// Even the right code cannot revive it.
	code := currentCode(t, []byte("12345678901234567890"))
	if _, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, code); !errors.Is(err, ErrInvalidPendingToken) {
		t.Fatalf("post-burn exchange = %v, want ErrInvalidPendingToken", err)
	}
}

func TestVerifySecondFactorGarbageToken(t *testing.T) {
	f := newTestEngine(t, fixtureOptions{})
	ctx := requestCtx("203.0.113.9", "cli/1.0")

	if _, err := f.engine.VerifySecondFactor(ctx, "garbage", "123456"); !errors.Is(err, ErrInvalidPendingToken) {
		t.Fatalf("err = %v, want ErrInvalidPendingToken", err)
	}
}

func TestVerifySecondFactorAccessTokenRejected(t *testing.T) {
	f := newTestEngine(t, fixtureOptions{})
	f.seedIdentity(trustedAlice())
	ctx := requestCtx("203.0.113.9", "cli/1.0")

	login, err := f.engine.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := f.engine.VerifySecondFactor(ctx, login.AccessToken, "123456"); !errors.Is(err, ErrInvalidPendingToken) {
		t.Fatalf("access token on verify = %v, want ErrInvalidPendingToken", err)
	}
}

func TestVerifySecondFactorLockWinsMidChallenge(t *testing.T) {
	f := newTestEngine(t, fixtureOptions{})
	f.seedIdentity(secondFactorAlice())
	ctx := requestCtx("203.0.113.9", "cli/1.0")

	pending := pendingLogin(t, f)

	if err := f.engine.LockIdentity(ctx, "id-alice", "admin-1"); err != nil {
		t.Fatalf("lock: %v", err)
	}

	code := currentCode(t, []byte("12345678901234567890"))
	if _, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, code); !errors.Is(err, ErrIdentityLocked) {
		t.Fatalf("err = %v, want ErrIdentityLocked", err)
	}
}

func TestVerifySecondFactorNotProvisioned(t *testing.T) {
	f := newTestEngine(t, fixtureOptions{})
	alice := secondFactorAlice()
	alice.SecondFactorEnabled = false
	alice.SecondFactorSecret = nil
	f.seedIdentity(alice)
	ctx := requestCtx("203.0.113.9", "cli/1.0")

	pending := pendingLogin(t, f)
	if _, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, "123456"); !errors.Is(err, ErrSecondFactorNotProvisioned) {
		t.Fatalf("err = %v, want ErrSecondFactorNotProvisioned", err)
	}
}

func TestFirstTimeSetupProvisionAndEnable(t *testing.T) {
	f := newTestEngine(t, fixtureOptions{})
	alice := secondFactorAlice()
	alice.SecondFactorEnabled = false
	alice.SecondFactorSecret = nil
	f.seedIdentity(alice)
	ctx := requestCtx("203.0.113.9", "cli/1.0")

	pending := pendingLogin(t, f)

	setup, err := f.engine.ProvisionSecondFactor(ctx, pending.PendingToken)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if setup.SecretBase32 == "" || setup.ProvisionURI == "" {
		t.Fatalf("incomplete setup material: %+v", setup)
	}

	secret := f.ids.get("id-alice").SecondFactorSecret
	if len(secret) == 0 {
		t.Fatal("secret not stored")
	}

	code := currentCode(t, secret)
	result, err := f.engine.VerifySecondFactor(ctx, pending.PendingToken, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatalf("expected credential: %+v", result)
	}

	// The first successful exchange flips enrollment on.
	if !f.ids.get("id-alice").SecondFactorEnabled {
		t.Fatal("first-time setup must enable the second factor")
	}

	// Re-provisioning an enrolled identity is rejected, even from a live
	// session.
	if _, err := f.engine.ProvisionSecondFactor(ctx, result.AccessToken); !errors.Is(err, ErrSecondFactorAlreadyEnabled) {
		t.Fatalf("re-provision = %v, want ErrSecondFactorAlreadyEnabled", err)
	}
}
