package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestAccessTokenRoundTrip(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateAccess("id-1", "alice", "admin", "b-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Purpose != PurposeAccess {
		t.Fatalf("purpose = %q, want %q", claims.Purpose, PurposeAccess)
	}
	if claims.Subject != "id-1" || claims.Username != "alice" || claims.Role != "admin" || claims.BindingID != "b-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ChallengeID != "" {
		t.Fatalf("access token must not carry a challenge ID, got %q", claims.ChallengeID)
	}
}

func TestPendingTokenCarriesChallengeNotBinding(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreatePending("id-2", "bob", "c-9", 5*time.Minute)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Purpose != PurposeSecondFactor {
		t.Fatalf("purpose = %q, want %q", claims.Purpose, PurposeSecondFactor)
	}
	if claims.ChallengeID != "c-9" {
		t.Fatalf("challenge ID = %q, want c-9", claims.ChallengeID)
	}
	if claims.BindingID != "" {
		t.Fatalf("pending token must not carry a binding ID, got %q", claims.BindingID)
	}

	if _, err := m.CreatePending("id-2", "bob", "c-9", 0); err == nil {
		t.Fatal("expected non-positive pending TTL to be rejected")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Purpose: PurposeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "id-1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "riskgate",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.CreateAccess("id-1", "alice", "user", "b-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.Parse(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(reg gjwt.RegisteredClaims) string {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, Claims{Purpose: PurposeAccess, RegisteredClaims: reg})
		signed, err := tok.SignedString(priv)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return signed
	}

	badIssuer := sign(gjwt.RegisteredClaims{
		Subject:   "id-1",
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	})
	if _, err := m.Parse(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	badAudience := sign(gjwt.RegisteredClaims{
		Subject:   "id-1",
		Issuer:    "riskgate",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	})
	if _, err := m.Parse(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	withinLeeway := sign(gjwt.RegisteredClaims{
		Subject:   "id-1",
		Issuer:    "riskgate",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	if _, err := m.Parse(withinLeeway); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := sign(gjwt.RegisteredClaims{
		Subject:   "id-1",
		Issuer:    "riskgate",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	})
	if _, err := m.Parse(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	_, priv2 := newEdKeys(t)

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Purpose: PurposeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "id-1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	forged, err := tok.SignedString(priv2)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(forged); err == nil {
		t.Fatal("expected token signed with a foreign key to fail")
	}
}

func TestNewManagerValidation(t *testing.T) {
	_, priv := newEdKeys(t)

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero TTL", Config{SigningMethod: MethodEd25519, PrivateKey: priv}},
		{"negative leeway", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, Leeway: -time.Second}},
		{"excessive leeway", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, Leeway: 5 * time.Minute}},
		{"hs256 without key", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}},
		{"bad ed25519 key", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: []byte("short")}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs4096", PrivateKey: priv}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected config rejection")
			}
		})
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("a-shared-hmac-secret-of-decent-length"),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateAccess("id-3", "carol", "user", "b-3")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "id-3" || claims.BindingID != "b-3" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
