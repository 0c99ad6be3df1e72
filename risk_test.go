package riskgate

import "testing"

func TestRiskTallyBaseline(t *testing.T) {
	tally := NewRiskTally()
	if tally.Likelihood != 1 || tally.Impact != 1 {
		t.Fatalf("baseline = (%d,%d), want (1,1)", tally.Likelihood, tally.Impact)
	}
	if tally.Score() != 1 {
		t.Fatalf("baseline score = %d, want 1", tally.Score())
	}
}

func TestRiskTallyHighWatermark(t *testing.T) {
	tally := NewRiskTally()
	tally.Raise(3, 2)
	tally.Raise(2, 4)

	// Watermark per axis, never a sum.
	if tally.Likelihood != 3 || tally.Impact != 4 {
		t.Fatalf("tally = (%d,%d), want (3,4)", tally.Likelihood, tally.Impact)
	}

	tally.Raise(1, 1)
	if tally.Likelihood != 3 || tally.Impact != 4 {
		t.Fatalf("lower raise must not reduce the tally: (%d,%d)", tally.Likelihood, tally.Impact)
	}
}

func TestRiskTallyScore(t *testing.T) {
	tally := NewRiskTally()
	tally.Raise(5, 5)
	if tally.Score() != 25 {
		t.Fatalf("score = %d, want 25", tally.Score())
	}
}

func TestIsTrustedDevice(t *testing.T) {
	identity := IdentityRecord{
		LastOrigin: "203.0.113.9",
		LastClient: "cli/1.0",
	}

	cases := []struct {
		name            string
		origin, client  string
		locationChanged bool
		ruleForcedMFA   bool
		want            bool
	}{
		{"full match", "203.0.113.9", "cli/1.0", false, false, true},
		{"origin mismatch", "198.51.100.4", "cli/1.0", false, false, false},
		{"client mismatch", "203.0.113.9", "browser/2.0", false, false, false},
		{"location changed", "203.0.113.9", "cli/1.0", true, false, false},
		{"rule forced mfa", "203.0.113.9", "cli/1.0", false, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsTrustedDevice(identity, tc.origin, tc.client, tc.locationChanged, tc.ruleForcedMFA)
			if got != tc.want {
				t.Fatalf("trusted = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsTrustedDeviceNoHistory(t *testing.T) {
	// A first-ever login has no stored context and is never trusted.
	if IsTrustedDevice(IdentityRecord{}, "203.0.113.9", "cli/1.0", false, false) {
		t.Fatal("identity without login history must not be trusted")
	}
}
