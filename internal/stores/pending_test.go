package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testChallenge() *PendingChallenge {
	return &PendingChallenge{
		IdentityID:  "id-1",
		Origin:      "203.0.113.9",
		Client:      "cli/1.0",
		Latitude:    52.52,
		Longitude:   13.405,
		HasLocation: true,
		ExpiresAt:   time.Now().Add(5 * time.Minute).Unix(),
	}
}

func TestPendingChallengeRoundTrip(t *testing.T) {
	store := NewPendingChallengeStore(newTestRedis(t), "pc")
	ctx := context.Background()

	want := testChallenge()
	want.FirstTimeSetup = true
	if err := store.Save(ctx, "c-1", want, 5*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != *want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestPendingChallengeMissing(t *testing.T) {
	store := NewPendingChallengeStore(newTestRedis(t), "pc")
	ctx := context.Background()

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrPendingChallengeNotFound) {
		t.Fatalf("get = %v, want ErrPendingChallengeNotFound", err)
	}
	if _, err := store.RecordFailure(ctx, "nope", 5); !errors.Is(err, ErrPendingChallengeNotFound) {
		t.Fatalf("record failure = %v, want ErrPendingChallengeNotFound", err)
	}
}

func TestPendingChallengeExpiredOnRead(t *testing.T) {
	store := NewPendingChallengeStore(newTestRedis(t), "pc")
	ctx := context.Background()

	record := testChallenge()
	record.ExpiresAt = time.Now().Add(-time.Second).Unix()
	if err := store.Save(ctx, "c-1", record, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Get(ctx, "c-1"); !errors.Is(err, ErrPendingChallengeExpired) {
		t.Fatalf("get = %v, want ErrPendingChallengeExpired", err)
	}

	// The expired record was purged, not left behind.
	if _, err := store.Get(ctx, "c-1"); !errors.Is(err, ErrPendingChallengeNotFound) {
		t.Fatalf("second get = %v, want ErrPendingChallengeNotFound", err)
	}
}

func TestPendingChallengeDeleteOwnership(t *testing.T) {
	store := NewPendingChallengeStore(newTestRedis(t), "pc")
	ctx := context.Background()

	if err := store.Save(ctx, "c-1", testChallenge(), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	consumed, err := store.Delete(ctx, "c-1")
	if err != nil || !consumed {
		t.Fatalf("first delete = (%v, %v), want (true, nil)", consumed, err)
	}
	consumed, err = store.Delete(ctx, "c-1")
	if err != nil || consumed {
		t.Fatalf("second delete = (%v, %v), want (false, nil)", consumed, err)
	}
}

func TestPendingChallengeAttemptBudget(t *testing.T) {
	store := NewPendingChallengeStore(newTestRedis(t), "pc")
	ctx := context.Background()
	const maxAttempts = 3

	if err := store.Save(ctx, "c-1", testChallenge(), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	for i := 1; i < maxAttempts; i++ {
		exceeded, err := store.RecordFailure(ctx, "c-1", maxAttempts)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if exceeded {
			t.Fatalf("attempt %d exceeded early", i)
		}

		record, err := store.Get(ctx, "c-1")
		if err != nil {
			t.Fatalf("get after attempt %d: %v", i, err)
		}
		if int(record.Attempts) != i {
			t.Fatalf("attempts = %d, want %d", record.Attempts, i)
		}
	}

	exceeded, err := store.RecordFailure(ctx, "c-1", maxAttempts)
	if err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if !exceeded {
		t.Fatal("final attempt must exhaust the budget")
	}

	// Exhaustion deletes the challenge.
	if _, err := store.Get(ctx, "c-1"); !errors.Is(err, ErrPendingChallengeNotFound) {
		t.Fatalf("get after exhaustion = %v, want ErrPendingChallengeNotFound", err)
	}
}

func TestDecodePendingChallengeRejectsBadVersion(t *testing.T) {
	record := testChallenge()
	encoded, err := encodePendingChallenge(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	encoded[0] = 99
	if _, err := decodePendingChallenge(encoded); err == nil {
		t.Fatal("expected version error")
	}
}

func TestDecodePendingChallengeTruncated(t *testing.T) {
	record := testChallenge()
	encoded, err := encodePendingChallenge(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for n := 0; n < len(encoded); n++ {
		if _, err := decodePendingChallenge(encoded[:n]); err == nil {
			t.Fatalf("prefix of %d bytes decoded without error", n)
		}
	}
}
