package stores

import (
	"context"
	"errors"
	"testing"
)

func testRule(id string) *RuleRecord {
	return &RuleRecord{
		RuleID:     id,
		Name:       "block-known-bad",
		Field:      "origin",
		Op:         "EQUALS",
		Value:      "203.0.113.9",
		Action:     "BLOCK",
		Likelihood: 4,
		Impact:     4,
		Active:     true,
	}
}

func TestRuleSaveGetDelete(t *testing.T) {
	store := NewRuleStore(newTestRedis(t), "pr")
	ctx := context.Background()

	want := testRule("r-1")
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "r-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != *want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	// Save is an upsert.
	want.Active = false
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = store.Get(ctx, "r-1")
	if err != nil || got.Active {
		t.Fatalf("upsert lost the change: (%+v, %v)", got, err)
	}

	existed, err := store.Delete(ctx, "r-1")
	if err != nil || !existed {
		t.Fatalf("delete = (%v, %v), want (true, nil)", existed, err)
	}
	existed, err = store.Delete(ctx, "r-1")
	if err != nil || existed {
		t.Fatalf("second delete = (%v, %v), want (false, nil)", existed, err)
	}
	if _, err := store.Get(ctx, "r-1"); !errors.Is(err, ErrRuleRecordNotFound) {
		t.Fatalf("get after delete = %v, want ErrRuleRecordNotFound", err)
	}
}

func TestRuleList(t *testing.T) {
	store := NewRuleStore(newTestRedis(t), "pr")
	ctx := context.Background()

	for _, id := range []string{"r-1", "r-2", "r-3"} {
		if err := store.Save(ctx, testRule(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	rules, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("list = %d rules, want 3", len(rules))
	}
}

func TestRuleListSelfHeals(t *testing.T) {
	client := newTestRedis(t)
	store := NewRuleStore(client, "pr")
	ctx := context.Background()

	if err := store.Save(ctx, testRule("r-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, testRule("r-2")); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Orphan one index entry.
	if err := client.Del(ctx, "pr:r-1").Err(); err != nil {
		t.Fatalf("del blob: %v", err)
	}

	rules, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 || rules[0].RuleID != "r-2" {
		t.Fatalf("list = %+v, want only r-2", rules)
	}

	n, err := client.SCard(ctx, "pri").Result()
	if err != nil || n != 1 {
		t.Fatalf("index cardinality = (%d, %v), want (1, nil)", n, err)
	}
}
