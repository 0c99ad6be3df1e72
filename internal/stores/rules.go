package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRuleRecordNotFound = errors.New("rule record not found")
	ErrRuleBackend        = errors.New("rule backend unavailable")
)

// RuleRecord is the persisted form of a policy rule. Field, Op and
// Action hold the wire names; interpretation happens in the engine.
type RuleRecord struct {
	RuleID     string `json:"rule_id"`
	Name       string `json:"name"`
	Field      string `json:"field"`
	Op         string `json:"op"`
	Value      string `json:"value"`
	Action     string `json:"action"`
	Likelihood int    `json:"likelihood"`
	Impact     int    `json:"impact"`
	Active     bool   `json:"active"`
}

// RuleStore keeps policy rules as JSON blobs plus an index set. Rules
// are few and read on every login, so the simple full-scan List is fine.
type RuleStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRuleStore(redisClient redis.UniversalClient, prefix string) *RuleStore {
	if prefix == "" {
		prefix = "pr"
	}
	return &RuleStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RuleStore) key(ruleID string) string {
	return s.prefix + ":" + ruleID
}

func (s *RuleStore) indexKey() string {
	return s.prefix + "i"
}

func (s *RuleStore) Save(ctx context.Context, record *RuleRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(record.RuleID), encoded, 0)
		pipe.SAdd(ctx, s.indexKey(), record.RuleID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuleBackend, err)
	}
	return nil
}

func (s *RuleStore) Get(ctx context.Context, ruleID string) (*RuleRecord, error) {
	data, err := s.redis.Get(ctx, s.key(ruleID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRuleRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRuleBackend, err)
	}

	record := &RuleRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes a rule and reports whether it existed.
func (s *RuleStore) Delete(ctx context.Context, ruleID string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(ruleID))
		pipe.SRem(ctx, s.indexKey(), ruleID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRuleBackend, err)
	}
	return del.Val() > 0, nil
}

func (s *RuleStore) List(ctx context.Context) ([]*RuleRecord, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleBackend, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRuleBackend, err)
	}

	records := make([]*RuleRecord, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				_, _ = s.redis.SRem(ctx, s.indexKey(), ids[i]).Result()
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRuleBackend, err)
		}
		record := &RuleRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
