package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRiskEventNotFound = errors.New("risk event not found")
	ErrRiskEventBackend  = errors.New("risk event backend unavailable")
)

// RiskEventRecord is the persisted form of an audit-trail risk event.
// Every field except InvestigationStatus is immutable after Append.
type RiskEventRecord struct {
	EventID             string `json:"event_id"`
	IdentityID          string `json:"identity_id"`
	Username            string `json:"username"`
	Origin              string `json:"origin"`
	Action              string `json:"action"`
	Outcome             string `json:"outcome"`
	RiskScore           int    `json:"risk_score"`
	Likelihood          int    `json:"likelihood"`
	Impact              int    `json:"impact"`
	Detail              string `json:"detail"`
	CreatedAt           int64  `json:"created_at"`
	InvestigationStatus string `json:"investigation_status"`
}

// RiskEventStore keeps events as JSON blobs plus a newest-first list
// capped at maxStored entries. Evicted blobs are deleted best-effort.
type RiskEventStore struct {
	redis     redis.UniversalClient
	prefix    string
	maxStored int
}

func NewRiskEventStore(redisClient redis.UniversalClient, prefix string, maxStored int) *RiskEventStore {
	if prefix == "" {
		prefix = "re"
	}
	if maxStored <= 0 {
		maxStored = 1000
	}
	return &RiskEventStore{
		redis:     redisClient,
		prefix:    prefix,
		maxStored: maxStored,
	}
}

func (s *RiskEventStore) key(eventID string) string {
	return s.prefix + ":" + eventID
}

func (s *RiskEventStore) listKey() string {
	return s.prefix + "l"
}

func (s *RiskEventStore) Append(ctx context.Context, record *RiskEventRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(record.EventID), encoded, 0)
		pipe.LPush(ctx, s.listKey(), record.EventID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRiskEventBackend, err)
	}
	s.evict(ctx)
	return nil
}

// evict pops list entries past the cap and drops their blobs. Failures
// here only delay reclamation; the next Append retries.
func (s *RiskEventStore) evict(ctx context.Context) {
	for {
		length, err := s.redis.LLen(ctx, s.listKey()).Result()
		if err != nil || length <= int64(s.maxStored) {
			return
		}
		evicted, err := s.redis.RPop(ctx, s.listKey()).Result()
		if err != nil {
			return
		}
		_, _ = s.redis.Del(ctx, s.key(evicted)).Result()
	}
}

func (s *RiskEventStore) Get(ctx context.Context, eventID string) (*RiskEventRecord, error) {
	data, err := s.redis.Get(ctx, s.key(eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRiskEventNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRiskEventBackend, err)
	}

	record := &RiskEventRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, err
	}
	return record, nil
}

// List returns up to limit events, newest first.
func (s *RiskEventStore) List(ctx context.Context, limit int) ([]*RiskEventRecord, error) {
	if limit <= 0 {
		limit = s.maxStored
	}
	ids, err := s.redis.LRange(ctx, s.listKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRiskEventBackend, err)
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
		return nil, fmt.Errorf("%w: %v", ErrRiskEventBackend, err)
	}

	records := make([]*RiskEventRecord, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRiskEventBackend, err)
		}
		record := &RiskEventRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// SetStatus updates the investigation status under an optimistic
// transaction. All other event fields stay frozen.
func (s *RiskEventStore) SetStatus(ctx context.Context, eventID, status string) (*RiskEventRecord, error) {
	const maxRetries = 4
	key := s.key(eventID)

	for i := 0; i < maxRetries; i++ {
		var updated *RiskEventRecord
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record := &RiskEventRecord{}
			if err := json.Unmarshal(data, record); err != nil {
				return err
			}
			record.InvestigationStatus = status

			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				return nil
			})
			if err != nil {
				return err
			}
			updated = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrRiskEventNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrRiskEventBackend, err)
		}
		return updated, nil
	}

	return nil, ErrRiskEventNotFound
}
