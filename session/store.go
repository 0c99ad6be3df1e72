package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when a Redis operation fails for any
// reason other than a missing key.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrBindingNotFound is returned for lookups of revoked or expired bindings.
var ErrBindingNotFound = errors.New("binding not found")

const upsertMaxRetries = 4

// deleteBindingScript removes one binding and every index entry that points
// at it in a single atomic step. The tuple key is only cleared when it still
// maps to this binding, so a concurrent re-create from the same tuple is
// never clobbered by a stale revocation.
const deleteBindingScript = `
local existed = redis.call("EXISTS", KEYS[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
redis.call("SREM", KEYS[3], ARGV[1])
redis.call("SREM", KEYS[4], ARGV[1])
redis.call("SREM", KEYS[5], ARGV[1])
return existed
`

var deleteBindingLua = redis.NewScript(deleteBindingScript)

// Store is the Redis-backed session binding registry. Creation and
// revocation on the same (identity, origin, client) tuple are serialized
// against each other: Upsert runs under WATCH on the tuple and blob keys
// and Delete runs as a Lua script, so a revoked-then-recreated race cannot
// produce a zombie binding.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a binding [Store] backed by the given Redis client.
// prefix sets the key namespace; ttl is the hard expiry applied to every
// binding blob as a backstop for unswept registries.
func NewStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key(bindingID string) string {
	return s.prefix + ":" + bindingID
}

func (s *Store) tupleKey(identityID, origin, client string) string {
	sum := sha256.Sum256([]byte(origin + "\x00" + client))
	return s.prefix + "t:" + identityID + ":" + base64.RawURLEncoding.EncodeToString(sum[:12])
}

func (s *Store) identityKey(identityID string) string {
	return s.prefix + "u:" + identityID
}

func (s *Store) originKey(origin string) string {
	return s.prefix + "o:" + origin
}

func (s *Store) indexKey() string {
	return s.prefix + "i"
}

// Upsert creates the binding for b's (identity, origin, client) tuple, or
// refreshes the existing one in place. The returned binding carries the
// authoritative BindingID and CreatedAt; created reports whether a new
// binding came into existence.
func (s *Store) Upsert(ctx context.Context, b *Binding) (*Binding, bool, error) {
	tupleKey := s.tupleKey(b.IdentityID, b.Origin, b.Client)

	for i := 0; i < upsertMaxRetries; i++ {
		var (
			result  *Binding
			created bool
		)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			existingID, err := tx.Get(ctx, tupleKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			var existing *Binding
			if existingID != "" {
				data, getErr := tx.Get(ctx, s.key(existingID)).Bytes()
				if getErr != nil && !errors.Is(getErr, redis.Nil) {
					return getErr
				}
				if getErr == nil {
					existing, err = Decode(data)
					if err != nil {
						return err
					}
					existing.BindingID = existingID
				}
			}

			if existing != nil {
				existing.Username = b.Username
				existing.Role = b.Role
				existing.LastActivityAt = b.LastActivityAt
				result = existing
			} else {
				created = true
				fresh := *b
				result = &fresh
			}

			encoded, err := Encode(result)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.key(result.BindingID), encoded, s.ttl)
				pipe.Set(ctx, tupleKey, result.BindingID, s.ttl)
				pipe.SAdd(ctx, s.identityKey(result.IdentityID), result.BindingID)
				pipe.SAdd(ctx, s.originKey(result.Origin), result.BindingID)
				pipe.SAdd(ctx, s.indexKey(), result.BindingID)
				return nil
			})
			return err
		}, tupleKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return result, created, nil
	}

	return nil, false, fmt.Errorf("%w: upsert contention exhausted retries", ErrRedisUnavailable)
}

// Get fetches a binding by ID without mutating any Redis state.
func (s *Store) Get(ctx context.Context, bindingID string) (*Binding, error) {
	data, err := s.redis.Get(ctx, s.key(bindingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	b, err := Decode(data)
	if err != nil {
		return nil, err
	}
	b.BindingID = bindingID
	return b, nil
}

// Touch refreshes a binding's last-activity timestamp, failing with
// [ErrBindingNotFound] if the binding was revoked in the meantime.
func (s *Store) Touch(ctx context.Context, bindingID string, at int64) (*Binding, error) {
	key := s.key(bindingID)

	for i := 0; i < upsertMaxRetries; i++ {
		var result *Binding

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			b, err := Decode(data)
			if err != nil {
				return err
			}
			b.BindingID = bindingID
			b.LastActivityAt = at
			result = b

			encoded, err := Encode(b)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, s.ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return nil, ErrBindingNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: touch contention exhausted retries", ErrRedisUnavailable)
}

// Delete revokes a binding by ID. Idempotent: deleting an absent binding
// reports existed=false without error.
func (s *Store) Delete(ctx context.Context, bindingID string) (bool, error) {
	b, err := s.Get(ctx, bindingID)
	if err != nil {
		if errors.Is(err, ErrBindingNotFound) {
			// Clear any stale index entries left by an expired blob.
			_ = s.redis.SRem(ctx, s.indexKey(), bindingID).Err()
			return false, nil
		}
		return false, err
	}

	return s.deleteDecoded(ctx, b)
}

func (s *Store) deleteDecoded(ctx context.Context, b *Binding) (bool, error) {
	keys := []string{
		s.key(b.BindingID),
		s.tupleKey(b.IdentityID, b.Origin, b.Client),
		s.identityKey(b.IdentityID),
		s.originKey(b.Origin),
		s.indexKey(),
	}

	existed, err := deleteBindingLua.Run(ctx, s.redis, keys, b.BindingID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

// DeleteAllForIdentity revokes every binding for the identity and returns
// the bindings that were removed.
func (s *Store) DeleteAllForIdentity(ctx context.Context, identityID string) ([]*Binding, error) {
	return s.deleteAllInSet(ctx, s.identityKey(identityID))
}

// DeleteAllForOrigin revokes every binding created from the origin and
// returns the bindings that were removed.
func (s *Store) DeleteAllForOrigin(ctx context.Context, origin string) ([]*Binding, error) {
	return s.deleteAllInSet(ctx, s.originKey(origin))
}

func (s *Store) deleteAllInSet(ctx context.Context, setKey string) ([]*Binding, error) {
	ids, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	deleted := make([]*Binding, 0, len(ids))
	for _, id := range ids {
		b, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrBindingNotFound) {
				_ = s.redis.SRem(ctx, setKey, id).Err()
				continue
			}
			return deleted, err
		}

		existed, err := s.deleteDecoded(ctx, b)
		if err != nil {
			return deleted, err
		}
		if existed {
			deleted = append(deleted, b)
		}
	}

	return deleted, nil
}

// List returns every live binding. Admin-surface operation; not intended
// for request hot paths.
func (s *Store) List(ctx context.Context) ([]*Binding, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Binding{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return s.getMany(ctx, ids, s.indexKey())
}

// ListForIdentity returns the identity's live bindings.
func (s *Store) ListForIdentity(ctx context.Context, identityID string) ([]*Binding, error) {
	setKey := s.identityKey(identityID)
	ids, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Binding{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return s.getMany(ctx, ids, setKey)
}

func (s *Store) getMany(ctx context.Context, ids []string, pruneSet string) ([]*Binding, error) {
	if len(ids) == 0 {
		return []*Binding{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	bindings := make([]*Binding, 0, len(ids))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				// Expired blob with a leftover index entry.
				_ = s.redis.SRem(ctx, pruneSet, ids[i]).Err()
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		b, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}
		b.BindingID = ids[i]
		bindings = append(bindings, b)
	}

	return bindings, nil
}

// SweepStale revokes every binding whose last activity predates cutoff and
// returns the removed bindings.
func (s *Store) SweepStale(ctx context.Context, cutoff int64) ([]*Binding, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	removed := make([]*Binding, 0)
	for _, b := range all {
		if b.LastActivityAt >= cutoff {
			continue
		}
		existed, err := s.deleteDecoded(ctx, b)
		if err != nil {
			return removed, err
		}
		if existed {
			removed = append(removed, b)
		}
	}

	return removed, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
