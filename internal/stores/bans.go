package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var ErrOriginBanBackend = errors.New("origin ban backend unavailable")

// OriginBan records an administrative ban together with who placed it.
type OriginBan struct {
	Origin   string
	Reason   string
	Actor    string
	BannedAt int64
}

// OriginBanStore keeps one hash per banned origin plus an index set so
// bans can be listed without scanning the keyspace.
type OriginBanStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOriginBanStore(redisClient redis.UniversalClient, prefix string) *OriginBanStore {
	if prefix == "" {
		prefix = "ob"
	}
	return &OriginBanStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OriginBanStore) key(origin string) string {
	return s.prefix + ":" + origin
}

func (s *OriginBanStore) indexKey() string {
	return s.prefix + "i"
}

func (s *OriginBanStore) Ban(ctx context.Context, ban *OriginBan) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(ban.Origin), map[string]interface{}{
			"reason":    ban.Reason,
			"actor":     ban.Actor,
			"banned_at": ban.BannedAt,
		})
		pipe.SAdd(ctx, s.indexKey(), ban.Origin)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOriginBanBackend, err)
	}
	return nil
}

func (s *OriginBanStore) IsBanned(ctx context.Context, origin string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(origin)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOriginBanBackend, err)
	}
	return n > 0, nil
}

func (s *OriginBanStore) Get(ctx context.Context, origin string) (*OriginBan, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(origin)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOriginBanBackend, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeOriginBan(origin, fields), nil
}

// Unban lifts a ban and reports whether one existed.
func (s *OriginBanStore) Unban(ctx context.Context, origin string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(origin))
		pipe.SRem(ctx, s.indexKey(), origin)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOriginBanBackend, err)
	}
	return del.Val() > 0, nil
}

func (s *OriginBanStore) List(ctx context.Context) ([]*OriginBan, error) {
	origins, err := s.redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOriginBanBackend, err)
	}

	bans := make([]*OriginBan, 0, len(origins))
	for _, origin := range origins {
		fields, err := s.redis.HGetAll(ctx, s.key(origin)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOriginBanBackend, err)
		}
		if len(fields) == 0 {
			// Index entry outlived its hash; self-heal.
			_, _ = s.redis.SRem(ctx, s.indexKey(), origin).Result()
			continue
		}
		bans = append(bans, decodeOriginBan(origin, fields))
	}
	return bans, nil
}

func decodeOriginBan(origin string, fields map[string]string) *OriginBan {
	bannedAt, _ := strconv.ParseInt(fields["banned_at"], 10, 64)
	return &OriginBan{
		Origin:   origin,
		Reason:   fields["reason"],
		Actor:    fields["actor"],
		BannedAt: bannedAt,
	}
}
