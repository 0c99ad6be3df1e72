package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingRecordVersion1 = 1

	pendingFlagHasLocation    = 1 << 0
	pendingFlagFirstTimeSetup = 1 << 1
)

var (
	ErrPendingChallengeNotFound = errors.New("pending challenge not found")
	ErrPendingChallengeExpired  = errors.New("pending challenge expired")
	ErrPendingChallengeExceeded = errors.New("pending challenge attempts exceeded")
	ErrPendingChallengeBackend  = errors.New("pending challenge backend unavailable")
)

// PendingChallenge is the server-side half of an unfinished login. It
// pins the request context captured at step one so the second-factor
// step issues the credential against the same origin and client.
type PendingChallenge struct {
	IdentityID     string
	Origin         string
	Client         string
	Latitude       float64
	Longitude      float64
	HasLocation    bool
	FirstTimeSetup bool
	ExpiresAt      int64
	Attempts       uint16
}

type PendingChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingChallengeStore(redisClient redis.UniversalClient, prefix string) *PendingChallengeStore {
	if prefix == "" {
		prefix = "pc"
	}
	return &PendingChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PendingChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *PendingChallengeStore) Save(
	ctx context.Context,
	challengeID string,
	record *PendingChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodePendingChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingChallengeBackend, err)
	}
	return nil
}

func (s *PendingChallengeStore) Get(ctx context.Context, challengeID string) (*PendingChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingChallengeBackend, err)
	}

	record, err := decodePendingChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrPendingChallengeExpired
	}
	return record, nil
}

// Delete removes a challenge and reports whether it still existed. The
// boolean drives single-use enforcement: the caller that observes true
// owns the challenge, every other caller sees a replay.
func (s *PendingChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingChallengeBackend, err)
	}
	return n > 0, nil
}

func (s *PendingChallengeStore) RecordFailure(
	ctx context.Context,
	challengeID string,
	maxAttempts int,
) (bool, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingChallenge(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrPendingChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return nil
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrPendingChallengeExpired
			}

			updated, err := encodePendingChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrPendingChallengeNotFound
			}
			if errors.Is(err, ErrPendingChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrPendingChallengeBackend, err)
		}
		return exceeded, nil
	}

	return false, ErrPendingChallengeNotFound
}

func encodePendingChallenge(record *PendingChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingRecordVersion1)

	var flags byte
	if record.HasLocation {
		flags |= pendingFlagHasLocation
	}
	if record.FirstTimeSetup {
		flags |= pendingFlagFirstTimeSetup
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.Latitude); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.Longitude); err != nil {
		return nil, err
	}

	for _, field := range []string{record.IdentityID, record.Origin, record.Client} {
		if len(field) > 65535 {
			return nil, errors.New("pending challenge field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodePendingChallenge(data []byte) (*PendingChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersion1 {
		return nil, errors.New("invalid pending challenge version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &PendingChallenge{
		HasLocation:    flags&pendingFlagHasLocation != 0,
		FirstTimeSetup: flags&pendingFlagFirstTimeSetup != 0,
	}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.Latitude); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.Longitude); err != nil {
		return nil, err
	}

	for _, target := range []*string{&record.IdentityID, &record.Origin, &record.Client} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*target = string(raw)
	}

	return record, nil
}
