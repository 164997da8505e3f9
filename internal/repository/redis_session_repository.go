package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yukikurage/taskflow/internal/models"
)

const (
	redisSessionPrefix     = "taskflow:session:"
	redisUserSessionPrefix = "taskflow:user_sessions:"
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "user_id", ARGV[1],
  "user_agent", ARGV[2],
  "ip_address", ARGV[3],
  "created_at", ARGV[4],
  "expires_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("SADD", KEYS[2], ARGV[7])
return 1
`

const deleteSessionScript = `
local user_id = redis.call("HGET", KEYS[1], "user_id")
if not user_id then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. user_id, ARGV[2])
return 1
`

var (
	createSessionLua = redis.NewScript(createSessionScript)
	deleteSessionLua = redis.NewScript(deleteSessionScript)
)

// redisSession is the hash layout of a stored session. Times are unix milliseconds.
type redisSession struct {
	UserID    uint64 `redis:"user_id"`
	UserAgent string `redis:"user_agent"`
	IPAddress string `redis:"ip_address"`
	CreatedAt int64  `redis:"created_at"`
	ExpiresAt int64  `redis:"expires_at"`
}

// RedisSessionRepository stores sessions as Redis hashes with a per-user index set.
// Keys carry a TTL matching the session expiry, so Redis drops expired sessions itself.
type RedisSessionRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisSessionRepository(client redis.UniversalClient) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, now: time.Now}
}

func sessionKey(tokenHash string) string {
	return redisSessionPrefix + tokenHash
}

func userSessionsKey(userID uint64) string {
	return redisUserSessionPrefix + strconv.FormatUint(userID, 10)
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.now()
	}
	ttl := session.ExpiresAt.Sub(r.now()).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	created, err := createSessionLua.Run(ctx, r.client,
		[]string{sessionKey(session.TokenHash), userSessionsKey(session.UserID)},
		session.UserID,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt.UnixMilli(),
		session.ExpiresAt.UnixMilli(),
		ttl,
		session.TokenHash,
	).Int64()
	if err != nil {
		return fmt.Errorf("redis create session: %w", err)
	}
	if created == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *RedisSessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	cmd := r.client.HGetAll(ctx, sessionKey(tokenHash))
	values, err := cmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}

	var stored redisSession
	if err := cmd.Scan(&stored); err != nil {
		return nil, fmt.Errorf("redis decode session: %w", err)
	}

	return &models.Session{
		TokenHash: tokenHash,
		UserID:    stored.UserID,
		UserAgent: stored.UserAgent,
		IPAddress: stored.IPAddress,
		CreatedAt: time.UnixMilli(stored.CreatedAt),
		ExpiresAt: time.UnixMilli(stored.ExpiresAt),
	}, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, tokenHash string) (bool, error) {
	removed, err := deleteSessionLua.Run(ctx, r.client,
		[]string{sessionKey(tokenHash)},
		redisUserSessionPrefix,
		tokenHash,
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis delete session: %w", err)
	}
	return removed == 1, nil
}

func (r *RedisSessionRepository) DeleteByUser(ctx context.Context, userID uint64, keepTokenHash string) (int64, error) {
	indexKey := userSessionsKey(userID)
	hashes, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}

	var delCmds []*redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, hash := range hashes {
			if hash == keepTokenHash {
				continue
			}
			delCmds = append(delCmds, pipe.Del(ctx, sessionKey(hash)))
			pipe.SRem(ctx, indexKey, hash)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis delete user sessions: %w", err)
	}

	var deleted int64
	for _, cmd := range delCmds {
		deleted += cmd.Val()
	}
	return deleted, nil
}

// DeleteExpired removes sessions past their expiry and prunes index entries
// whose session key Redis already expired.
func (r *RedisSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	iter := r.client.Scan(ctx, 0, redisUserSessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		hashes, err := r.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return removed, fmt.Errorf("redis list user sessions: %w", err)
		}

		for _, hash := range hashes {
			expiresAt, err := r.client.HGet(ctx, sessionKey(hash), "expires_at").Int64()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return removed, fmt.Errorf("redis read session expiry: %w", err)
			case expiresAt > now.UnixMilli():
				continue
			default:
				if err := r.client.Del(ctx, sessionKey(hash)).Err(); err != nil {
					return removed, fmt.Errorf("redis delete session: %w", err)
				}
			}
			if err := r.client.SRem(ctx, indexKey, hash).Err(); err != nil {
				return removed, fmt.Errorf("redis prune user sessions: %w", err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan user sessions: %w", err)
	}
	return removed, nil
}

// Transactional is false: Redis writes never join a database transaction.
func (r *RedisSessionRepository) Transactional() bool {
	return false
}
