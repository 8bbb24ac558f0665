package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/auth-gate/internal/domain"
)

// purgeBatchSize caps how many records a single purge script call removes.
const purgeBatchSize = 500

// KEYS[1] record hash, KEYS[2] expiry index.
// ARGV: token, id, subject, user_id, expires_at, created_at (unix micros).
var createTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[2], 'subject', ARGV[3], 'user_id', ARGV[4], 'expires_at', ARGV[5], 'created_at', ARGV[6])
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
return 1
`)

// KEYS[1] record hash. ARGV[1] now (unix micros). Returns the stored last_used_at or -1.
var touchTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local current = redis.call('HGET', KEYS[1], 'last_used_at')
if (not current) or tonumber(current) < tonumber(ARGV[1]) then
  redis.call('HSET', KEYS[1], 'last_used_at', ARGV[1])
  return tonumber(ARGV[1])
end
return tonumber(current)
`)

// KEYS[1] expiry index. ARGV[1] exclusive upper bound, ARGV[2] record key prefix, ARGV[3] batch size.
var purgeTokensScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local removed = 0
for _, token in ipairs(members) do
  removed = removed + redis.call('DEL', ARGV[2] .. token)
  redis.call('ZREM', KEYS[1], token)
end
return {#members, removed}
`)

type redisTokenRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisTokenRepository returns a registry stored as one hash per token plus a
// sorted set of tokens scored by expiry.
func NewRedisTokenRepository(client *redis.Client, keyPrefix string) TokenRepository {
	return &redisTokenRepository{client: client, prefix: keyPrefix, now: time.Now}
}

func (r *redisTokenRepository) recordPrefix() string {
	return r.prefix + "token:"
}

func (r *redisTokenRepository) recordKey(token string) string {
	return r.recordPrefix() + token
}

func (r *redisTokenRepository) indexKey() string {
	return r.prefix + "token_expiry"
}

func (r *redisTokenRepository) Create(ctx context.Context, record *domain.TokenRecord) error {
	if record.ID == "" {
		record.ID = newID()
	}
	record.ExpiresAt = record.ExpiresAt.Truncate(time.Microsecond)
	record.CreatedAt = r.now().Truncate(time.Microsecond)

	created, err := createTokenScript.Run(ctx, r.client,
		[]string{r.recordKey(record.Token), r.indexKey()},
		record.Token,
		record.ID,
		record.Subject,
		record.UserID,
		record.ExpiresAt.UnixMicro(),
		record.CreatedAt.UnixMicro(),
	).Int64()
	if err != nil {
		return err
	}
	if created == 0 {
		return ErrTokenExists
	}
	return nil
}

func (r *redisTokenRepository) GetByToken(ctx context.Context, token string) (*domain.TokenRecord, error) {
	fields, err := r.client.HGetAll(ctx, r.recordKey(token)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrTokenNotFound
	}

	record := &domain.TokenRecord{
		ID:      fields["id"],
		Token:   token,
		Subject: fields["subject"],
		UserID:  fields["user_id"],
	}
	if record.ExpiresAt, err = parseMicros(fields["expires_at"]); err != nil {
		return nil, err
	}
	if record.CreatedAt, err = parseMicros(fields["created_at"]); err != nil {
		return nil, err
	}
	if raw, ok := fields["last_used_at"]; ok {
		lastUsed, err := parseMicros(raw)
		if err != nil {
			return nil, err
		}
		record.LastUsedAt = &lastUsed
	}
	return record, nil
}

func (r *redisTokenRepository) Touch(ctx context.Context, record *domain.TokenRecord) error {
	stored, err := touchTokenScript.Run(ctx, r.client,
		[]string{r.recordKey(record.Token)},
		r.now().UnixMicro(),
	).Int64()
	if err != nil {
		return err
	}
	if stored < 0 {
		return ErrTokenNotFound
	}
	lastUsed := time.UnixMicro(stored)
	record.LastUsedAt = &lastUsed
	return nil
}

func (r *redisTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.recordKey(token))
		pipe.ZRem(ctx, r.indexKey(), token)
		return nil
	})
	if err != nil {
		return err
	}
	if deleted.Val() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *redisTokenRepository) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	bound := ceilMicros(before)
	var total int64
	for {
		res, err := purgeTokensScript.Run(ctx, r.client,
			[]string{r.indexKey()},
			bound,
			r.recordPrefix(),
			purgeBatchSize,
		).Int64Slice()
		if err != nil {
			return total, err
		}
		if len(res) != 2 {
			return total, errors.New("unexpected purge script reply")
		}
		total += res[1]
		if res[0] < purgeBatchSize {
			return total, nil
		}
	}
}

// ceilMicros rounds up so that a micro-truncated expiry compares against the
// instant exactly as the untruncated value would.
func ceilMicros(t time.Time) int64 {
	micros := t.UnixMicro()
	if t.Sub(time.UnixMicro(micros)) > 0 {
		micros++
	}
	return micros
}

func parseMicros(raw string) (time.Time, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(v), nil
}
