package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bell-backend/internal/apps/otp/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "otp:record:"

// removeScript deletes the hash only while it still holds the expected record id
var removeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "id") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// incrementScript bumps the attempt counter of the expected record and deletes the
// hash once the limit is reached. -1 means the record is gone or was replaced.
var incrementScript = redis.NewScript(`
local id = redis.call("HGET", KEYS[1], "id")
if id ~= ARGV[1] then
	return -1
end

local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
local max = tonumber(redis.call("HGET", KEYS[1], "max_attempts"))
if attempts >= max then
	redis.call("DEL", KEYS[1])
end

return attempts
`)

// redisStore keeps one hash per destination. Redis expires the key on its own,
// so records are shared by every instance and need no sweep.
type redisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Store backed by redis
func NewRedisStore(client redis.UniversalClient) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Put(ctx context.Context, rec *models.OTPRecord) error {
	key := s.key(rec.Destination)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, toHash(rec))
		pipe.PExpireAt(ctx, key, rec.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put otp: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, destination string) (*models.OTPRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(destination)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get otp: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	rec, err := fromHash(destination, fields)
	if err != nil {
		return nil, fmt.Errorf("redis decode otp: %w", err)
	}
	return rec, nil
}

func (s *redisStore) Remove(ctx context.Context, destination string, id uuid.UUID) (bool, error) {
	n, err := removeScript.Run(ctx, s.client, []string{s.key(destination)}, id.String()).Int()
	if err != nil {
		return false, fmt.Errorf("redis remove otp: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) IncrementAttempts(ctx context.Context, destination string, id uuid.UUID) (int, error) {
	attempts, err := incrementScript.Run(ctx, s.client, []string{s.key(destination)}, id.String()).Int()
	if err != nil {
		return 0, fmt.Errorf("redis increment otp attempts: %w", err)
	}
	if attempts < 0 {
		return 0, ErrNotFound
	}
	return attempts, nil
}

// DeleteExpired is a no-op: keys carry their own expiry
func (s *redisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *redisStore) key(destination string) string {
	return redisKeyPrefix + destination
}

func toHash(rec *models.OTPRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":           rec.ID.String(),
		"channel":      rec.Channel.String(),
		"code_digest":  rec.CodeDigest,
		"attempts":     rec.Attempts,
		"max_attempts": rec.MaxAttempts,
		"issued_at":    rec.IssuedAt.UTC().Format(time.RFC3339Nano),
		"expires_at":   rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromHash(destination string, fields map[string]string) (*models.OTPRecord, error) {
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("attempts: %w", err)
	}
	maxAttempts, err := strconv.Atoi(fields["max_attempts"])
	if err != nil {
		return nil, fmt.Errorf("max_attempts: %w", err)
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, fields["issued_at"])
	if err != nil {
		return nil, fmt.Errorf("issued_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}

	return &models.OTPRecord{
		Destination: destination,
		ID:          id,
		Channel:     models.Channel(fields["channel"]),
		CodeDigest:  fields["code_digest"],
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		CreatedAt:   issuedAt,
		UpdatedAt:   issuedAt,
	}, nil
}
