package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix         = "session:"
	accountSessionsKeyPrefix = "account_sessions:"
)

// SessionRepository maps opaque session tokens to account ids in Redis.
// A per-account set of tokens supports revoking every session at once.
type SessionRepository struct {
	client *redis.Client
}

func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

func (r *SessionRepository) Save(ctx context.Context, token, accountID string, ttl time.Duration) error {
	indexKey := accountSessionsKeyPrefix + accountID

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKeyPrefix+token, accountID, ttl)
		pipe.SAdd(ctx, indexKey, token)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get returns the account id bound to token, or models.ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, token string) (string, error) {
	accountID, err := r.client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return accountID, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	accountID, err := r.Get(ctx, token)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeyPrefix+token)
		pipe.SRem(ctx, accountSessionsKeyPrefix+accountID, token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAllForAccount revokes every session of the account and returns
// how many live sessions were removed. Tokens left in the index after
// their session key expired are dropped without being counted.
func (r *SessionRepository) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	indexKey := accountSessionsKeyPrefix + accountID

	tokens, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	keys := make([]string, 0, len(tokens))
	for _, token := range tokens {
		keys = append(keys, sessionKeyPrefix+token)
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
