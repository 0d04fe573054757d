// Package cache keeps user profiles in Redis in front of the user store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/interactions"
)

const DefaultTTL = 10 * time.Minute

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// UserCache resolves users through next and caches the public part of the
// profile. Cache failures degrade to uncached lookups.
type UserCache struct {
	client Client
	next   interactions.UserDirectory
	ttl    time.Duration
}

var _ interactions.UserDirectory = (*UserCache)(nil)

func NewUserCache(client Client, next interactions.UserDirectory, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &UserCache{
		client: client,
		next:   next,
		ttl:    ttl,
	}
}

type cachedUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Picture      string    `json:"picture"`
	RegisteredAt time.Time `json:"registeredAt"`
}

func userKey(userID string) string {
	return "user:" + userID
}

func (c *UserCache) GetUser(ctx context.Context, userID string) (*authentication.User, error) {
	key := userKey(userID)

	value, err := c.client.Get(ctx, key).Result()

	switch {
	case err == nil:
		var cached cachedUser

		err := json.Unmarshal([]byte(value), &cached)
		if err == nil {
			return &authentication.User{
				ID:           cached.ID,
				Name:         cached.Name,
				Email:        cached.Email,
				Picture:      cached.Picture,
				RegisteredAt: cached.RegisteredAt,
			}, nil
		}

		slog.WarnContext(ctx, "failed to decode cached user", "key", key, "error", err)
	case errors.Is(err, redis.Nil):
	default:
		slog.WarnContext(ctx, "failed to read user from cache", "key", key, "error", err)
	}

	user, err := c.next.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedUser{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Picture:      user.Picture,
		RegisteredAt: user.RegisteredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	err = c.client.Set(ctx, key, payload, c.ttl).Err()
	if err != nil {
		slog.WarnContext(ctx, "failed to write user to cache", "key", key, "error", err)
	}

	return user, nil
}
