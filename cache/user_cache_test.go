package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *fakeClient) Get(ctx context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return redis.NewStringResult("", c.err)
	}

	value, ok := c.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}

	return redis.NewStringResult(value, nil)
}

func (c *fakeClient) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return redis.NewStatusResult("", c.err)
	}

	switch v := value.(type) {
	case []byte:
		c.values[key] = string(v)
	case string:
		c.values[key] = v
	}

	c.ttls[key] = expiration

	return redis.NewStatusResult("OK", nil)
}

// expire drops key as redis would once its ttl passes.
func (c *fakeClient) expire(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.values, key)
}

type countingDirectory struct {
	users map[string]*authentication.User
	calls int
}

func (d *countingDirectory) GetUser(_ context.Context, userID string) (*authentication.User, error) {
	d.calls++

	user, ok := d.users[userID]
	if !ok {
		return nil, &authentication.UserNotFoundError{ID: userID}
	}

	copied := *user

	return &copied, nil
}

func newDirectory() *countingDirectory {
	return &countingDirectory{users: map[string]*authentication.User{
		"alice": {ID: "alice", Name: "Alice", Email: "alice@example.com", Picture: "https://example.com/a.png"},
	}}
}

func TestUserCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeClient()
	directory := newDirectory()
	userCache := cache.NewUserCache(client, directory, time.Minute)

	user, err := userCache.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, time.Minute, client.ttls["user:alice"])

	user, err = userCache.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "https://example.com/a.png", user.Picture)
	assert.Equal(t, 1, directory.calls)

	client.expire("user:alice")

	_, err = userCache.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, directory.calls)

	_, err = userCache.GetUser(ctx, "ghost")

	var notFoundErr *authentication.UserNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestUserCacheDegradesWhenRedisFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeClient()
	client.err = errors.New("connection refused")
	directory := newDirectory()
	userCache := cache.NewUserCache(client, directory, 0)

	for range 2 {
		user, err := userCache.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.Name)
	}

	assert.Equal(t, 2, directory.calls)
}

func TestUserCacheIgnoresCorruptEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeClient()
	client.values["user:alice"] = "{not json"
	directory := newDirectory()
	userCache := cache.NewUserCache(client, directory, time.Minute)

	user, err := userCache.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, 1, directory.calls)
	assert.NotEqual(t, "{not json", client.values["user:alice"])
}
