package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisCoordinator struct {
	client *redis.Client
}

// NewRedisCoordinator returns a Coordinator backed by a single Redis instance,
// one key per slot. Entries self-heal through their TTL if an orchestrator
// crashes between acquire and release.
func NewRedisCoordinator(client *redis.Client) Coordinator {
	return &redisCoordinator{client: client}
}

func slotKey(slotID uuid.UUID) string {
	return fmt.Sprintf("lock:slot:%s", slotID.String())
}

func (c *redisCoordinator) TryAcquire(ctx context.Context, slotID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, slotKey(slotID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: acquire slot lock: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// Delete only if the stored token is ours. GET+DEL must be one atomic step,
// hence the script: between a plain GET and DEL our entry could expire and a
// new holder's entry take its place.
var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (c *redisCoordinator) Release(ctx context.Context, slotID uuid.UUID, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, c.client, []string{slotKey(slotID)}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: release slot lock: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

var extendScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
  return 0
end
`)

func (c *redisCoordinator) Extend(ctx context.Context, slotID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, c.client, []string{slotKey(slotID)}, token, ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: extend slot lock: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}
