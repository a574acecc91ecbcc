/**
 * @description
 * Distributed per-bundle trigger lock backed by Redis. A single service
 * instance already serializes same-bundle triggers through the database, but
 * when multiple instances run behind a load balancer, the lock keeps two
 * instances from racing the read-gate-transfer-update sequence for the same
 * bundle. Different bundles are never serialized against each other.
 */
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TriggerLock guards the execution of a single bundle's trigger sequence.
type TriggerLock interface {
	// Acquire attempts to take the lock for (owner, bundleID). It returns a
	// release function when acquired, or ok=false when another holder exists.
	Acquire(ctx context.Context, owner string, bundleID uint64) (release func(), ok bool, err error)
}

// releaseScript deletes the lock key only if it still holds our token, so an
// expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTriggerLock implements TriggerLock on a shared Redis instance.
type RedisTriggerLock struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisTriggerLock(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisTriggerLock {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "bundl:trigger_lock"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &RedisTriggerLock{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

func (l *RedisTriggerLock) Acquire(ctx context.Context, owner string, bundleID uint64) (func(), bool, error) {
	key := fmt.Sprintf("%s:%s:%d", l.prefix, owner, bundleID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.client, []string{key}, token)
	}
	return release, true, nil
}

// NoopTriggerLock is used when Redis is not configured (single-instance
// deployments); the database's per-operation atomicity is the only guard.
type NoopTriggerLock struct{}

func (NoopTriggerLock) Acquire(ctx context.Context, owner string, bundleID uint64) (func(), bool, error) {
	return func() {}, true, nil
}
