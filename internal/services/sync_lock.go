package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const syncLockKeyPrefix = "sync_lock:"

// releaseScript deletes the lock only when it is still held by the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the expiry only when the lock is still held by the caller
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisSyncLock is a SyncLock shared by every instance through Redis
type RedisSyncLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSyncLock creates a lock whose entries expire after ttl
func NewRedisSyncLock(client *redis.Client, ttl time.Duration) *RedisSyncLock {
	return &RedisSyncLock{client: client, ttl: ttl}
}

// Acquire takes the lock for integrationID; false means another owner holds it
func (l *RedisSyncLock) Acquire(ctx context.Context, integrationID, owner string) (bool, error) {
	ok, err := l.client.SetNX(ctx, syncLockKeyPrefix+integrationID, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	return ok, nil
}

// Extend refreshes the lock's TTL if owner still holds it
func (l *RedisSyncLock) Extend(ctx context.Context, integrationID, owner string) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{syncLockKeyPrefix + integrationID}, owner, l.ttl.Milliseconds()).Int()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to extend sync lock: %w", err)
	}
	return n == 1, nil
}

// TTL returns how long an unextended lock is held
func (l *RedisSyncLock) TTL() time.Duration { return l.ttl }

// Release frees the lock if owner still holds it
func (l *RedisSyncLock) Release(ctx context.Context, integrationID, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{syncLockKeyPrefix + integrationID}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

type localLockEntry struct {
	owner     string
	expiresAt time.Time
}

// LocalSyncLock is an in-process SyncLock for single-instance deployments
type LocalSyncLock struct {
	mu    sync.Mutex
	ttl   time.Duration
	locks map[string]localLockEntry
	now   func() time.Time
}

// NewLocalSyncLock creates an in-process lock whose entries expire after ttl
func NewLocalSyncLock(ttl time.Duration) *LocalSyncLock {
	return &LocalSyncLock{
		ttl:   ttl,
		locks: make(map[string]localLockEntry),
		now:   time.Now,
	}
}

func (l *LocalSyncLock) Acquire(ctx context.Context, integrationID, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, held := l.locks[integrationID]; held && (l.ttl <= 0 || now.Before(entry.expiresAt)) {
		return false, nil
	}

	l.locks[integrationID] = localLockEntry{owner: owner, expiresAt: now.Add(l.ttl)}
	return true, nil
}

func (l *LocalSyncLock) Extend(ctx context.Context, integrationID, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, held := l.locks[integrationID]
	if !held || entry.owner != owner || (l.ttl > 0 && !now.Before(entry.expiresAt)) {
		return false, nil
	}
	entry.expiresAt = now.Add(l.ttl)
	l.locks[integrationID] = entry
	return true, nil
}

func (l *LocalSyncLock) TTL() time.Duration { return l.ttl }

func (l *LocalSyncLock) Release(ctx context.Context, integrationID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, held := l.locks[integrationID]; held && entry.owner == owner {
		delete(l.locks, integrationID)
	}
	return nil
}
