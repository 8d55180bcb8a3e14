package chathub

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// PresenceRegistry tracks the live connections of each user. A user is
// online while at least one connection is registered.
type PresenceRegistry interface {
	Register(ctx context.Context, userID, connID string) error
	Unregister(ctx context.Context, userID, connID string) error
	// Connections returns the connection ids of a user, empty when offline.
	Connections(ctx context.Context, userID string) ([]string, error)
}

// MemoryPresence is the process-local registry.
type MemoryPresence struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{conns: make(map[string]map[string]struct{})}
}

func (p *MemoryPresence) Register(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		p.conns[userID] = set
	}
	set[connID] = struct{}{}
	return nil
}

func (p *MemoryPresence) Unregister(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.conns[userID]
	if !ok {
		return nil
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(p.conns, userID)
	}
	return nil
}

func (p *MemoryPresence) Connections(_ context.Context, userID string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.conns[userID]))
	for id := range p.conns[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// PresenceKey prefixes the per-user Redis sets shared by every hub instance.
const PresenceKey = "campusskill:presence"

// RedisPresence keeps one Redis set of connection ids per user so any
// instance can tell whether a user is connected somewhere.
type RedisPresence struct {
	Redis *redis.Client
	Key   string
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{Redis: rdb, Key: PresenceKey}
}

func (p *RedisPresence) userKey(userID string) string {
	return p.Key + ":" + userID
}

func (p *RedisPresence) Register(ctx context.Context, userID, connID string) error {
	if err := p.Redis.SAdd(ctx, p.userKey(userID), connID).Err(); err != nil {
		return fmt.Errorf("register presence of %s: %w", userID, err)
	}
	return nil
}

// Unregister removes connID; Redis drops the set with its last member.
func (p *RedisPresence) Unregister(ctx context.Context, userID, connID string) error {
	if err := p.Redis.SRem(ctx, p.userKey(userID), connID).Err(); err != nil {
		return fmt.Errorf("unregister presence of %s: %w", userID, err)
	}
	return nil
}

func (p *RedisPresence) Connections(ctx context.Context, userID string) ([]string, error) {
	conns, err := p.Redis.SMembers(ctx, p.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup presence of %s: %w", userID, err)
	}
	sort.Strings(conns)
	return conns, nil
}
