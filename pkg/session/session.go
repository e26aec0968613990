package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pgsim/devicectl/pkg/store"
)

var ErrMiss = errors.New("session miss")

// KV abstracts the session backend so tests can run against miniredis or
// a fake.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisKV is the go-redis backed KV.
type RedisKV struct {
	c *redis.Client
}

func NewRedisKV(c *redis.Client) *RedisKV { return &RedisKV{c: c} }

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.c.Del(ctx, key).Err()
}

// Manager stores one named snapshot of the whole configuration state.
type Manager struct {
	kv  KV
	key string
	ttl time.Duration
}

func NewManager(kv KV, name string, ttl time.Duration) *Manager {
	return &Manager{
		kv:  kv,
		key: "devicectl:session:" + name,
		ttl: ttl,
	}
}

func (m *Manager) Key() string { return m.key }

func (m *Manager) Save(ctx context.Context, snap store.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.kv.Set(ctx, m.key, string(data), m.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns nil without error when no session was saved yet.
func (m *Manager) Load(ctx context.Context) (*store.Snapshot, error) {
	raw, err := m.kv.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	snap := &store.Snapshot{}
	if err := json.Unmarshal([]byte(raw), snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return snap, nil
}

func (m *Manager) Clear(ctx context.Context) error {
	return m.kv.Del(ctx, m.key)
}
