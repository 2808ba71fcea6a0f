package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

// Store persists session records so an interrupted purchase can be recovered.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, resourceID string) (*Session, error)
	// Latest returns the most recently saved session.
	Latest(ctx context.Context) (*Session, error)
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	latest   string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*Session{}}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.ResourceID == "" {
		return errors.New("session: resource id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ResourceID] = s.Clone()
	m.latest = s.ResourceID
	return nil
}

func (m *MemoryStore) Load(_ context.Context, resourceID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[resourceID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Latest(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	id := m.latest
	m.mu.RUnlock()
	if id == "" {
		return nil, ErrNotFound
	}
	return m.Load(ctx, id)
}

const defaultKeyPrefix = "x402pay:session:"

// RedisStore keeps sessions as JSON documents in redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

func WithKeyPrefix(p string) RedisOption {
	return func(r *RedisStore) {
		if p != "" {
			r.prefix = p
		}
	}
}

// WithTTL expires stored sessions after d. Zero keeps them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisStore) {
		r.ttl = d
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	r := &RedisStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DialRedis connects to the redis server at rawURL and checks it answers.
func DialRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) latestKey() string { return r.prefix + "latest" }

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ResourceID == "" {
		return errors.New("session: resource id is required")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(s.ResourceID), raw, r.ttl)
		p.Set(ctx, r.latestKey(), s.ResourceID, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ResourceID, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, resourceID string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.key(resourceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", resourceID, err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", resourceID, err)
	}
	return &s, nil
}

func (r *RedisStore) Latest(ctx context.Context) (*Session, error) {
	id, err := r.client.Get(ctx, r.latestKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load latest session: %w", err)
	}
	return r.Load(ctx, id)
}
