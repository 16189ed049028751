package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps checkout sessions between commands.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	ByOrder(ctx context.Context, orderID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, s *Session) error
}

// MemoryStore is an in-process SessionStore. Sessions are stored as JSON
// snapshots so callers never share state.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	byOrder  map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte), byOrder: make(map[string]string)}
}

// Get loads a session by id.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	data, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return decodeSession(data)
}

// ByOrder loads the open session of an order.
func (m *MemoryStore) ByOrder(ctx context.Context, orderID string) (*Session, error) {
	m.mu.Lock()
	id, ok := m.byOrder[orderID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m.Get(ctx, id)
}

// Save stores a snapshot of the session.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = data
	m.byOrder[s.OrderID] = s.ID
	return nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.ID)
	if m.byOrder[s.OrderID] == s.ID {
		delete(m.byOrder, s.OrderID)
	}
	return nil
}

// RedisStore keeps sessions in Redis with a sliding TTL.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func (r RedisStore) sessionKey(id string) string { return r.Prefix + "session:" + id }
func (r RedisStore) orderKey(id string) string   { return r.Prefix + "order:" + id }

// Get loads a session by id.
func (r RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.Client.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return decodeSession(data)
}

// ByOrder loads the open session of an order.
func (r RedisStore) ByOrder(ctx context.Context, orderID string) (*Session, error) {
	id, err := r.Client.Get(ctx, r.orderKey(orderID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return r.Get(ctx, id)
}

// Save stores the session and refreshes its TTL.
func (r RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	_, err = r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(s.ID), data, ttl)
		pipe.Set(ctx, r.orderKey(s.OrderID), s.ID, ttl)
		return nil
	})
	return err
}

// Delete removes the session.
func (r RedisStore) Delete(ctx context.Context, s *Session) error {
	return r.Client.Del(ctx, r.sessionKey(s.ID), r.orderKey(s.OrderID)).Err()
}

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
