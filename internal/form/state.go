package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nikhilbhutani/speechstudio/internal/cache"
)

// State is what the form remembers between requests of one session.
type State struct {
	DraftedSpeech string `json:"drafted_speech"`
	// LastOutput is the path of the last successfully written audio file.
	LastOutput string `json:"last_output,omitempty"`
}

// Store keeps State per session ID. A session never seen loads as the zero
// State.
type Store interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, sessionID string, s State) error
}

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[sessionID], nil
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[sessionID] = s
	return nil
}

var _ Store = (*RedisStore)(nil)

// RedisStore shares session state between instances. Each Save refreshes
// the TTL.
type RedisStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewRedisStore(c *cache.Cache, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: c, ttl: ttl}
}

func stateKey(sessionID string) string {
	return "session:" + sessionID
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (State, error) {
	var s State
	err := r.cache.Get(ctx, stateKey(sessionID), &s)
	if errors.Is(err, cache.ErrMiss) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load session state: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, sessionID string, s State) error {
	if err := r.cache.Set(ctx, stateKey(sessionID), s, r.ttl); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}
