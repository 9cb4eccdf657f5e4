package voice

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const catalogKey = "voices:catalog"

// Lister fetches the full voice list from the provider.
type Lister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Store is a shared second-tier cache for the catalog, e.g. Redis.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Option func(*Catalog)

// WithStore adds a shared cache tier. ttl applies to that tier only; zero
// keeps entries until Invalidate is called. The in-process copy is always
// kept until Invalidate.
func WithStore(s Store, ttl time.Duration) Option {
	return func(c *Catalog) {
		c.store = s
		c.ttl = ttl
	}
}

// WithFetchHook is called after every provider fetch with its error (nil on
// success).
func WithFetchHook(fn func(error)) Option {
	return func(c *Catalog) { c.onFetch = fn }
}

// Catalog is the process-wide voice list. The first ListVoices call fetches
// it; later calls are served from memory until Invalidate.
type Catalog struct {
	lister  Lister
	store   Store
	ttl     time.Duration
	onFetch func(error)

	group  singleflight.Group
	mu     sync.RWMutex
	voices []Voice
	// gen is bumped by Invalidate; a load started under an older gen does
	// not repopulate the cache.
	gen uint64
}

func NewCatalog(lister Lister, opts ...Option) *Catalog {
	c := &Catalog{lister: lister}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListVoices returns a copy of the catalog. It fails with an
// *UnavailableError when the provider call fails or returns no voices.
func (c *Catalog) ListVoices(ctx context.Context) ([]Voice, error) {
	if v, ok := c.cached(); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(catalogKey, func() (interface{}, error) {
		if v, ok := c.cached(); ok {
			return v, nil
		}
		return c.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(res.([]Voice)), nil
}

func (c *Catalog) cached() ([]Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.voices == nil {
		return nil, false
	}
	return slices.Clone(c.voices), true
}

func (c *Catalog) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

func (c *Catalog) load(ctx context.Context) ([]Voice, error) {
	gen := c.generation()

	if c.store != nil {
		var shared []Voice
		err := c.store.Get(ctx, catalogKey, &shared)
		if err == nil && len(shared) > 0 {
			c.remember(shared, gen)
			return shared, nil
		}
	}

	voices, err := c.lister.ListVoices(ctx)
	if err == nil && len(voices) == 0 {
		err = errors.New("provider returned no voices")
	}
	if c.onFetch != nil {
		c.onFetch(err)
	}
	if err != nil {
		slog.Error("voice catalog fetch failed", "error", err)
		return nil, &UnavailableError{Cause: err}
	}

	slog.Info("voice catalog fetched", "voices", len(voices))
	if !c.remember(voices, gen) {
		slog.Info("voice catalog invalidated during fetch, not cached")
		return voices, nil
	}
	if c.store != nil {
		if err := c.store.Set(ctx, catalogKey, voices, c.ttl); err != nil {
			slog.Warn("voice catalog not shared", "error", err)
		}
	}
	return voices, nil
}

// remember caches voices unless the catalog was invalidated since gen.
func (c *Catalog) remember(voices []Voice, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.voices = slices.Clone(voices)
	return true
}

// Invalidate drops the cached catalog so the next ListVoices refetches it.
// A fetch already in flight is not cached.
func (c *Catalog) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.voices = nil
	c.gen++
	c.mu.Unlock()
	c.group.Forget(catalogKey)
	if c.store != nil {
		return c.store.Delete(ctx, catalogKey)
	}
	return nil
}
