package cascade

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache registers a program cache used by the default evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.programCache = cache
	}
}

const defaultProgramCacheSize = 128

// NewLRUProgramCache returns a bounded ProgramCache. Sizes <= 0 fall back to
// a default capacity.
func NewLRUProgramCache(size int) (ProgramCache, error) {
	if size <= 0 {
		size = defaultProgramCacheSize
	}
	cache, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("cascade: program cache: %w", err)
	}
	return &lruProgramCache{cache: cache}, nil
}

type lruProgramCache struct {
	cache *lru.Cache[string, any]
}

func (c *lruProgramCache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

func (c *lruProgramCache) Set(key string, value any) {
	c.cache.Add(key, value)
}
