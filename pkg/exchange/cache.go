package exchange

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cardstack/scheduled-payment-crank/pkg/metrics"
)

// RateSource is anything that quotes USD rates
type RateSource interface {
	ExchangeRateOf(ctx context.Context, token common.Address) (*big.Int, *big.Int, error)
}

// RateCache manages cached exchange rates to avoid repeated oracle calls
type RateCache struct {
	mu       sync.RWMutex
	cache    map[common.Address]*cachedRate
	cacheTTL time.Duration
	now      func() time.Time
}

// cachedRate represents a cached rate with timestamp
type cachedRate struct {
	rate      *big.Int
	base      *big.Int
	timestamp time.Time
}

// NewRateCache creates a new rate cache
func NewRateCache(cacheTTL time.Duration) *RateCache {
	return &RateCache{
		cache:    make(map[common.Address]*cachedRate),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Get retrieves a cached rate if it's still valid
func (c *RateCache) Get(token common.Address) (*big.Int, *big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[token]
	if !exists {
		return nil, nil, false
	}

	// Check if cache is still valid
	if c.now().Sub(cached.timestamp) > c.cacheTTL {
		return nil, nil, false
	}

	return new(big.Int).Set(cached.rate), new(big.Int).Set(cached.base), true
}

// Set stores a rate in the cache with current timestamp
func (c *RateCache) Set(token common.Address, rate, base *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[token] = &cachedRate{
		rate:      new(big.Int).Set(rate),
		base:      new(big.Int).Set(base),
		timestamp: c.now(),
	}
}

// Clear removes all cached entries
func (c *RateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[common.Address]*cachedRate)
}

// Stats returns the number of entries and the TTL
func (c *RateCache) Stats() (int, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache), c.cacheTTL
}

// CachedSource serves rates from a cache and falls back to the wrapped source
type CachedSource struct {
	Source RateSource
	Cache  *RateCache
}

// NewCachedSource wraps source with a cache of the given TTL
func NewCachedSource(source RateSource, ttl time.Duration) *CachedSource {
	return &CachedSource{Source: source, Cache: NewRateCache(ttl)}
}

func (s *CachedSource) ExchangeRateOf(ctx context.Context, token common.Address) (*big.Int, *big.Int, error) {
	if rate, base, ok := s.Cache.Get(token); ok {
		metrics.RateCacheLookups.WithLabelValues("hit").Inc()
		return rate, base, nil
	}
	metrics.RateCacheLookups.WithLabelValues("miss").Inc()
	return s.Refresh(ctx, token)
}

// Refresh fetches a fresh rate and stores it
func (s *CachedSource) Refresh(ctx context.Context, token common.Address) (*big.Int, *big.Int, error) {
	rate, base, err := s.Source.ExchangeRateOf(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	s.Cache.Set(token, rate, base)
	return rate, base, nil
}
