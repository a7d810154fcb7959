package pricecache

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"swapScope/internal/metrics"
	"swapScope/internal/model"
	"swapScope/internal/retry"
	"swapScope/internal/source"
)

// Config controls staleness, eviction and retry behaviour.
type Config struct {
	// StaleAfter is how long a successful fetch is served without refetching.
	StaleAfter time.Duration
	// EvictAfter removes entries not accessed for this long.
	EvictAfter time.Duration
	Retry      retry.Policy
	Now        func() time.Time
}

// DefaultConfig returns a 60s staleness window, 5 minute eviction and
// two retries backing off from 1s to at most 5s.
func DefaultConfig() Config {
	return Config{
		StaleAfter: 60 * time.Second,
		EvictAfter: 5 * time.Minute,
		Retry:      retry.Exponential(2, time.Second, 5*time.Second),
	}
}

type entry struct {
	record     model.PriceRecord
	fetchedAt  time.Time
	lastAccess time.Time
}

// Cache memoizes unit prices per (chain id, address) and coalesces concurrent fetches.
type Cache struct {
	src    source.PriceSource
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	entries map[model.PriceKey]*entry
	group   singleflight.Group
}

// New builds a price cache over src.
func New(src source.PriceSource, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 60 * time.Second
	}
	if cfg.EvictAfter <= 0 {
		cfg.EvictAfter = 5 * time.Minute
	}
	cfg.Retry.Retryable = isRetryable
	return &Cache{
		src:     src,
		cfg:     cfg,
		logger:  logger,
		entries: make(map[model.PriceKey]*entry),
	}
}

// Get returns the unit price for token, fetching it when missing or stale.
func (c *Cache) Get(ctx context.Context, token model.Token) (model.PriceRecord, error) {
	if token.ChainID == "" {
		return model.PriceRecord{}, &model.ValidationError{Field: "token", Reason: "missing chain id for " + token.Symbol}
	}
	key := token.PriceKey()

	if rec, ok := c.fresh(key); ok {
		metrics.CacheLookup("price", "hit")
		return rec, nil
	}

	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		// The fetch outlives any single caller so joined waiters are not failed by one departure.
		return c.fetch(context.WithoutCancel(ctx), key, token.Symbol)
	})

	select {
	case <-ctx.Done():
		return model.PriceRecord{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheLookup("price", "shared")
		} else {
			metrics.CacheLookup("price", "miss")
		}
		if res.Err != nil {
			return model.PriceRecord{}, res.Err
		}
		return res.Val.(model.PriceRecord), nil
	}
}

// Peek returns the cached record for token regardless of staleness.
func (c *Cache) Peek(token model.Token) (model.PriceRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token.PriceKey()]
	if !ok {
		return model.PriceRecord{}, false
	}
	return e.record, true
}

// Invalidate drops cached prices for the given tokens so the next Get refetches.
// A fetch already in flight for a key is joined rather than duplicated.
func (c *Cache) Invalidate(tokens ...model.Token) {
	c.mu.Lock()
	for _, token := range tokens {
		delete(c.entries, token.PriceKey())
	}
	c.mu.Unlock()
}

// Sweep evicts entries that have not been accessed within EvictAfter.
// It returns the number of evicted entries.
func (c *Cache) Sweep() int {
	now := c.cfg.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.entries {
		if now.Sub(e.lastAccess) > c.cfg.EvictAfter {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RunJanitor sweeps the cache every interval until ctx is done.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("price cache sweep", zap.Int("evicted", n))
			}
		}
	}
}

func (c *Cache) fresh(key model.PriceKey) (model.PriceRecord, bool) {
	now := c.cfg.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return model.PriceRecord{}, false
	}
	e.lastAccess = now
	if now.Sub(e.fetchedAt) >= c.cfg.StaleAfter {
		return model.PriceRecord{}, false
	}
	return e.record, true
}

func (c *Cache) fetch(ctx context.Context, key model.PriceKey, symbol string) (model.PriceRecord, error) {
	var price float64
	attempts, err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		var err error
		price, err = c.src.UnitPrice(ctx, key.ChainID, key.Address)
		if err != nil {
			c.logger.Warn("price fetch failed",
				zap.String("symbol", symbol),
				zap.String("chain_id", key.ChainID),
				zap.String("address", key.Address),
				zap.Error(err),
			)
			return err
		}
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			return retry.Permanent(model.InvalidPrice(symbol, price))
		}
		return nil
	})
	if err != nil {
		return model.PriceRecord{}, classify(symbol, err)
	}

	now := c.cfg.Now()
	rec := model.PriceRecord{UnitPriceUSD: price, FetchedAtMs: now.UnixMilli()}

	c.mu.Lock()
	c.entries[key] = &entry{record: rec, fetchedAt: now, lastAccess: now}
	c.mu.Unlock()

	c.logger.Debug("price fetched",
		zap.String("symbol", symbol),
		zap.String("chain_id", key.ChainID),
		zap.Float64("unit_price_usd", price),
		zap.Int("attempts", attempts),
	)
	return rec, nil
}

func classify(symbol string, err error) error {
	var perr *model.PriceFetchError
	if errors.As(err, &perr) {
		return perr
	}
	var nonNumeric *source.NonNumericPriceError
	if errors.As(err, &nonNumeric) {
		return &model.PriceFetchError{Symbol: symbol, Value: nonNumeric.Raw, Invalid: true, Err: err}
	}
	return &model.PriceFetchError{Symbol: symbol, Err: err}
}

func isRetryable(err error) bool {
	if model.IsValidation(err) {
		return false
	}
	var nonNumeric *source.NonNumericPriceError
	return !errors.As(err, &nonNumeric)
}
