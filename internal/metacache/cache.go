package metacache

import (
	"context"
	"strings"
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
	StaleAfter time.Duration
	EvictAfter time.Duration
	Retry      retry.Policy
	Now        func() time.Time
}

// DefaultConfig returns a 5 minute staleness window, 15 minute eviction and
// two retries one second apart.
func DefaultConfig() Config {
	return Config{
		StaleAfter: 5 * time.Minute,
		EvictAfter: 15 * time.Minute,
		Retry:      retry.Fixed(2, time.Second),
	}
}

// State is the observable status of a metadata lookup.
type State struct {
	Data      model.TokenMeta
	Found     bool
	IsLoading bool
	IsError   bool
	Err       error
}

type entry struct {
	meta       model.TokenMeta
	found      bool
	fetchedAt  time.Time
	err        error
	failedAt   time.Time
	loading    bool
	lastAccess time.Time
}

// Cache memoizes token metadata per (chain id, symbol).
type Cache struct {
	src    source.MetadataSource
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	entries map[model.TokenKey]*entry
	group   singleflight.Group
}

// New builds a metadata cache over src.
func New(src source.MetadataSource, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.EvictAfter <= 0 {
		cfg.EvictAfter = 15 * time.Minute
	}
	cfg.Retry.Retryable = func(err error) bool { return !model.IsValidation(err) }
	return &Cache{
		src:     src,
		cfg:     cfg,
		logger:  logger,
		entries: make(map[model.TokenKey]*entry),
	}
}

func keyOf(chainID, symbol string) model.TokenKey {
	return model.TokenKey{ChainID: strings.TrimSpace(chainID), Symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

// Get returns metadata for symbol on chainID, fetching it when missing or stale.
func (c *Cache) Get(ctx context.Context, chainID, symbol string) (model.TokenMeta, error) {
	key := keyOf(chainID, symbol)
	if key.ChainID == "" || key.Symbol == "" {
		return model.TokenMeta{}, &model.ValidationError{Field: "token", Reason: "missing chainId or symbol"}
	}

	if meta, ok := c.fresh(key); ok {
		metrics.CacheLookup("metadata", "hit")
		return meta, nil
	}

	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		return c.fetch(context.WithoutCancel(ctx), key)
	})

	select {
	case <-ctx.Done():
		return model.TokenMeta{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheLookup("metadata", "shared")
		} else {
			metrics.CacheLookup("metadata", "miss")
		}
		if res.Err != nil {
			return model.TokenMeta{}, res.Err
		}
		return res.Val.(model.TokenMeta), nil
	}
}

// Lookup reports the current state for a key without blocking. When enabled and
// the entry is missing or stale, a background fetch is started.
func (c *Cache) Lookup(ctx context.Context, chainID, symbol string, enabled bool) State {
	key := keyOf(chainID, symbol)
	if key.ChainID == "" || key.Symbol == "" {
		return State{}
	}

	now := c.cfg.Now()
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		if !enabled {
			c.mu.Unlock()
			return State{}
		}
		c.entries[key] = e
	}
	e.lastAccess = now

	state := State{Data: e.meta, Found: e.found, IsLoading: e.loading, Err: e.err, IsError: e.err != nil}
	freshData := e.found && now.Sub(e.fetchedAt) < c.cfg.StaleAfter
	recentFailure := e.err != nil && now.Sub(e.failedAt) < c.cfg.StaleAfter
	start := enabled && !e.loading && !freshData && !recentFailure
	if start {
		e.loading = true
		state.IsLoading = true
	}
	c.mu.Unlock()

	if start {
		bg := context.WithoutCancel(ctx)
		go func() {
			_, _ = c.Get(bg, key.ChainID, key.Symbol)
		}()
	}
	return state
}

// FetchOne enriches basic with cached or freshly fetched metadata. On failure the
// input token is returned unchanged.
func (c *Cache) FetchOne(ctx context.Context, basic model.Token) model.Token {
	meta, err := c.Get(ctx, basic.ChainID, basic.Symbol)
	if err != nil {
		c.logger.Warn("token metadata unavailable, using basic token",
			zap.String("symbol", basic.Symbol),
			zap.String("chain", basic.ChainDisplayName),
			zap.Error(err),
		)
		return basic
	}
	return basic.Enrich(meta)
}

// Sweep evicts entries not accessed within EvictAfter. In-flight entries are kept.
func (c *Cache) Sweep() int {
	now := c.cfg.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.entries {
		if !e.loading && now.Sub(e.lastAccess) > c.cfg.EvictAfter {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
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
				c.logger.Debug("metadata cache sweep", zap.Int("evicted", n))
			}
		}
	}
}

func (c *Cache) fresh(key model.TokenKey) (model.TokenMeta, bool) {
	now := c.cfg.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return model.TokenMeta{}, false
	}
	e.lastAccess = now
	if !e.found || now.Sub(e.fetchedAt) >= c.cfg.StaleAfter {
		return model.TokenMeta{}, false
	}
	return e.meta, true
}

func (c *Cache) fetch(ctx context.Context, key model.TokenKey) (model.TokenMeta, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.loading = true
	c.mu.Unlock()

	var meta model.TokenMeta
	_, err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		var err error
		meta, err = c.src.ERC20Metadata(ctx, key.ChainID, key.Symbol)
		if err != nil {
			c.logger.Warn("metadata fetch failed",
				zap.String("symbol", key.Symbol),
				zap.String("chain_id", key.ChainID),
				zap.Error(err),
			)
		}
		return err
	})

	now := c.cfg.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok = c.entries[key]
	if !ok {
		e = &entry{lastAccess: now}
		c.entries[key] = e
	}
	e.loading = false

	if err != nil {
		e.err = &model.MetadataFetchError{ChainID: key.ChainID, Symbol: key.Symbol, Err: err}
		e.failedAt = now
		return model.TokenMeta{}, e.err
	}

	if meta.Symbol == "" {
		meta.Symbol = key.Symbol
	}
	if meta.Name == "" {
		meta.Name = meta.Symbol
	}
	meta.ChainID = key.ChainID
	e.meta = meta
	e.found = true
	e.fetchedAt = now
	e.err = nil
	e.lastAccess = now
	return meta, nil
}
