package catalog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swapScope/internal/config"
	"swapScope/internal/metrics"
	"swapScope/internal/model"
)

// MetadataGetter fetches metadata for one candidate.
type MetadataGetter interface {
	Get(ctx context.Context, chainID, symbol string) (model.TokenMeta, error)
}

// Pager accumulates catalog pages in order.
type Pager struct {
	candidates []model.Token
	pages      []PageRange
	meta       MetadataGetter
	logger     *zap.Logger

	mu       sync.Mutex
	loaded   int
	tokens   []model.Token
	seen     map[model.TokenKey]struct{}
	fetching bool
	err      error
	gen      int
}

// NewPager builds a pager over every configured pair.
func NewPager(cat config.Catalog, meta MetadataGetter, pageSize int, logger *zap.Logger) (*Pager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	candidates := Candidates(cat)
	pages, err := SplitPages(len(candidates), pageSize)
	if err != nil {
		return nil, err
	}
	return &Pager{
		candidates: candidates,
		pages:      pages,
		meta:       meta,
		logger:     logger,
		seen:       make(map[model.TokenKey]struct{}),
	}, nil
}

// FetchPage fetches page n without touching the accumulated catalog. Candidates
// whose metadata cannot be fetched are left out of the page.
func (p *Pager) FetchPage(ctx context.Context, n int) (model.CatalogPage, error) {
	if n < 0 || n >= len(p.pages) {
		return model.CatalogPage{}, fmt.Errorf("page %d out of range (%d pages)", n, len(p.pages))
	}
	r := p.pages[n]
	batch := p.candidates[r.Start:r.End]

	results := make([]*model.Token, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, basic := range batch {
		i, basic := i, basic
		g.Go(func() error {
			meta, err := p.meta.Get(gctx, basic.ChainID, basic.Symbol)
			if err != nil {
				p.logger.Warn("dropping catalog candidate",
					zap.String("symbol", basic.Symbol),
					zap.String("chain", basic.ChainDisplayName),
					zap.Error(err),
				)
				return nil
			}
			tok := basic.Enrich(meta)
			results[i] = &tok
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return model.CatalogPage{}, err
	}

	tokens := make([]model.Token, 0, len(batch))
	for _, tok := range results {
		if tok != nil {
			tokens = append(tokens, *tok)
		}
	}
	Sort(tokens)
	metrics.CatalogPage()

	page := model.CatalogPage{Tokens: tokens}
	if n+1 < len(p.pages) {
		next := n + 1
		page.NextPage = &next
	}
	return page, nil
}

// FetchNextPage fetches the next unloaded page and appends it. It reports false
// when there is no next page or a fetch is already in flight.
func (p *Pager) FetchNextPage(ctx context.Context) (model.CatalogPage, bool, error) {
	p.mu.Lock()
	if p.fetching || p.loaded >= len(p.pages) {
		p.mu.Unlock()
		return model.CatalogPage{}, false, nil
	}
	p.fetching = true
	n := p.loaded
	gen := p.gen
	p.mu.Unlock()

	page, err := p.FetchPage(ctx, n)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return page, true, err
	}
	p.fetching = false
	if err != nil {
		p.err = err
		return model.CatalogPage{}, true, err
	}
	p.err = nil
	p.loaded = n + 1
	for _, tok := range page.Tokens {
		if _, dup := p.seen[tok.Key()]; dup {
			continue
		}
		p.seen[tok.Key()] = struct{}{}
		p.tokens = append(p.tokens, tok)
	}
	p.logger.Debug("catalog page loaded",
		zap.Int("page", n),
		zap.Int("tokens", len(page.Tokens)),
		zap.Int("total_loaded", len(p.tokens)),
	)
	return page, true, nil
}

// HasNextPage reports whether unloaded pages remain.
func (p *Pager) HasNextPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded < len(p.pages)
}

// IsFetchingNextPage reports whether a page fetch is in flight.
func (p *Pager) IsFetchingNextPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetching
}

// IsLoading reports whether the first page is still being fetched.
func (p *Pager) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetching && p.loaded == 0
}

// Err returns the error of the last page fetch, if it failed.
func (p *Pager) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Tokens returns a copy of the accumulated catalog.
func (p *Pager) Tokens() []model.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Token(nil), p.tokens...)
}

// TotalLoaded is the number of accumulated tokens before any filter.
func (p *Pager) TotalLoaded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}

// PagesLoaded is the number of pages appended so far.
func (p *Pager) PagesLoaded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// TotalCandidates is the size of the configured cross product.
func (p *Pager) TotalCandidates() int {
	return len(p.candidates)
}

// Reset drops every loaded page so the sequence restarts from page 0.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.fetching = false
	p.loaded = 0
	p.tokens = nil
	p.seen = make(map[model.TokenKey]struct{})
	p.err = nil
}
