package catalog

import (
	"context"
	"sync"

	"swapScope/internal/config"
	"swapScope/internal/metacache"
	"swapScope/internal/model"
)

// MetadataLookup is the non-blocking side of the metadata cache.
type MetadataLookup interface {
	Lookup(ctx context.Context, chainID, symbol string, enabled bool) metacache.State
}

// Entry is one selectable token together with its enrichment status.
type Entry struct {
	Token    model.Token `json:"token"`
	Enriched bool        `json:"enriched"`
	Loading  bool        `json:"loading"`
	Failed   bool        `json:"failed"`
}

// LazyList enriches the first few candidates eagerly and the rest only once
// Expand has been called.
type LazyList struct {
	candidates []model.Token
	eager      int
	meta       MetadataLookup

	mu       sync.Mutex
	expanded bool
}

func NewLazyList(cat config.Catalog, meta MetadataLookup, eager int) *LazyList {
	if eager < 0 {
		eager = 0
	}
	return &LazyList{candidates: Candidates(cat), eager: eager, meta: meta}
}

// Expand opens the on-demand tier.
func (l *LazyList) Expand() {
	l.mu.Lock()
	l.expanded = true
	l.mu.Unlock()
}

// Collapse closes the on-demand tier again. Metadata already fetched stays cached.
func (l *LazyList) Collapse() {
	l.mu.Lock()
	l.expanded = false
	l.mu.Unlock()
}

func (l *LazyList) Expanded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expanded
}

// Entries reports every candidate, starting background fetches for the tiers
// that are enabled.
func (l *LazyList) Entries(ctx context.Context) []Entry {
	expanded := l.Expanded()
	out := make([]Entry, 0, len(l.candidates))
	for i, basic := range l.candidates {
		enabled := i < l.eager || expanded
		st := l.meta.Lookup(ctx, basic.ChainID, basic.Symbol, enabled)
		e := Entry{Token: basic, Loading: st.IsLoading, Failed: st.IsError && !st.Found}
		if st.Found {
			e.Token = basic.Enrich(st.Data)
			e.Enriched = true
		}
		out = append(out, e)
	}
	return out
}
