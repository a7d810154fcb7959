package catalog

import (
	"context"
	"sync"

	"swapScope/internal/model"
)

// Range is an inclusive window of visible indexes.
type Range struct {
	Start int
	End   int
}

// WindowTracker follows the visible slice of the filtered catalog and pulls
// the next page in when the window nears the end of what is loaded.
type WindowTracker struct {
	pager    *Pager
	pageSize int

	mu      sync.Mutex
	chainID string
	exclude *model.Token
	visible Range
}

func NewWindowTracker(pager *Pager, pageSize int) *WindowTracker {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &WindowTracker{pager: pager, pageSize: pageSize, visible: Range{Start: 0, End: pageSize}}
}

// Threshold is how many items from the end of the loaded list a window may
// reach before the next page is requested.
func (w *WindowTracker) Threshold() int {
	return max(1, w.pageSize*7/10)
}

// SetFilter changes the post-filters. A new chain resets the visible window.
func (w *WindowTracker) SetFilter(chainID string, exclude *model.Token) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if chainID != w.chainID {
		w.visible = Range{Start: 0, End: w.pageSize}
	}
	w.chainID = chainID
	if exclude != nil {
		ex := *exclude
		w.exclude = &ex
	} else {
		w.exclude = nil
	}
}

// Filtered returns the accumulated catalog after the post-filters.
func (w *WindowTracker) Filtered() []model.Token {
	w.mu.Lock()
	chainID, exclude := w.chainID, w.exclude
	w.mu.Unlock()
	return Filter(w.pager.Tokens(), chainID, exclude)
}

// OnScroll records the visible window and fetches the next page when end is
// within Threshold of the filtered list's end. It reports whether a page was fetched.
func (w *WindowTracker) OnScroll(ctx context.Context, start, end int) (bool, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	w.mu.Lock()
	w.visible = Range{Start: start, End: end}
	w.mu.Unlock()

	if end < len(w.Filtered())-w.Threshold() {
		return false, nil
	}
	if !w.pager.HasNextPage() || w.pager.IsFetchingNextPage() {
		return false, nil
	}
	_, fetched, err := w.pager.FetchNextPage(ctx)
	return fetched, err
}

// Visible returns the current window.
func (w *WindowTracker) Visible() Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// VisibleTokens slices the filtered catalog by the current window, end inclusive.
func (w *WindowTracker) VisibleTokens() []model.Token {
	tokens := w.Filtered()
	r := w.Visible()
	if r.Start >= len(tokens) {
		return []model.Token{}
	}
	end := min(r.End+1, len(tokens))
	return tokens[r.Start:end]
}
