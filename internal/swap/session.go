package swap

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"swapScope/internal/config"
	"swapScope/internal/metrics"
	"swapScope/internal/model"
	"swapScope/internal/refresh"
	"swapScope/internal/urlstate"
)

// Status separates "not ready", "loading", "error" and "no result" for consumers.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
	StatusEmpty   Status = "empty"
)

// Snapshot is a consistent view of a session.
type Snapshot struct {
	Status     Status       `json:"status"`
	Amount     string       `json:"amount"`
	Source     *model.Token `json:"source,omitempty"`
	Target     *model.Token `json:"target,omitempty"`
	Countdown  int          `json:"countdown"`
	Refreshing bool         `json:"refreshing"`
	Result     *model.Quote `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	Mirror     string       `json:"mirror"`
}

// Enricher fills in token metadata on a best-effort basis.
type Enricher interface {
	FetchOne(ctx context.Context, basic model.Token) model.Token
}

// Session owns the selection, countdown and latest quote of one explorer user.
type Session struct {
	quoter  *Quoter
	catalog config.Catalog
	ctl     *refresh.Controller
	logger  *zap.Logger

	// updateMu serializes selection changes so controller transitions follow them in order.
	updateMu sync.Mutex

	mu      sync.Mutex
	amount  string
	source  *model.Token
	target  *model.Token
	seq     uint64
	status  Status
	result  *model.Quote
	err     error
	subs    map[int]func(Snapshot)
	nextSub int
	closed  bool

	// inflight counts requotes started by selection changes; settled is
	// broadcast on mu when it drops to zero.
	inflight int
	settled  *sync.Cond
}

// NewSession builds an idle session. rc configures the auto-refresh countdown;
// its OnChange hook is taken over by the session.
func NewSession(q *Quoter, catalog config.Catalog, rc refresh.Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		quoter:  q,
		catalog: catalog,
		logger:  logger,
		status:  StatusIdle,
		subs:    make(map[int]func(Snapshot)),
	}
	s.settled = sync.NewCond(&s.mu)
	rc.OnChange = func(refresh.State) { s.notify() }
	s.ctl = refresh.New(rc, s.refreshPair, logger)
	metrics.SessionOpened()
	return s
}

// SetAmount updates the USD amount as typed by the user.
func (s *Session) SetAmount(amount string) {
	s.update(func() {
		s.amount = strings.TrimSpace(amount)
	})
}

// SetSource selects the token being sold. nil clears it.
func (s *Session) SetSource(t *model.Token) {
	s.update(func() {
		s.source = cloneToken(t)
	})
}

// SetTarget selects the token being bought. nil clears it.
func (s *Session) SetTarget(t *model.Token) {
	s.update(func() {
		s.target = cloneToken(t)
	})
}

// Select replaces the whole selection at once.
func (s *Session) Select(amount string, source, target *model.Token) {
	s.update(func() {
		s.amount = strings.TrimSpace(amount)
		s.source = cloneToken(source)
		s.target = cloneToken(target)
	})
}

// SwapTokens exchanges source and target. It reports false unless both are set.
func (s *Session) SwapTokens() bool {
	swapped := false
	s.update(func() {
		if s.source == nil || s.target == nil {
			return
		}
		s.source, s.target = s.target, s.source
		swapped = true
	})
	return swapped
}

// Restore applies a mirrored selection, enriching decoded tokens first.
func (s *Session) Restore(ctx context.Context, query string, enrich Enricher) {
	sel := urlstate.Parse(s.catalog, query)
	if enrich != nil {
		if sel.Source != nil {
			t := enrich.FetchOne(ctx, *sel.Source)
			sel.Source = &t
		}
		if sel.Target != nil {
			t := enrich.FetchOne(ctx, *sel.Target)
			sel.Target = &t
		}
	}
	s.Select(sel.Amount, sel.Source, sel.Target)
}

// Refresh triggers a manual refresh. It reports false when no pair is selected.
func (s *Session) Refresh() bool {
	return s.ctl.Refresh()
}

// Mirror returns the query string view of the current selection.
func (s *Session) Mirror() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirrorLocked()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every state change and returns its cancel func.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Wait blocks until quotes started by selection changes have settled.
func (s *Session) Wait() {
	s.mu.Lock()
	for s.inflight > 0 {
		s.settled.Wait()
	}
	s.mu.Unlock()
}

// Close tears down the countdown and drops subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = make(map[int]func(Snapshot))
	s.mu.Unlock()

	s.ctl.Close()
	s.Wait()
	metrics.SessionClosed()
}

func (s *Session) update(mutate func()) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	mutate()
	var pair *refresh.Pair
	if s.source != nil && s.target != nil {
		pair = &refresh.Pair{Source: *s.source, Target: *s.target}
	}
	s.inflight++
	s.mu.Unlock()

	s.ctl.SetPair(pair)
	go func() {
		defer s.settle()
		_ = s.requote(context.Background())
	}()
}

func (s *Session) settle() {
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 {
		s.settled.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Session) refreshPair(ctx context.Context, pair refresh.Pair) error {
	s.quoter.Invalidate(pair.Source, pair.Target)
	return s.requote(ctx)
}

// requote recomputes the quote for the current inputs. Results that arrive
// after a newer selection change are dropped.
func (s *Session) requote(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	source, target := cloneToken(s.source), cloneToken(s.target)
	amount := s.amount

	if source == nil || target == nil || amount == "" {
		s.status, s.result, s.err = StatusIdle, nil, nil
		s.mu.Unlock()
		s.notify()
		return nil
	}
	usd, err := parseUSD(amount)
	if err == nil {
		err = Validate(usd, source, target)
	}
	if err != nil {
		s.status, s.result, s.err = StatusError, nil, err
		s.mu.Unlock()
		s.notify()
		return err
	}
	s.status, s.err = StatusLoading, nil
	s.mu.Unlock()
	s.notify()

	quote, err := s.quoter.Quote(ctx, usd, source, target)

	s.mu.Lock()
	if seq != s.seq || s.closed {
		s.mu.Unlock()
		return err
	}
	switch {
	case err != nil:
		s.status, s.result, s.err = StatusError, nil, err
	case quote == nil:
		s.status, s.result, s.err = StatusEmpty, nil, nil
	default:
		s.status, s.result, s.err = StatusReady, quote, nil
	}
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Session) notify() {
	s.mu.Lock()
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	st := s.ctl.Snapshot()
	snap := Snapshot{
		Status:     s.status,
		Amount:     s.amount,
		Source:     cloneToken(s.source),
		Target:     cloneToken(s.target),
		Countdown:  st.Countdown,
		Refreshing: st.Refreshing(),
		Result:     s.result,
		Mirror:     s.mirrorLocked(),
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

func (s *Session) mirrorLocked() string {
	return urlstate.Encode(s.catalog, urlstate.Selection{
		Amount: s.amount,
		Source: s.source,
		Target: s.target,
	}).Encode()
}

func parseUSD(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &model.ValidationError{Field: "usd amount", Reason: "not a number"}
	}
	return v, nil
}

func cloneToken(t *model.Token) *model.Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
