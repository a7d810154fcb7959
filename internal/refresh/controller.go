// Package refresh drives the countdown that periodically re-prices the
// selected token pair.
package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"swapScope/internal/metrics"
	"swapScope/internal/model"
)

// Phase is the controller state.
type Phase int

const (
	Idle Phase = iota
	Counting
	Refreshing
)

func (p Phase) String() string {
	switch p {
	case Counting:
		return "counting"
	case Refreshing:
		return "refreshing"
	default:
		return "idle"
	}
}

// State is what consumers observe. Countdown is zero while idle.
type State struct {
	Phase     Phase
	Countdown int
}

// Refreshing reports whether a refetch is in flight.
func (s State) Refreshing() bool {
	return s.Phase == Refreshing
}

// Pair is the active source/target selection.
type Pair struct {
	Source model.Token
	Target model.Token
}

func (p Pair) same(o Pair) bool {
	return p.Source.Key() == o.Source.Key() && p.Target.Key() == o.Target.Key() &&
		p.Source.PriceKey() == o.Source.PriceKey() && p.Target.PriceKey() == o.Target.PriceKey()
}

// RefreshFunc invalidates and refetches prices for a pair.
type RefreshFunc func(ctx context.Context, pair Pair) error

// Ticker abstracts time.Ticker so tests can drive ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Config for a Controller.
type Config struct {
	// Interval is the countdown length in whole seconds.
	Interval  int
	Tick      time.Duration
	NewTicker func(d time.Duration) Ticker
	// OnChange is called after every state transition, outside the lock.
	OnChange func(State)
}

// DefaultConfig counts down from 60 once per second.
func DefaultConfig() Config {
	return Config{Interval: 60, Tick: time.Second}
}

// Controller owns the countdown timer for one session.
type Controller struct {
	cfg     Config
	refresh RefreshFunc
	logger  *zap.Logger

	mu     sync.Mutex
	pair   *Pair
	state  State
	gen    uint64
	cancel context.CancelFunc
	manual chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New builds an idle controller.
func New(cfg Config, fn RefreshFunc, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }
	}
	return &Controller{cfg: cfg, refresh: fn, logger: logger}
}

// SetPair activates a pair, or returns to Idle when pair is nil. Setting the
// pair that is already active leaves the countdown untouched.
func (c *Controller) SetPair(pair *Pair) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if pair != nil && c.pair != nil && c.pair.same(*pair) {
		p := *pair
		c.pair = &p
		c.mu.Unlock()
		return
	}

	c.teardownLocked()
	if pair == nil {
		c.state = State{Phase: Idle}
		st := c.state
		c.mu.Unlock()
		c.notify(st)
		return
	}

	p := *pair
	c.pair = &p
	c.state = State{Phase: Counting, Countdown: c.cfg.Interval}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.manual = make(chan struct{}, 1)
	gen := c.gen
	manual := c.manual
	st := c.state
	c.wg.Add(1)
	c.mu.Unlock()

	go c.loop(ctx, gen, p, manual)
	c.notify(st)
}

// Refresh forces an immediate refetch and resets the countdown. It returns
// false when no pair is active. A refresh already in flight absorbs the call.
func (c *Controller) Refresh() bool {
	c.mu.Lock()
	if c.pair == nil || c.closed {
		c.mu.Unlock()
		return false
	}
	if c.state.Phase == Refreshing {
		c.mu.Unlock()
		return true
	}
	c.state = State{Phase: Refreshing, Countdown: c.cfg.Interval}
	st := c.state
	select {
	case c.manual <- struct{}{}:
	default:
	}
	c.mu.Unlock()

	c.notify(st)
	return true
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops the timer and waits for the loop to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.teardownLocked()
	c.state = State{Phase: Idle}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.pair = nil
	c.manual = nil
	c.gen++
}

func (c *Controller) loop(ctx context.Context, gen uint64, pair Pair, manual <-chan struct{}) {
	defer c.wg.Done()

	ticker := c.cfg.NewTicker(c.cfg.Tick)
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-manual:
			c.run(ctx, gen, pair, "manual")
		case <-ticker.C():
			if !c.tick(gen) {
				continue
			}
			c.run(ctx, gen, pair, "auto")
		}
		if ctx.Err() != nil {
			return
		}
		// Restart the tick phase so the next decrement is a full interval away.
		ticker.Stop()
		ticker = c.cfg.NewTicker(c.cfg.Tick)
	}
}

// tick advances the countdown and reports whether a refresh is due.
func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()
	if gen != c.gen || c.state.Phase != Counting {
		c.mu.Unlock()
		return false
	}
	due := c.state.Countdown <= 1
	if due {
		c.state = State{Phase: Refreshing, Countdown: c.cfg.Interval}
	} else {
		c.state.Countdown--
	}
	st := c.state
	c.mu.Unlock()

	c.notify(st)
	return due
}

func (c *Controller) run(ctx context.Context, gen uint64, pair Pair, trigger string) {
	metrics.Refresh(trigger)
	err := c.refresh(ctx, pair)
	if err != nil && ctx.Err() == nil {
		c.logger.Warn("price refresh failed",
			zap.String("trigger", trigger),
			zap.String("source", pair.Source.Key().String()),
			zap.String("target", pair.Target.Key().String()),
			zap.Error(err),
		)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = State{Phase: Counting, Countdown: c.cfg.Interval}
	st := c.state
	c.mu.Unlock()
	c.notify(st)
}

func (c *Controller) notify(st State) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(st)
	}
}
