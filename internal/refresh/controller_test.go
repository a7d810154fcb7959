package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"swapScope/internal/model"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type harness struct {
	ctl      *Controller
	tickers  chan *fakeTicker
	calls    atomic.Int32
	lastPair atomic.Value
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{tickers: make(chan *fakeTicker, 16)}
	cfg := DefaultConfig()
	cfg.NewTicker = func(time.Duration) Ticker {
		tk := &fakeTicker{ch: make(chan time.Time)}
		h.tickers <- tk
		return tk
	}
	h.ctl = New(cfg, func(_ context.Context, p Pair) error {
		h.lastPair.Store(p)
		h.calls.Add(1)
		return nil
	}, nil)
	t.Cleanup(h.ctl.Close)
	return h
}

func (h *harness) nextTicker(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-h.tickers:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatalf("ticker was not created")
		return nil
	}
}

func (h *harness) waitFor(t *testing.T, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := h.ctl.Snapshot()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, state %+v", what, st)
		}
		time.Sleep(time.Millisecond)
	}
}

func tick(t *testing.T, tk *fakeTicker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case tk.ch <- time.Now():
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d not consumed", i)
		}
	}
}

var testPair = &Pair{
	Source: model.Token{Symbol: "USDC", ChainID: "1"},
	Target: model.Token{Symbol: "ETH", ChainID: "8453"},
}

func TestIdleUntilPairSelected(t *testing.T) {
	h := newHarness(t)
	if st := h.ctl.Snapshot(); st.Phase != Idle || st.Countdown != 0 {
		t.Fatalf("expected idle, got %+v", st)
	}
	if h.ctl.Refresh() {
		t.Fatalf("refresh without a pair should be rejected")
	}

	h.ctl.SetPair(testPair)
	if st := h.ctl.Snapshot(); st.Phase != Counting || st.Countdown != 60 {
		t.Fatalf("expected counting(60), got %+v", st)
	}
}

func TestCountdownTriggersRefreshAtOne(t *testing.T) {
	h := newHarness(t)
	h.ctl.SetPair(testPair)
	tk := h.nextTicker(t)

	tick(t, tk, 59)
	h.waitFor(t, "countdown 1", func(s State) bool { return s.Countdown == 1 })
	if h.calls.Load() != 0 {
		t.Fatalf("refreshed too early")
	}

	tick(t, tk, 1)
	next := h.nextTicker(t)
	st := h.waitFor(t, "counting after refresh", func(s State) bool { return s.Phase == Counting })
	if st.Countdown != 60 {
		t.Fatalf("expected countdown reset to 60, got %d", st.Countdown)
	}
	if got := h.calls.Load(); got != 1 {
		t.Fatalf("expected 1 refresh, got %d", got)
	}
	if p := h.lastPair.Load().(Pair); !p.same(*testPair) {
		t.Fatalf("refreshed wrong pair %+v", p)
	}
	if !tk.stopped.Load() {
		t.Fatalf("old ticker should be stopped")
	}

	tick(t, next, 1)
	h.waitFor(t, "countdown 59", func(s State) bool { return s.Countdown == 59 })
}

func TestCountdownStaysInRange(t *testing.T) {
	h := newHarness(t)
	var bad atomic.Int32
	h.ctl.cfg.OnChange = func(s State) {
		if s.Phase != Idle && (s.Countdown < 1 || s.Countdown > 60) {
			bad.Add(1)
		}
	}
	h.ctl.SetPair(testPair)
	tk := h.nextTicker(t)
	tick(t, tk, 60)
	tk = h.nextTicker(t)
	tick(t, tk, 60)
	h.nextTicker(t)
	h.waitFor(t, "second refresh", func(s State) bool { return s.Phase == Counting && s.Countdown == 60 })
	if bad.Load() != 0 {
		t.Fatalf("countdown left [1,60] %d times", bad.Load())
	}
	if got := h.calls.Load(); got != 2 {
		t.Fatalf("expected 2 refreshes, got %d", got)
	}
}

func TestManualRefreshResetsCountdown(t *testing.T) {
	h := newHarness(t)
	h.ctl.SetPair(testPair)
	tk := h.nextTicker(t)

	tick(t, tk, 23)
	h.waitFor(t, "countdown 37", func(s State) bool { return s.Countdown == 37 })

	if !h.ctl.Refresh() {
		t.Fatalf("manual refresh rejected")
	}
	h.nextTicker(t)
	st := h.waitFor(t, "refresh done", func(s State) bool { return s.Phase == Counting })
	if st.Countdown != 60 {
		t.Fatalf("expected 60, got %d", st.Countdown)
	}
	if got := h.calls.Load(); got != 1 {
		t.Fatalf("expected immediate refetch, got %d calls", got)
	}
}

func TestClearingPairStopsTimer(t *testing.T) {
	h := newHarness(t)
	h.ctl.SetPair(testPair)
	tk := h.nextTicker(t)
	tick(t, tk, 5)

	h.ctl.SetPair(nil)
	if st := h.ctl.Snapshot(); st.Phase != Idle || st.Countdown != 0 {
		t.Fatalf("expected idle, got %+v", st)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !tk.stopped.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("ticker not stopped")
		}
		time.Sleep(time.Millisecond)
	}
	if h.calls.Load() != 0 {
		t.Fatalf("no refresh expected")
	}
}

func TestSamePairKeepsCountdown(t *testing.T) {
	h := newHarness(t)
	h.ctl.SetPair(testPair)
	tk := h.nextTicker(t)
	tick(t, tk, 10)
	h.waitFor(t, "countdown 50", func(s State) bool { return s.Countdown == 50 })

	same := *testPair
	h.ctl.SetPair(&same)
	if st := h.ctl.Snapshot(); st.Countdown != 50 {
		t.Fatalf("expected countdown kept, got %+v", st)
	}

	other := Pair{Source: testPair.Source, Target: model.Token{Symbol: "USDT", ChainID: "137"}}
	h.ctl.SetPair(&other)
	if st := h.ctl.Snapshot(); st.Countdown != 60 {
		t.Fatalf("expected restart at 60, got %+v", st)
	}
}

func TestSamePairIsCopied(t *testing.T) {
	h := newHarness(t)
	first := *testPair
	h.ctl.SetPair(&first)
	tk := h.nextTicker(t)
	tick(t, tk, 10)
	h.waitFor(t, "countdown 50", func(s State) bool { return s.Countdown == 50 })

	again := *testPair
	h.ctl.SetPair(&again)
	again.Target = model.Token{Symbol: "USDT", ChainID: "137"}

	h.ctl.SetPair(testPair)
	if st := h.ctl.Snapshot(); st.Countdown != 50 {
		t.Fatalf("caller mutation leaked into controller pair: %+v", st)
	}
}
