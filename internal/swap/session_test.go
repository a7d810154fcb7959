package swap

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"swapScope/internal/config"
	"swapScope/internal/model"
	"swapScope/internal/refresh"
)

type fakePrices struct {
	mu          sync.Mutex
	prices      map[string]float64
	errs        map[string]error
	gates       map[string]chan struct{}
	invalidated []string
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		prices: map[string]float64{"USDC": 1, "ETH": 2000, "WBTC": 40000, "USDT": 1},
		errs:   map[string]error{},
		gates:  map[string]chan struct{}{},
	}
}

func (f *fakePrices) Get(ctx context.Context, token model.Token) (model.PriceRecord, error) {
	f.mu.Lock()
	gate := f.gates[token.Symbol]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.PriceRecord{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[token.Symbol]; err != nil {
		return model.PriceRecord{}, err
	}
	return model.PriceRecord{UnitPriceUSD: f.prices[token.Symbol], FetchedAtMs: 1}, nil
}

func (f *fakePrices) Invalidate(tokens ...model.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tokens {
		f.invalidated = append(f.invalidated, t.Symbol)
	}
}

func (f *fakePrices) invalidations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invalidated...)
}

type idleTicker struct{ ch chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

func newTestSession(t *testing.T, prices *fakePrices) *Session {
	t.Helper()
	rc := refresh.DefaultConfig()
	rc.NewTicker = func(time.Duration) refresh.Ticker { return idleTicker{ch: make(chan time.Time)} }
	s := NewSession(NewQuoter(prices, nil), config.DefaultCatalog(), rc, nil)
	t.Cleanup(s.Close)
	return s
}

func catalogToken(t *testing.T, chainID, symbol string, decimals int) *model.Token {
	t.Helper()
	tok, ok := config.DefaultCatalog().BasicToken(chainID, symbol)
	if !ok {
		t.Fatalf("unknown token %s on %s", symbol, chainID)
	}
	tok.Decimals = model.IntPtr(decimals)
	return &tok
}

func waitStatus(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := s.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out, last snapshot %+v", snap)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionQuotesSelection(t *testing.T) {
	s := newTestSession(t, newFakePrices())
	if snap := s.Snapshot(); snap.Status != StatusIdle || snap.Countdown != 0 {
		t.Fatalf("expected idle session, got %+v", snap)
	}

	s.Select("100", catalogToken(t, "1", "USDC", 6), catalogToken(t, "8453", "ETH", 18))
	s.Wait()

	snap := s.Snapshot()
	if snap.Status != StatusReady || snap.Result == nil {
		t.Fatalf("expected ready, got %+v", snap)
	}
	if snap.Result.Calculation.SourceAmount != 100 || snap.Result.Calculation.TargetAmount != 0.05 {
		t.Fatalf("unexpected amounts %+v", snap.Result.Calculation)
	}
	if snap.Countdown != 60 || snap.Refreshing {
		t.Fatalf("expected counting(60), got countdown=%d refreshing=%v", snap.Countdown, snap.Refreshing)
	}
	if snap.Mirror != "amount=100&from=usdc&to=eth" {
		t.Fatalf("unexpected mirror %q", snap.Mirror)
	}
}

func TestSessionSeparatesIdleAndValidation(t *testing.T) {
	s := newTestSession(t, newFakePrices())
	s.Select("", catalogToken(t, "1", "USDC", 6), catalogToken(t, "8453", "ETH", 18))
	s.Wait()
	if snap := s.Snapshot(); snap.Status != StatusIdle || snap.Error != "" {
		t.Fatalf("empty amount should be idle, got %+v", snap)
	}

	s.SetAmount("0")
	s.Wait()
	snap := s.Snapshot()
	if snap.Status != StatusError || snap.Result != nil {
		t.Fatalf("zero amount should be a validation error, got %+v", snap)
	}
	if !strings.Contains(snap.Error, "usd amount") {
		t.Fatalf("unexpected error %q", snap.Error)
	}

	s.SetTarget(nil)
	s.Wait()
	if snap := s.Snapshot(); snap.Status != StatusIdle || snap.Countdown != 0 {
		t.Fatalf("clearing a token should idle the session, got %+v", snap)
	}
}

func TestSessionSurfacesPriceError(t *testing.T) {
	prices := newFakePrices()
	prices.errs["ETH"] = &model.PriceFetchError{Symbol: "ETH", Err: errors.New("503")}
	s := newTestSession(t, prices)

	s.Select("10", catalogToken(t, "1", "USDC", 6), catalogToken(t, "8453", "ETH", 18))
	s.Wait()
	snap := s.Snapshot()
	if snap.Status != StatusError || snap.Error != "failed to fetch price for ETH: 503" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSessionDegenerateQuoteIsEmpty(t *testing.T) {
	prices := newFakePrices()
	prices.prices["USDC"] = 1e-320
	s := newTestSession(t, prices)

	s.Select("1e300", catalogToken(t, "1", "USDC", 6), catalogToken(t, "8453", "ETH", 18))
	s.Wait()
	snap := s.Snapshot()
	if snap.Status != StatusEmpty || snap.Result != nil || snap.Error != "" {
		t.Fatalf("expected empty result, got %+v", snap)
	}
}

func TestSessionSwapTokens(t *testing.T) {
	s := newTestSession(t, newFakePrices())
	if s.SwapTokens() {
		t.Fatalf("swap without a pair should be rejected")
	}
	s.Select("100", catalogToken(t, "1", "USDC", 6), catalogToken(t, "8453", "ETH", 18))
	if !s.SwapTokens() {
		t.Fatalf("swap rejected")
	}
	s.Wait()
	snap := s.Snapshot()
	if snap.Source.Symbol != "ETH" || snap.Target.Symbol != "USDC" {
		t.Fatalf("tokens not swapped: %+v", snap)
	}
	if snap.Result.Calculation.SourceAmount != 0.05 || snap.Mirror != "amount=100&from=eth&to=usdc" {
		t.Fatalf("unexpected swapped state %+v", snap)
	}
}

func TestSessionManualRefreshInvalidatesPair(t *testing.T) {
	prices := newFakePrices()
	s := newTestSession(t, prices)
	if s.Refresh() {
		t.Fatalf("refresh without a pair should be rejected")
	}
	s.Select("100", catalogToken(t, "1", "USDC", 6), catalogToken(t, "8453", "ETH", 18))
	s.Wait()

	prices.mu.Lock()
	prices.prices["ETH"] = 4000
	prices.mu.Unlock()

	if !s.Refresh() {
		t.Fatalf("refresh rejected")
	}
	snap := waitStatus(t, s, func(sn Snapshot) bool {
		return sn.Result != nil && sn.Result.Calculation.TargetAmount == 0.025 && !sn.Refreshing
	})
	if snap.Countdown != 60 {
		t.Fatalf("expected countdown 60, got %d", snap.Countdown)
	}
	got := prices.invalidations()
	if len(got) != 2 || got[0] != "USDC" || got[1] != "ETH" {
		t.Fatalf("unexpected invalidations %v", got)
	}
}

func TestSessionDropsLateResults(t *testing.T) {
	prices := newFakePrices()
	gate := make(chan struct{})
	prices.gates["ETH"] = gate
	s := newTestSession(t, prices)

	s.Select("100", catalogToken(t, "1", "USDC", 6), catalogToken(t, "8453", "ETH", 18))
	s.SetTarget(catalogToken(t, "1", "WBTC", 8))
	waitStatus(t, s, func(sn Snapshot) bool { return sn.Status == StatusReady })

	close(gate)
	s.Wait()
	snap := s.Snapshot()
	if snap.Target.Symbol != "WBTC" || snap.Result.Calculation.TargetToken.Symbol != "WBTC" {
		t.Fatalf("late result leaked into session: %+v", snap.Result)
	}
	if snap.Result.Calculation.TargetAmount != 0.0025 {
		t.Fatalf("unexpected target amount %v", snap.Result.Calculation.TargetAmount)
	}
}

func TestSessionConcurrentSelectAndWait(t *testing.T) {
	s := newTestSession(t, newFakePrices())
	usdc := catalogToken(t, "1", "USDC", 6)
	eth := catalogToken(t, "8453", "ETH", 18)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Select("100", usdc, eth)
				s.Wait()
			}
		}()
	}
	wg.Wait()
	s.Wait()

	snap := s.Snapshot()
	if snap.Status != StatusReady || snap.Result == nil {
		t.Fatalf("expected ready after concurrent updates, got %+v", snap)
	}
	if snap.Result.Calculation.TargetAmount != 0.05 {
		t.Fatalf("unexpected target amount %v", snap.Result.Calculation.TargetAmount)
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
}

type fakeEnricher struct{}

func (fakeEnricher) FetchOne(_ context.Context, basic model.Token) model.Token {
	return basic.Enrich(model.TokenMeta{Decimals: model.IntPtr(6), Name: basic.Symbol + " token"})
}

func TestSessionRestoreFromMirror(t *testing.T) {
	s := newTestSession(t, newFakePrices())
	s.Restore(context.Background(), "amount=5&from=usdt&to=eth&junk=1", fakeEnricher{})
	s.Wait()

	snap := s.Snapshot()
	if snap.Source == nil || snap.Source.ChainID != "137" || snap.Source.DisplayName != "USDT token" {
		t.Fatalf("source not restored: %+v", snap.Source)
	}
	if snap.Target == nil || snap.Target.ChainID != "8453" || snap.Target.ChainDisplayName != "Base" {
		t.Fatalf("target not restored: %+v", snap.Target)
	}
	if snap.Amount != "5" || snap.Status != StatusReady {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Mirror != "amount=5&from=usdt&to=eth" {
		t.Fatalf("mirror not stable: %q", snap.Mirror)
	}
}

func TestSessionSubscribersSeeChanges(t *testing.T) {
	s := newTestSession(t, newFakePrices())
	var mu sync.Mutex
	var seen []Status
	cancel := s.Subscribe(func(sn Snapshot) {
		mu.Lock()
		seen = append(seen, sn.Status)
		mu.Unlock()
	})
	s.Select("100", catalogToken(t, "1", "USDC", 6), catalogToken(t, "8453", "ETH", 18))
	s.Wait()
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[len(seen)-1] != StatusReady {
		t.Fatalf("unexpected notifications %v", seen)
	}
}
