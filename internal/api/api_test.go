package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"swapScope/internal/config"
	"swapScope/internal/metacache"
	"swapScope/internal/model"
	"swapScope/internal/pricecache"
	"swapScope/internal/refresh"
	"swapScope/internal/swap"
)

type stubPrices map[string]float64

func (s stubPrices) UnitPrice(_ context.Context, chainID, address string) (float64, error) {
	p, ok := s[chainID+":"+address]
	if !ok {
		return 0, errors.New("unknown asset")
	}
	return p, nil
}

type stubMeta struct{}

var stubAddresses = map[string]string{
	"1:USDC":   "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
	"1:WBTC":   "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599",
	"137:USDT": "0xc2132d05d31c914a87c6611c10748aeb04b58e8f",
}

func (stubMeta) ERC20Metadata(_ context.Context, chainID, symbol string) (model.TokenMeta, error) {
	if symbol == "ETH" {
		return model.TokenMeta{ChainID: chainID, Symbol: "ETH", Name: "Ether", Decimals: model.IntPtr(18)}, nil
	}
	addr, ok := stubAddresses[chainID+":"+symbol]
	if !ok {
		return model.TokenMeta{}, errors.New("unknown token")
	}
	decimals := 6
	if symbol == "WBTC" {
		decimals = 8
	}
	return model.TokenMeta{ChainID: chainID, Symbol: symbol, Name: symbol, Address: addr, Decimals: &decimals}, nil
}

type idleTicker struct{ ch chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	prices := stubPrices{}
	prices["1:"+stubAddresses["1:USDC"]] = 1
	prices["1:"+stubAddresses["1:WBTC"]] = 40000
	prices["137:"+stubAddresses["137:USDT"]] = 1
	prices["8453:"+model.NativeAddress] = 2000
	pc := pricecache.New(prices, pricecache.DefaultConfig(), nil)
	mc := metacache.New(stubMeta{}, metacache.DefaultConfig(), nil)

	rc := refresh.DefaultConfig()
	rc.NewTicker = func(time.Duration) refresh.Ticker { return idleTicker{ch: make(chan time.Time)} }

	srv, err := NewServer(ServerConfig{}, Deps{
		Quoter:            swap.NewQuoter(pc, nil),
		Metadata:          mc,
		Catalog:           config.DefaultCatalog(),
		PageSize:          3,
		InitialTokenCount: 3,
		Refresh:           rc,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Sessions().CloseAll()
	})
	return srv, ts
}

func doJSON(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	var body map[string]any
	if code := doJSON(t, http.MethodGet, ts.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if body["status"] != "healthy" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	var resp quoteResponse
	code := doJSON(t, http.MethodGet, ts.URL+"/v1/quote?amount=100&from=usdc&to=eth", &resp)
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if resp.Quote == nil || resp.Formatted == nil {
		t.Fatalf("missing quote: %+v", resp)
	}
	if resp.Formatted.SourceAmount != "100" || resp.Formatted.TargetAmount != "0.05" {
		t.Fatalf("unexpected formatting %+v", resp.Formatted)
	}
	if resp.Mirror != "amount=100&from=usdc&to=eth" {
		t.Fatalf("unexpected mirror %q", resp.Mirror)
	}
}

func TestQuoteEndpointRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t)
	for _, q := range []string{"amount=0&from=usdc&to=eth", "amount=10&from=doge&to=eth", "from=usdc&to=eth"} {
		var body map[string]string
		if code := doJSON(t, http.MethodGet, ts.URL+"/v1/quote?"+q, &body); code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, code)
		}
		if body["error"] == "" {
			t.Fatalf("%s: missing error message", q)
		}
	}
}

func TestTokensEndpointPages(t *testing.T) {
	_, ts := newTestServer(t)

	var first tokensResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/v1/tokens", &first); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(first.Tokens) != 3 || first.NextPage == nil || *first.NextPage != 1 || first.TotalCandidates != 4 {
		t.Fatalf("unexpected first page %+v", first)
	}

	var second tokensResponse
	doJSON(t, http.MethodGet, ts.URL+"/v1/tokens?page=1", &second)
	if len(second.Tokens) != 1 || second.Tokens[0].Symbol != "ETH" || second.NextPage != nil {
		t.Fatalf("unexpected second page %+v", second)
	}

	var filtered tokensResponse
	doJSON(t, http.MethodGet, ts.URL+"/v1/tokens?chain=1&exclude=usdc", &filtered)
	if len(filtered.Tokens) != 1 || filtered.Tokens[0].Symbol != "WBTC" {
		t.Fatalf("unexpected filtered page %+v", filtered)
	}

	if code := doJSON(t, http.MethodGet, ts.URL+"/v1/tokens?page=5", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, ts := newTestServer(t)

	var created sessionResponse
	code := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions?amount=100&from=usdc&to=eth", &created)
	if code != http.StatusCreated || created.ID == "" {
		t.Fatalf("create: status %d body %+v", code, created)
	}
	snap := created.Snapshot
	if snap.Status != swap.StatusReady || snap.Countdown != 60 || snap.Result == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	base := ts.URL + "/v1/sessions/" + created.ID

	var swapped sessionResponse
	if code := doJSON(t, http.MethodPost, base+"/swap", &swapped); code != http.StatusOK {
		t.Fatalf("swap: status %d", code)
	}
	if swapped.Snapshot.Mirror != "amount=100&from=eth&to=usdc" {
		t.Fatalf("unexpected mirror after swap %q", swapped.Snapshot.Mirror)
	}

	var refreshed sessionResponse
	if code := doJSON(t, http.MethodPost, base+"/refresh", &refreshed); code != http.StatusAccepted {
		t.Fatalf("refresh: status %d", code)
	}
	if refreshed.Snapshot.Countdown != 60 {
		t.Fatalf("refresh should reset countdown, got %d", refreshed.Snapshot.Countdown)
	}

	var updated sessionResponse
	doJSON(t, http.MethodPut, base+"?amount=5&from=usdt", &updated)
	if updated.Snapshot.Status != swap.StatusIdle || updated.Snapshot.Countdown != 0 {
		t.Fatalf("clearing target should idle the session: %+v", updated.Snapshot)
	}
	if code := doJSON(t, http.MethodPost, base+"/refresh", nil); code != http.StatusConflict {
		t.Fatalf("refresh without pair: expected 409, got %d", code)
	}

	if code := doJSON(t, http.MethodDelete, base, nil); code != http.StatusNoContent {
		t.Fatalf("delete: status %d", code)
	}
	if srv.Sessions().Len() != 0 {
		t.Fatalf("session not removed")
	}
	if code := doJSON(t, http.MethodGet, base, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

func TestSessionStream(t *testing.T) {
	_, ts := newTestServer(t)
	var created sessionResponse
	doJSON(t, http.MethodPost, ts.URL+"/v1/sessions?amount=100&from=usdc&to=eth", &created)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + created.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap swap.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if snap.Status != swap.StatusReady || snap.Mirror != "amount=100&from=usdc&to=eth" {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}

	resp, err := http.Post(ts.URL+"/v1/sessions/"+created.ID+"/swap", "application/json", nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	resp.Body.Close()

	for {
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if snap.Source != nil && snap.Source.Symbol == "ETH" && snap.Status == swap.StatusReady {
			break
		}
	}
}
