package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXPLORER_API_KEY", "from-env")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Fatalf("env not applied: %q", cfg.APIKey)
	}
	if cfg.PriceStale != 60*time.Second || cfg.MetaStale != 5*time.Minute || cfg.MetaEvict != 15*time.Minute {
		t.Fatalf("unexpected cache windows: %+v", cfg)
	}
	if cfg.PageSize != 3 || cfg.InitialTokenCount != 3 || cfg.RefreshSeconds() != 60 {
		t.Fatalf("unexpected paging/refresh defaults: %+v", cfg)
	}
	if len(cfg.Catalog.Chains) != 3 || cfg.Catalog.Chains[0].Name != "Ethereum" {
		t.Fatalf("unexpected default catalog: %+v", cfg.Catalog.Chains)
	}
}

func TestLoadFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
chains:
  - id: 10
    name: Optimism
    native_symbol: eth
tokens:
  "10": [usdc, op]
icons:
  op: https://example.com/op.svg
token-addresses:
  "10":
    usdc: "0x0b2c639c533813f4aa9d7837caf62653d097ff85"
rpc:
  "10": https://rpc.example.org
metadata-source: onchain
page-size: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("page-size", 3, "")
	if err := flags.Parse([]string{"--page-size", "7"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PageSize != 7 {
		t.Fatalf("flag should override file, got %d", cfg.PageSize)
	}
	if cfg.MetadataSource != "onchain" || cfg.RPC["10"] != "https://rpc.example.org" {
		t.Fatalf("unexpected source settings: %+v", cfg)
	}
	if got := cfg.TokenAddresses["10"]["USDC"]; got != "0x0b2c639c533813f4aa9d7837caf62653d097ff85" {
		t.Fatalf("unexpected token address: %q", got)
	}

	cat := cfg.Catalog
	if len(cat.Chains) != 1 || cat.Chains[0].ID != "10" || cat.Chains[0].NativeSymbol != "ETH" {
		t.Fatalf("unexpected chains: %+v", cat.Chains)
	}
	if !cat.Supports("10", "op") || cat.Icons["OP"] != "https://example.com/op.svg" {
		t.Fatalf("unexpected symbols/icons: %+v %+v", cat.Symbols, cat.Icons)
	}
}

func TestValidateRejectsUnknownSource(t *testing.T) {
	cfg := Config{PageSize: 3, RefreshInterval: time.Minute, MetadataSource: "graph", Catalog: DefaultCatalog()}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestCatalogLookups(t *testing.T) {
	cat := DefaultCatalog()

	chain, ok := cat.FirstChainFor("eth")
	if !ok || chain.ID != "8453" {
		t.Fatalf("expected Base for ETH, got %+v", chain)
	}

	tok, ok := cat.BasicToken("137", "usdt")
	if !ok || tok.Symbol != "USDT" || tok.ChainDisplayName != "Polygon" || tok.IconRef == "" {
		t.Fatalf("unexpected basic token: %+v", tok)
	}

	if _, ok := cat.BasicToken("137", "USDC"); ok {
		t.Fatalf("USDC is not configured on Polygon")
	}
	if cat.NativeSymbols()["137"] != "MATIC" {
		t.Fatalf("unexpected native symbols: %+v", cat.NativeSymbols())
	}
}
