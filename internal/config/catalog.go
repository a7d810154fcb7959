package config

import (
	"strings"

	"swapScope/internal/model"
)

// Catalog is the static chain, symbol and icon configuration.
type Catalog struct {
	Chains  []model.Chain
	Symbols map[string][]string
	Icons   map[string]string
}

// DefaultCatalog returns the built-in supported chains and tokens.
func DefaultCatalog() Catalog {
	const iconBase = "https://cdn.jsdelivr.net/npm/cryptocurrency-icons@0.18.1/svg/color/"
	return Catalog{
		Chains: []model.Chain{
			{ID: "1", Name: "Ethereum", NativeSymbol: "ETH"},
			{ID: "137", Name: "Polygon", NativeSymbol: "MATIC"},
			{ID: "8453", Name: "Base", NativeSymbol: "ETH"},
		},
		Symbols: map[string][]string{
			"1":    {"USDC", "WBTC"},
			"137":  {"USDT"},
			"8453": {"ETH"},
		},
		Icons: map[string]string{
			"ETH":  iconBase + "eth.svg",
			"WBTC": iconBase + "btc.svg",
			"USDC": iconBase + "usdc.svg",
			"USDT": iconBase + "usdt.svg",
		},
	}
}

// Chain returns the chain with the given id.
func (c Catalog) Chain(id string) (model.Chain, bool) {
	for _, chain := range c.Chains {
		if chain.ID == id {
			return chain, true
		}
	}
	return model.Chain{}, false
}

// Supports reports whether symbol is configured on chain id.
func (c Catalog) Supports(chainID, symbol string) bool {
	symbol = strings.ToUpper(symbol)
	for _, s := range c.Symbols[chainID] {
		if strings.ToUpper(s) == symbol {
			return true
		}
	}
	return false
}

// FirstChainFor returns the first chain, in chain order, that supports symbol.
func (c Catalog) FirstChainFor(symbol string) (model.Chain, bool) {
	for _, chain := range c.Chains {
		if c.Supports(chain.ID, symbol) {
			return chain, true
		}
	}
	return model.Chain{}, false
}

// BasicToken builds the symbol-only token for a configured pair.
func (c Catalog) BasicToken(chainID, symbol string) (model.Token, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	chain, ok := c.Chain(chainID)
	if !ok || !c.Supports(chainID, symbol) {
		return model.Token{}, false
	}
	return model.Token{
		Symbol:           symbol,
		ChainID:          chain.ID,
		DisplayName:      symbol,
		ChainDisplayName: chain.Name,
		IconRef:          c.Icons[symbol],
	}, true
}

// NativeSymbols maps chain id to native asset symbol.
func (c Catalog) NativeSymbols() map[string]string {
	out := make(map[string]string, len(c.Chains))
	for _, chain := range c.Chains {
		out[chain.ID] = strings.ToUpper(chain.NativeSymbol)
	}
	return out
}
