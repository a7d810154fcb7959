package model

import "strings"

// NativeAddress is the placeholder address used when pricing a chain's native asset.
const NativeAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// DefaultDecimals applies to tokens whose decimals are unknown.
const DefaultDecimals = 6

// Token is a selectable asset on a specific chain.
type Token struct {
	Symbol           string `json:"symbol"`
	ChainID          string `json:"chain_id"`
	Address          string `json:"address,omitempty"`
	Decimals         *int   `json:"decimals,omitempty"`
	DisplayName      string `json:"name"`
	ChainDisplayName string `json:"chain_name,omitempty"`
	IconRef          string `json:"icon,omitempty"`
}

// TokenKey identifies a token in the catalog.
type TokenKey struct {
	ChainID string
	Symbol  string
}

func (k TokenKey) String() string {
	return k.ChainID + ":" + k.Symbol
}

// Key returns the catalog identity of the token.
func (t Token) Key() TokenKey {
	return TokenKey{ChainID: t.ChainID, Symbol: strings.ToUpper(t.Symbol)}
}

// IsNative reports whether the token has no contract address.
func (t Token) IsNative() bool {
	return t.Address == ""
}

// PriceAddress returns the address used for price lookups.
func (t Token) PriceAddress() string {
	if t.IsNative() {
		return NativeAddress
	}
	return t.Address
}

// PriceKey returns the pricing identity of the token.
func (t Token) PriceKey() PriceKey {
	return PriceKey{ChainID: t.ChainID, Address: strings.ToLower(t.PriceAddress())}
}

// DecimalsOrDefault returns the token decimals, falling back to DefaultDecimals.
func (t Token) DecimalsOrDefault() int {
	if t.Decimals == nil || *t.Decimals < 0 {
		return DefaultDecimals
	}
	return *t.Decimals
}

// Enrich merges metadata into the token without touching its identity.
func (t Token) Enrich(meta TokenMeta) Token {
	out := t
	if meta.Address != "" {
		out.Address = meta.Address
	}
	if meta.Decimals != nil {
		d := *meta.Decimals
		out.Decimals = &d
	}
	if meta.Name != "" {
		out.DisplayName = meta.Name
	}
	if out.DisplayName == "" {
		out.DisplayName = t.Symbol
	}
	return out
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(v int) *int {
	return &v
}
