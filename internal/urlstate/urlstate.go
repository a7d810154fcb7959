// Package urlstate mirrors a session selection into a flat query string and back.
package urlstate

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"swapScope/internal/config"
	"swapScope/internal/model"
)

const (
	KeyAmount = "amount"
	KeyFrom   = "from"
	KeyTo     = "to"
)

// MaxAmount is the largest USD amount kept in the mirror.
const MaxAmount = "100000000000"

// Selection is the mirrored part of a session.
type Selection struct {
	Amount string
	Source *model.Token
	Target *model.Token
}

// ValidateAmount normalizes a raw USD amount. Unparseable, infinite or negative
// values become empty and anything above MaxAmount is capped.
func ValidateAmount(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return ""
	}
	if v > 1e11 {
		return MaxAmount
	}
	return raw
}

// EncodeToken writes the lowercased symbol, qualified with the chain id when the
// token's chain is not the first one configured for that symbol.
func EncodeToken(cat config.Catalog, t model.Token) string {
	symbol := strings.ToLower(t.Symbol)
	if first, ok := cat.FirstChainFor(t.Symbol); ok && first.ID == t.ChainID {
		return symbol
	}
	return symbol + ":" + t.ChainID
}

// DecodeToken resolves a mirrored token into its symbol-only catalog token.
func DecodeToken(cat config.Catalog, raw string) (model.Token, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Token{}, false
	}
	symbol, chainID, qualified := strings.Cut(raw, ":")
	if symbol == "" {
		return model.Token{}, false
	}
	if !qualified {
		chain, ok := cat.FirstChainFor(symbol)
		if !ok {
			return model.Token{}, false
		}
		chainID = chain.ID
	}
	return cat.BasicToken(chainID, symbol)
}

// Encode renders sel as query values. Unset fields are omitted.
func Encode(cat config.Catalog, sel Selection) url.Values {
	v := url.Values{}
	if amount := ValidateAmount(sel.Amount); amount != "" {
		v.Set(KeyAmount, amount)
	}
	if sel.Source != nil {
		v.Set(KeyFrom, EncodeToken(cat, *sel.Source))
	}
	if sel.Target != nil {
		v.Set(KeyTo, EncodeToken(cat, *sel.Target))
	}
	return v
}

// Decode reads a selection back. Missing, unknown or malformed values decode as unset.
func Decode(cat config.Catalog, v url.Values) Selection {
	sel := Selection{Amount: ValidateAmount(v.Get(KeyAmount))}
	if t, ok := DecodeToken(cat, v.Get(KeyFrom)); ok {
		sel.Source = &t
	}
	if t, ok := DecodeToken(cat, v.Get(KeyTo)); ok {
		sel.Target = &t
	}
	return sel
}

// Parse decodes a raw query string, tolerating garbage.
func Parse(cat config.Catalog, query string) Selection {
	v, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil && v == nil {
		return Selection{}
	}
	return Decode(cat, v)
}
