// Package catalog pages through the configured (chain, symbol) pairs and
// enriches them into selectable tokens.
package catalog

import (
	"fmt"
	"sort"

	"swapScope/internal/config"
	"swapScope/internal/model"
)

// Candidates flattens the configured pairs into basic tokens, in chain order
// and then symbol order as configured.
func Candidates(cat config.Catalog) []model.Token {
	out := make([]model.Token, 0)
	for _, chain := range cat.Chains {
		for _, symbol := range cat.Symbols[chain.ID] {
			if tok, ok := cat.BasicToken(chain.ID, symbol); ok {
				out = append(out, tok)
			}
		}
	}
	return out
}

// PageRange is a half-open range of candidate indexes.
type PageRange struct {
	Start int
	End   int
}

// SplitPages splits total candidates into pages of pageSize.
func SplitPages(total, pageSize int) ([]PageRange, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be greater than zero")
	}
	if total < 0 {
		return nil, fmt.Errorf("total must not be negative")
	}

	pages := make([]PageRange, 0, (total+pageSize-1)/pageSize)
	for start := 0; start < total; start += pageSize {
		end := start + pageSize
		if end > total {
			end = total
		}
		pages = append(pages, PageRange{Start: start, End: end})
	}
	return pages, nil
}

// Sort orders tokens by symbol, then by chain display name.
func Sort(tokens []model.Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].Symbol != tokens[j].Symbol {
			return tokens[i].Symbol < tokens[j].Symbol
		}
		return tokens[i].ChainDisplayName < tokens[j].ChainDisplayName
	})
}

// Filter keeps tokens on chainID (any chain when empty) and drops exclude.
func Filter(tokens []model.Token, chainID string, exclude *model.Token) []model.Token {
	out := make([]model.Token, 0, len(tokens))
	for _, tok := range tokens {
		if chainID != "" && tok.ChainID != chainID {
			continue
		}
		if exclude != nil && tok.Key() == exclude.Key() {
			continue
		}
		out = append(out, tok)
	}
	return out
}
