package model

// TokenMeta captures ERC20 metadata as reported by a metadata source.
type TokenMeta struct {
	ChainID  string `json:"chain_id"`
	Address  string `json:"address"`
	Decimals *int   `json:"decimals,omitempty"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
