package model

// PriceKey identifies a cached unit price.
type PriceKey struct {
	ChainID string
	Address string
}

func (k PriceKey) String() string {
	return k.ChainID + ":" + k.Address
}

// PriceRecord is a validated unit price in USD.
type PriceRecord struct {
	UnitPriceUSD float64 `json:"unit_price_usd"`
	FetchedAtMs  int64   `json:"fetched_at_ms"`
}
