package model

// QuoteRecord is a flattened quote written to a journal.
type QuoteRecord struct {
	ID           string  `json:"id"`
	CreatedAt    string  `json:"created_at"`
	USDAmount    float64 `json:"usd_amount"`
	SourceChain  string  `json:"source_chain"`
	SourceSymbol string  `json:"source_symbol"`
	SourcePrice  float64 `json:"source_price"`
	SourceAmount float64 `json:"source_amount"`
	TargetChain  string  `json:"target_chain"`
	TargetSymbol string  `json:"target_symbol"`
	TargetPrice  float64 `json:"target_price"`
	TargetAmount float64 `json:"target_amount"`
}

// NewQuoteRecord flattens a quote.
func NewQuoteRecord(id, createdAt string, q Quote) QuoteRecord {
	c := q.Calculation
	return QuoteRecord{
		ID:           id,
		CreatedAt:    createdAt,
		USDAmount:    c.USDAmount,
		SourceChain:  c.SourceToken.ChainID,
		SourceSymbol: c.SourceToken.Symbol,
		SourcePrice:  q.SourcePrice.UnitPriceUSD,
		SourceAmount: c.SourceAmount,
		TargetChain:  c.TargetToken.ChainID,
		TargetSymbol: c.TargetToken.Symbol,
		TargetPrice:  q.TargetPrice.UnitPriceUSD,
		TargetAmount: c.TargetAmount,
	}
}
