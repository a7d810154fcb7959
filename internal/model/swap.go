package model

// SwapCalculation holds the token amounts equivalent to a USD amount.
type SwapCalculation struct {
	SourceAmount float64 `json:"source_amount"`
	TargetAmount float64 `json:"target_amount"`
	USDAmount    float64 `json:"usd_amount"`
	SourceToken  Token   `json:"source_token"`
	TargetToken  Token   `json:"target_token"`
}

// Quote is a calculation together with the prices it was derived from.
type Quote struct {
	Calculation SwapCalculation `json:"calculation"`
	SourcePrice PriceRecord     `json:"source_price"`
	TargetPrice PriceRecord     `json:"target_price"`
}
