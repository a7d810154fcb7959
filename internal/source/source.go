package source

import (
	"context"
	"fmt"

	"swapScope/internal/model"
)

// PriceSource returns the USD unit price of a token.
type PriceSource interface {
	UnitPrice(ctx context.Context, chainID, address string) (float64, error)
}

// MetadataSource returns ERC20 metadata for a symbol on a chain.
type MetadataSource interface {
	ERC20Metadata(ctx context.Context, chainID, symbol string) (model.TokenMeta, error)
}

// NonNumericPriceError reports a price payload that is not a JSON number.
type NonNumericPriceError struct {
	Raw string
}

func (e *NonNumericPriceError) Error() string {
	return fmt.Sprintf("non-numeric unit price: %s", e.Raw)
}
