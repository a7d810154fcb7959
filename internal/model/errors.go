package model

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrCalculationInvalid marks a degenerate calculation. It maps to "no result".
var ErrCalculationInvalid = errors.New("calculation resulted in invalid amounts")

// ValidationError reports bad or missing user input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PriceFetchError reports a failed or invalid unit price for a token.
type PriceFetchError struct {
	Symbol  string
	Value   string
	Invalid bool
	Err     error
}

func (e *PriceFetchError) Error() string {
	if e.Invalid {
		return fmt.Sprintf("invalid price for %s: %s", e.Symbol, e.Value)
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch price for %s: %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("failed to fetch price for %s", e.Symbol)
}

func (e *PriceFetchError) Unwrap() error {
	return e.Err
}

// InvalidPrice builds a non-retryable PriceFetchError for a bad price value.
func InvalidPrice(symbol string, value float64) *PriceFetchError {
	return &PriceFetchError{
		Symbol:  symbol,
		Value:   strconv.FormatFloat(value, 'g', -1, 64),
		Invalid: true,
	}
}

// MetadataFetchError reports a failed metadata lookup.
type MetadataFetchError struct {
	ChainID string
	Symbol  string
	Err     error
}

func (e *MetadataFetchError) Error() string {
	return fmt.Sprintf("failed to fetch token info for %s on chain %s: %v", e.Symbol, e.ChainID, e.Err)
}

func (e *MetadataFetchError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a validation-class failure.
func IsValidation(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	var perr *PriceFetchError
	return errors.As(err, &perr) && perr.Invalid
}
