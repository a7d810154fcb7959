package swap

import (
	"context"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swapScope/internal/model"
)

// Prices is the subset of the price cache a Quoter needs.
type Prices interface {
	Get(ctx context.Context, token model.Token) (model.PriceRecord, error)
	Invalidate(tokens ...model.Token)
}

// Quoter resolves both unit prices of a pair and derives the swap amounts.
type Quoter struct {
	prices Prices
	logger *zap.Logger
}

func NewQuoter(prices Prices, logger *zap.Logger) *Quoter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quoter{prices: prices, logger: logger}
}

// Validate checks the inputs of a quote.
func Validate(usd float64, source, target *model.Token) error {
	if source == nil {
		return &model.ValidationError{Field: "source token", Reason: "no token selected"}
	}
	if target == nil {
		return &model.ValidationError{Field: "target token", Reason: "no token selected"}
	}
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd <= 0 {
		return &model.ValidationError{Field: "usd amount", Reason: "must be a positive number"}
	}
	return nil
}

// Quote fetches both prices concurrently and calculates the swap. A nil quote
// with a nil error means the prices produced no valid calculation.
func (q *Quoter) Quote(ctx context.Context, usd float64, source, target *model.Token) (*model.Quote, error) {
	if err := Validate(usd, source, target); err != nil {
		return nil, err
	}

	var sourcePrice, targetPrice model.PriceRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := q.prices.Get(gctx, *source)
		sourcePrice = rec
		return err
	})
	g.Go(func() error {
		rec, err := q.prices.Get(gctx, *target)
		targetPrice = rec
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	calc, ok := Calculate(sourcePrice.UnitPriceUSD, targetPrice.UnitPriceUSD, usd, *source, *target)
	if !ok {
		q.logger.Debug("no valid calculation",
			zap.String("source", source.Key().String()),
			zap.String("target", target.Key().String()),
			zap.Error(model.ErrCalculationInvalid),
		)
		return nil, nil
	}
	return &model.Quote{Calculation: calc, SourcePrice: sourcePrice, TargetPrice: targetPrice}, nil
}

// Invalidate drops cached prices for the given tokens.
func (q *Quoter) Invalidate(tokens ...model.Token) {
	q.prices.Invalidate(tokens...)
}
