package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swapScope/internal/model"
)

// QuoteSink persists completed quotes.
type QuoteSink interface {
	PutQuotes(ctx context.Context, quotes []model.QuoteRecord) error
}

// Journal stamps quotes with an id and creation time before writing them.
// A Journal without a sink discards everything.
type Journal struct {
	sink   QuoteSink
	now    func() time.Time
	logger *zap.Logger
}

func NewJournal(sink QuoteSink, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{sink: sink, now: time.Now, logger: logger}
}

// Append writes quotes to the sink.
func (j *Journal) Append(ctx context.Context, quotes ...model.Quote) error {
	if j == nil || j.sink == nil || len(quotes) == 0 {
		return nil
	}
	createdAt := j.now().UTC().Format(time.RFC3339Nano)
	records := make([]model.QuoteRecord, 0, len(quotes))
	for _, q := range quotes {
		records = append(records, model.NewQuoteRecord(uuid.NewString(), createdAt, q))
	}
	if err := j.sink.PutQuotes(ctx, records); err != nil {
		return err
	}
	j.logger.Debug("quotes journaled", zap.Int("count", len(records)))
	return nil
}
