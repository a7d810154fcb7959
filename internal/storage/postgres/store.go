package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapScope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id            TEXT PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL,
	usd_amount    DOUBLE PRECISION NOT NULL,
	source_chain  TEXT NOT NULL,
	source_symbol TEXT NOT NULL,
	source_price  DOUBLE PRECISION NOT NULL,
	source_amount DOUBLE PRECISION NOT NULL,
	target_chain  TEXT NOT NULL,
	target_symbol TEXT NOT NULL,
	target_price  DOUBLE PRECISION NOT NULL,
	target_amount DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS quotes_pair_idx ON quotes (source_chain, source_symbol, target_chain, target_symbol, created_at);
`

// Store persists the quote journal in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the quotes table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure quotes schema: %w", err)
	}
	return nil
}

// PutQuotes inserts quote records. Records that already exist are left alone.
func (s *Store) PutQuotes(ctx context.Context, quotes []model.QuoteRecord) error {
	if len(quotes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(`
			INSERT INTO quotes (
				id, created_at, usd_amount,
				source_chain, source_symbol, source_price, source_amount,
				target_chain, target_symbol, target_price, target_amount
			) VALUES ($1, $2::timestamptz, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING
		`,
			q.ID,
			q.CreatedAt,
			q.USDAmount,
			q.SourceChain,
			q.SourceSymbol,
			q.SourcePrice,
			q.SourceAmount,
			q.TargetChain,
			q.TargetSymbol,
			q.TargetPrice,
			q.TargetAmount,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range quotes {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// RecentQuotes returns the latest quotes for a pair, newest first.
func (s *Store) RecentQuotes(ctx context.Context, sourceChain, sourceSymbol, targetChain, targetSymbol string, limit int) ([]model.QuoteRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'), usd_amount,
			source_chain, source_symbol, source_price, source_amount,
			target_chain, target_symbol, target_price, target_amount
		FROM quotes
		WHERE source_chain = $1 AND source_symbol = $2 AND target_chain = $3 AND target_symbol = $4
		ORDER BY created_at DESC
		LIMIT $5
	`, sourceChain, sourceSymbol, targetChain, targetSymbol, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.QuoteRecord, error) {
		var q model.QuoteRecord
		err := row.Scan(
			&q.ID, &q.CreatedAt, &q.USDAmount,
			&q.SourceChain, &q.SourceSymbol, &q.SourcePrice, &q.SourceAmount,
			&q.TargetChain, &q.TargetSymbol, &q.TargetPrice, &q.TargetAmount,
		)
		return q, err
	})
}
