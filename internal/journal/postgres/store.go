package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swaptrack/internal/model"
)

// Store provides a Postgres-backed event journal.
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

// Append inserts a batch of event records. Re-observed instances are
// ignored on the (tx_hash, log_index) key.
func (s *Store) Append(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(`
			INSERT INTO swap_events (
				chain_id, block_number, tx_hash, log_index, address, event_name,
				swap_id, report_id, price, amount, block_ts, ingested_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			int64(record.ChainID),
			int64(record.BlockNumber),
			record.TxHash,
			int64(record.LogIndex),
			record.Address,
			record.EventName,
			record.SwapID,
			record.ReportID,
			record.Price,
			record.Amount,
			int64(record.Timestamp),
			record.IngestedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
