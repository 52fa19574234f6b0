package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"timelockWatcher/internal/model"
	"timelockWatcher/internal/storage"
)

const defaultBatchSize = 500

// Store provides Postgres persistence for balance tables.
type Store struct {
	pool      *pgxpool.Pool
	allowed   *storage.Tables
	batchSize int
}

// NewStore connects to Postgres. Only tables on the allow-list are touched.
func NewStore(ctx context.Context, dsn string, allowed *storage.Tables) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, allowed: allowed, batchSize: defaultBatchSize}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// identifier returns the quoted identifier of an allow-listed table.
func (s *Store) identifier(table string) (string, error) {
	if err := s.allowed.Check(table); err != nil {
		return "", err
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

// EnsureTable creates the balance table and the state table if absent.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	ident, err := s.identifier(table)
	if err != nil {
		return storage.Wrap(table, "ensure", err)
	}
	if _, err := s.pool.Exec(ctx, createBalanceTableSQL(ident)); err != nil {
		return storage.Wrap(table, "ensure", err)
	}
	if _, err := s.pool.Exec(ctx, createStateTableSQL); err != nil {
		return storage.Wrap(table, "ensure", err)
	}
	return nil
}

// Rebuild runs fn inside one transaction. Readers keep seeing the previous
// contents until the transaction commits.
func (s *Store) Rebuild(ctx context.Context, table string, fn func(storage.TableWriter) error) error {
	ident, err := s.identifier(table)
	if err != nil {
		return storage.Wrap(table, "rebuild", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		w := &writer{tx: tx, table: table, ident: ident, batchSize: s.batchSize}
		if err := fn(w); err != nil {
			return err
		}
		return w.flush(ctx)
	})
	return storage.Wrap(table, "rebuild", err)
}

// Rows returns every row of table, TOTAL last.
func (s *Store) Rows(ctx context.Context, table string) ([]model.AddressBalanceRow, error) {
	ident, err := s.identifier(table)
	if err != nil {
		return nil, storage.Wrap(table, "read", err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT address, total_frozen, total_unfrozen, net_amount, block_number, is_total
		FROM %s
		ORDER BY is_total, address
	`, ident))
	if err != nil {
		return nil, storage.Wrap(table, "read", err)
	}
	defer rows.Close()

	var out []model.AddressBalanceRow
	for rows.Next() {
		var row model.AddressBalanceRow
		var frozen, unfrozen, block int64
		if err := rows.Scan(&row.Address, &frozen, &unfrozen, &row.NetAmount, &block, &row.IsTotal); err != nil {
			return nil, storage.Wrap(table, "read", err)
		}
		row.TotalFrozen = uint64(frozen)
		row.TotalUnfrozen = uint64(unfrozen)
		row.BlockNumber = uint64(block)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(table, "read", err)
	}
	return out, nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	value, err := toInt64(block)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, value)
	return err
}

// writer queues upserts in a pgx.Batch and flushes them before any
// statement that reads the table.
type writer struct {
	tx        pgx.Tx
	table     string
	ident     string
	batchSize int
	batch     *pgx.Batch
}

func (w *writer) Clear(ctx context.Context) error {
	if err := w.flush(ctx); err != nil {
		return err
	}
	if _, err := w.tx.Exec(ctx, clearSQL(w.ident)); err != nil {
		return storage.Wrap(w.table, "clear", err)
	}
	return nil
}

func (w *writer) UpsertDelta(ctx context.Context, delta model.BalanceDelta) error {
	if delta.Address == "" || delta.Address == model.TotalAddress {
		return storage.Wrap(w.table, "upsert", fmt.Errorf("invalid address %q", delta.Address))
	}

	amount, err := toInt64(delta.Amount)
	if err != nil {
		return storage.Wrap(w.table, "upsert", err)
	}
	block, err := toInt64(delta.BlockNumber)
	if err != nil {
		return storage.Wrap(w.table, "upsert", err)
	}

	var frozen, unfrozen int64
	switch delta.Accumulator {
	case model.AccumulatorFrozen:
		frozen = amount
	case model.AccumulatorUnfrozen:
		unfrozen = amount
	default:
		return storage.Wrap(w.table, "upsert", fmt.Errorf("unknown accumulator %q", delta.Accumulator))
	}

	if w.batch == nil {
		w.batch = &pgx.Batch{}
	}
	w.batch.Queue(upsertDeltaSQL(w.ident), delta.Address, frozen, unfrozen, block)
	if w.batch.Len() >= w.batchSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *writer) UpsertTotal(ctx context.Context, latestBlock uint64) error {
	if err := w.flush(ctx); err != nil {
		return err
	}
	block, err := toInt64(latestBlock)
	if err != nil {
		return storage.Wrap(w.table, "total", err)
	}
	if _, err := w.tx.Exec(ctx, upsertTotalSQL(w.ident), model.TotalAddress, block); err != nil {
		return storage.Wrap(w.table, "total", err)
	}
	return nil
}

func (w *writer) RecomputeNet(ctx context.Context) error {
	if err := w.flush(ctx); err != nil {
		return err
	}
	if _, err := w.tx.Exec(ctx, recomputeNetSQL(w.ident), model.TotalAddress); err != nil {
		return storage.Wrap(w.table, "net", err)
	}
	return nil
}

func (w *writer) flush(ctx context.Context) error {
	if w.batch == nil || w.batch.Len() == 0 {
		return nil
	}
	batch := w.batch
	w.batch = nil

	br := w.tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return storage.Wrap(w.table, "upsert", err)
		}
	}
	return storage.Wrap(w.table, "upsert", br.Close())
}

func toInt64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("value %d overflows bigint", value)
	}
	return int64(value), nil
}
