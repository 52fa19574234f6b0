package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"timelockWatcher/internal/model"
	"timelockWatcher/internal/storage"
)

type table map[string]model.AddressBalanceRow

// Store keeps balance tables in memory. Rebuild works on a shadow copy that
// replaces the table only when the callback succeeds.
type Store struct {
	allowed *storage.Tables

	mu     sync.RWMutex
	tables map[string]table
	state  map[string]uint64

	// FailOp makes the named writer operation fail, for exercising rollback.
	FailOp map[string]error
}

// NewStore builds an empty in-memory store for the allowed tables.
func NewStore(allowed *storage.Tables) *Store {
	return &Store{
		allowed: allowed,
		tables:  make(map[string]table),
		state:   make(map[string]uint64),
		FailOp:  make(map[string]error),
	}
}

func (s *Store) EnsureTable(ctx context.Context, name string) error {
	if err := s.allowed.Check(name); err != nil {
		return storage.Wrap(name, "ensure", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = make(table)
	}
	return nil
}

func (s *Store) Rebuild(ctx context.Context, name string, fn func(storage.TableWriter) error) error {
	if err := s.allowed.Check(name); err != nil {
		return storage.Wrap(name, "rebuild", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shadow := make(table, len(s.tables[name]))
	for address, row := range s.tables[name] {
		shadow[address] = row
	}

	w := &writer{store: s, name: name, rows: shadow}
	if err := fn(w); err != nil {
		return storage.Wrap(name, "rebuild", err)
	}
	if err := ctx.Err(); err != nil {
		return storage.Wrap(name, "commit", err)
	}

	s.tables[name] = shadow
	return nil
}

func (s *Store) Rows(ctx context.Context, name string) ([]model.AddressBalanceRow, error) {
	if err := s.allowed.Check(name); err != nil {
		return nil, storage.Wrap(name, "read", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]model.AddressBalanceRow, 0, len(s.tables[name]))
	for _, row := range s.tables[name] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].IsTotal != rows[j].IsTotal {
			return !rows[i].IsTotal
		}
		return rows[i].Address < rows[j].Address
	})
	return rows, nil
}

func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, ok := s.state[name]
	return block, ok, nil
}

func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[name] = block
	return nil
}

type writer struct {
	store *Store
	name  string
	rows  table
}

func (w *writer) fail(op string) error {
	if err, ok := w.store.FailOp[op]; ok && err != nil {
		return storage.Wrap(w.name, op, err)
	}
	return nil
}

func (w *writer) Clear(ctx context.Context) error {
	if err := w.fail("clear"); err != nil {
		return err
	}
	for address := range w.rows {
		delete(w.rows, address)
	}
	return nil
}

func (w *writer) UpsertDelta(ctx context.Context, delta model.BalanceDelta) error {
	if err := w.fail("upsert"); err != nil {
		return err
	}
	if delta.Address == "" || delta.Address == model.TotalAddress {
		return storage.Wrap(w.name, "upsert", fmt.Errorf("invalid address %q", delta.Address))
	}

	row, ok := w.rows[delta.Address]
	if !ok {
		row = model.AddressBalanceRow{Address: delta.Address}
	}
	switch delta.Accumulator {
	case model.AccumulatorFrozen:
		row.TotalFrozen += delta.Amount
	case model.AccumulatorUnfrozen:
		row.TotalUnfrozen += delta.Amount
	default:
		return storage.Wrap(w.name, "upsert", fmt.Errorf("unknown accumulator %q", delta.Accumulator))
	}
	if delta.BlockNumber > row.BlockNumber {
		row.BlockNumber = delta.BlockNumber
	}
	w.rows[delta.Address] = row
	return nil
}

func (w *writer) UpsertTotal(ctx context.Context, latestBlock uint64) error {
	if err := w.fail("total"); err != nil {
		return err
	}
	total := model.AddressBalanceRow{
		Address:     model.TotalAddress,
		BlockNumber: latestBlock,
		IsTotal:     true,
	}
	for _, row := range w.rows {
		if row.IsTotal {
			continue
		}
		total.TotalFrozen += row.TotalFrozen
		total.TotalUnfrozen += row.TotalUnfrozen
	}
	total.NetAmount = int64(total.TotalFrozen) - int64(total.TotalUnfrozen)
	w.rows[model.TotalAddress] = total
	return nil
}

func (w *writer) RecomputeNet(ctx context.Context) error {
	if err := w.fail("net"); err != nil {
		return err
	}
	for address, row := range w.rows {
		if row.IsTotal {
			continue
		}
		row.NetAmount = int64(row.TotalFrozen) - int64(row.TotalUnfrozen)
		w.rows[address] = row
	}
	return nil
}
