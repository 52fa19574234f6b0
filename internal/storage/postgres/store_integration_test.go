//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"timelockWatcher/internal/model"
	"timelockWatcher/internal/storage"
)

// Run with: WATCHER_TEST_PG_DSN=postgres://... go test -tags integration ./internal/storage/postgres
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("WATCHER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("WATCHER_TEST_PG_DSN not set")
	}
	tables, err := storage.NewTables("watcher_it_timelock")
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	s, err := NewStore(context.Background(), dsn, tables)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.EnsureTable(context.Background(), "watcher_it_timelock"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	return s
}

func rebuildWith(ctx context.Context, s *Store, deltas []model.BalanceDelta, latest uint64, fail error) error {
	return s.Rebuild(ctx, "watcher_it_timelock", func(w storage.TableWriter) error {
		if err := w.Clear(ctx); err != nil {
			return err
		}
		for _, delta := range deltas {
			if err := w.UpsertDelta(ctx, delta); err != nil {
				return err
			}
		}
		if fail != nil {
			return fail
		}
		if err := w.UpsertTotal(ctx, latest); err != nil {
			return err
		}
		return w.RecomputeNet(ctx)
	})
}

func TestRebuildRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.batchSize = 2

	deltas := []model.BalanceDelta{
		{Address: "0xAA", Amount: 1, Accumulator: model.AccumulatorFrozen, BlockNumber: 10},
		{Address: "0xAA", Amount: 1, Accumulator: model.AccumulatorFrozen, BlockNumber: 11},
		{Address: "0xAA", Amount: 0, Accumulator: model.AccumulatorUnfrozen, BlockNumber: 12},
		{Address: "0xBB", Amount: 3, Accumulator: model.AccumulatorUnfrozen, BlockNumber: 5},
	}
	if err := rebuildWith(ctx, s, deltas, 20, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	rows, err := s.Rows(ctx, "watcher_it_timelock")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	want := []model.AddressBalanceRow{
		{Address: "0xAA", TotalFrozen: 2, NetAmount: 2, BlockNumber: 12},
		{Address: "0xBB", TotalUnfrozen: 3, NetAmount: -3, BlockNumber: 5},
		{Address: model.TotalAddress, TotalFrozen: 2, TotalUnfrozen: 3, NetAmount: -1, BlockNumber: 20, IsTotal: true},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("expected %+v, got %+v", want, rows)
	}

	if err := rebuildWith(ctx, s, deltas[:1], 21, errors.New("abort")); err == nil {
		t.Fatalf("expected aborted rebuild")
	}
	after, err := s.Rows(ctx, "watcher_it_timelock")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if !reflect.DeepEqual(after, want) {
		t.Fatalf("aborted rebuild changed rows: %+v", after)
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveState(ctx, "watch:watcher_it_timelock", 77); err != nil {
		t.Fatalf("save: %v", err)
	}
	block, ok, err := s.LoadState(ctx, "watch:watcher_it_timelock")
	if err != nil || !ok || block != 77 {
		t.Fatalf("expected 77, got %d %v %v", block, ok, err)
	}
}
