package balance

import (
	"context"

	"timelockWatcher/internal/model"
	"timelockWatcher/internal/storage"
)

// Aggregator merges deltas into per-address rows.
type Aggregator struct{}

// Apply adds delta to the accumulator of its address with a single upsert.
// The row is created with zero totals on first use.
func (Aggregator) Apply(ctx context.Context, w storage.TableWriter, delta model.BalanceDelta) error {
	return w.UpsertDelta(ctx, delta)
}
