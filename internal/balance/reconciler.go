package balance

import (
	"context"

	"timelockWatcher/internal/storage"
)

// Reconciler derives the TOTAL row and per-row net amounts.
type Reconciler struct{}

// Reconcile recomputes the TOTAL row from the address rows, then sets
// net_amount on every address row. It is idempotent.
func (Reconciler) Reconcile(ctx context.Context, w storage.TableWriter, latestBlock uint64) error {
	if err := w.UpsertTotal(ctx, latestBlock); err != nil {
		return err
	}
	return w.RecomputeNet(ctx)
}
