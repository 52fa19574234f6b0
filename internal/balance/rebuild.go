package balance

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"timelockWatcher/internal/model"
	"timelockWatcher/internal/storage"
)

// RebuildResult summarizes one table rebuild.
type RebuildResult struct {
	Applied int
	Skipped int
	Rows    int
}

// Rebuilder replaces a table's contents with the state derived from a full
// event history.
type Rebuilder struct {
	store      storage.Store
	aggregator Aggregator
	reconciler Reconciler
	logger     *zap.Logger
}

// NewRebuilder builds a Rebuilder writing to store.
func NewRebuilder(store storage.Store, logger *zap.Logger) *Rebuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rebuilder{store: store, logger: logger}
}

// Rebuild clears the watch's table, applies events in the order given and
// reconciles, all inside one store transaction. Events that cannot be
// converted are logged and skipped; any store failure rolls back the whole
// rebuild and leaves the previous contents in place.
func (r *Rebuilder) Rebuild(ctx context.Context, watch model.ContractWatch, events []model.RawLogEvent, latestBlock uint64) (RebuildResult, error) {
	var result RebuildResult
	decimals := watch.Decimals

	err := r.store.Rebuild(ctx, watch.Table, func(w storage.TableWriter) error {
		result = RebuildResult{}
		if err := w.Clear(ctx); err != nil {
			return err
		}

		seen := make(map[string]struct{})
		for _, event := range events {
			delta, err := Extract(watch.Table, event, decimals)
			if err != nil {
				result.Skipped++
				r.logConversion(watch, event, err)
				continue
			}
			if err := r.aggregator.Apply(ctx, w, delta); err != nil {
				return err
			}
			result.Applied++
			seen[delta.Address] = struct{}{}
		}
		result.Rows = len(seen)

		return r.reconciler.Reconcile(ctx, w, latestBlock)
	})
	if err != nil {
		return RebuildResult{}, err
	}
	return result, nil
}

func (r *Rebuilder) logConversion(watch model.ContractWatch, event model.RawLogEvent, err error) {
	fields := []zap.Field{
		zap.String("table", watch.Table),
		zap.String("contract", watch.Address.Hex()),
		zap.Uint64("block_number", event.BlockNumber),
		zap.String("tx_hash", event.TxHash.Hex()),
		zap.Uint("log_index", event.LogIndex),
		zap.String("address", event.Address.Hex()),
		zap.Error(err),
	}
	var convErr *model.ConversionError
	if errors.As(err, &convErr) {
		fields = append(fields, zap.String("raw_amount", convErr.Raw))
	}
	r.logger.Warn("skip unconvertible event", fields...)
}
