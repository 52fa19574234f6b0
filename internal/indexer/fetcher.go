package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"timelockWatcher/internal/contract"
	"timelockWatcher/internal/model"
)

// LogSource runs log queries against a node.
type LogSource interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// FetchConfig holds runtime settings for the fetcher.
type FetchConfig struct {
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// FetchResult is the decoded history of one contract for a block range.
type FetchResult struct {
	Events  []model.RawLogEvent
	Logs    int
	Skipped int
}

// Fetcher retrieves and decodes lock events for a watched contract.
type Fetcher struct {
	cfg    FetchConfig
	source LogSource
	logger *zap.Logger
}

// NewFetcher builds a Fetcher with its dependencies.
func NewFetcher(cfg FetchConfig, source LogSource, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 5000
	}
	return &Fetcher{cfg: cfg, source: source, logger: logger}
}

// FetchRange returns every lock event of watch in [fromBlock, toBlock],
// ordered by block number, transaction index and log index. Logs that
// cannot be decoded are logged and skipped.
func (f *Fetcher) FetchRange(ctx context.Context, watch model.ContractWatch, fromBlock, toBlock uint64) (*FetchResult, error) {
	result := &FetchResult{}
	if !watch.Events.Enabled || fromBlock > toBlock {
		return result, nil
	}
	if f.source == nil {
		return nil, &FetchError{Table: watch.Table, From: fromBlock, To: toBlock, Err: fmt.Errorf("log source is nil")}
	}

	decoder, err := contract.NewLockDecoder(watch.ABI, watch.Events)
	if err != nil {
		return nil, &FetchError{Table: watch.Table, From: fromBlock, To: toBlock, Err: err}
	}

	ranges, err := SplitRange(fromBlock, toBlock, f.cfg.BatchSize)
	if err != nil {
		return nil, &FetchError{Table: watch.Table, From: fromBlock, To: toBlock, Err: err}
	}

	seen := make(map[string]struct{})
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return nil, &FetchError{Table: watch.Table, From: blockRange.From, To: blockRange.To, Err: ctx.Err()}
		default:
		}

		logs, err := f.filterLogsWithRetry(ctx, watch, decoder.Topics(), blockRange)
		if err != nil {
			return nil, &FetchError{Table: watch.Table, From: blockRange.From, To: blockRange.To, Err: err}
		}

		for _, log := range logs {
			if log.Removed || isDuplicate(seen, log) {
				continue
			}
			result.Logs++

			event, err := decoder.Decode(log)
			if err != nil {
				result.Skipped++
				convErr := undecodable(watch.Table, log, err)
				f.logger.Warn("skip undecodable log",
					zap.String("table", watch.Table),
					zap.Uint64("block_number", log.BlockNumber),
					zap.String("tx_hash", convErr.TxHash),
					zap.Uint("log_index", log.Index),
					zap.String("address", convErr.Address),
					zap.Error(convErr),
				)
				continue
			}
			result.Events = append(result.Events, event)
		}

		f.logger.Debug("batch fetched",
			zap.String("table", watch.Table),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("logs", len(logs)),
		)
	}

	SortEvents(result.Events)
	return result, nil
}

// SortEvents orders events by block number, transaction index and log index.
func SortEvents(events []model.RawLogEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.LogIndex < b.LogIndex
	})
}

func (f *Fetcher) filterLogsWithRetry(ctx context.Context, watch model.ContractWatch, topic0 []common.Hash, blockRange BlockRange) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(blockRange.From),
		ToBlock:   new(big.Int).SetUint64(blockRange.To),
		Addresses: []common.Address{watch.Address},
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	policy := newRetryPolicy(f.cfg.MaxRetries, f.cfg.RetryBackoff)
	policy.onRetry = func(attempt int, err error, delay time.Duration) {
		f.logger.Warn("filter logs failed",
			zap.Error(err),
			zap.String("table", watch.Table),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
		)
	}

	var logs []types.Log
	err := policy.do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = f.source.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// undecodable describes a log the decoder rejected. The holder address is
// taken from the first indexed topic when the log has one.
func undecodable(table string, log types.Log, err error) *model.ConversionError {
	convErr := &model.ConversionError{
		Table:       table,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
		Raw:         fmt.Sprintf("%x", log.Data),
		Err:         err,
	}
	if len(log.Topics) > 1 {
		convErr.Address = common.BytesToAddress(log.Topics[1].Bytes()).Hex()
	}
	return convErr
}

func isDuplicate(seen map[string]struct{}, log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := seen[id]; ok {
		return true
	}
	seen[id] = struct{}{}
	return false
}
