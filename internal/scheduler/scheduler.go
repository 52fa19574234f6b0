package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"timelockWatcher/internal/balance"
	"timelockWatcher/internal/indexer"
	"timelockWatcher/internal/metrics"
	"timelockWatcher/internal/model"
	"timelockWatcher/internal/storage"
)

const defaultPollInterval = 60 * time.Second

// ChainReader reports the chain head.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// EventFetcher returns the decoded lock history of a contract.
type EventFetcher interface {
	FetchRange(ctx context.Context, watch model.ContractWatch, fromBlock, toBlock uint64) (*indexer.FetchResult, error)
}

// Config holds scheduling settings.
type Config struct {
	PollInterval time.Duration
	CycleTimeout time.Duration
	Concurrency  int
}

// Deps are the collaborators of a Scheduler. State is optional.
type Deps struct {
	Chain     ChainReader
	Fetcher   EventFetcher
	Rebuilder *balance.Rebuilder
	State     storage.StateStore
	Logger    *zap.Logger
}

// Outcome is the result of one table cycle.
type Outcome struct {
	Table       string
	Result      string
	LatestBlock uint64
	Applied     int
	Skipped     int
	Rows        int
	Duration    time.Duration
	Err         error
}

// Scheduler rebuilds every watched table on its interval.
type Scheduler struct {
	cfg     Config
	watches []model.ContractWatch
	deps    Deps
	logger  *zap.Logger
}

// New validates deps and builds a Scheduler.
func New(cfg Config, watches []model.ContractWatch, deps Deps) (*Scheduler, error) {
	if deps.Chain == nil || deps.Fetcher == nil || deps.Rebuilder == nil {
		return nil, fmt.Errorf("scheduler requires chain, fetcher and rebuilder")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, watches: watches, deps: deps, logger: logger}, nil
}

// Run performs one cycle immediately, then one cycle per interval group
// until ctx is done. A slow cycle delays its own group's next run and
// never overlaps with it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.RunCycle(ctx, s.watches)

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger.Sugar()}),
		cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()}),
	))
	for _, group := range s.groups() {
		watches := group.watches
		if _, err := c.AddFunc("@every "+group.interval.String(), func() {
			s.RunCycle(ctx, watches)
		}); err != nil {
			return fmt.Errorf("schedule %s group: %w", group.interval, err)
		}
		s.logger.Info("table group scheduled",
			zap.Duration("interval", group.interval),
			zap.Strings("tables", tableNames(watches)),
		)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunCycle rebuilds each of watches once. A failing table is logged and
// counted and never affects the others.
func (s *Scheduler) RunCycle(ctx context.Context, watches []model.ContractWatch) []Outcome {
	outcomes := make([]Outcome, len(watches))
	if s.cfg.Concurrency == 1 {
		for i, watch := range watches {
			outcomes[i] = s.runWatch(ctx, watch)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, watch := range watches {
		i, watch := i, watch
		g.Go(func() error {
			outcomes[i] = s.runWatch(ctx, watch)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Scheduler) runWatch(ctx context.Context, watch model.ContractWatch) (outcome Outcome) {
	start := time.Now()
	outcome.Table = watch.Table

	defer func() {
		if r := recover(); r != nil {
			outcome.Err = fmt.Errorf("panic: %v", r)
		}
		outcome.Duration = time.Since(start)
		outcome.Result = classify(outcome.Err)
		s.record(watch, outcome)
	}()

	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}

	latest, err := s.deps.Chain.LatestBlockNumber(ctx)
	if err != nil {
		outcome.Err = &indexer.FetchError{Table: watch.Table, From: watch.StartBlock, Err: fmt.Errorf("latest block: %w", err)}
		return outcome
	}
	outcome.LatestBlock = latest

	var events []model.RawLogEvent
	if watch.Events.Enabled {
		fetched, err := s.deps.Fetcher.FetchRange(ctx, watch, watch.StartBlock, latest)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		events = fetched.Events
		outcome.Skipped += fetched.Skipped
	}

	rebuilt, err := s.deps.Rebuilder.Rebuild(ctx, watch, events, latest)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Applied = rebuilt.Applied
	outcome.Skipped += rebuilt.Skipped
	outcome.Rows = rebuilt.Rows

	if s.deps.State != nil {
		if err := s.deps.State.SaveState(ctx, StateName(watch.Table), latest); err != nil {
			s.logger.Warn("save table state failed", zap.String("table", watch.Table), zap.Error(err))
		}
	}
	return outcome
}

func (s *Scheduler) record(watch model.ContractWatch, outcome Outcome) {
	metrics.CycleTotal.WithLabelValues(watch.Table, outcome.Result).Inc()
	metrics.CycleDuration.WithLabelValues(watch.Table).Observe(outcome.Duration.Seconds())

	if outcome.Err != nil {
		s.logger.Error("table cycle failed",
			zap.String("table", watch.Table),
			zap.String("contract", watch.Address.Hex()),
			zap.String("result", outcome.Result),
			zap.Uint64("from", watch.StartBlock),
			zap.Uint64("to", outcome.LatestBlock),
			zap.Duration("duration", outcome.Duration),
			zap.Error(outcome.Err),
		)
		return
	}

	metrics.EventsApplied.WithLabelValues(watch.Table).Add(float64(outcome.Applied))
	metrics.EventsSkipped.WithLabelValues(watch.Table).Add(float64(outcome.Skipped))
	metrics.LatestBlock.WithLabelValues(watch.Table).Set(float64(outcome.LatestBlock))
	s.logger.Info("table reconciled",
		zap.String("table", watch.Table),
		zap.Uint64("block_number", outcome.LatestBlock),
		zap.Int("applied", outcome.Applied),
		zap.Int("skipped", outcome.Skipped),
		zap.Int("rows", outcome.Rows),
		zap.Duration("duration", outcome.Duration),
	)
}

// StateName is the state key holding a table's last reconciled block.
func StateName(table string) string {
	return "watch:" + table
}

func classify(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	var fetchErr *indexer.FetchError
	if errors.As(err, &fetchErr) {
		return metrics.ResultFetchError
	}
	var storeErr *storage.StoreError
	if errors.As(err, &storeErr) {
		return metrics.ResultStoreError
	}
	return metrics.ResultOther
}

type group struct {
	interval time.Duration
	watches  []model.ContractWatch
}

// groups buckets watches by effective interval, shortest first.
func (s *Scheduler) groups() []group {
	byInterval := make(map[time.Duration][]model.ContractWatch)
	for _, watch := range s.watches {
		interval := watch.Interval
		if interval <= 0 {
			interval = s.cfg.PollInterval
		}
		byInterval[interval] = append(byInterval[interval], watch)
	}

	out := make([]group, 0, len(byInterval))
	for interval, watches := range byInterval {
		out = append(out, group{interval: interval, watches: watches})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].interval < out[j].interval })
	return out
}

func tableNames(watches []model.ContractWatch) []string {
	names := make([]string, len(watches))
	for i, watch := range watches {
		names[i] = watch.Table
	}
	return names
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
