package chain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const (
	defaultReconnectDelay    = 5 * time.Second
	defaultMaxReconnectDelay = time.Minute
	defaultProbeInterval     = 15 * time.Second
	defaultRequestTimeout    = 30 * time.Second
)

// Options configures a Connection.
type Options struct {
	Endpoint          string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ProbeInterval     time.Duration
	RequestTimeout    time.Duration
	Dial              DialFunc
}

type session struct {
	backend    Backend
	generation uint64
}

// Connection owns a swappable node backend. A supervisor goroutine watches
// the active backend and replaces it after a disconnect, so callers always
// reach the newest backend without holding a raw handle.
type Connection struct {
	opts   Options
	logger *zap.Logger

	current    atomic.Pointer[session]
	generation atomic.Uint64
	closed     atomic.Bool

	mu       sync.Mutex
	handlers []func(error)

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Connect blocks until the first backend is established. It fails fast on
// an unusable endpoint and otherwise retries until ctx is done.
func Connect(ctx context.Context, opts Options, logger *zap.Logger) (*Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := validateEndpoint(opts.Endpoint); err != nil {
		return nil, err
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxReconnectDelay < opts.ReconnectDelay {
		opts.MaxReconnectDelay = defaultMaxReconnectDelay
		if opts.MaxReconnectDelay < opts.ReconnectDelay {
			opts.MaxReconnectDelay = opts.ReconnectDelay
		}
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Dial == nil {
		opts.Dial = DialEthereum
	}

	c := &Connection{
		opts:   opts,
		logger: logger.With(zap.String("endpoint", RedactEndpoint(opts.Endpoint))),
		kick:   make(chan struct{}, 1),
	}

	backend, err := c.redial(ctx, 0)
	if err != nil {
		return nil, err
	}
	c.swap(backend)
	c.logger.Info("chain connected", zap.Uint64("generation", c.Generation()))

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.supervise(runCtx)

	return c, nil
}

// OnDisconnect registers a handler called after the active backend is lost.
func (c *Connection) OnDisconnect(handler func(error)) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
}

// Generation returns the number of backends established so far.
func (c *Connection) Generation() uint64 {
	return c.generation.Load()
}

// LatestBlockNumber returns the latest block known to the node.
func (c *Connection) LatestBlockNumber(ctx context.Context) (uint64, error) {
	backend, err := c.backend()
	if err != nil {
		return 0, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	number, err := backend.BlockNumber(callCtx)
	if err != nil {
		c.suspect()
		return 0, err
	}
	return number, nil
}

// FilterLogs runs eth_getLogs on the active backend.
func (c *Connection) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	backend, err := c.backend()
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	logs, err := backend.FilterLogs(callCtx, query)
	if err != nil {
		c.suspect()
		return nil, err
	}
	return logs, nil
}

// Close stops the supervisor and closes the active backend.
func (c *Connection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if s := c.current.Swap(nil); s != nil {
		s.backend.Close()
	}
}

func (c *Connection) backend() (Backend, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	s := c.current.Load()
	if s == nil {
		return nil, ErrClosed
	}
	return s.backend, nil
}

// suspect asks the supervisor to probe the backend without waiting for the
// next probe tick.
func (c *Connection) suspect() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Connection) supervise(ctx context.Context) {
	defer c.wg.Done()

	for {
		s := c.current.Load()
		if s == nil {
			return
		}

		err := c.watch(ctx, s.backend)
		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("chain disconnected", zap.Error(err), zap.Uint64("generation", s.generation))
		c.notify(err)

		backend, err := c.redial(ctx, c.opts.ReconnectDelay)
		if err != nil {
			return
		}
		c.swap(backend)
		c.logger.Info("chain reconnected", zap.Uint64("generation", c.Generation()))
	}
}

// watch blocks until the backend fails or ctx is done. Websocket backends
// are watched through a head subscription; every backend is also probed.
func (c *Connection) watch(ctx context.Context, backend Backend) error {
	heads := make(chan *types.Header, 16)
	var subErr <-chan error

	sub, err := backend.SubscribeNewHead(ctx, heads)
	switch {
	case err == nil:
		defer sub.Unsubscribe()
		subErr = sub.Err()
	case errors.Is(err, rpc.ErrNotificationsUnsupported):
		c.logger.Debug("head subscription unsupported, probing only")
	default:
		return &ConnectionError{Endpoint: RedactEndpoint(c.opts.Endpoint), Err: fmt.Errorf("subscribe new heads: %w", err)}
	}

	ticker := time.NewTicker(c.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-heads:
		case err, ok := <-subErr:
			if !ok || err == nil {
				err = errors.New("head subscription closed")
			}
			return &ConnectionError{Endpoint: RedactEndpoint(c.opts.Endpoint), Err: err}
		case <-ticker.C:
			if err := c.probe(ctx, backend); err != nil {
				return err
			}
		case <-c.kick:
			if err := c.probe(ctx, backend); err != nil {
				return err
			}
		}
	}
}

func (c *Connection) probe(ctx context.Context, backend Backend) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	if _, err := backend.BlockNumber(probeCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ConnectionError{Endpoint: RedactEndpoint(c.opts.Endpoint), Err: fmt.Errorf("probe block number: %w", err)}
	}
	return nil
}

// redial dials until a backend answers eth_chainId. The first attempt waits
// for wait; later attempts double the delay up to MaxReconnectDelay.
func (c *Connection) redial(ctx context.Context, wait time.Duration) (Backend, error) {
	for attempt := 1; ; attempt++ {
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		backend, err := c.dialOnce(ctx)
		if err == nil {
			return backend, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wait = c.nextDelay(wait)
		c.logger.Warn("chain dial failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
		)
	}
}

func (c *Connection) dialOnce(ctx context.Context) (Backend, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	backend, err := c.opts.Dial(dialCtx, c.opts.Endpoint)
	if err != nil {
		return nil, &ConnectionError{Endpoint: RedactEndpoint(c.opts.Endpoint), Err: err}
	}
	if _, err := backend.ChainID(dialCtx); err != nil {
		backend.Close()
		return nil, &ConnectionError{Endpoint: RedactEndpoint(c.opts.Endpoint), Err: fmt.Errorf("chain id: %w", err)}
	}
	return backend, nil
}

func (c *Connection) nextDelay(wait time.Duration) time.Duration {
	if wait <= 0 {
		return c.opts.ReconnectDelay
	}
	wait *= 2
	if wait > c.opts.MaxReconnectDelay {
		wait = c.opts.MaxReconnectDelay
	}
	return wait
}

func (c *Connection) swap(backend Backend) {
	generation := c.generation.Add(1)
	old := c.current.Swap(&session{backend: backend, generation: generation})
	if old != nil {
		old.backend.Close()
	}
}

func (c *Connection) notify(err error) {
	c.mu.Lock()
	handlers := make([]func(error), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(err)
	}
}

func validateEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("rpc endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid rpc endpoint: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss", "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("rpc endpoint has no host")
		}
		return nil
	default:
		return fmt.Errorf("unsupported rpc scheme %q", parsed.Scheme)
	}
}

// RedactEndpoint drops credentials and path (API keys) from an endpoint.
func RedactEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return "***"
	}
	return parsed.Scheme + "://" + parsed.Host
}
