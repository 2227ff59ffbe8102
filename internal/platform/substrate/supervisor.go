package substrate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var ErrNotConnected = errors.New("chain node not connected")

type DialFunc func(ctx context.Context, url string) (*Conn, error)

type Options struct {
	URL              string
	ReconnectBackoff time.Duration
	HealthInterval   time.Duration
	DialTimeout      time.Duration
	PingTimeout      time.Duration
	Dial             DialFunc
	Logger           *slog.Logger
}

// Supervisor owns the single node connection. Callers get the current Conn
// or fail fast; they never wait for a reconnect.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	state    State
	conn     *Conn
	watchers []func(State)

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(opts Options) *Supervisor {
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = 5 * time.Second
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 10 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		opts:   opts,
		logger: logger,
		kick:   make(chan struct{}, 1),
	}
}

// Start runs the supervision loop in the background until Shutdown or ctx
// cancellation.
func (s *Supervisor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
}

// Shutdown stops the loop started by Start and waits for the connection to
// be closed.
func (s *Supervisor) Shutdown() {
	s.mu.RLock()
	cancel, done := s.cancel, s.done
	s.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Conn returns the live connection or ErrNotConnected.
func (s *Supervisor) Conn() (*Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected || s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// Watch registers fn for every state change. Callbacks run on the
// supervisor goroutine and must not block.
func (s *Supervisor) Watch(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// Kick asks for an immediate health check, typically after a transport
// error on the current connection.
func (s *Supervisor) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done, keeping at most one connection open.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		conn, err := s.connect(ctx)
		if err != nil {
			s.setState(StateDisconnected, nil)
			return nil
		}

		s.setState(StateConnected, conn)
		s.logger.Info("chain node connected",
			"event", "chain_connected",
			"module", "internal/platform/substrate",
			"layer", "platform",
			"url", s.opts.URL,
		)

		err = s.monitor(ctx, conn)
		s.setState(StateDisconnected, nil)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Warn("chain node connection lost",
			"event", "chain_disconnected",
			"module", "internal/platform/substrate",
			"layer", "platform",
			"url", s.opts.URL,
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.opts.ReconnectBackoff):
		}
	}
}

func (s *Supervisor) connect(ctx context.Context) (*Conn, error) {
	return backoff.Retry(ctx, func() (*Conn, error) {
		s.setState(StateConnecting, nil)
		dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
		defer cancel()

		conn, err := s.opts.Dial(dialCtx, s.opts.URL)
		if err != nil {
			s.setState(StateDisconnected, nil)
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return conn, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.opts.ReconnectBackoff)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("chain node dial failed",
				"event", "chain_dial_failed",
				"module", "internal/platform/substrate",
				"layer", "platform",
				"url", s.opts.URL,
				"retry_in", next.String(),
				"error", err.Error(),
			)
		}),
	)
}

func (s *Supervisor) monitor(ctx context.Context, conn *Conn) error {
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.kick:
		}

		pingCtx, cancel := context.WithTimeout(ctx, s.opts.PingTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil {
			return err
		}
	}
}

func (s *Supervisor) setState(state State, conn *Conn) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.conn = conn
	watchers := append([]func(State){}, s.watchers...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range watchers {
		fn(state)
	}
}
