// Package reconnect retries a lost connection with exponential backoff.
package reconnect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/errs"
	"github.com/michaelluochen/zerg-tui/pkg/proto"
	"github.com/michaelluochen/zerg-tui/pkg/transport"
)

var (
	ErrInProgress = errors.New("reconnect: already in progress")
	ErrStopped    = errors.New("reconnect: stopped")
)

// Connector is the connection being kept alive.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	MarkReconnecting()
	// MarkDisconnected is called when a cycle ends without a connection.
	MarkDisconnected()
}

// Reporter surfaces cycle progress to the user.
type Reporter interface {
	Attempt(n, limit int, delay time.Duration)
	AttemptFailed(n int, err error)
	// Recovered is called after a successful connect and re-initialization.
	Recovered(initErr error)
	// Failed is called once when every attempt of a cycle has failed.
	Failed(attempts int)
}

type State int

const (
	Idle State = iota
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Options struct {
	Sleeper  Sleeper
	Reporter Reporter
	// Init re-runs initialization after every successful reconnect.
	Init func(ctx context.Context) error
}

type Controller struct {
	policy Policy
	conn   Connector
	sleep  Sleeper
	report Reporter
	init   func(ctx context.Context) error
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	attempts int
	stopped  bool
}

func New(policy Policy, conn Connector, opts Options, logger zerolog.Logger) *Controller {
	if opts.Sleeper == nil {
		opts.Sleeper = TimerSleeper
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		policy: policy,
		conn:   conn,
		sleep:  opts.Sleeper,
		report: opts.Reporter,
		init:   opts.Init,
		log:    logger.With().Str("component", "reconnect").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// HandleLifecycle starts a cycle on unexpected connection loss.
func (c *Controller) HandleLifecycle(l transport.Lifecycle) {
	if l.Status != proto.StatusDisconnected || l.Intentional {
		return
	}
	if c.Trigger() {
		c.log.Info().Err(l.Err).Msg("connection lost, reconnecting")
	}
}

// Trigger starts a cycle in the background. It reports false when a cycle is
// already running.
func (c *Controller) Trigger() bool {
	if !c.begin() {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.loop(c.ctx)
	}()
	return true
}

// Run performs one cycle on the caller's goroutine. It returns nil once
// connected, errs.ErrReconnectFailed when attempts are exhausted.
func (c *Controller) Run(ctx context.Context) error {
	if !c.begin() {
		return ErrInProgress
	}
	return c.loop(ctx)
}

// Stop ends the running cycle at its next check. A backoff sleep already in
// progress is allowed to finish.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == Reconnecting {
		c.stopped = true
	}
	c.mu.Unlock()
}

// Close stops any cycle, interrupts its sleep and waits for it to exit.
func (c *Controller) Close() {
	c.Stop()
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until background cycles started by Trigger have exited.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Reconnecting {
		return false
	}
	c.state = Reconnecting
	c.attempts = 0
	c.stopped = false
	c.conn.MarkReconnecting()
	return true
}

func (c *Controller) loop(ctx context.Context) error {
	limit := c.policy.MaxAttempts
	for {
		c.mu.Lock()
		if c.stopped {
			c.state = Idle
			c.conn.MarkDisconnected()
			c.mu.Unlock()
			c.log.Info().Msg("reconnect stopped")
			return ErrStopped
		}
		if c.attempts >= limit {
			n := c.attempts
			c.state = Failed
			c.conn.MarkDisconnected()
			c.mu.Unlock()
			c.log.Error().Int("attempts", n).Msg("reconnect failed, giving up")
			c.report.Failed(n)
			return errs.ErrReconnectFailed
		}
		c.attempts++
		n := c.attempts
		c.mu.Unlock()

		delay := c.policy.Delay(n)
		c.log.Info().Int("attempt", n).Int("max", limit).Dur("delay", delay).Msg("reconnect attempt")
		c.report.Attempt(n, limit, delay)

		if err := c.sleep.Sleep(ctx, delay); err != nil {
			c.mu.Lock()
			c.state = Idle
			c.conn.MarkDisconnected()
			c.mu.Unlock()
			return err
		}
		if c.isStopped() {
			continue
		}

		if err := c.conn.Connect(ctx); err != nil {
			c.log.Warn().Int("attempt", n).Err(err).Msg("reconnect attempt failed")
			c.report.AttemptFailed(n, err)
			continue
		}

		if c.isStopped() {
			_ = c.conn.Disconnect(ctx)
			continue
		}

		c.mu.Lock()
		c.attempts = 0
		c.state = Idle
		c.mu.Unlock()
		c.log.Info().Int("attempt", n).Msg("reconnected")

		var initErr error
		if c.init != nil {
			initErr = c.init(ctx)
			if initErr != nil {
				c.log.Warn().Err(initErr).Msg("re-initialization failed")
			}
		}
		c.report.Recovered(initErr)
		return nil
	}
}

func (c *Controller) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

type nopReporter struct{}

func (nopReporter) Attempt(int, int, time.Duration) {}
func (nopReporter) AttemptFailed(int, error)        {}
func (nopReporter) Recovered(error)                 {}
func (nopReporter) Failed(int)                      {}
