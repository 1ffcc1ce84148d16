package reconnect

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelluochen/zerg-tui/pkg/errs"
	"github.com/michaelluochen/zerg-tui/pkg/proto"
	"github.com/michaelluochen/zerg-tui/pkg/transport"
	"github.com/michaelluochen/zerg-tui/pkg/transport/transporttest"
)

var errRefused = errors.New("connection refused")

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordedSleeps) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type recordingReporter struct {
	mu        sync.Mutex
	attempts  []int
	failures  []int
	recovered int
	failed    int
}

func (r *recordingReporter) Attempt(n, limit int, delay time.Duration) {
	r.mu.Lock()
	r.attempts = append(r.attempts, n)
	r.mu.Unlock()
}

func (r *recordingReporter) AttemptFailed(n int, err error) {
	r.mu.Lock()
	r.failures = append(r.failures, n)
	r.mu.Unlock()
}

func (r *recordingReporter) Recovered(error) {
	r.mu.Lock()
	r.recovered++
	r.mu.Unlock()
}

func (r *recordingReporter) Failed(int) {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
}

func TestBackoffDeterminism(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialBackoff: time.Second, MaxBackoff: 60 * time.Second, Multiplier: 2.0}
	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60, 60}
	for i, w := range want {
		assert.Equal(t, w*time.Second, p.Delay(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 60*time.Second, p.Delay(5000))
}

func TestReconnectTerminalState(t *testing.T) {
	d := &transporttest.Dialer{}
	d.FailAlways(errRefused)
	s := transport.New("http://zerg", d, zerolog.Nop())

	var logs bytes.Buffer
	sleeps := &recordedSleeps{}
	rep := &recordingReporter{}
	inits := 0
	c := New(Policy{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2},
		s, Options{Sleeper: sleeps, Reporter: rep, Init: func(context.Context) error { inits++; return nil }},
		zerolog.New(&logs))

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, errs.ErrReconnectFailed)
	assert.Equal(t, 3, d.Calls())
	assert.Equal(t, 3, strings.Count(logs.String(), `"message":"reconnect attempt"`))
	assert.Equal(t, 1, rep.failed)
	assert.Equal(t, []int{1, 2, 3}, rep.failures)
	assert.Equal(t, 0, inits)
	assert.Equal(t, Failed, c.State())
	assert.Equal(t, transport.Disconnected, s.State(), "no retry is running once the cycle gives up")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps.all())

	// the flag is cleared, so a later cycle may start and counts from zero
	d.FailAlways(nil)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []int{1, 2, 3, 1}, rep.attempts)
}

func TestReconnectSuccessResetsCounter(t *testing.T) {
	d := &transporttest.Dialer{}
	d.FailNext(errRefused, errRefused)
	s := transport.New("http://zerg", d, zerolog.Nop())

	rep := &recordingReporter{}
	inits := 0
	c := New(Policy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2},
		s, Options{Sleeper: &recordedSleeps{}, Reporter: rep, Init: func(context.Context) error { inits++; return nil }},
		zerolog.Nop())

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 3, d.Calls())
	assert.Equal(t, 0, c.Attempts())
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, rep.recovered)
	assert.Equal(t, 0, rep.failed)
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, transport.Connected, s.State())
}

// blockingSleeper parks every sleep until released.
type blockingSleeper struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSingleFlight(t *testing.T) {
	d := &transporttest.Dialer{}
	s := transport.New("http://zerg", d, zerolog.Nop())
	sl := &blockingSleeper{entered: make(chan struct{}, 4), release: make(chan struct{})}
	c := New(DefaultPolicy(), s, Options{Sleeper: sl}, zerolog.Nop())

	require.True(t, c.Trigger())
	<-sl.entered
	assert.False(t, c.Trigger())
	assert.ErrorIs(t, c.Run(context.Background()), ErrInProgress)
	assert.Equal(t, Reconnecting, c.State())
	assert.Equal(t, transport.Reconnecting, s.State())

	close(sl.release)
	c.Wait()
	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, Idle, c.State())
}

func TestStopEndsCycleAfterSleep(t *testing.T) {
	d := &transporttest.Dialer{}
	s := transport.New("http://zerg", d, zerolog.Nop())
	sl := &blockingSleeper{entered: make(chan struct{}, 4), release: make(chan struct{})}
	c := New(DefaultPolicy(), s, Options{Sleeper: sl}, zerolog.Nop())

	require.True(t, c.Trigger())
	<-sl.entered
	c.Stop()
	close(sl.release)
	c.Wait()

	assert.Equal(t, 0, d.Calls())
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, transport.Disconnected, s.State())
}

func TestCloseInterruptsSleep(t *testing.T) {
	s := transport.New("http://zerg", &transporttest.Dialer{}, zerolog.Nop())
	sl := &blockingSleeper{entered: make(chan struct{}, 4), release: make(chan struct{})}
	c := New(DefaultPolicy(), s, Options{Sleeper: sl}, zerolog.Nop())

	require.True(t, c.Trigger())
	<-sl.entered

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not interrupt the backoff sleep")
	}
	assert.Equal(t, transport.Disconnected, s.State())
}

func TestHandleLifecycle(t *testing.T) {
	d := &transporttest.Dialer{}
	s := transport.New("http://zerg", d, zerolog.Nop())
	rep := &recordingReporter{}
	c := New(DefaultPolicy(), s, Options{Sleeper: &recordedSleeps{}, Reporter: rep}, zerolog.Nop())
	s.OnLifecycle(c.HandleLifecycle)

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Disconnect(context.Background()))
	c.Wait()
	assert.Equal(t, 0, rep.recovered, "intentional disconnect must not reconnect")

	require.NoError(t, s.Connect(context.Background()))
	d.Last().Drop(nil)

	require.Eventually(t, func() bool {
		rep.mu.Lock()
		defer rep.mu.Unlock()
		return rep.recovered == 1
	}, 2*time.Second, 5*time.Millisecond)
	c.Wait()
	assert.Equal(t, transport.Connected, s.State())
	assert.Equal(t, 3, d.Calls())
}

func TestLifecycleIgnoresConnected(t *testing.T) {
	s := transport.New("http://zerg", &transporttest.Dialer{}, zerolog.Nop())
	c := New(DefaultPolicy(), s, Options{Sleeper: &recordedSleeps{}}, zerolog.Nop())
	c.HandleLifecycle(transport.Lifecycle{Status: proto.StatusConnected})
	assert.Equal(t, Idle, c.State())
}
