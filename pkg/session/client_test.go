package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelluochen/zerg-tui/pkg/config"
	"github.com/michaelluochen/zerg-tui/pkg/display"
	"github.com/michaelluochen/zerg-tui/pkg/errs"
	"github.com/michaelluochen/zerg-tui/pkg/mockzerg"
	"github.com/michaelluochen/zerg-tui/pkg/proto"
	"github.com/michaelluochen/zerg-tui/pkg/reconnect"
	"github.com/michaelluochen/zerg-tui/pkg/transport"
	"github.com/michaelluochen/zerg-tui/pkg/transport/transporttest"
)

var noSleep = reconnect.SleepFunc(func(ctx context.Context, d time.Duration) error { return ctx.Err() })

func startMock(t *testing.T) (*mockzerg.Server, string) {
	t.Helper()
	srv := mockzerg.New(zerolog.Nop(), mockzerg.Options{StepDelay: time.Millisecond})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func newClient(t *testing.T, url string, opts Options) (*Client, *display.Recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.SocketURL = url
	cfg.DownloadTimeout = 2
	if opts.Sleeper == nil {
		opts.Sleeper = noSleep
	}
	opts.Logger = zerolog.Nop()
	rec := display.NewRecorder()
	c := New(cfg, rec, opts)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, rec
}

func hasLine(rec *display.Recorder, pane display.Pane, substr string) bool {
	for _, l := range rec.Lines(pane) {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func countEvents(srv *mockzerg.Server, eventType string) int {
	n := 0
	for _, ev := range srv.Received() {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func TestStartInitializesAgent(t *testing.T) {
	srv, url := startMock(t)
	c, rec := newClient(t, url, Options{})

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Connected())
	assert.Equal(t, AgentReady, rec.AgentStatus())
	assert.Equal(t, display.Connected, rec.ConnectionStatus())

	require.Eventually(t, func() bool {
		return hasLine(rec, display.PaneChat, "[OUTPUT] Mock Zerg initialized and ready")
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, hasLine(rec, display.PaneExecution, "zerg initialized and updated"))
	assert.Equal(t, 1, countEvents(srv, proto.EventInitialize))
}

func TestCommandsReachService(t *testing.T) {
	srv, url := startMock(t)
	c, rec := newClient(t, url, Options{})
	require.NoError(t, c.Start(context.Background()))

	ctx := context.Background()
	require.NoError(t, c.SendCommand(ctx, "init is just text here"))
	require.NoError(t, c.FetchAvailableCommands(ctx))
	require.NoError(t, c.RequestStateUpdate(ctx))

	require.Eventually(t, func() bool {
		return hasLine(rec, display.PaneChat, "Command completed: init is just text here") &&
			len(c.Snapshot()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	received := srv.Received()
	require.GreaterOrEqual(t, len(received), 4)
	assert.Equal(t, proto.EventCommand, received[1].Type)
	assert.Equal(t, "init is just text here", received[1].Payload["command"])
	assert.Equal(t, "IDLE", c.Snapshot()["status"])
	assert.Empty(t, rec.Lines(display.PaneReview), "zerg_update channel is off by default")
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv, url := startMock(t)
	c, _ := newClient(t, url, Options{})
	require.NoError(t, c.Start(context.Background()))

	ctx := context.Background()
	require.NoError(t, c.UploadFile(ctx, "notes.txt", []byte("hello zerg")))
	require.Eventually(t, func() bool {
		_, ok := srv.File("notes.txt")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	data, err := c.DownloadFile(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello zerg"), data)

	_, err = c.DownloadFile(ctx, "missing.txt")
	var remote *errs.RemoteOperationError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "File not found: missing.txt", remote.Message)
	assert.True(t, c.Connected(), "a remote error is not a connection fault")
}

func TestAutoReconnectReinitializes(t *testing.T) {
	srv, url := startMock(t)
	c, rec := newClient(t, url, Options{})
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 10*time.Millisecond)
	// the first initialize must reach the service before the link drops
	require.Eventually(t, func() bool {
		return countEvents(srv, proto.EventInitialize) == 1
	}, time.Second, 10*time.Millisecond)

	srv.DropAll()

	require.Eventually(t, func() bool {
		return countEvents(srv, proto.EventInitialize) == 2 && rec.AgentStatus() == AgentReady
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, c.Connected())
	assert.True(t, hasLine(rec, display.PaneChat, "Lost connection to Zerg service"))
	assert.True(t, hasLine(rec, display.PaneChat, "Reconnecting in 1.0s... (attempt 1/5)"))
	assert.True(t, hasLine(rec, display.PaneChat, "Agent re-initialized. Ready!"))
	assert.Equal(t, reconnect.Idle, c.ReconnectState())
}

func TestIntentionalDisconnectDoesNotReconnect(t *testing.T) {
	d := &transporttest.Dialer{}
	c, rec := newClient(t, "http://zerg:1", Options{Dialer: d})
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, c.Disconnect(context.Background()))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, transport.Disconnected, c.State())
	assert.Equal(t, display.Disconnected, rec.ConnectionStatus())
	assert.True(t, hasLine(rec, display.PaneChat, "Disconnected from Zerg service"))
}

func TestStartFailureEndsInFailedState(t *testing.T) {
	d := &transporttest.Dialer{}
	d.FailAlways(transporttest.ErrDialRefused)

	cfg := config.Default()
	cfg.SocketURL = "http://zerg:1"
	cfg.MaxReconnectAttempts = 2
	rec := display.NewRecorder()
	c := New(cfg, rec, Options{Logger: zerolog.Nop(), Dialer: d, Sleeper: noSleep})
	defer c.Close(context.Background())

	err := c.Start(context.Background())
	var connErr *errs.ConnectionError
	require.ErrorAs(t, err, &connErr)

	require.Eventually(t, func() bool { return c.ReconnectState() == reconnect.Failed }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, transport.Disconnected, c.State())
	assert.Equal(t, 3, d.Calls())
	assert.Equal(t, display.Failed, rec.ConnectionStatus())
	assert.Equal(t, AgentConnectionFailed, rec.AgentStatus())
	assert.True(t, hasLine(rec, display.PaneChat, "Failed to reconnect after 2 attempts"))

	// manual retry starts a fresh cycle
	d.FailAlways(nil)
	require.NoError(t, c.Reconnect())
	require.Eventually(t, c.Connected, 2*time.Second, 5*time.Millisecond)
}

func TestSendWhileDisconnected(t *testing.T) {
	c, _ := newClient(t, "http://zerg:1", Options{Dialer: &transporttest.Dialer{}})
	err := c.SendCommand(context.Background(), "ls")
	assert.ErrorIs(t, err, errs.ErrNotConnected)
}

func TestChannelOverridesFromConfig(t *testing.T) {
	d := &transporttest.Dialer{}
	cfg := config.Default()
	cfg.SocketURL = "http://zerg:1"
	cfg.Channels = map[string]bool{"zerg_update": true, "stdout": false}
	rec := display.NewRecorder()
	c := New(cfg, rec, Options{Logger: zerolog.Nop(), Dialer: d, Sleeper: noSleep})
	defer c.Close(context.Background())

	require.NoError(t, c.Start(context.Background()))
	d.Last().Push(proto.EventStdout, map[string]any{"value": "hidden"})
	d.Last().Push(proto.EventUpdate, map[string]any{"zerg": map[string]any{"status": "BUSY"}})

	require.Eventually(t, func() bool {
		return hasLine(rec, display.PaneReview, "status: BUSY")
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.Lines(display.PaneExecution))
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.InitialBackoff = 0.5
	p := Policy(cfg)
	assert.Equal(t, 500*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, time.Minute, p.MaxBackoff)
	assert.Equal(t, 5, p.MaxAttempts)
}
