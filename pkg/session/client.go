// Package session is the public face of the Zerg client: it wires the
// transport, channel filtering, dispatch, file bridge and reconnection
// together and reports progress on a display.
package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/bridge"
	"github.com/michaelluochen/zerg-tui/pkg/channels"
	"github.com/michaelluochen/zerg-tui/pkg/config"
	"github.com/michaelluochen/zerg-tui/pkg/dispatch"
	"github.com/michaelluochen/zerg-tui/pkg/display"
	"github.com/michaelluochen/zerg-tui/pkg/proto"
	"github.com/michaelluochen/zerg-tui/pkg/reconnect"
	"github.com/michaelluochen/zerg-tui/pkg/transport"
)

// Agent status texts shown in the status bar.
const (
	AgentIdle             = "Idle"
	AgentInitializing     = "Initializing"
	AgentReinitializing   = "Re-initializing"
	AgentReady            = "Ready"
	AgentConnectionFailed = "Connection Failed"
)

type Options struct {
	Logger zerolog.Logger
	// Dialer defaults to a Socket.IO dialer.
	Dialer transport.Dialer
	// Sleeper defaults to a real timer.
	Sleeper reconnect.Sleeper
}

type Client struct {
	cfg  config.Config
	disp display.Display
	log  zerolog.Logger

	transport *transport.Session
	channels  *channels.Registry
	dispatch  *dispatch.Dispatcher
	bridge    *bridge.Bridge
	reconnect *reconnect.Controller
}

// Policy derives the reconnection policy from cfg.
func Policy(cfg config.Config) reconnect.Policy {
	return reconnect.Policy{
		MaxAttempts:    cfg.MaxReconnectAttempts,
		InitialBackoff: config.Seconds(cfg.InitialBackoff),
		MaxBackoff:     config.Seconds(cfg.MaxBackoff),
		Multiplier:     cfg.BackoffMultiplier,
	}
}

// New builds a disconnected client. cfg is fixed for the client's lifetime.
func New(cfg config.Config, disp display.Display, opts Options) *Client {
	log := opts.Logger.With().Str("session", cfg.SocketURL).Logger()

	reg := channels.NewRegistry(log)
	_ = reg.Apply(cfg.Channels)

	t := transport.New(cfg.SocketURL, opts.Dialer, log)
	d := dispatch.New(reg, log)
	d.SetSink(display.Sink(disp))
	d.Bind(t)

	c := &Client{
		cfg:       cfg,
		disp:      disp,
		log:       log,
		transport: t,
		channels:  reg,
		dispatch:  d,
		bridge:    bridge.New(t, config.Seconds(cfg.DownloadTimeout), log),
	}
	c.reconnect = reconnect.New(Policy(cfg), t, reconnect.Options{
		Sleeper:  opts.Sleeper,
		Reporter: &reporter{disp: disp},
		Init:     c.reinitialize,
	}, log)
	t.OnLifecycle(c.onLifecycle)
	return c
}

func (c *Client) onLifecycle(l transport.Lifecycle) {
	c.dispatch.Notify(proto.EventConnection, map[string]any{
		"status":      l.Status,
		"intentional": l.Intentional,
	})
	c.reconnect.HandleLifecycle(l)
}

// Start connects and initializes the agent. When the first connect fails the
// client falls into the reconnection cycle and the error is returned.
func (c *Client) Start(ctx context.Context) error {
	c.disp.SetConnectionStatus(display.Connecting)
	display.System(c.disp, "Connecting to %s...", c.cfg.SocketURL)

	if err := c.transport.Connect(ctx); err != nil {
		c.disp.SetConnectionStatus(display.Disconnected)
		display.System(c.disp, "Connection error: %v", err)
		c.reconnect.Trigger()
		return err
	}

	c.disp.SetAgentStatus(AgentInitializing)
	display.System(c.disp, "Connected successfully!")
	display.System(c.disp, "Initializing Zerg agent...")
	if err := c.Initialize(ctx); err != nil {
		display.System(c.disp, "Error sending command: %v", err)
		return err
	}
	c.disp.SetAgentStatus(AgentReady)
	display.System(c.disp, "Ready! Type a command or message below.")
	return nil
}

func (c *Client) reinitialize(ctx context.Context) error {
	c.disp.SetConnectionStatus(display.Connected)
	c.disp.SetAgentStatus(AgentReinitializing)
	display.System(c.disp, "✓ Reconnected successfully!")
	return c.Initialize(ctx)
}

func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Disconnect stops any reconnection cycle and closes the connection.
func (c *Client) Disconnect(ctx context.Context) error {
	c.reconnect.Stop()
	return c.transport.Disconnect(ctx)
}

// Reconnect starts a manual reconnection cycle unless connected or one is
// already running.
func (c *Client) Reconnect() error {
	if c.Connected() {
		return nil
	}
	if !c.reconnect.Trigger() {
		return reconnect.ErrInProgress
	}
	return nil
}

// Close ends reconnection, waits for it to exit and disconnects.
func (c *Client) Close(ctx context.Context) error {
	c.reconnect.Close()
	return c.transport.Disconnect(ctx)
}

// SendCommand sends text to the agent verbatim.
func (c *Client) SendCommand(ctx context.Context, text string) error {
	return c.transport.Emit(ctx, proto.EventCommand, proto.Command{Command: text})
}

func (c *Client) Initialize(ctx context.Context) error {
	return c.transport.Emit(ctx, proto.EventInitialize, proto.Empty{})
}

func (c *Client) RequestStateUpdate(ctx context.Context) error {
	return c.transport.Emit(ctx, proto.EventRequestUpdate, proto.Empty{})
}

func (c *Client) FetchAvailableCommands(ctx context.Context) error {
	return c.transport.Emit(ctx, proto.EventFetchCommands, proto.Empty{})
}

func (c *Client) UploadFile(ctx context.Context, filename string, content []byte) error {
	return c.bridge.Upload(ctx, filename, content)
}

func (c *Client) DownloadFile(ctx context.Context, filename string) ([]byte, error) {
	return c.bridge.Download(ctx, filename)
}

func (c *Client) Channels() *channels.Registry { return c.channels }

// Snapshot returns the last known agent state.
func (c *Client) Snapshot() map[string]any { return c.dispatch.Snapshot() }

func (c *Client) State() transport.State { return c.transport.State() }

func (c *Client) Connected() bool { return c.transport.State() == transport.Connected }

func (c *Client) ReconnectState() reconnect.State { return c.reconnect.State() }

func (c *Client) URL() string { return c.cfg.SocketURL }

// reporter renders reconnection progress.
type reporter struct {
	disp display.Display
}

func (r *reporter) Attempt(n, limit int, delay time.Duration) {
	r.disp.SetConnectionStatus(display.Reconnecting)
	display.System(r.disp, "Reconnecting in %.1fs... (attempt %d/%d)", delay.Seconds(), n, limit)
}

func (r *reporter) AttemptFailed(n int, err error) {
	r.disp.SetConnectionStatus(display.Disconnected)
}

func (r *reporter) Recovered(initErr error) {
	if initErr != nil {
		display.System(r.disp, "Error sending command: %v", initErr)
		return
	}
	display.System(r.disp, "Agent re-initialized. Ready!")
	r.disp.SetAgentStatus(AgentReady)
}

func (r *reporter) Failed(attempts int) {
	display.System(r.disp, "Failed to reconnect after %d attempts. Please check your connection and restart.", attempts)
	r.disp.SetAgentStatus(AgentConnectionFailed)
	r.disp.SetConnectionStatus(display.Failed)
}
