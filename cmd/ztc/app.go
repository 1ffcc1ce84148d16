package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/command"
	"github.com/michaelluochen/zerg-tui/pkg/config"
	"github.com/michaelluochen/zerg-tui/pkg/display"
	"github.com/michaelluochen/zerg-tui/pkg/session"
)

const closeTimeout = 3 * time.Second

// app owns the current session. A config reload swaps in a new session built
// from the new config; input lines always go to the current one.
type app struct {
	disp display.Display
	base zerolog.Logger
	log  zerolog.Logger

	mu     sync.Mutex
	cfg    config.Config
	client *session.Client
}

func newApp(cfg config.Config, disp display.Display, logger zerolog.Logger) *app {
	a := &app{disp: disp, base: logger, log: logger.With().Str("component", "app").Logger(), cfg: cfg}
	a.client = a.build(cfg)
	return a
}

func (a *app) build(cfg config.Config) *session.Client {
	return session.New(cfg, a.disp, session.Options{Logger: a.base})
}

func (a *app) current() (*session.Client, config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client, a.cfg
}

// start connects the current session. Failures are already on the display and
// the session keeps retrying on its own.
func (a *app) start(ctx context.Context) {
	c, _ := a.current()
	if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn().Err(err).Msg("initial connect failed")
	}
}

// Execute runs one input line against the current session.
func (a *app) Execute(ctx context.Context, line string) error {
	c, cfg := a.current()
	e := command.Executor{Client: c, Display: a.disp, Workspace: cfg.Workspace, Log: a.base.With().Str("component", "command").Logger()}
	return e.Execute(ctx, line)
}

// reload replaces the session with one built from cfg.
func (a *app) reload(ctx context.Context, cfg config.Config) {
	next := a.build(cfg)
	a.mu.Lock()
	prev := a.client
	a.client, a.cfg = next, cfg
	a.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	if err := prev.Close(closeCtx); err != nil {
		a.log.Debug().Err(err).Msg("close previous session")
	}
	cancel()

	a.log.Info().Str("url", cfg.SocketURL).Msg("config reloaded")
	display.System(a.disp, "Configuration changed, reconnecting to %s...", cfg.SocketURL)
	a.start(ctx)
}

func (a *app) close() {
	c, _ := a.current()
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		a.log.Debug().Err(err).Msg("close session")
	}
}
