package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/michaelluochen/zerg-tui/pkg/command"
	"github.com/michaelluochen/zerg-tui/pkg/config"
	"github.com/michaelluochen/zerg-tui/pkg/console"
	"github.com/michaelluochen/zerg-tui/pkg/display"
	"github.com/michaelluochen/zerg-tui/pkg/logging"
	"github.com/michaelluochen/zerg-tui/pkg/tui"
)

var version = "0.1.0"

type cliFlags struct {
	workspace  string
	socketURL  string
	configPath string
	batch      bool
	yolo       bool
	debug      bool
	plain      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:          "ztc",
		Short:        "ZTC - Zerg Terminal Client",
		Long:         "A terminal-native client for the Zerg AI agent.",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := overridesFromFlags(cmd.Flags().Changed, f)
			if err != nil {
				return err
			}
			path := f.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			cfg, err := config.LoadWith(path, overrides)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, path, overrides, f.plain)
		},
	}

	cmd.Flags().StringVarP(&f.workspace, "workspace", "w", "", "Workspace directory (default: current directory)")
	cmd.Flags().BoolVar(&f.batch, "batch", false, "Enable batch mode (accept all changes at once)")
	cmd.Flags().BoolVar(&f.yolo, "yolo", false, "YOLO mode (auto-approve file changes)")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug mode")
	cmd.Flags().StringVarP(&f.socketURL, "socket-url", "s", "", "Socket.IO server URL (default: http://localhost:3333)")
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Config file (default: ~/.ztcrc)")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Line-oriented output instead of the full-screen interface")
	return cmd
}

// overridesFromFlags keeps only the flags the user actually set, so they win
// over env and file values without resetting them to flag defaults.
func overridesFromFlags(changed func(string) bool, f cliFlags) (config.Overrides, error) {
	var o config.Overrides
	if changed("workspace") {
		info, err := os.Stat(f.workspace)
		if err != nil || !info.IsDir() {
			return o, fmt.Errorf("workspace %q is not a directory", f.workspace)
		}
		ws := f.workspace
		o.Workspace = &ws
	}
	if changed("socket-url") {
		u := f.socketURL
		o.SocketURL = &u
	}
	if changed("batch") {
		b := f.batch
		o.BatchMode = &b
	}
	if changed("yolo") {
		y := f.yolo
		o.YoloMode = &y
	}
	if changed("debug") {
		d := f.debug
		o.DebugMode = &d
	}
	return o, nil
}

func title(cfg config.Config) string {
	var b strings.Builder
	b.WriteString("ztc " + version)
	b.WriteString(" │ " + filepath.Base(cfg.Workspace))
	if cfg.BatchMode {
		b.WriteString(" │ batch")
	}
	if cfg.YoloMode {
		b.WriteString(" │ yolo")
	}
	if cfg.DebugMode {
		b.WriteString(" │ debug")
	}
	return b.String()
}

func run(parent context.Context, cfg config.Config, path string, overrides config.Overrides, plain bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closer, err := logging.Setup(logging.Options{
		App:        "ztc",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		// the full-screen interface owns the terminal
		Console: plain && cfg.DebugMode,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info().
		Str("version", version).
		Str("url", cfg.SocketURL).
		Str("workspace", cfg.Workspace).
		Bool("batch", cfg.BatchMode).
		Bool("yolo", cfg.YoloMode).
		Str("config", path).
		Msg("starting")

	var (
		disp  display.Display
		inbox *tui.Inbox
	)
	if plain {
		disp = console.New(os.Stdout, true)
	} else {
		inbox = tui.NewInbox(1024)
		disp = inbox
	}

	a := newApp(cfg, disp, logger)
	defer a.close()

	go watchConfig(ctx, path, overrides, a, logger)
	go a.start(ctx)

	if plain {
		return console.Loop(ctx, os.Stdin, os.Stdout, a, console.LoopOptions{
			Prompt: promptFor(os.Stdin),
			Linger: lingerFor(os.Stdin),
		})
	}
	model := tui.New(ctx, inbox, tui.Options{
		Title:             title(cfg),
		Runner:            a,
		History:           command.NewHistory(cfg.CommandHistorySize),
		ChatMaxLines:      cfg.ChatLogMaxLines,
		ReviewMaxLines:    cfg.ReviewLogMaxLines,
		ExecutionMaxLines: cfg.ExecutionLogMaxLines,
	})
	return tui.Run(ctx, model)
}

// watchConfig rebuilds the session when the config file changes. A file that
// fails to load leaves the running session alone.
func watchConfig(ctx context.Context, path string, overrides config.Overrides, a *app, logger zerolog.Logger) {
	log := logger.With().Str("component", "config").Logger()
	err := config.Watch(ctx, path, func() {
		cfg, err := config.LoadWith(path, overrides)
		if err != nil {
			log.Warn().Err(err).Msg("reload failed")
			display.System(a.disp, "Config reload failed: %v", err)
			return
		}
		a.reload(ctx, cfg)
	})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config watch disabled")
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func promptFor(f *os.File) string {
	if isTerminal(f) {
		return "> "
	}
	return ""
}

// piped input ends before replies arrive; give them a moment to print
func lingerFor(f *os.File) time.Duration {
	if isTerminal(f) {
		return 0
	}
	return 2 * time.Second
}
