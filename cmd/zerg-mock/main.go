package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelluochen/zerg-tui/pkg/logging"
	"github.com/michaelluochen/zerg-tui/pkg/mockzerg"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr    string
		level   string
		logFile string
		opts    = mockzerg.DefaultOptions()
	)
	cmd := &cobra.Command{
		Use:          "zerg-mock",
		Short:        "Mock Zerg service for trying ztc without a real agent",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), addr, level, logFile, opts)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", envOr("ZERG_MOCK_ADDR", "127.0.0.1:3333"), "listen address")
	cmd.Flags().StringVar(&level, "log-level", envOr("ZTC_LOG_LEVEL", "info"), "log level")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file (default: user cache dir)")
	cmd.Flags().DurationVar(&opts.PingInterval, "ping-interval", opts.PingInterval, "Engine.IO ping interval")
	cmd.Flags().DurationVar(&opts.PingTimeout, "ping-timeout", opts.PingTimeout, "Engine.IO ping timeout")
	cmd.Flags().DurationVar(&opts.StepDelay, "step-delay", opts.StepDelay, "delay between scripted replies")
	cmd.Flags().StringVar(&opts.Reject, "reject", "", "refuse namespace connects with this message")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func serve(parent context.Context, addr, level, logFile string, opts mockzerg.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closer, err := logging.Setup(logging.Options{App: "zerg-mock", Level: level, File: logFile, Console: true})
	if err != nil {
		return err
	}
	defer closer.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           mockzerg.New(logger, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info().Str("addr", addr).Msg("mock zerg listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
