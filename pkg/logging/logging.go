// Package logging builds the zerolog logger shared by the client and the mock
// service. Output goes to a size-rotated file and optionally to the console.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	App   string
	Level string
	// File defaults to <user cache dir>/ztc/logs/<app>.log.
	File string
	// Rotation limits; zero picks the defaults. ZTC_LOG_MAX_* env vars win.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console tees human readable output to Stderr.
	Console bool
	Stderr  io.Writer
}

// Setup returns the root logger and the closer for its log file. The logger
// also replaces the zerolog global.
func Setup(opts Options) (zerolog.Logger, io.Closer, error) {
	if opts.App == "" {
		opts.App = "ztc"
	}
	file := opts.File
	if file == "" {
		file = DefaultFile(opts.App)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
	}

	rotate := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    getEnvInt("ZTC_LOG_MAX_SIZE_MB", orDefault(opts.MaxSizeMB, 20)),
		MaxBackups: getEnvInt("ZTC_LOG_MAX_BACKUPS", orDefault(opts.MaxBackups, 5)),
		MaxAge:     getEnvInt("ZTC_LOG_MAX_AGE_DAYS", orDefault(opts.MaxAgeDays, 7)),
		Compress:   false,
	}

	var out io.Writer = rotate
	if opts.Console {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		console := zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}
		out = zerolog.MultiLevelWriter(rotate, console)
	}

	level, ok := ParseLevel(opts.Level)
	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", opts.App).Logger()
	if !ok && strings.TrimSpace(opts.Level) != "" {
		logger.Warn().Str("level", opts.Level).Msg("unknown log level, using info")
	}
	log.Logger = logger
	return logger, rotate, nil
}

// DefaultFile is the log path used when none is configured.
func DefaultFile(app string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "ztc", "logs", app+".log")
}

// ParseLevel maps a level name to a zerolog level. The second result is false
// for names it does not know, which fall back to info.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
