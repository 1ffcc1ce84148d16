package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/michaelluochen/zerg-tui/pkg/errs"
)

type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

// Config is the client configuration. Durations are in seconds.
type Config struct {
	SocketURL string `json:"socket_url" yaml:"socket_url" toml:"socket_url"`
	Workspace string `json:"workspace" yaml:"workspace" toml:"workspace"`
	BatchMode bool   `json:"batch_mode" yaml:"batch_mode" toml:"batch_mode"`
	YoloMode  bool   `json:"yolo_mode" yaml:"yolo_mode" toml:"yolo_mode"`
	DebugMode bool   `json:"debug_mode" yaml:"debug_mode" toml:"debug_mode"`

	MaxReconnectAttempts int     `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	InitialBackoff       float64 `json:"initial_backoff" yaml:"initial_backoff" toml:"initial_backoff"`
	MaxBackoff           float64 `json:"max_backoff" yaml:"max_backoff" toml:"max_backoff"`
	BackoffMultiplier    float64 `json:"backoff_multiplier" yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	DownloadTimeout      float64 `json:"download_timeout" yaml:"download_timeout" toml:"download_timeout"`

	ChatLogMaxLines      int `json:"chat_log_max_lines" yaml:"chat_log_max_lines" toml:"chat_log_max_lines"`
	ReviewLogMaxLines    int `json:"review_log_max_lines" yaml:"review_log_max_lines" toml:"review_log_max_lines"`
	ExecutionLogMaxLines int `json:"execution_log_max_lines" yaml:"execution_log_max_lines" toml:"execution_log_max_lines"`
	CommandHistorySize   int `json:"command_history_size" yaml:"command_history_size" toml:"command_history_size"`

	// Channels overrides the default enabled flags by channel name.
	Channels map[string]bool `json:"channels" yaml:"channels" toml:"channels"`

	Log LogConfig `json:"log" yaml:"log" toml:"log"`
}

func Default() Config {
	wd, _ := os.Getwd()
	return Config{
		SocketURL:            "http://localhost:3333",
		Workspace:            wd,
		MaxReconnectAttempts: 5,
		InitialBackoff:       1.0,
		MaxBackoff:           60.0,
		BackoffMultiplier:    2.0,
		DownloadTimeout:      30.0,
		ChatLogMaxLines:      1000,
		ReviewLogMaxLines:    500,
		ExecutionLogMaxLines: 500,
		CommandHistorySize:   100,
		Channels:             map[string]bool{},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 7,
		},
	}
}

// DefaultPath is ~/.ztcrc.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ztcrc"
	}
	return filepath.Join(home, ".ztcrc")
}

// Seconds converts a config value in seconds to a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Overrides are values set explicitly on the command line. Nil fields are
// left alone.
type Overrides struct {
	SocketURL *string
	Workspace *string
	BatchMode *bool
	YoloMode  *bool
	DebugMode *bool
}

func (o Overrides) apply(cfg *Config) {
	if o.SocketURL != nil {
		cfg.SocketURL = *o.SocketURL
	}
	if o.Workspace != nil {
		cfg.Workspace = *o.Workspace
	}
	if o.BatchMode != nil {
		cfg.BatchMode = *o.BatchMode
	}
	if o.YoloMode != nil {
		cfg.YoloMode = *o.YoloMode
	}
	if o.DebugMode != nil {
		cfg.DebugMode = *o.DebugMode
	}
}

// Load reads path (optional, missing is fine) over the defaults, then applies
// ZTC_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	return LoadWith(path, Overrides{})
}

// LoadWith is Load with command line overrides applied last.
func LoadWith(path string, o Overrides) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, b, &cfg); err != nil {
				return cfg, err
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	o.apply(&cfg)
	normalize(&cfg)
	return cfg, cfg.Validate()
}

func decode(path string, b []byte, cfg *Config) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(b))), cfg); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	case ".toml", "", ".ztcrc":
		if _, err := toml.Decode(string(b), cfg); err != nil {
			return fmt.Errorf("parse toml: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the value of VAR.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("ZTC_SOCKET_URL"); v != "" {
		cfg.SocketURL = v
	}
	if v := os.Getenv("ZTC_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v, ok := os.LookupEnv("ZTC_BATCH_MODE"); ok {
		cfg.BatchMode = parseBool(v)
	}
	if v, ok := os.LookupEnv("ZTC_YOLO_MODE"); ok {
		cfg.YoloMode = parseBool(v)
	}
	if v, ok := os.LookupEnv("ZTC_DEBUG_MODE"); ok {
		cfg.DebugMode = parseBool(v)
	}
	if v := os.Getenv("ZTC_MAX_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &errs.ConfigurationError{Key: "ZTC_MAX_RECONNECT_ATTEMPTS", Reason: "not an integer"}
		}
		cfg.MaxReconnectAttempts = n
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"ZTC_INITIAL_BACKOFF", &cfg.InitialBackoff},
		{"ZTC_MAX_BACKOFF", &cfg.MaxBackoff},
		{"ZTC_BACKOFF_MULTIPLIER", &cfg.BackoffMultiplier},
		{"ZTC_DOWNLOAD_TIMEOUT", &cfg.DownloadTimeout},
	}
	for _, f := range floats {
		if v := os.Getenv(f.key); v != "" {
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return &errs.ConfigurationError{Key: f.key, Reason: "not a number"}
			}
			*f.dst = n
		}
	}
	if v := os.Getenv("ZTC_CHANNELS"); v != "" {
		if cfg.Channels == nil {
			cfg.Channels = map[string]bool{}
		}
		for _, kv := range splitCSV(v) {
			name, val, found := strings.Cut(kv, "=")
			if !found {
				return &errs.ConfigurationError{Key: "ZTC_CHANNELS", Reason: fmt.Sprintf("entry %q is not name=on|off", kv)}
			}
			cfg.Channels[strings.TrimSpace(name)] = parseBool(val)
		}
	}
	if v := os.Getenv("ZTC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ZTC_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	return nil
}

func normalize(cfg *Config) {
	cfg.SocketURL = strings.TrimRight(strings.TrimSpace(cfg.SocketURL), "/")
	cfg.Workspace = strings.TrimSpace(cfg.Workspace)
	if cfg.Workspace == "" {
		cfg.Workspace, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(cfg.Workspace); err == nil {
		cfg.Workspace = abs
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.DebugMode {
		cfg.Log.Level = "debug"
	}
	if cfg.Channels == nil {
		cfg.Channels = map[string]bool{}
	}
}

// Validate reports the first invalid value as a ConfigurationError.
func (c Config) Validate() error {
	u, err := url.Parse(c.SocketURL)
	if c.SocketURL == "" || err != nil || u.Host == "" {
		return &errs.ConfigurationError{Key: "socket_url", Reason: fmt.Sprintf("invalid url %q", c.SocketURL)}
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return &errs.ConfigurationError{Key: "socket_url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if c.MaxReconnectAttempts < 0 {
		return &errs.ConfigurationError{Key: "max_reconnect_attempts", Reason: "must not be negative"}
	}
	if c.InitialBackoff <= 0 {
		return &errs.ConfigurationError{Key: "initial_backoff", Reason: "must be positive"}
	}
	if c.MaxBackoff < c.InitialBackoff {
		return &errs.ConfigurationError{Key: "max_backoff", Reason: "must be at least initial_backoff"}
	}
	if c.BackoffMultiplier < 1 {
		return &errs.ConfigurationError{Key: "backoff_multiplier", Reason: "must be at least 1"}
	}
	if c.DownloadTimeout <= 0 {
		return &errs.ConfigurationError{Key: "download_timeout", Reason: "must be positive"}
	}
	for key, n := range map[string]int{
		"chat_log_max_lines":      c.ChatLogMaxLines,
		"review_log_max_lines":    c.ReviewLogMaxLines,
		"execution_log_max_lines": c.ExecutionLogMaxLines,
		"command_history_size":    c.CommandHistorySize,
	} {
		if n <= 0 {
			return &errs.ConfigurationError{Key: key, Reason: "must be positive"}
		}
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
