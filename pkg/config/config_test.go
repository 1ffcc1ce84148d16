package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelluochen/zerg-tui/pkg/errs"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3333", cfg.SocketURL)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 1.0, cfg.InitialBackoff)
	assert.Equal(t, 60.0, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
	assert.Equal(t, 1000, cfg.ChatLogMaxLines)
	assert.Equal(t, 100, cfg.CommandHistorySize)
	assert.True(t, filepath.IsAbs(cfg.Workspace))
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "ztc.json", `{
		"socket_url": "https://zerg.example.com/",
		"max_reconnect_attempts": 3,
		"channels": {"prompt": true},
		"log": {"level": "DEBUG"}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://zerg.example.com", cfg.SocketURL)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.True(t, cfg.Channels["prompt"])
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 60.0, cfg.MaxBackoff, "unset keys keep defaults")
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	t.Setenv("ZERG_HOST", "zerg.internal:4000")
	path := writeFile(t, "ztc.yaml", "socket_url: http://${ZERG_HOST}\ninitial_backoff: 0.5\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://zerg.internal:4000", cfg.SocketURL)
	assert.Equal(t, 0.5, cfg.InitialBackoff)
}

func TestLoadTOMLAndExtensionless(t *testing.T) {
	body := "socket_url = \"http://10.0.0.2:3333\"\nbackoff_multiplier = 3.0\n\n[channels]\nzerg_update = true\n"
	for _, name := range []string{"ztc.toml", ".ztcrc", "ztcrc"} {
		cfg, err := Load(writeFile(t, name, body))
		require.NoError(t, err, name)
		assert.Equal(t, "http://10.0.0.2:3333", cfg.SocketURL, name)
		assert.Equal(t, 3.0, cfg.BackoffMultiplier, name)
		assert.True(t, cfg.Channels["zerg_update"], name)
	}
}

func TestLoadParseErrors(t *testing.T) {
	_, err := Load(writeFile(t, "bad.json", `{"socket_url": `))
	assert.ErrorContains(t, err, "parse json")

	_, err = Load(writeFile(t, "bad.ini", `x=1`))
	assert.ErrorContains(t, err, "unsupported config extension")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "ztc.json", `{"socket_url": "http://file:1", "max_backoff": 30}`)
	t.Setenv("ZTC_SOCKET_URL", "http://env:2")
	t.Setenv("ZTC_MAX_BACKOFF", "45")
	t.Setenv("ZTC_BATCH_MODE", "yes")
	t.Setenv("ZTC_CHANNELS", "prompt=on, stdout=off")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:2", cfg.SocketURL)
	assert.Equal(t, 45.0, cfg.MaxBackoff)
	assert.True(t, cfg.BatchMode)
	assert.Equal(t, map[string]bool{"prompt": true, "stdout": false}, cfg.Channels)
}

func TestOverridesBeatEnvAndFile(t *testing.T) {
	path := writeFile(t, "ztc.toml", "socket_url = \"http://file:1\"\nyolo_mode = true\n")
	t.Setenv("ZTC_SOCKET_URL", "http://env:2")
	t.Setenv("ZTC_DEBUG_MODE", "0")

	url, yolo, debug := "http://flag:3", false, true
	cfg, err := LoadWith(path, Overrides{SocketURL: &url, YoloMode: &yolo, DebugMode: &debug})
	require.NoError(t, err)
	assert.Equal(t, "http://flag:3", cfg.SocketURL)
	assert.False(t, cfg.YoloMode)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, "debug", cfg.Log.Level, "debug mode raises the log level")

	cfg, err = LoadWith(path, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "http://env:2", cfg.SocketURL)
	assert.True(t, cfg.YoloMode)
}

func TestEnvBadNumber(t *testing.T) {
	t.Setenv("ZTC_INITIAL_BACKOFF", "soon")
	_, err := Load("")
	var cfgErr *errs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ZTC_INITIAL_BACKOFF", cfgErr.Key)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"socket_url":             func(c *Config) { c.SocketURL = "not a url" },
		"max_reconnect_attempts": func(c *Config) { c.MaxReconnectAttempts = -1 },
		"initial_backoff":        func(c *Config) { c.InitialBackoff = 0 },
		"max_backoff":            func(c *Config) { c.MaxBackoff = 0.5 },
		"backoff_multiplier":     func(c *Config) { c.BackoffMultiplier = 0.5 },
		"download_timeout":       func(c *Config) { c.DownloadTimeout = -1 },
		"command_history_size":   func(c *Config) { c.CommandHistorySize = 0 },
	}
	for key, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		err := cfg.Validate()
		var cfgErr *errs.ConfigurationError
		require.ErrorAs(t, err, &cfgErr, key)
		assert.Equal(t, key, cfgErr.Key)
	}

	cfg := Default()
	cfg.SocketURL = "ftp://host"
	assert.Error(t, cfg.Validate())
	assert.NoError(t, Default().Validate())
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	assert.Equal(t, "prefix-bar-suffix", expandEnvVars("prefix-${FOO}-suffix"))
	assert.Equal(t, "", expandEnvVars("${UNSET_ZTC_VAR}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Seconds(1.5))
}

func TestWatchFiresOnWrite(t *testing.T) {
	path := writeFile(t, "ztc.json", `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func() { hits.Add(1) }) }()

	// the watcher registers asynchronously; keep writing until it is seen
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"socket_url":"http://x:1"}`), 0o644)
		return hits.Load() > 0
	}, 3*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
