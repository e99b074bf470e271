package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/fcchat/internal/config"
	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/pkg/client"
	"github.com/omochice/fcchat/pkg/protocol"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fcwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: tcp
platform: camyou
connections: 3
timeouts:
  login: 10s
reconnect:
  initial: 1s
  multiplier: 2
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport)
	assert.Equal(t, "camyou", cfg.Platform)
	assert.Equal(t, 3, cfg.Connections)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Login)
	assert.Equal(t, client.DefaultJoinTimeout, cfg.Timeouts.Join)
	assert.Equal(t, time.Second, cfg.Reconnect.Initial)
	assert.Equal(t, 2.0, cfg.Reconnect.Multiplier)
	assert.Equal(t, client.DefaultReconnectPolicy.Max, cfg.Reconnect.Max)
	assert.Equal(t, "guest", cfg.Username)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connections: [1"), 0o600))
	_, err = config.Load(path)
	require.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestParseEnv(t *testing.T) {
	cfg := config.Default()
	err := config.ParseEnvFrom(cfg, map[string]string{
		"FCCHAT_TRANSPORT":            "tcp",
		"FCCHAT_USERNAME":             "someone",
		"FCCHAT_CONNECTIONS":          "4",
		"FCCHAT_CACHED_SERVER_CONFIG": "true",
		"FCCHAT_TIMEOUT_LOGIN":        "3s",
		"FCCHAT_RECONNECT_MAX":        "1m",
		"USERNAME":                    "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport)
	assert.Equal(t, "someone", cfg.Username)
	assert.Equal(t, 4, cfg.Connections)
	assert.True(t, cfg.CachedConfig)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Login)
	assert.Equal(t, time.Minute, cfg.Reconnect.Max)
	assert.Equal(t, "guest", cfg.Password)
}

func TestParseEnvInvalid(t *testing.T) {
	err := config.ParseEnvFrom(config.Default(), map[string]string{"FCCHAT_CONNECTIONS": "many"})
	require.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = "ws"
	cfg.Endpoint = "ws://127.0.0.1:1/fcsl"

	opts, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.Equal(t, transport.WebSocket, opts.Transport)
	assert.Equal(t, protocol.PlatformMFC, opts.Platform)
	assert.Equal(t, "ws://127.0.0.1:1/fcsl", opts.Endpoint)
	assert.Equal(t, client.DefaultReconnectPolicy, opts.Reconnect)
	assert.Equal(t, client.DefaultLoginTimeout, opts.LoginTimeout)
	assert.Zero(t, opts.ConnectionTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "transport", mutate: func(c *config.Config) { c.Transport = "pigeon" }},
		{name: "platform", mutate: func(c *config.Config) { c.Platform = "nowhere" }},
		{name: "connections", mutate: func(c *config.Config) { c.Connections = 0 }},
		{name: "multiplier", mutate: func(c *config.Config) { c.Reconnect.Multiplier = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
			_, err := cfg.ClientOptions()
			require.Error(t, err)
		})
	}
	require.NoError(t, config.Default().Validate())
}
