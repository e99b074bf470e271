// Package config loads fcwatch settings from a YAML file and FCCHAT_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/pkg/client"
	"github.com/omochice/fcchat/pkg/protocol"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "FCCHAT_"

type Config struct {
	Transport    string `yaml:"transport" env:"TRANSPORT"`
	Platform     string `yaml:"platform" env:"PLATFORM"`
	Endpoint     string `yaml:"endpoint" env:"ENDPOINT"`
	CachedConfig bool   `yaml:"cached_server_config" env:"CACHED_SERVER_CONFIG"`
	ModernLogin  bool   `yaml:"modern_login" env:"MODERN_LOGIN"`
	Username     string `yaml:"username" env:"USERNAME"`
	Password     string `yaml:"password" env:"PASSWORD"`
	Connections  int    `yaml:"connections" env:"CONNECTIONS"`
	Listen       string `yaml:"listen" env:"LISTEN"`
	Capture      string `yaml:"capture" env:"CAPTURE"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`

	Timeouts  TimeoutConfig   `yaml:"timeouts" envPrefix:"TIMEOUT_"`
	Reconnect ReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
}

type TimeoutConfig struct {
	Silence      time.Duration `yaml:"silence" env:"SILENCE"`
	StateSilence time.Duration `yaml:"state_silence" env:"STATE_SILENCE"`
	Login        time.Duration `yaml:"login" env:"LOGIN"`
	Connection   time.Duration `yaml:"connection" env:"CONNECTION"`
	Join         time.Duration `yaml:"join" env:"JOIN"`
	Request      time.Duration `yaml:"request" env:"REQUEST"`
}

type ReconnectConfig struct {
	Initial    time.Duration `yaml:"initial" env:"INITIAL"`
	Multiplier float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Max        time.Duration `yaml:"max" env:"MAX"`
}

// Default returns the settings used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Transport:   "websocket",
		Platform:    "mfc",
		Username:    "guest",
		Password:    "guest",
		Connections: 1,
		LogLevel:    "info",
		Timeouts: TimeoutConfig{
			Silence:      client.DefaultSilenceTimeout,
			StateSilence: client.DefaultStateSilenceTimeout,
			Login:        client.DefaultLoginTimeout,
			Join:         client.DefaultJoinTimeout,
			Request:      client.DefaultRequestTimeout,
		},
		Reconnect: ReconnectConfig{
			Initial:    client.DefaultReconnectPolicy.Initial,
			Multiplier: client.DefaultReconnectPolicy.Multiplier,
			Max:        client.DefaultReconnectPolicy.Max,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ParseEnv applies FCCHAT_* environment overrides to cfg.
func ParseEnv(cfg *Config) error {
	return ParseEnvFrom(cfg, nil)
}

// ParseEnvFrom is ParseEnv reading from environ instead of the process
// environment when environ is not nil.
func ParseEnvFrom(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := transport.ParseKind(c.Transport); err != nil {
		return err
	}
	if _, err := ParsePlatform(c.Platform); err != nil {
		return err
	}
	if c.Connections < 1 {
		return fmt.Errorf("connections must be at least 1, got %d", c.Connections)
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect multiplier must be at least 1, got %g", c.Reconnect.Multiplier)
	}
	return nil
}

// ClientOptions maps the settings onto client options. Runtime
// collaborators such as the logger and the registry are left to the
// caller.
func (c *Config) ClientOptions() (client.Options, error) {
	if err := c.Validate(); err != nil {
		return client.Options{}, err
	}
	kind, _ := transport.ParseKind(c.Transport)
	platform, _ := ParsePlatform(c.Platform)
	return client.Options{
		Transport:             kind,
		Platform:              platform,
		UseCachedServerConfig: c.CachedConfig,
		Endpoint:              c.Endpoint,
		ModernLogin:           c.ModernLogin,
		Username:              c.Username,
		Password:              c.Password,
		SilenceTimeout:        c.Timeouts.Silence,
		StateSilenceTimeout:   c.Timeouts.StateSilence,
		LoginTimeout:          c.Timeouts.Login,
		ConnectionTimeout:     c.Timeouts.Connection,
		JoinTimeout:           c.Timeouts.Join,
		RequestTimeout:        c.Timeouts.Request,
		Reconnect: client.ReconnectPolicy{
			Initial:    c.Reconnect.Initial,
			Multiplier: c.Reconnect.Multiplier,
			Max:        c.Reconnect.Max,
		},
	}, nil
}

// ParsePlatform parses "mfc" or "camyou".
func ParsePlatform(s string) (protocol.Platform, error) {
	switch strings.ToLower(s) {
	case "mfc", "myfreecams":
		return protocol.PlatformMFC, nil
	case "camyou", "cam":
		return protocol.PlatformCamYou, nil
	default:
		return 0, fmt.Errorf("unknown platform %q", s)
	}
}
