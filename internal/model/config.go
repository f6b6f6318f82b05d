package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. CHECKIN_SERVER_USER_ID.
const envPrefix = "CHECKIN"

// ServerConfig locates the notification service.
type ServerConfig struct {
	// BaseURL is the root of the HTTP API (triggers, acknowledge, chat).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// SocketURL is the websocket endpoint for realtime events. When empty
	// it is derived from BaseURL.
	SocketURL string `mapstructure:"socket_url" yaml:"socket_url"`

	// UserID identifies the responder whose triggers are delivered.
	UserID string `mapstructure:"user_id" yaml:"user_id"`
}

// ChannelConfig controls the realtime connection's reconnect policy.
type ChannelConfig struct {
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectDelayMs     int `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	ReconnectDelayMaxMs  int `mapstructure:"reconnect_delay_max_ms" yaml:"reconnect_delay_max_ms"`
}

// PollerConfig controls the fallback trigger poller.
type PollerConfig struct {
	IntervalSec  int  `mapstructure:"interval_sec" yaml:"interval_sec"`
	DemoGraceSec int  `mapstructure:"demo_grace_sec" yaml:"demo_grace_sec"`
	DemoEnabled  bool `mapstructure:"demo_enabled" yaml:"demo_enabled"`
}

// PauseConfig controls the interstitial pause screen.
type PauseConfig struct {
	AutoAdvanceMs int `mapstructure:"auto_advance_ms" yaml:"auto_advance_ms"`

	// AcknowledgeOnEntry re-sends the trigger acknowledgment when the pause
	// screen opens for a real trigger.
	AcknowledgeOnEntry bool `mapstructure:"acknowledge_on_entry" yaml:"acknowledge_on_entry"`
}

// ChatConfig controls the support chat session.
type ChatConfig struct {
	MinResponseMs       int  `mapstructure:"min_response_ms" yaml:"min_response_ms"`
	EscalationDelayMs   int  `mapstructure:"escalation_delay_ms" yaml:"escalation_delay_ms"`
	RequestTimeoutSec   int  `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	LocalCrisisOverride bool `mapstructure:"local_crisis_override" yaml:"local_crisis_override"`
}

// StoreConfig locates the local delivery ledger.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Channel ChannelConfig `mapstructure:"channel" yaml:"channel"`
	Poller  PollerConfig  `mapstructure:"poller" yaml:"poller"`
	Pause   PauseConfig   `mapstructure:"pause" yaml:"pause"`
	Chat    ChatConfig    `mapstructure:"chat" yaml:"chat"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// PollInterval returns the poll interval as a duration.
func (c PollerConfig) PollInterval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// DemoGrace returns the degraded-mode grace period as a duration.
func (c PollerConfig) DemoGrace() time.Duration {
	return time.Duration(c.DemoGraceSec) * time.Second
}

// AutoAdvance returns the pause duration.
func (c PauseConfig) AutoAdvance() time.Duration {
	return time.Duration(c.AutoAdvanceMs) * time.Millisecond
}

// MinResponse returns the perceived-latency floor for chat replies.
func (c ChatConfig) MinResponse() time.Duration {
	return time.Duration(c.MinResponseMs) * time.Millisecond
}

// EscalationDelay returns the delay before redirecting to contacts.
func (c ChatConfig) EscalationDelay() time.Duration {
	return time.Duration(c.EscalationDelayMs) * time.Millisecond
}

// RequestTimeout returns the chat request timeout.
func (c ChatConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ResolvedSocketURL returns SocketURL, or BaseURL with its scheme swapped
// to ws/wss and a /ws path when SocketURL is unset.
func (c ServerConfig) ResolvedSocketURL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	base := strings.TrimRight(c.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// ConfigDir returns ~/.config/checkin, or the working directory when the
// home directory cannot be determined.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "checkin")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/checkin/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			BaseURL: "http://localhost:5000",
		},
		Channel: ChannelConfig{
			MaxReconnectAttempts: 5,
			ReconnectDelayMs:     1000,
			ReconnectDelayMaxMs:  5000,
		},
		Poller: PollerConfig{
			IntervalSec:  10,
			DemoGraceSec: 10,
			DemoEnabled:  true,
		},
		Pause: PauseConfig{
			AutoAdvanceMs:      2000,
			AcknowledgeOnEntry: true,
		},
		Chat: ChatConfig{
			MinResponseMs:       1500,
			EscalationDelayMs:   1000,
			RequestTimeoutSec:   30,
			LocalCrisisOverride: true,
		},
		Store: StoreConfig{
			Path: filepath.Join(ConfigDir(), "checkin.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "checkin.log"),
		},
	}
}

// setDefaults mirrors DefaultAppConfig into viper so that partially
// specified files and env overrides resolve every key.
func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.socket_url", d.Server.SocketURL)
	v.SetDefault("server.user_id", d.Server.UserID)
	v.SetDefault("channel.max_reconnect_attempts", d.Channel.MaxReconnectAttempts)
	v.SetDefault("channel.reconnect_delay_ms", d.Channel.ReconnectDelayMs)
	v.SetDefault("channel.reconnect_delay_max_ms", d.Channel.ReconnectDelayMaxMs)
	v.SetDefault("poller.interval_sec", d.Poller.IntervalSec)
	v.SetDefault("poller.demo_grace_sec", d.Poller.DemoGraceSec)
	v.SetDefault("poller.demo_enabled", d.Poller.DemoEnabled)
	v.SetDefault("pause.auto_advance_ms", d.Pause.AutoAdvanceMs)
	v.SetDefault("pause.acknowledge_on_entry", d.Pause.AcknowledgeOnEntry)
	v.SetDefault("chat.min_response_ms", d.Chat.MinResponseMs)
	v.SetDefault("chat.escalation_delay_ms", d.Chat.EscalationDelayMs)
	v.SetDefault("chat.request_timeout_sec", d.Chat.RequestTimeoutSec)
	v.SetDefault("chat.local_crisis_override", d.Chat.LocalCrisisOverride)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults (plus environment overrides) are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyFloors()
	return cfg, nil
}

// applyFloors replaces non-positive durations with their defaults.
func (c *AppConfig) applyFloors() {
	d := DefaultAppConfig()
	if c.Channel.MaxReconnectAttempts < 0 {
		c.Channel.MaxReconnectAttempts = d.Channel.MaxReconnectAttempts
	}
	if c.Channel.ReconnectDelayMs <= 0 {
		c.Channel.ReconnectDelayMs = d.Channel.ReconnectDelayMs
	}
	if c.Channel.ReconnectDelayMaxMs < c.Channel.ReconnectDelayMs {
		c.Channel.ReconnectDelayMaxMs = c.Channel.ReconnectDelayMs
	}
	if c.Poller.IntervalSec <= 0 {
		c.Poller.IntervalSec = d.Poller.IntervalSec
	}
	if c.Poller.DemoGraceSec <= 0 {
		c.Poller.DemoGraceSec = d.Poller.DemoGraceSec
	}
	if c.Pause.AutoAdvanceMs <= 0 {
		c.Pause.AutoAdvanceMs = d.Pause.AutoAdvanceMs
	}
	if c.Chat.MinResponseMs < 0 {
		c.Chat.MinResponseMs = 0
	}
	if c.Chat.EscalationDelayMs < 0 {
		c.Chat.EscalationDelayMs = 0
	}
	if c.Chat.RequestTimeoutSec <= 0 {
		c.Chat.RequestTimeoutSec = d.Chat.RequestTimeoutSec
	}
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("channel", cfg.Channel)
	v.Set("poller", cfg.Poller)
	v.Set("pause", cfg.Pause)
	v.Set("chat", cfg.Chat)
	v.Set("store", cfg.Store)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
