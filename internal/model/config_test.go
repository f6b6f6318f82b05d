package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Channel.MaxReconnectAttempts)
	assert.Equal(t, 10, cfg.Poller.IntervalSec)
	assert.Equal(t, 10, cfg.Poller.DemoGraceSec)
	assert.True(t, cfg.Poller.DemoEnabled)
	assert.Equal(t, 2000, cfg.Pause.AutoAdvanceMs)
	assert.Equal(t, 1500, cfg.Chat.MinResponseMs)
	assert.Equal(t, 1000, cfg.Chat.EscalationDelayMs)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  base_url: https://checkin.example.com
  user_id: officer_smith
poller:
  interval_sec: 3
pause:
  acknowledge_on_entry: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://checkin.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "officer_smith", cfg.Server.UserID)
	assert.Equal(t, 3, cfg.Poller.IntervalSec)
	assert.Equal(t, 10, cfg.Poller.DemoGraceSec)
	assert.False(t, cfg.Pause.AcknowledgeOnEntry)
	assert.Equal(t, "wss://checkin.example.com/ws", cfg.Server.ResolvedSocketURL())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CHECKIN_SERVER_USER_ID", "paramedic_davis")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "paramedic_davis", cfg.Server.UserID)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultAppConfig()
	cfg.Server.UserID = "firefighter_jones"
	cfg.Chat.MinResponseMs = 10

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "firefighter_jones", loaded.Server.UserID)
	assert.Equal(t, 10, loaded.Chat.MinResponseMs)
}
