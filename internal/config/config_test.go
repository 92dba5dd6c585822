package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Schema Tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.Bot.MaxMemoryLength)
	assert.Equal(t, 2.0, cfg.Bot.MaxMessageInterval)
	assert.Equal(t, 5, cfg.Bot.MaxBufferMessages)
	assert.Equal(t, 0.8, cfg.Bot.MinMessageDelay)
	assert.Equal(t, 1.5, cfg.Bot.MaxMessageDelay)
	assert.Equal(t, 3, cfg.Bot.MaxConcurrentMessages)
	assert.Equal(t, DefaultMaxToolLoop, cfg.Agent.MaxToolLoop)
	assert.Equal(t, "file", cfg.Memory.Backend)
	assert.Equal(t, 18790, cfg.Gateway.Port)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 800*time.Millisecond, Seconds(0.8))
	assert.Equal(t, 2*time.Second, Seconds(2))
}

// --- Loader Tests ---

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
bot:
  max_message_interval: 0.5
  max_buffer_messages: 3
agent:
  model: gpt-4o
  max_tool_loop: 4
provider:
  api_key: sk-test
adapters:
  - name: qq
    platform: QQ
    bot_pid: "42"
    message_types: [text, emoji]
    emoji:
      "14": smile
    send_timeout: 5s
    access_token: tok-1
memory:
  backend: redis
  redis_url: redis://localhost:6379/0
stickers:
  scan_interval: 30m
ntfy:
  url: https://ntfy.sh/kira-alerts
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Bot.MaxMessageInterval)
	assert.Equal(t, 3, cfg.Bot.MaxBufferMessages)
	assert.Equal(t, 1.5, cfg.Bot.MaxMessageDelay, "unset keys keep defaults")
	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	assert.Equal(t, 4, cfg.Agent.MaxToolLoop)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	require.Len(t, cfg.Adapters, 1)
	assert.Equal(t, "42", cfg.Adapters[0].BotPID)
	assert.Equal(t, []string{"text", "emoji"}, cfg.Adapters[0].MessageTypes)
	assert.Equal(t, map[string]string{"14": "smile"}, cfg.Adapters[0].Emoji)
	assert.Equal(t, 5*time.Second, cfg.Adapters[0].SendTimeout)
	assert.Equal(t, "tok-1", cfg.Adapters[0].AccessToken)
	assert.Equal(t, "redis", cfg.Memory.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Stickers.ScanInterval)
	assert.Equal(t, "https://ntfy.sh/kira-alerts", cfg.Ntfy.URL)
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"agent": {"max_tool_loop": 1}, "gateway": {"port": 9090}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Agent.MaxToolLoop)
	assert.Equal(t, 9090, cfg.Gateway.Port)
}

func TestLoad_MalformedToolLoopFallsBack(t *testing.T) {
	path := writeConfig(t, "config.yaml", "agent:\n  max_tool_loop: lots\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxToolLoop, cfg.Agent.MaxToolLoop)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KIRA_PROVIDER_API_KEY", "from-env")
	t.Setenv("KIRA_AGENT_MAX_TOOL_LOOP", "0")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Provider.APIKey)
	assert.Equal(t, 0, cfg.Agent.MaxToolLoop)
}

func TestLoadViper_FlagOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "gateway:\n  port: 9000\n")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 18790, "")
	require.NoError(t, fs.Parse([]string{"--port", "7000"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag("gateway.port", fs.Lookup("port")))
	cfg, err := LoadViper(v, path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Gateway.Port)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "bot: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestToolLoopLimit(t *testing.T) {
	cases := []struct {
		raw  any
		want int
	}{
		{nil, 2},
		{3, 3},
		{int64(5), 5},
		{float64(1), 1},
		{1.5, 2},
		{" 4 ", 4},
		{"x", 2},
		{-1, 2},
		{true, 2},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ToolLoopLimit(c.raw), "raw=%v", c.raw)
	}
}

// --- Save Tests ---

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-save"
	cfg.Agent.MaxToolLoop = 5
	cfg.Adapters = []AdapterConfig{{Name: "qq", Platform: "QQ", SendTimeout: 3 * time.Second}}

	require.NoError(t, Save(cfg, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWorkspacePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.Workspace = "/srv/kira"
	assert.Equal(t, "/srv/kira", cfg.WorkspaceDir())
	assert.Equal(t, "/srv/kira/memory", cfg.MemoryDir())
	assert.Equal(t, "/srv/kira/stickers", cfg.StickerDir())

	cfg.Memory.Dir = "/data/mem"
	assert.Equal(t, "/data/mem", cfg.MemoryDir())

	assert.Empty(t, cfg.SelfiePath())
	cfg.Provider.SelfiePath = "selfie/kira.png"
	assert.Equal(t, "/srv/kira/selfie/kira.png", cfg.SelfiePath())
	cfg.Provider.SelfiePath = "/img/kira.png"
	assert.Equal(t, "/img/kira.png", cfg.SelfiePath())
}

// --- Logger Tests ---

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(LoggingConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(LoggingConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
}
