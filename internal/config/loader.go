package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides: KIRA_PROVIDER_API_KEY sets
// provider.api_key.
const EnvPrefix = "KIRA"

// GetConfigPath returns the default config file path (~/.kira/config.yaml).
func GetConfigPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// HomeDir returns the kira data directory (~/.kira).
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kira")
}

// Load reads configuration from a YAML or JSON file, layered over the
// defaults and under KIRA_ environment variables. If path is empty, uses
// the default config path. A missing file is not an error.
func Load(path string) (Config, error) {
	return LoadViper(viper.New(), path)
}

// LoadViper is Load on a caller-provided viper instance, so command flags
// bound to it take precedence.
func LoadViper(v *viper.Viper, path string) (Config, error) {
	if path == "" {
		path = GetConfigPath()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Agent.MaxToolLoop = ToolLoopLimit(v.Get("agent.max_tool_loop"))
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	defaults := map[string]any{
		"bot.max_memory_length":       d.Bot.MaxMemoryLength,
		"bot.max_message_interval":    d.Bot.MaxMessageInterval,
		"bot.max_buffer_messages":     d.Bot.MaxBufferMessages,
		"bot.min_message_delay":       d.Bot.MinMessageDelay,
		"bot.max_message_delay":       d.Bot.MaxMessageDelay,
		"bot.max_concurrent_messages": d.Bot.MaxConcurrentMessages,
		"bot.send_rate_per_second":    d.Bot.SendRatePerSecond,
		"agent.model":                 d.Agent.Model,
		"agent.temperature":           d.Agent.Temperature,
		"agent.max_tokens":            d.Agent.MaxTokens,
		"agent.workspace":             d.Agent.Workspace,
		"agent.max_tool_loop":         d.Agent.MaxToolLoop,
		"provider.api_key":            "",
		"provider.api_base":           "",
		"provider.image_model":        "",
		"provider.tts_model":          "",
		"provider.tts_voice":          "",
		"provider.stt_model":          "",
		"provider.vision_model":       "",
		"provider.selfie_path":        "",
		"memory.backend":              d.Memory.Backend,
		"memory.dir":                  d.Memory.Dir,
		"memory.redis_url":            "",
		"memory.redis_password":       "",
		"memory.redis_prefix":         d.Memory.RedisPrefix,
		"gateway.host":                d.Gateway.Host,
		"gateway.port":                d.Gateway.Port,
		"stickers.scan_interval":      d.Stickers.ScanInterval,
		"logging.level":               d.Logging.Level,
		"logging.format":              d.Logging.Format,
		"logging.add_source":          d.Logging.AddSource,
		"web_search.api_key":          "",
		"web_search.max_results":      d.WebSearch.MaxResults,
		"ntfy.url":                    "",
		"ntfy.token":                  "",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// ToolLoopLimit interprets a raw agent.max_tool_loop value. Anything that is
// not a non-negative integer yields DefaultMaxToolLoop.
func ToolLoopLimit(raw any) int {
	switch n := raw.(type) {
	case int:
		if n >= 0 {
			return n
		}
	case int64:
		if n >= 0 && n <= math.MaxInt32 {
			return int(n)
		}
	case float64:
		if n >= 0 && n == math.Trunc(n) && n <= math.MaxInt32 {
			return int(n)
		}
	case string:
		if v, err := strconv.Atoi(strings.TrimSpace(n)); err == nil && v >= 0 {
			return v
		}
	}
	return DefaultMaxToolLoop
}

// Save writes configuration to a YAML file.
// If path is empty, uses the default config path.
func Save(cfg Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// WorkspaceDir returns the agent workspace, defaulting to ~/.kira/workspace.
func (c Config) WorkspaceDir() string {
	if c.Agent.Workspace == "" {
		return filepath.Join(HomeDir(), "workspace")
	}
	return ExpandHome(c.Agent.Workspace)
}

// SelfiePath returns the selfie reference picture, or "" when unset.
func (c Config) SelfiePath() string {
	p := c.Provider.SelfiePath
	if p == "" {
		return ""
	}
	p = ExpandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkspaceDir(), p)
}

// MemoryDir returns where the file memory backend keeps its data.
func (c Config) MemoryDir() string {
	if c.Memory.Dir == "" {
		return filepath.Join(c.WorkspaceDir(), "memory")
	}
	return ExpandHome(c.Memory.Dir)
}

// StickerDir returns the sticker folder inside the workspace.
func (c Config) StickerDir() string {
	return filepath.Join(c.WorkspaceDir(), "stickers")
}

// NewLogger builds the process logger from the logging settings.
func NewLogger(cfg LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", cfg.Format)
	}
	return slog.New(h), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}
