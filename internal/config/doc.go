// Package config handles configuration loading, saving, and schema definition.
package config

import "time"

// Config is the top-level kira configuration. Keys are snake_case in the
// config file.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot" yaml:"bot"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Provider  ProviderConfig  `mapstructure:"provider" yaml:"provider"`
	Adapters  []AdapterConfig `mapstructure:"adapters" yaml:"adapters"`
	Memory    MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	Gateway   GatewayConfig   `mapstructure:"gateway" yaml:"gateway"`
	Stickers  StickersConfig  `mapstructure:"stickers" yaml:"stickers"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	WebSearch WebSearchConfig `mapstructure:"web_search" yaml:"web_search"`
	Ntfy      NtfyConfig      `mapstructure:"ntfy" yaml:"ntfy"`
}

// BotConfig holds pipeline pacing and limits. Times are in seconds.
type BotConfig struct {
	MaxMemoryLength       int     `mapstructure:"max_memory_length" yaml:"max_memory_length"`
	MaxMessageInterval    float64 `mapstructure:"max_message_interval" yaml:"max_message_interval"`
	MaxBufferMessages     int     `mapstructure:"max_buffer_messages" yaml:"max_buffer_messages"`
	MinMessageDelay       float64 `mapstructure:"min_message_delay" yaml:"min_message_delay"`
	MaxMessageDelay       float64 `mapstructure:"max_message_delay" yaml:"max_message_delay"`
	MaxConcurrentMessages int     `mapstructure:"max_concurrent_messages" yaml:"max_concurrent_messages"`
	SendRatePerSecond     float64 `mapstructure:"send_rate_per_second" yaml:"send_rate_per_second"`
}

// AgentConfig holds agent behavior settings.
type AgentConfig struct {
	Model       string  `mapstructure:"model" yaml:"model"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Workspace   string  `mapstructure:"workspace" yaml:"workspace"`

	// MaxToolLoop is decoded by ToolLoopLimit so that a malformed value
	// falls back to the default instead of failing the load.
	MaxToolLoop int `mapstructure:"-" yaml:"max_tool_loop"`
}

// ProviderConfig holds the model endpoint and media model names.
type ProviderConfig struct {
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	APIBase     string `mapstructure:"api_base" yaml:"api_base,omitempty"`
	ImageModel  string `mapstructure:"image_model" yaml:"image_model,omitempty"`
	TTSModel    string `mapstructure:"tts_model" yaml:"tts_model,omitempty"`
	TTSVoice    string `mapstructure:"tts_voice" yaml:"tts_voice,omitempty"`
	STTModel    string `mapstructure:"stt_model" yaml:"stt_model,omitempty"`
	VisionModel string `mapstructure:"vision_model" yaml:"vision_model,omitempty"`

	// SelfiePath is the reference picture for selfie images, relative to
	// the workspace unless absolute.
	SelfiePath string `mapstructure:"selfie_path" yaml:"selfie_path,omitempty"`
}

// AdapterConfig declares one bridge adapter.
type AdapterConfig struct {
	Name         string            `mapstructure:"name" yaml:"name"`
	Platform     string            `mapstructure:"platform" yaml:"platform"`
	Desc         string            `mapstructure:"desc" yaml:"desc,omitempty"`
	BotPID       string            `mapstructure:"bot_pid" yaml:"bot_pid,omitempty"`
	MessageTypes []string          `mapstructure:"message_types" yaml:"message_types,omitempty"`
	AllowFrom    []string          `mapstructure:"allow_from" yaml:"allow_from,omitempty"`
	Emoji        map[string]string `mapstructure:"emoji" yaml:"emoji,omitempty"`
	SendTimeout  time.Duration     `mapstructure:"send_timeout" yaml:"send_timeout,omitempty"`
	AccessToken  string            `mapstructure:"access_token" yaml:"access_token,omitempty"`
}

// MemoryConfig selects the conversation memory backend.
type MemoryConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"` // file | redis
	Dir           string `mapstructure:"dir" yaml:"dir,omitempty"`
	RedisURL      string `mapstructure:"redis_url" yaml:"redis_url,omitempty"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password,omitempty"`
	RedisPrefix   string `mapstructure:"redis_prefix" yaml:"redis_prefix,omitempty"`
}

// GatewayConfig holds gateway/server settings.
type GatewayConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// StickersConfig controls the sticker folder rescan.
type StickersConfig struct {
	ScanInterval time.Duration `mapstructure:"scan_interval" yaml:"scan_interval"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Format    string `mapstructure:"format" yaml:"format"` // text | json
	AddSource bool   `mapstructure:"add_source" yaml:"add_source,omitempty"`
}

// WebSearchConfig holds web search settings.
type WebSearchConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	MaxResults int    `mapstructure:"max_results" yaml:"max_results,omitempty"`
}

// NtfyConfig enables the push notification tool. URL is the full topic
// endpoint, e.g. https://ntfy.sh/my-topic.
type NtfyConfig struct {
	URL   string `mapstructure:"url" yaml:"url,omitempty"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// DefaultMaxToolLoop is used when agent.max_tool_loop is absent or not an integer.
const DefaultMaxToolLoop = 2

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Bot: BotConfig{
			MaxMemoryLength:       10,
			MaxMessageInterval:    2,
			MaxBufferMessages:     5,
			MinMessageDelay:       0.8,
			MaxMessageDelay:       1.5,
			MaxConcurrentMessages: 3,
		},
		Agent: AgentConfig{
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxTokens:   4096,
			MaxToolLoop: DefaultMaxToolLoop,
		},
		Memory: MemoryConfig{
			Backend:     "file",
			RedisPrefix: "kira:",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18790,
		},
		Stickers: StickersConfig{ScanInterval: 2 * time.Hour},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		WebSearch: WebSearchConfig{
			MaxResults: 5,
		},
	}
}

// Seconds converts a seconds setting to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
