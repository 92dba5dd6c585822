package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/dayuer/kira-go/internal/agent"
	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/channels"
	"github.com/dayuer/kira-go/internal/config"
	"github.com/dayuer/kira-go/internal/dispatch"
	"github.com/dayuer/kira-go/internal/lane"
	"github.com/dayuer/kira-go/internal/memory"
	"github.com/dayuer/kira-go/internal/processor"
	"github.com/dayuer/kira-go/internal/protocol"
	"github.com/dayuer/kira-go/internal/providers"
	"github.com/dayuer/kira-go/internal/session"
	"github.com/dayuer/kira-go/internal/tools"
)

const inboundBufferSize = 256

// makeProvider creates the OpenAI-compatible provider from the loaded config.
// The API key falls back to the usual environment variables.
func makeProvider(cfg config.Config) *providers.OpenAIProvider {
	apiKey := cfg.Provider.APIKey
	if apiKey == "" {
		if e := providers.FindByModel(cfg.Agent.Model); e != nil && e.EnvKey != "" {
			apiKey = os.Getenv(e.EnvKey)
		}
	}
	if apiKey == "" {
		for _, envKey := range []string{"KIRA_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY", "DEEPSEEK_API_KEY"} {
			if v := os.Getenv(envKey); v != "" {
				apiKey = v
				break
			}
		}
	}
	return providers.NewOpenAIProvider(providers.Options{
		APIKey:      apiKey,
		APIBase:     cfg.Provider.APIBase,
		Model:       cfg.Agent.Model,
		MaxTokens:   cfg.Agent.MaxTokens,
		Temperature: float32(cfg.Agent.Temperature),
		ImageModel:  cfg.Provider.ImageModel,
		TTSModel:    cfg.Provider.TTSModel,
		TTSVoice:    cfg.Provider.TTSVoice,
		STTModel:    cfg.Provider.STTModel,
		VisionModel: cfg.Provider.VisionModel,
	})
}

// makeMemory opens the configured memory backend. The returned close func
// releases the Redis connection when there is one.
func makeMemory(ctx context.Context, cfg config.Config, logger *slog.Logger) (memory.Store, memory.CoreEditor, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Memory.Backend {
	case "", "file":
		store, err := memory.NewFileStore(cfg.MemoryDir(), cfg.Bot.MaxMemoryLength, logger)
		if err != nil {
			return nil, nil, noop, err
		}
		return store, store.Core(), noop, nil
	case "redis":
		client, err := memory.Dial(ctx, memory.RedisConfig{
			URL:      cfg.Memory.RedisURL,
			Password: cfg.Memory.RedisPassword,
			Prefix:   cfg.Memory.RedisPrefix,
		})
		if err != nil {
			return nil, nil, noop, err
		}
		store := memory.NewRedisStore(client, cfg.Memory.RedisPrefix, cfg.Bot.MaxMemoryLength, logger)
		return store, store, closeRedis(client), nil
	default:
		return nil, nil, noop, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

func closeRedis(c *redis.Client) func() error {
	return func() error {
		if err := c.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
		return nil
	}
}

func adapterConfig(a config.AdapterConfig) channels.AdapterConfig {
	return channels.AdapterConfig{
		Name:         a.Name,
		Platform:     a.Platform,
		Desc:         a.Desc,
		BotPID:       a.BotPID,
		MessageTypes: a.MessageTypes,
		AllowFrom:    a.AllowFrom,
		EmojiDict:    a.Emoji,
		SendTimeout:  a.SendTimeout,
		AccessToken:  a.AccessToken,
	}
}

func accountsOf(adapters []channels.AdapterConfig) []agent.Account {
	accounts := make([]agent.Account, 0, len(adapters))
	for _, a := range adapters {
		platform := a.Platform
		if platform == "" {
			platform = a.Name
		}
		accounts = append(accounts, agent.Account{
			Platform: platform,
			Adapter:  a.Name,
			Desc:     a.Desc,
			BotPID:   a.BotPID,
		})
	}
	return accounts
}

// pipeline is the assembled runtime: bus, adapters, processor and the
// pieces the gateway needs to reload or shut down.
type pipeline struct {
	cfg       config.Config
	bus       *bus.MessageBus
	channels  *channels.Manager
	websocket []*channels.WebSocketChannel
	processor *processor.Processor
	provider  *providers.DynamicProvider
	media     *providers.OpenAIProvider
	stickers  *agent.Stickers
	close     func() error
	logger    *slog.Logger
}

// buildPipeline wires every component. Adapters from the config become
// WebSocket bridges on msgBus; extra adapters are registered as given and
// must publish to the same bus.
func buildPipeline(ctx context.Context, cfg config.Config, msgBus *bus.MessageBus, logger *slog.Logger,
	extra ...channels.Adapter) (*pipeline, error) {
	p := &pipeline{
		cfg:    cfg,
		bus:    msgBus,
		logger: logger,
	}
	p.channels = channels.NewManager(logger)

	var adapterCfgs []channels.AdapterConfig
	for _, a := range cfg.Adapters {
		ac := adapterConfig(a)
		ws := channels.NewWebSocketChannel(ac, p.bus, logger)
		p.channels.Register(ws)
		p.websocket = append(p.websocket, ws)
		adapterCfgs = append(adapterCfgs, ac)
	}
	for _, a := range extra {
		p.channels.Register(a)
		ac := channels.AdapterConfig{Name: a.Name()}
		if pa, ok := a.(interface{ Platform() string }); ok {
			ac.Platform = pa.Platform()
		}
		adapterCfgs = append(adapterCfgs, ac)
	}

	store, core, closeStore, err := makeMemory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}
	p.close = closeStore

	stickers, err := agent.LoadStickers(cfg.StickerDir())
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("load stickers: %w", err)
	}
	p.stickers = stickers

	p.media = makeProvider(cfg)
	p.provider = providers.NewDynamicProvider(p.media)

	media := protocol.Media{
		Speech:    p.media,
		Stickers:  stickers,
		Editor:    p.media,
		SelfieRef: cfg.SelfiePath(),
	}
	if cfg.Provider.ImageModel != "" {
		media.Images = p.media
	}
	codec := protocol.NewCodec(p.provider, media, logger)

	locks := session.NewSerializer()
	dispatcher := dispatch.New(p.channels, locks, codec, dispatch.Config{
		MinDelay:      config.Seconds(cfg.Bot.MinMessageDelay),
		MaxDelay:      config.Seconds(cfg.Bot.MaxMessageDelay),
		RatePerSecond: cfg.Bot.SendRatePerSecond,
	}, logger)

	registry := tools.NewRegistry(tools.MemoryTools(core)...)
	registry.Register(&tools.SendMessageTool{Send: dispatcher.SendXML})
	registry.Register(&tools.WebFetchTool{})
	if cfg.WebSearch.APIKey != "" {
		registry.Register(&tools.WebSearchTool{
			APIKey:     cfg.WebSearch.APIKey,
			MaxResults: cfg.WebSearch.MaxResults,
		})
	}
	if cfg.Ntfy.URL != "" {
		registry.Register(&tools.NtfyTool{URL: cfg.Ntfy.URL, Token: cfg.Ntfy.Token})
	}

	builder := agent.NewContextBuilder(cfg.WorkspaceDir(), accountsOf(adapterCfgs), stickers)
	loop := agent.NewLoop(p.provider, registry, store, builder, dispatcher, agent.Config{
		MaxToolLoop: cfg.Agent.MaxToolLoop,
		Logger:      logger,
	})

	p.processor = processor.New(processor.Options{
		Lanes: lane.NewManager(lane.ManagerConfig{
			Interval: config.Seconds(cfg.Bot.MaxMessageInterval),
			MaxBatch: cfg.Bot.MaxBufferMessages,
			Logger:   logger,
		}),
		Locks:         locks,
		Agent:         loop,
		Formatter:     agent.NewFormatter(p.media, p.media, logger),
		Context:       builder,
		Memory:        store,
		Emoji:         p.channels,
		MaxConcurrent: int64(cfg.Bot.MaxConcurrentMessages),
		Logger:        logger,
	})
	return p, nil
}

// reload swaps the chat model for one built from cfg. Media models keep the
// provider they started with.
func (p *pipeline) reload(cfg config.Config) {
	p.provider.Swap(makeProvider(cfg))
	p.logger.Info("provider swapped", "model", p.provider.DefaultModel())
}

// start launches the processor and the sticker rescan. The returned channel
// closes once the processor has drained after ctx is done.
func (p *pipeline) start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.processor.Run(ctx, p.bus)
	}()
	if interval := p.cfg.Stickers.ScanInterval; interval > 0 {
		go p.stickers.Run(ctx, p.media, interval, p.logger)
	}
	return done
}

// run starts everything and blocks until ctx is done or an adapter fails.
func (p *pipeline) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := p.start(ctx)
	err := p.channels.StartAll(ctx)
	cancel()
	<-done
	return err
}

// shutdown stops adapters and closes the memory backend.
func (p *pipeline) shutdown() {
	p.channels.StopAll()
	if err := p.close(); err != nil {
		p.logger.Warn("close memory", "error", err)
	}
}
