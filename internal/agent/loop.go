// Package agent runs one model turn per flushed batch: it assembles the
// prompt, drives the bounded tool-calling loop, sends replies and commits
// the turn to memory.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dayuer/kira-go/internal/memory"
	"github.com/dayuer/kira-go/internal/metrics"
	"github.com/dayuer/kira-go/internal/providers"
	"github.com/dayuer/kira-go/internal/session"
	"github.com/dayuer/kira-go/internal/tools"
)

// DefaultMaxToolLoop is the number of tool rounds allowed per turn when
// the setting is absent.
const DefaultMaxToolLoop = 2

// MarkupSender sends reply markup to a session and returns the markup
// annotated with platform message ids.
type MarkupSender interface {
	SendMarkup(ctx context.Context, key session.Key, markup string) (string, []string, error)
}

// Config configures a Loop.
type Config struct {
	// MaxToolLoop bounds tool rounds; a turn makes at most MaxToolLoop+1
	// model calls. Negative means DefaultMaxToolLoop.
	MaxToolLoop int
	Logger      *slog.Logger
}

// Loop is the agent loop.
type Loop struct {
	Provider providers.LLMProvider
	Tools    *tools.Registry
	Memory   memory.Store
	Context  *ContextBuilder
	Sender   MarkupSender

	maxToolLoop int
	logger      *slog.Logger
}

// NewLoop creates an agent loop.
func NewLoop(provider providers.LLMProvider, registry *tools.Registry, store memory.Store,
	builder *ContextBuilder, sender MarkupSender, cfg Config) *Loop {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	maxLoop := cfg.MaxToolLoop
	if maxLoop < 0 {
		maxLoop = DefaultMaxToolLoop
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		Provider:    provider,
		Tools:       registry,
		Memory:      store,
		Context:     builder,
		Sender:      sender,
		maxToolLoop: maxLoop,
		logger:      logger.With("component", "agent"),
	}
}

// MaxSteps is the most model calls one turn makes.
func (l *Loop) MaxSteps() int { return l.maxToolLoop + 1 }

// RunTurn answers one flushed batch for key. The caller holds key's turn
// lock. Model failures end the turn with an empty reply; only memory errors
// are returned.
func (l *Loop) RunTurn(ctx context.Context, key session.Key, batchText string, env ChatEnv,
	messageTypes []string, emojiDict map[string]string) error {
	start := time.Now()
	log := l.logger.With("session", key.String(), "turn", uuid.NewString())

	history, err := l.Memory.Fetch(ctx, key)
	if err != nil {
		metrics.RecordTurn(key.Adapter, "error", time.Since(start))
		return fmt.Errorf("fetch memory: %w", err)
	}
	core, err := l.Memory.CoreMemory(ctx)
	if err != nil {
		log.Warn("core memory unavailable", "error", err)
		core = ""
	}

	system := l.Context.BuildSystemPrompt(env, core, messageTypes, emojiDict)
	user := providers.Message{Role: providers.RoleUser, Content: batchText}
	messages := l.Context.BuildMessages(system, history, user)
	chunk := memory.Chunk{user}

	add := func(msgs ...providers.Message) {
		messages = append(messages, msgs...)
		chunk = append(chunk, msgs...)
	}

	defs := l.Tools.Defs()
	outcome := "exhausted"
	for step := 0; step < l.MaxSteps(); step++ {
		resp, err := l.Provider.AgentRun(ctx, messages, defs)
		metrics.RecordLLMCall("agent", err)
		if err != nil || resp == nil {
			log.Error("model call failed", "step", step, "error", err)
			add(providers.Message{Role: providers.RoleAssistant})
			outcome = "provider_error"
			break
		}

		content := ""
		if text := strings.TrimSpace(resp.Text); text != "" {
			content = l.reply(ctx, log, key, text)
		}

		if !resp.HasToolCalls() {
			add(providers.Message{Role: providers.RoleAssistant, Content: content})
			outcome = "ok"
			break
		}

		add(providers.Message{Role: providers.RoleAssistant, Content: content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			out, err := l.Tools.Invoke(ctx, call)
			metrics.RecordToolCall(call.Name, err)
			if err != nil {
				log.Warn("tool failed", "tool", call.Name, "error", err)
			} else {
				log.Info("tool called", "tool", call.Name, "args", call.Arguments)
			}
			add(providers.Message{Role: providers.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: out})
		}
	}

	if err := l.Memory.Append(ctx, key, chunk); err != nil {
		metrics.RecordTurn(key.Adapter, "error", time.Since(start))
		return fmt.Errorf("append memory: %w", err)
	}
	metrics.RecordTurn(key.Adapter, outcome, time.Since(start))
	return nil
}

// reply sends text and returns what goes into memory: the annotated markup,
// or the text itself when sending could not start.
func (l *Loop) reply(ctx context.Context, log *slog.Logger, key session.Key, text string) string {
	annotated, _, err := l.Sender.SendMarkup(ctx, key, text)
	if err != nil {
		log.Error("send reply failed", "error", err)
		return text
	}
	log.Info("replied", "content", annotated)
	return annotated
}
