package providers

import (
	"context"
	"sync"
)

// DynamicProvider wraps a provider with hot-swap support. The gateway swaps
// in a freshly built provider when the config file is reloaded.
//
// In-flight calls finish on the old provider; new calls use the new one.
type DynamicProvider struct {
	mu    sync.RWMutex
	inner LLMProvider
}

// NewDynamicProvider creates a DynamicProvider wrapping the given provider.
func NewDynamicProvider(initial LLMProvider) *DynamicProvider {
	return &DynamicProvider{inner: initial}
}

func (d *DynamicProvider) current() LLMProvider {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.inner
}

// AgentRun delegates to the current inner provider.
func (d *DynamicProvider) AgentRun(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error) {
	return d.current().AgentRun(ctx, messages, tools)
}

// Chat delegates to the current inner provider.
func (d *DynamicProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	return d.current().Chat(ctx, messages)
}

// DefaultModel returns the current inner provider's default model.
func (d *DynamicProvider) DefaultModel() string {
	return d.current().DefaultModel()
}

// Swap replaces the inner provider.
func (d *DynamicProvider) Swap(p LLMProvider) {
	d.mu.Lock()
	d.inner = p
	d.mu.Unlock()
}

// Inner returns the current inner provider.
func (d *DynamicProvider) Inner() LLMProvider {
	return d.current()
}
