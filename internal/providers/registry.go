package providers

import (
	"os"
	"strings"
)

// Endpoint describes one OpenAI-compatible backend.
type Endpoint struct {
	Name        string   // config name, e.g. "deepseek"
	Keywords    []string // model-name keywords (lowercase)
	EnvKey      string   // env var holding the API key
	DisplayName string
	BaseURL     string // default API base

	IsGateway         bool   // routes any model (OpenRouter and friends)
	DetectByKeyPrefix string // api_key prefix that identifies the gateway
	DetectByBaseKW    string // api_base substring that identifies the gateway

	// Temperature pins the sampling temperature for matching models.
	Temperature map[string]float32
}

// Label returns a display label.
func (e *Endpoint) Label() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Name
}

// Endpoints is the lookup table. Gateways come first.
var Endpoints = []*Endpoint{
	{
		Name: "openrouter", Keywords: []string{"openrouter"},
		EnvKey: "OPENROUTER_API_KEY", DisplayName: "OpenRouter",
		BaseURL:   "https://openrouter.ai/api/v1",
		IsGateway: true, DetectByKeyPrefix: "sk-or-", DetectByBaseKW: "openrouter",
	},
	{
		Name: "siliconflow", Keywords: []string{"siliconflow"},
		EnvKey: "SILICONFLOW_API_KEY", DisplayName: "SiliconFlow",
		BaseURL:   "https://api.siliconflow.cn/v1",
		IsGateway: true, DetectByBaseKW: "siliconflow",
	},
	{
		Name: "openai", Keywords: []string{"gpt", "dall-e", "whisper", "tts"},
		EnvKey: "OPENAI_API_KEY", DisplayName: "OpenAI",
		BaseURL: "https://api.openai.com/v1",
	},
	{
		Name: "deepseek", Keywords: []string{"deepseek"},
		EnvKey: "DEEPSEEK_API_KEY", DisplayName: "DeepSeek",
		BaseURL: "https://api.deepseek.com/v1",
	},
	{
		Name: "dashscope", Keywords: []string{"qwen", "dashscope"},
		EnvKey: "DASHSCOPE_API_KEY", DisplayName: "DashScope",
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	},
	{
		Name: "moonshot", Keywords: []string{"moonshot", "kimi"},
		EnvKey: "MOONSHOT_API_KEY", DisplayName: "Moonshot",
		BaseURL:     "https://api.moonshot.ai/v1",
		Temperature: map[string]float32{"kimi-k2.5": 1.0},
	},
	{
		Name: "zhipu", Keywords: []string{"glm", "zhipu"},
		EnvKey: "ZAI_API_KEY", DisplayName: "Zhipu AI",
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
	},
}

// FindByModel returns the non-gateway endpoint whose keyword appears in model.
func FindByModel(model string) *Endpoint {
	lower := strings.ToLower(model)
	for _, e := range Endpoints {
		if e.IsGateway {
			continue
		}
		for _, kw := range e.Keywords {
			if strings.Contains(lower, kw) {
				return e
			}
		}
	}
	return nil
}

// FindGateway detects a gateway by api_key prefix or api_base keyword.
func FindGateway(apiKey, apiBase string) *Endpoint {
	for _, e := range Endpoints {
		if !e.IsGateway {
			continue
		}
		if e.DetectByKeyPrefix != "" && strings.HasPrefix(apiKey, e.DetectByKeyPrefix) {
			return e
		}
		if e.DetectByBaseKW != "" && apiBase != "" && strings.Contains(apiBase, e.DetectByBaseKW) {
			return e
		}
	}
	return nil
}

// FindByName finds an endpoint by config name.
func FindByName(name string) *Endpoint {
	for _, e := range Endpoints {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Resolve fills in the API base and key for model. Explicit values win;
// gateways keep the model name untouched, direct endpoints drop a leading
// "vendor/" prefix.
func Resolve(model, apiKey, apiBase string) (resolvedModel, key, base string) {
	resolvedModel, key, base = model, apiKey, apiBase
	if gw := FindGateway(apiKey, apiBase); gw != nil {
		if base == "" {
			base = gw.BaseURL
		}
		return resolvedModel, key, base
	}
	if e := FindByModel(model); e != nil {
		if base == "" {
			base = e.BaseURL
		}
		if key == "" && e.EnvKey != "" {
			key = os.Getenv(e.EnvKey)
		}
		if idx := strings.Index(resolvedModel, "/"); idx >= 0 {
			resolvedModel = resolvedModel[idx+1:]
		}
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return resolvedModel, key, base
}

// TemperatureFor returns the pinned temperature for model, if any.
func TemperatureFor(model string) (float32, bool) {
	e := FindByModel(model)
	if e == nil {
		return 0, false
	}
	lower := strings.ToLower(model)
	for pattern, t := range e.Temperature {
		if strings.Contains(lower, pattern) {
			return t, true
		}
	}
	return 0, false
}
