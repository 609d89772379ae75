package providers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/tandem/internal/agent"
)

// modelAlias maps a shorthand to a full model id and provider tag.
type modelAlias struct {
	id       string
	provider string
}

// Shorthand table. Anything not listed falls through to the prefix
// heuristics in Resolve.
var modelAliases = map[string]modelAlias{
	"sonnet":      {id: "claude-sonnet-4-20250514", provider: "anthropic"},
	"opus":        {id: "claude-opus-4-20250514", provider: "anthropic"},
	"haiku":       {id: "claude-3-5-haiku-20241022", provider: "anthropic"},
	"qwen":        {id: "qwen-max", provider: "qwen"},
	"qwen-max":    {id: "qwen-max", provider: "qwen"},
	"qwen-plus":   {id: "qwen-plus", provider: "qwen"},
	"coder-model": {id: "qwen3-coder-plus", provider: "qwen"},
}

// Resolve maps a model name or shorthand to (provider tag, full model id).
// Names with the claude- prefix route to anthropic, names containing "qwen"
// route to qwen, and everything else defaults to anthropic.
func Resolve(model string) (provider, id string) {
	name := strings.ToLower(strings.TrimSpace(model))
	if alias, ok := modelAliases[name]; ok {
		return alias.provider, alias.id
	}
	switch {
	case strings.HasPrefix(name, "claude-"):
		return "anthropic", model
	case strings.Contains(name, "qwen"):
		return "qwen", model
	default:
		return "anthropic", model
	}
}

// FactoryConfig carries the credentials needed to construct clients lazily.
type FactoryConfig struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	QwenAPIKey       string
	QwenBaseURL      string
	MaxTokens        int

	// Debug replaces every client with the deterministic mock.
	Debug bool

	// MockRole selects the mock script set ("instructor" or "worker") when
	// Debug is on.
	MockRole string

	// MockSeed seeds the mock's weighted choice for reproducible runs.
	MockSeed int64
}

// Factory resolves models to clients, caching one client per provider tag.
// The cache is only touched from the turn that owns the factory, so no
// locking beyond the construction guard is needed; the mutex keeps the
// lazy construction race-free anyway.
type Factory struct {
	mu      sync.Mutex
	config  FactoryConfig
	clients map[string]agent.LLMProvider
}

// NewFactory creates a client factory.
func NewFactory(config FactoryConfig) *Factory {
	return &Factory{
		config:  config,
		clients: make(map[string]agent.LLMProvider),
	}
}

// ClientFor implements agent.ProviderFactory.
func (f *Factory) ClientFor(model string) (agent.LLMProvider, string, error) {
	tag, id := Resolve(model)

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[tag]; ok {
		return client, id, nil
	}

	client, err := f.build(tag)
	if err != nil {
		return nil, "", err
	}
	f.clients[tag] = client
	return client, id, nil
}

func (f *Factory) build(tag string) (agent.LLMProvider, error) {
	if f.config.Debug {
		return NewMockProvider(MockConfig{Role: f.config.MockRole, Seed: f.config.MockSeed}), nil
	}
	switch tag {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:    f.config.AnthropicAPIKey,
			BaseURL:   f.config.AnthropicBaseURL,
			MaxTokens: f.config.MaxTokens,
		})
	case "qwen":
		return NewQwenProvider(QwenConfig{
			APIKey:    f.config.QwenAPIKey,
			BaseURL:   f.config.QwenBaseURL,
			MaxTokens: f.config.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider tag %q", agent.ErrNoProvider, tag)
	}
}
