package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultContextTokens is assumed for models with no known context window.
const DefaultContextTokens = 8192

// ModelProfile describes what the chunk planner needs to know about a model.
type ModelProfile struct {
	ContextTokens int  `json:"context_tokens"`
	Local         bool `json:"local"`
}

// knownContexts maps model name prefixes to their context windows.
// Longer prefixes are listed before shorter ones that share a stem.
var knownContexts = []struct {
	prefix string
	tokens int
}{
	{"google/gemini", 1_000_000},
	{"gemini", 1_000_000},
	{"openai/gpt-4.1", 1_000_000},
	{"gpt-4.1", 1_000_000},
	{"anthropic/claude", 200_000},
	{"claude", 200_000},
	{"openai/gpt-4o", 128_000},
	{"gpt-4o", 128_000},
	{"openai/o", 200_000},
	{"meta-llama/llama-3", 128_000},
	{"deepseek/", 64_000},
	{"mistralai/", 32_000},
	{"llama3", 8_192},
}

// LookupContextTokens returns the context window for model, or
// DefaultContextTokens when the model is unknown.
func LookupContextTokens(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, k := range knownContexts {
		if strings.HasPrefix(m, k.prefix) {
			return k.tokens
		}
	}
	return DefaultContextTokens
}

type localReporter interface {
	Local() bool
}

type registryEntry struct {
	client LLMClient
	cfg    LLMProviderConfig
}

// Registry holds references to LLM clients and their model profiles.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu         sync.RWMutex
	llmClients map[string]registryEntry
	logger     *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients: make(map[string]registryEntry),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.register(name, client, LLMProviderConfig{})
}

// RegisterLLMWithConfig registers a client along with the config it was built
// from, so profile lookups can use configured overrides.
func (r *Registry) RegisterLLMWithConfig(name string, client LLMClient, cfg LLMProviderConfig) {
	r.register(name, client, cfg)
}

func (r *Registry) register(name string, client LLMClient, cfg LLMProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = registryEntry{client: client, cfg: cfg}
	if r.logger != nil {
		r.logger.Info("registered LLM client", "name", name, "client", client.Name())
	}
}

// UnregisterLLM removes an LLM client by name.
func (r *Registry) UnregisterLLM(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.llmClients, name)
	if r.logger != nil {
		r.logger.Info("unregistered LLM client", "name", name)
	}
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return entry.client, nil
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// DefaultModel returns the configured model for a provider, falling back to
// the client's own default.
func (r *Registry) DefaultModel(name string) string {
	r.mu.RLock()
	entry, ok := r.llmClients[name]
	r.mu.RUnlock()
	if !ok {
		return ""
	}
	if entry.cfg.Model != "" {
		return entry.cfg.Model
	}
	if d, ok := entry.client.(interface{ DefaultModel() string }); ok {
		return d.DefaultModel()
	}
	return ""
}

// Profile resolves the model profile for a provider/model pair. Configured
// context sizes win over the built-in table; local clients are always local.
func (r *Registry) Profile(name, model string) ModelProfile {
	r.mu.RLock()
	entry, ok := r.llmClients[name]
	r.mu.RUnlock()

	if model == "" && ok {
		model = entry.cfg.Model
	}
	profile := ModelProfile{ContextTokens: LookupContextTokens(model)}
	if !ok {
		return profile
	}
	if entry.cfg.ContextTokens > 0 {
		profile.ContextTokens = entry.cfg.ContextTokens
	}
	profile.Local = entry.cfg.Local
	if lr, ok := entry.client.(localReporter); ok && lr.Local() {
		profile.Local = true
	}
	return profile
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	LLMProviders map[string]LLMProviderConfig
}

// LLMProviderConfig matches config.ProviderCfg with a resolved API key.
type LLMProviderConfig struct {
	Type          string // "openrouter", "openai", "ollama", "mock"
	Model         string
	APIKey        string // Resolved API key
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	ContextTokens int
	Local         bool
	Enabled       bool

	RequestsPerMinute int // 0 disables client-side rate limiting
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with the credentials they need are registered.
func NewRegistryFromConfig(cfg RegistryConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	r.Reload(cfg)
	return r
}

// Reload replaces the registered providers with those in cfg.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, provCfg := range cfg.LLMProviders {
		if !usable(provCfg) {
			continue
		}
		client := createLLMClient(provCfg)
		if client == nil {
			if r.logger != nil {
				r.logger.Warn("unknown provider type", "name", name, "type", provCfg.Type)
			}
			continue
		}
		want[name] = true
		_, existed := r.llmClients[name]
		r.llmClients[name] = registryEntry{client: client, cfg: provCfg}
		if r.logger != nil {
			if existed {
				r.logger.Info("updated LLM client", "name", name, "type", provCfg.Type)
			} else {
				r.logger.Info("registered LLM client", "name", name, "type", provCfg.Type)
			}
		}
	}

	for name := range r.llmClients {
		if !want[name] {
			delete(r.llmClients, name)
			if r.logger != nil {
				r.logger.Info("unregistered LLM client", "name", name)
			}
		}
	}
}

// usable reports whether a provider config has what its type needs.
func usable(cfg LLMProviderConfig) bool {
	if !cfg.Enabled {
		return false
	}
	switch cfg.Type {
	case OpenRouterName, OpenAIName:
		return cfg.APIKey != ""
	default:
		return true
	}
}

// createLLMClient creates an LLM client based on provider type.
func createLLMClient(cfg LLMProviderConfig) LLMClient {
	client := newBaseClient(cfg)
	if client != nil && cfg.RequestsPerMinute > 0 {
		return WithRateLimit(client, cfg.RequestsPerMinute)
	}
	return client
}

func newBaseClient(cfg LLMProviderConfig) LLMClient {
	switch cfg.Type {
	case OpenRouterName:
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
		})
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
		})
	case OllamaName:
		return NewOllamaClient(OllamaConfig{
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
			ContextSize:  cfg.ContextTokens,
		})
	case MockClientName:
		return NewMockClient()
	default:
		return nil
	}
}

// Bound returns a client that looks up name on every request, so a Reload
// reaches a run that is already in progress.
func (r *Registry) Bound(name string) LLMClient {
	return &boundClient{registry: r, name: name}
}

type boundClient struct {
	registry *Registry
	name     string
}

func (b *boundClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	client, err := b.registry.GetLLM(b.name)
	if err != nil {
		return nil, err
	}
	return client.Chat(ctx, req)
}

func (b *boundClient) Name() string { return b.name }

func (b *boundClient) Local() bool {
	client, err := b.registry.GetLLM(b.name)
	if err != nil {
		return false
	}
	lr, ok := client.(localReporter)
	return ok && lr.Local()
}
