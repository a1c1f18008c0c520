package prompts

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Resolver resolves prompts with on-disk overrides.
// Resolution order: override file > embedded default.
type Resolver struct {
	overrides *OverrideDir
	embedded  map[string]EmbeddedPrompt
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewResolver creates a new prompt resolver. overrides may be nil.
func NewResolver(overrides *OverrideDir, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		overrides: overrides,
		embedded:  make(map[string]EmbeddedPrompt),
		logger:    logger,
	}
}

// Register registers an embedded prompt.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// Resolve returns the override for key if one exists, otherwise the
// embedded default.
func (r *Resolver) Resolve(key string) (*ResolvedPrompt, error) {
	if r.overrides != nil {
		text, path, ok, err := r.overrides.Get(key)
		if err != nil {
			r.logger.Warn("failed to read prompt override", "key", key, "error", err)
		} else if ok {
			return &ResolvedPrompt{
				Key:        key,
				Text:       text,
				Variables:  ExtractVariables(text),
				Hash:       HashText(text),
				IsOverride: true,
				Path:       path,
			}, nil
		}
	}

	r.mu.RLock()
	embedded, ok := r.embedded[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}

	return &ResolvedPrompt{
		Key:       key,
		Text:      embedded.Text,
		Variables: embedded.Variables,
		Hash:      embedded.Hash,
	}, nil
}

// GetEmbedded returns the embedded default for a key, ignoring overrides.
func (r *Resolver) GetEmbedded(key string) (*EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return &p, ok
}

// AllEmbedded returns all registered embedded prompts sorted by key.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// ExportAll writes every embedded default into the override directory so it
// can be edited. Existing override files are left alone unless force is set.
func (r *Resolver) ExportAll(force bool) (int, error) {
	if r.overrides == nil {
		return 0, fmt.Errorf("override directory not configured")
	}
	written := 0
	for _, p := range r.AllEmbedded() {
		if !force {
			if _, _, ok, err := r.overrides.Get(p.Key); err != nil {
				return written, err
			} else if ok {
				continue
			}
		}
		if err := r.overrides.Put(p.Key, p.Text); err != nil {
			return written, fmt.Errorf("failed to export prompt %s: %w", p.Key, err)
		}
		written++
	}
	r.logger.Info("exported prompts", "count", written, "dir", r.overrides.Dir())
	return written, nil
}
