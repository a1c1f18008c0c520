// Package svcctx carries the services a command needs through its context.
// Commands build Services once in the root PersistentPreRunE and pull out
// what they use via the extractors.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/slate/internal/api"
	"github.com/jackzampolin/slate/internal/catalog"
	"github.com/jackzampolin/slate/internal/config"
	"github.com/jackzampolin/slate/internal/home"
	"github.com/jackzampolin/slate/internal/llmcall"
	"github.com/jackzampolin/slate/internal/prompts"
	"github.com/jackzampolin/slate/internal/providers"
	"github.com/jackzampolin/slate/internal/store"
)

// Services holds all core services that flow through context.
type Services struct {
	Config   *config.Manager
	Registry *providers.Registry
	Store    store.Store
	Catalog  *catalog.Catalog
	Prompts  *prompts.Resolver
	Recorder *llmcall.Recorder
	Logger   *slog.Logger
	Home     *home.Dir
	Printer  *api.Printer
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom extracts the current configuration from context.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.Config != nil {
		return s.Config.Get()
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// StoreFrom extracts the result store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// CatalogFrom extracts the analysis catalog from context.
func CatalogFrom(ctx context.Context) *catalog.Catalog {
	if s := ServicesFrom(ctx); s != nil {
		return s.Catalog
	}
	return nil
}

// PromptsFrom extracts the prompt resolver from context.
func PromptsFrom(ctx context.Context) *prompts.Resolver {
	if s := ServicesFrom(ctx); s != nil {
		return s.Prompts
	}
	return nil
}

// RecorderFrom extracts the call recorder from context.
func RecorderFrom(ctx context.Context) *llmcall.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Recorder
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// PrinterFrom extracts the output printer from context.
func PrinterFrom(ctx context.Context) *api.Printer {
	if s := ServicesFrom(ctx); s != nil && s.Printer != nil {
		return s.Printer
	}
	return api.NewPrinter(api.DefaultOutput)
}
