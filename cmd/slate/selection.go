package main

import (
	"context"
	"fmt"

	"github.com/jackzampolin/slate/internal/catalog"
	"github.com/jackzampolin/slate/internal/config"
	"github.com/jackzampolin/slate/internal/ingest"
	"github.com/jackzampolin/slate/internal/svcctx"
)

// typeFlags are shared by the commands that take a type selection.
type typeFlags struct {
	types []string
	all   bool
}

// resolve returns the selected type IDs: --all, then --types, then
// analysis.types from config.
func (f typeFlags) resolve(cat *catalog.Catalog, cfg *config.Config) ([]string, error) {
	switch {
	case f.all:
		return cat.IDs(), nil
	case len(f.types) > 0:
		return f.types, nil
	case cfg != nil && len(cfg.Analysis.Types) > 0:
		return cfg.Analysis.Types, nil
	default:
		return nil, fmt.Errorf("no analysis types selected (use --types or --all; run 'slate types' to list them)")
	}
}

// loadDocument reads one screenplay, or several part files joined in order.
func loadDocument(ctx context.Context, paths []string) (*ingest.Document, error) {
	logger := svcctx.LoggerFrom(ctx)
	if len(paths) == 1 {
		return ingest.Load(ctx, paths[0], logger)
	}
	return ingest.LoadParts(ctx, paths, logger)
}
