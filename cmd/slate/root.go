package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/slate/internal/api"
	"github.com/jackzampolin/slate/internal/catalog"
	"github.com/jackzampolin/slate/internal/config"
	"github.com/jackzampolin/slate/internal/home"
	"github.com/jackzampolin/slate/internal/llmcall"
	"github.com/jackzampolin/slate/internal/logging"
	"github.com/jackzampolin/slate/internal/prompts"
	"github.com/jackzampolin/slate/internal/providers"
	"github.com/jackzampolin/slate/internal/store"
	"github.com/jackzampolin/slate/internal/svcctx"
	"github.com/jackzampolin/slate/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

// noServices marks commands that run without config, store or providers.
const noServices = "slate/no-services"

var rootCmd = &cobra.Command{
	Use:   "slate",
	Short: "Multi-pass AI analysis of screenplays",
	Long: `Slate runs a screenplay through a set of AI analysis passes: production
breakdown, character arcs, structure, themes, dialogue, pacing, market
positioning, coverage and loglines.

Long scripts are split into chunks that fit the model's context window and
the partial results are merged back into one report. Progress is
checkpointed after every pass, so an interrupted run resumes where it
stopped.`,
	Version:           version.GitRelease,
	SilenceUsage:      true,
	PersistentPreRunE: setupServices,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if st := svcctx.StoreFrom(cmd.Context()); st != nil {
			return st.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.slate/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "slate home directory (default: $SLATE_HOME or ~/.slate)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "text", "output format: text, yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (default from config)",
	)

	rootCmd.AddCommand(versionCmd)
}

// setupServices builds the shared services once per invocation and attaches
// them to the command context.
func setupServices(cmd *cobra.Command, args []string) error {
	format, err := api.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	printer := api.NewPrinter(format)
	printer.Out = cmd.OutOrStdout()

	if cmd.Annotations[noServices] == "true" {
		cmd.SetContext(svcctx.WithServices(cmd.Context(), &svcctx.Services{Printer: printer}))
		return nil
	}

	h, err := home.New(homeDir)
	if err != nil {
		return err
	}
	if err := h.EnsureExists(); err != nil {
		return err
	}

	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return err
	}
	cfg := mgr.Get()

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(logging.Config{Level: level, Format: cfg.Logging.Format, Output: os.Stderr})
	slog.SetDefault(logger)
	if file := mgr.ConfigFile(); file != "" {
		logger.Debug("loaded config", "file", file)
	}

	st, err := store.Open(cmd.Context(), cfg.StoreConfig(h.Path()))
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}

	promptsDir := cfg.Analysis.PromptsDir
	if promptsDir == "" {
		promptsDir = h.PromptsPath()
	}
	resolver := prompts.NewResolver(prompts.NewOverrideDir(promptsDir), logger)

	cmd.SetContext(svcctx.WithServices(cmd.Context(), &svcctx.Services{
		Config:   mgr,
		Registry: providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig(), logger),
		Store:    st,
		Catalog:  catalog.New(resolver),
		Prompts:  resolver,
		Recorder: llmcall.NewRecorder(st, logger),
		Logger:   logger,
		Home:     h,
		Printer:  printer,
	}))
	return nil
}
