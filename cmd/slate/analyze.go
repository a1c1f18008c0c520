package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/slate/internal/config"
	"github.com/jackzampolin/slate/internal/events"
	"github.com/jackzampolin/slate/internal/run"
	"github.com/jackzampolin/slate/internal/svcctx"
)

var errCancelled = errors.New("analysis cancelled")

var (
	analyzeTypes    typeFlags
	analyzeForce    bool
	analyzeLanguage string
	analyzeProvider string
	analyzeModel    string
	analyzeQuiet    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <screenplay> [more parts...]",
	Short: "Run analysis passes over a screenplay",
	Long: `Analyze a screenplay with one or more analysis types.

Text, Fountain, Markdown and PDF files are accepted. Several files are
treated as parts of one script, joined in numeric order (part1, part2, ...).

Interrupting a run with Ctrl+C keeps every finished pass; running the same
command again resumes with the remaining ones.

Examples:
  slate analyze script.fountain --types breakdown,characters
  slate analyze script.pdf --all --language French
  slate analyze act1.txt act2.txt act3.txt --types structure
  slate analyze script.pdf --all --force -o json > analysis.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc := svcctx.ServicesFrom(ctx)
		cfg := svc.Config.Get()
		logger := svc.Logger

		typeIDs, err := analyzeTypes.resolve(svc.Catalog, cfg)
		if err != nil {
			return err
		}
		// Validate before reading the document so a typo fails fast.
		if _, err := svc.Catalog.Lookup(typeIDs); err != nil {
			return err
		}

		doc, err := loadDocument(ctx, args)
		if err != nil {
			return err
		}

		providerName := analyzeProvider
		if providerName == "" {
			providerName = cfg.Defaults.Provider
		}
		if _, err := svc.Registry.GetLLM(providerName); err != nil {
			return fmt.Errorf("%w (is it enabled and does it have an API key?)", err)
		}
		model := analyzeModel
		if model == "" {
			model = cfg.Defaults.Model
		}
		if model == "" {
			model = svc.Registry.DefaultModel(providerName)
		}
		profile := svc.Registry.Profile(providerName, model)
		logger.Debug("using provider", "provider", providerName, "model", model,
			"context_tokens", profile.ContextTokens, "local", profile.Local)

		bus := events.NewBus(128)
		done := make(chan struct{})
		if analyzeQuiet {
			close(done)
		} else {
			ch, _ := bus.Subscribe()
			go func() {
				defer close(done)
				renderProgress(os.Stderr, ch)
			}()
		}

		coord, err := run.NewCoordinator(run.Config{
			Client:                svc.Registry.Bound(providerName),
			Catalog:               svc.Catalog,
			Store:                 svc.Store,
			Model:                 model,
			Profile:               profile,
			Sink:                  bus,
			Recorder:              svc.Recorder,
			Logger:                logger,
			Delay:                 cfg.InterRequestDelay(),
			Plan:                  cfg.PlanConfig(),
			FullAnalysisThreshold: cfg.Analysis.FullAnalysisThreshold,
			Language:              cfg.Analysis.Language,
		})
		if err != nil {
			bus.Close()
			return err
		}

		// Provider edits (keys, rate limits) apply to the chunks still to come.
		if svc.Config.ConfigFile() != "" {
			svc.Config.OnChange(func(c *config.Config) {
				svc.Registry.Reload(c.ToProviderRegistryConfig())
				logger.Info("reloaded provider config", "file", svc.Config.ConfigFile())
			})
			svc.Config.WatchConfig()
		}

		analysis, runErr := coord.StartRun(ctx, doc, typeIDs, run.Options{
			ForceRefresh: analyzeForce,
			Language:     analyzeLanguage,
		})
		bus.Close()
		<-done

		if analysis == nil {
			return runErr
		}
		if runErr != nil {
			logger.Warn("analysis finished but could not be cached", "error", runErr)
		}

		printer := svc.Printer
		if printer.Structured() {
			err = printer.Print(analysis)
		} else {
			err = printer.Print(analysisReport{analysis: analysis})
		}
		if err != nil {
			return err
		}
		if analysis.Cancelled {
			return errCancelled
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&analyzeTypes.types, "types", "t", nil, "analysis types to run (comma separated)")
	analyzeCmd.Flags().BoolVar(&analyzeTypes.all, "all", false, "run every analysis type")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "ignore cached results and checkpoints")
	analyzeCmd.Flags().StringVar(&analyzeLanguage, "language", "", "language of the analysis (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "provider name from config (default: defaults.provider)")
	analyzeCmd.Flags().StringVar(&analyzeModel, "model", "", "model override")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "suppress progress output")
	analyzeCmd.MarkFlagsMutuallyExclusive("types", "all")

	rootCmd.AddCommand(analyzeCmd)
}
