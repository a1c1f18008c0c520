package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/slate/internal/config"
	"github.com/jackzampolin/slate/internal/home"
	"github.com/jackzampolin/slate/internal/svcctx"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage slate configuration",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default config file to the home directory",
	Annotations: map[string]string{noServices: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		path := h.ConfigPath()
		if cfgFile != "" {
			path = cfgFile
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		return svcctx.PrinterFrom(cmd.Context()).Print("wrote " + path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and SLATE_*
environment variables are applied. API keys are shown unresolved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())
		printer := svc.Printer
		if !printer.Structured() {
			if file := svc.Config.ConfigFile(); file != "" {
				fmt.Fprintf(os.Stderr, "# from %s\n", file)
			}
		}
		return printer.Print(svc.Config.Get())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
