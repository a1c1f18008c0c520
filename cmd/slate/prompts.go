package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/slate/internal/svcctx"
)

type promptInfo struct {
	Key         string   `json:"key" yaml:"key"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   []string `json:"variables" yaml:"variables"`
	Hash        string   `json:"hash" yaml:"hash"`
	Override    string   `json:"override,omitempty" yaml:"override,omitempty"`
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and customize analysis prompts",
	Long: `Every analysis prompt is a Go template embedded in the binary. A file named
<key>.tmpl in the prompts directory (default ~/.slate/prompts) replaces the
embedded prompt with the same key.

Examples:
  slate prompts list
  slate prompts export          # write every prompt for editing
  slate prompts show analysis.themes.system`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompt keys and whether they are overridden",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())

		var out []promptInfo
		for _, p := range svc.Prompts.AllEmbedded() {
			info := promptInfo{Key: p.Key, Description: p.Description, Variables: p.Variables, Hash: p.Hash[:12]}
			resolved, err := svc.Prompts.Resolve(p.Key)
			if err != nil {
				return err
			}
			if resolved.IsOverride {
				info.Override = resolved.Path
				info.Hash = resolved.Hash[:12]
			}
			out = append(out, info)
		}
		return svc.Printer.Print(out)
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print the prompt text that will be used for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())
		resolved, err := svc.Prompts.Resolve(args[0])
		if err != nil {
			return err
		}
		return svc.Printer.Print(resolved.Text)
	},
}

var promptsExportForce bool

var promptsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write embedded prompts to the prompts directory for editing",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())
		n, err := svc.Prompts.ExportAll(promptsExportForce)
		if err != nil {
			return err
		}
		return svc.Printer.Print(fmt.Sprintf("exported %d prompts", n))
	},
}

func init() {
	promptsExportCmd.Flags().BoolVar(&promptsExportForce, "force", false, "overwrite existing override files")

	promptsCmd.AddCommand(promptsListCmd, promptsShowCmd, promptsExportCmd)
	rootCmd.AddCommand(promptsCmd)
}
