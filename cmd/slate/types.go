package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/slate/internal/catalog"
	"github.com/jackzampolin/slate/internal/svcctx"
)

type typeInfo struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Format      string `json:"format" yaml:"format"`
	WholeScript bool   `json:"whole_script" yaml:"whole_script"`
	Description string `json:"description" yaml:"description"`
}

type typeList []typeInfo

func (l typeList) Text() string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "FORMAT", "DESCRIPTION")
	for _, ti := range l {
		format := ti.Format
		if ti.WholeScript {
			format += ", whole script"
		}
		t.Row(ti.ID, ti.Name, format, ti.Description)
	}
	return t.String() + "\n"
}

func typeListFrom(specs []catalog.Spec) typeList {
	out := make(typeList, len(specs))
	for i, s := range specs {
		out[i] = typeInfo{
			ID:          s.ID,
			Name:        s.Label,
			Format:      strings.ToLower(string(s.OutputFormat)),
			WholeScript: s.NoChunking,
			Description: s.Description,
		}
	}
	return out
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the available analysis types",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())
		return svc.Printer.Print(typeListFrom(svc.Catalog.All()))
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
}
