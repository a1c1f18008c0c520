package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/slate/internal/svcctx"
	"github.com/jackzampolin/slate/version"
)

type versionInfo struct {
	Release    string `json:"release" yaml:"release"`
	Go         string `json:"go" yaml:"go"`
	Commit     string `json:"commit" yaml:"commit"`
	CommitDate string `json:"commit_date" yaml:"commit_date"`
}

func (v versionInfo) Text() string {
	return "slate " + v.Release + "\n" +
		"  Go:     " + v.Go + "\n" +
		"  Commit: " + v.Commit + "\n" +
		"  Date:   " + v.CommitDate + "\n"
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{noServices: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return svcctx.PrinterFrom(cmd.Context()).Print(versionInfo{
			Release:    version.GitRelease,
			Go:         version.GoInfo,
			Commit:     version.GitCommit,
			CommitDate: version.GitCommitDate,
		})
	},
}
