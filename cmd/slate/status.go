package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/slate/internal/run"
	"github.com/jackzampolin/slate/internal/store"
	"github.com/jackzampolin/slate/internal/svcctx"
)

var statusTypes typeFlags

type typeStatus struct {
	Type      string     `json:"type" yaml:"type"`
	Status    string     `json:"status" yaml:"status"` // completed, failed, pending
	UpdatedAt *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

type documentStatus struct {
	File        string       `json:"file" yaml:"file"`
	ContentHash string       `json:"content_hash" yaml:"content_hash"`
	Fingerprint string       `json:"fingerprint" yaml:"fingerprint"`
	Cached      bool         `json:"cached" yaml:"cached"`
	CachedAt    *time.Time   `json:"cached_at,omitempty" yaml:"cached_at,omitempty"`
	Checkpoint  bool         `json:"checkpoint" yaml:"checkpoint"`
	Cancelled   bool         `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Types       []typeStatus `json:"types" yaml:"types"`
}

func (s documentStatus) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", s.File, s.ContentHash[:12])
	switch {
	case s.Cached:
		fmt.Fprintf(&b, "cached analysis from %s\n", s.CachedAt.Format(time.RFC822))
	case s.Checkpoint && s.Cancelled:
		b.WriteString("interrupted run, rerun analyze to resume\n")
	case s.Checkpoint:
		b.WriteString("run in progress or interrupted\n")
	}
	for _, t := range s.Types {
		line := fmt.Sprintf("  %-12s %s", t.Type, t.Status)
		switch t.Status {
		case string(run.StatusCompleted):
			line = okStyle.Render(line)
		case string(run.StatusFailed):
			line = failStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

var statusCmd = &cobra.Command{
	Use:   "status <screenplay> [more parts...]",
	Short: "Show stored analysis state for a screenplay",
	Long: `Show which analysis types already have results for a screenplay, whether a
cached full analysis exists, and whether an interrupted run can be resumed.

The screenplay is identified by its content, so the same file under a new
name, or an edited file, has separate state.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc := svcctx.ServicesFrom(ctx)

		if !statusTypes.all && len(statusTypes.types) == 0 && len(svc.Config.Get().Analysis.Types) == 0 {
			statusTypes.all = true
		}
		typeIDs, err := statusTypes.resolve(svc.Catalog, svc.Config.Get())
		if err != nil {
			return err
		}
		specs, err := svc.Catalog.Lookup(typeIDs)
		if err != nil {
			return err
		}
		ids := make([]string, len(specs))
		for i, s := range specs {
			ids[i] = s.ID
		}

		doc, err := loadDocument(ctx, args)
		if err != nil {
			return err
		}
		hash, name := doc.ID.ContentHash, doc.ID.FileName
		status := documentStatus{
			File:        name,
			ContentHash: hash,
			Fingerprint: run.Fingerprint(hash, ids),
		}

		var cached run.DocumentAnalysis
		found, err := store.GetJSON(ctx, svc.Store, store.CacheKey(hash, name), &cached)
		if err != nil {
			return err
		}
		if found && cached.Fingerprint == status.Fingerprint {
			status.Cached = true
			status.CachedAt = &cached.CompletedAt
		}

		var ckpt run.State
		found, err = store.GetJSON(ctx, svc.Store, store.CheckpointKey(hash, name, status.Fingerprint), &ckpt)
		if err != nil {
			return err
		}
		status.Checkpoint = found
		status.Cancelled = ckpt.Cancelled

		for _, id := range ids {
			ts := typeStatus{Type: id, Status: "pending"}
			res, ok := ckpt.Completed[id]
			if !ok {
				ok, err = store.GetJSON(ctx, svc.Store, store.TypeKey(hash, name, id), &res)
				if err != nil {
					return err
				}
			}
			if ok {
				ts.Status = string(res.Status)
				ts.UpdatedAt = &res.Timestamp
			}
			status.Types = append(status.Types, ts)
		}

		return svc.Printer.Print(status)
	},
}

func init() {
	statusCmd.Flags().StringSliceVarP(&statusTypes.types, "types", "t", nil, "analysis types to check (default: all)")
	statusCmd.Flags().BoolVar(&statusTypes.all, "all", false, "check every analysis type")

	rootCmd.AddCommand(statusCmd)
}
