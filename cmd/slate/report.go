package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jackzampolin/slate/internal/reconcile"
	"github.com/jackzampolin/slate/internal/run"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)

// analysisReport is the text rendering of a finished run.
type analysisReport struct {
	analysis *run.DocumentAnalysis
}

func (r analysisReport) Text() string {
	a := r.analysis
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", headingStyle.Render(a.DocumentID.FileName))
	fmt.Fprintf(&b, "%d of %d analyses succeeded", a.Summary.Succeeded, a.Summary.TotalTypes)
	if a.FromCache {
		b.WriteString(" (cached)")
	}
	if a.Cancelled {
		b.WriteString(" (cancelled, rerun to resume)")
	}
	b.WriteString("\n")

	for _, res := range a.Results {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", headingStyle.Render(res.Name))
		if res.Status == run.StatusFailed {
			fmt.Fprintf(&b, "%s\n", failStyle.Render("failed: "+res.Error))
			continue
		}
		if res.ChunkErrors > 0 {
			fmt.Fprintf(&b, "%s\n", warnStyle.Render(fmt.Sprintf("%d of %d chunks failed", res.ChunkErrors, res.Chunks)))
		}
		if text := res.Text(); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
			continue
		}
		b.WriteString(breakdownText(res.Result))
	}
	return b.String()
}

func breakdownText(raw json.RawMessage) string {
	var bd reconcile.Breakdown
	if err := json.Unmarshal(raw, &bd); err != nil {
		return string(raw) + "\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scenes: %d  Runtime: %.0f min  Shooting days: %.1f\n",
		bd.Summary.TotalScenes, bd.Summary.EstimatedRuntime, bd.Summary.EstimatedShootingDays)
	if len(bd.Characters) > 0 {
		b.WriteString("Characters:\n")
		for _, c := range bd.Characters {
			fmt.Fprintf(&b, "  %-24s %3d scenes %4d lines\n", c.Name, c.SceneCount, c.DialogueCount)
		}
	}
	if len(bd.Locations) > 0 {
		b.WriteString("Locations:\n")
		for _, l := range bd.Locations {
			fmt.Fprintf(&b, "  %-24s %3d scenes\n", l.Name, l.SceneCount)
		}
	}
	if len(bd.Equipment) > 0 {
		names := make([]string, len(bd.Equipment))
		for i, e := range bd.Equipment {
			names[i] = e.Name
		}
		fmt.Fprintf(&b, "Equipment: %s\n", strings.Join(names, ", "))
	}
	for _, u := range bd.Unstructured {
		fmt.Fprintf(&b, "Unparsed output:\n%s\n", u)
	}
	return b.String()
}
