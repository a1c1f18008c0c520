package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/jackzampolin/slate/internal/events"
)

var (
	percentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	typeStyle    = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// renderProgress writes one line per progress event until ch closes.
func renderProgress(w io.Writer, ch <-chan events.Progress) {
	for p := range ch {
		if line := progressLine(p); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

func progressLine(p events.Progress) string {
	pct := percentStyle.Render(fmt.Sprintf("[%3.0f%%]", p.Percent))
	switch p.Kind {
	case events.KindChunkStarted:
		return fmt.Sprintf("%s %s chunk %d/%d", pct, typeStyle.Render(p.CurrentType), p.CurrentChunk, p.TotalChunks)
	case events.KindChunkCompleted:
		// The next chunk_started line carries the same information.
		return ""
	case events.KindTypeCompleted, events.KindRunCompleted, events.KindRunCached:
		return fmt.Sprintf("%s %s", pct, okStyle.Render(p.Message))
	case events.KindTypeSkipped, events.KindCheckpointFailed, events.KindRunCancelled:
		msg := p.Message
		if p.Error != "" {
			msg += ": " + p.Error
		}
		return fmt.Sprintf("%s %s", pct, warnStyle.Render(msg))
	case events.KindTypeFailed:
		return fmt.Sprintf("%s %s", pct, failStyle.Render(p.Message+": "+p.Error))
	default:
		return fmt.Sprintf("%s %s", pct, p.Message)
	}
}
