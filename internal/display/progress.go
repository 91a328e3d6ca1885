package display

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/pipeline"
)

// JobPrinter renders pipeline events as progress lines.
type JobPrinter struct {
	out io.Writer
	bar progress.Model
}

// NewJobPrinter writes to out with a bar of the given width.
func NewJobPrinter(out io.Writer, width int) *JobPrinter {
	return &JobPrinter{
		out: out,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(width)),
	}
}

// Render formats one event.
func (p *JobPrinter) Render(e pipeline.Event) string {
	label := labelStyle.Render(fmt.Sprintf("%-9s", e.Surface))
	switch e.Phase {
	case domain.PhaseFailed:
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		return label + " " + urgentStyle.Render(msg)
	case domain.PhaseIdle:
		return label + " " + idleStyle.Render("idle")
	}
	line := label + " " + p.bar.ViewAs(float64(e.Progress)/100) + " " + primaryStyle.Render(e.Message)
	if e.Locator != "" {
		line += " " + secondaryStyle.Render(e.Locator)
	}
	return line
}

// Print writes one event as a line.
func (p *JobPrinter) Print(e pipeline.Event) {
	fmt.Fprintln(p.out, p.Render(e))
}
