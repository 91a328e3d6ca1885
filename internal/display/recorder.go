// Package display renders the terminal views: the live recorder with its
// level meter, and the one-line progress readout used by processing jobs.
package display

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hammamikhairi/vocalx/internal/capture"
	"github.com/hammamikhairi/vocalx/internal/domain"
)

// Recorder is the part of the capture controller the view drives.
type Recorder interface {
	Start(ctx context.Context, c domain.CaptureConstraints) error
	Stop() (*domain.Artifact, error)
	Abandon()
}

type keyMap struct {
	Toggle key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Toggle, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Toggle: key.NewBinding(key.WithKeys(" ", "r"), key.WithHelp("space", "record/stop")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "done")),
}

// Messages.
type (
	// EventMsg carries a capture controller event into the view.
	EventMsg   capture.Event
	startedMsg struct{ err error }
	stoppedMsg struct {
		artifact *domain.Artifact
		err      error
		quit     bool
	}
)

// RecorderView is the interactive recording screen. Call Run (blocking);
// feed controller events in with Send from any goroutine.
type RecorderView struct {
	program *tea.Program
	model   recorderModel
}

// NewRecorderView builds the view around rec.
func NewRecorderView(ctx context.Context, rec Recorder, c domain.CaptureConstraints) *RecorderView {
	return &RecorderView{model: newRecorderModel(ctx, rec, c)}
}

// Send forwards a controller event. Safe before Run starts; such events
// are dropped.
func (v *RecorderView) Send(e capture.Event) {
	if v.program != nil {
		v.program.Send(EventMsg(e))
	}
}

// Run shows the view until the user quits and returns the last finished
// recording, if any.
func (v *RecorderView) Run() (*domain.Artifact, error) {
	v.program = tea.NewProgram(v.model)
	final, err := v.program.Run()
	if err != nil {
		return nil, err
	}
	m := final.(recorderModel)
	return m.artifact, m.err
}

type recorderModel struct {
	ctx         context.Context
	rec         Recorder
	constraints domain.CaptureConstraints
	help        help.Model

	status   capture.Status
	elapsed  int
	levels   []float64
	artifact *domain.Artifact
	err      error
	width    int
	quitting bool
}

func newRecorderModel(ctx context.Context, rec Recorder, c domain.CaptureConstraints) recorderModel {
	return recorderModel{ctx: ctx, rec: rec, constraints: c, help: help.New()}
}

func (m recorderModel) Init() tea.Cmd {
	return tea.SetWindowTitle("VocalX recorder")
}

func (m recorderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			switch m.status {
			case capture.StatusRecording:
				m.status = capture.StatusStopping
				m.quitting = true
				return m, m.stop(true)
			case capture.StatusStopping:
				// The take is still being finalized; quit once it lands.
				m.quitting = true
				return m, nil
			case capture.StatusAcquiring:
				m.rec.Abandon()
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			switch m.status {
			case capture.StatusIdle:
				m.err = nil
				m.status = capture.StatusAcquiring
				return m, m.start()
			case capture.StatusRecording:
				m.status = capture.StatusStopping
				return m, m.stop(false)
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case EventMsg:
		switch msg.Kind {
		case capture.EventStatus:
			m.status = msg.Status
			if msg.Status == capture.StatusIdle {
				m.levels = nil
			}
		case capture.EventTick:
			m.elapsed = msg.Elapsed
		case capture.EventLevels:
			m.levels = msg.Levels
		case capture.EventArtifact:
			m.artifact = msg.Artifact
		case capture.EventError:
			m.err = msg.Err
		}
		return m, nil

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = capture.StatusIdle
			return m, nil
		}
		m.status = capture.StatusRecording
		m.elapsed = 0
		return m, nil

	case stoppedMsg:
		m.status = capture.StatusIdle
		m.levels = nil
		if msg.err != nil {
			m.err = msg.err
		} else if msg.artifact != nil {
			m.artifact = msg.artifact
		}
		if msg.quit || m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m recorderModel) start() tea.Cmd {
	rec, ctx, c := m.rec, m.ctx, m.constraints
	return func() tea.Msg {
		return startedMsg{err: rec.Start(ctx, c)}
	}
}

func (m recorderModel) stop(quit bool) tea.Cmd {
	rec := m.rec
	return func() tea.Msg {
		a, err := rec.Stop()
		return stoppedMsg{artifact: a, err: err, quit: quit}
	}
}

func (m recorderModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("VocalX recorder"))
	b.WriteString("\n\n")

	switch m.status {
	case capture.StatusRecording:
		b.WriteString(recordingStyle.Render("● REC ") + primaryStyle.Render(fmtElapsed(m.elapsed)))
	case capture.StatusAcquiring:
		b.WriteString(idleStyle.Render("waiting for microphone..."))
	case capture.StatusStopping:
		b.WriteString(idleStyle.Render("finishing..."))
	default:
		b.WriteString(idleStyle.Render("idle"))
	}
	b.WriteString("\n")
	b.WriteString(RenderMeter(m.levels, m.meterWidth()))
	b.WriteString("\n")

	if m.artifact != nil {
		b.WriteString(labelStyle.Render("last take: ") + primaryStyle.Render(m.artifact.String()))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(urgentStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return panelStyle.Render(b.String())
}

func (m recorderModel) meterWidth() int {
	if m.width > 8 {
		return m.width - 8
	}
	return 50
}

// ── Helpers ──────────────────────────────────────────────────────

var meterRunes = []rune("▁▂▃▄▅▆▇█")

// RenderMeter draws levels in [0, 1] as a row of block characters,
// resampled to at most width columns. Empty input draws a flat line.
func RenderMeter(levels []float64, width int) string {
	if width <= 0 {
		width = 50
	}
	if len(levels) == 0 {
		return secondaryStyle.Render(strings.Repeat(string(meterRunes[0]), min(width, 50)))
	}
	n := min(len(levels), width)

	var b strings.Builder
	for i := 0; i < n; i++ {
		v := levels[i*len(levels)/n]
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		r := string(meterRunes[int(v*float64(len(meterRunes)-1)+0.5)])
		if v > 0.85 {
			b.WriteString(meterHotStyle.Render(r))
		} else {
			b.WriteString(meterStyle.Render(r))
		}
	}
	return b.String()
}

func fmtElapsed(sec int) string {
	d := time.Duration(sec) * time.Second
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), sec%60)
}
