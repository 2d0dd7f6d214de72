// Package tui provides the terminal user interface for tractus.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mfarrell/tractus/internal/marker"
	"github.com/mfarrell/tractus/internal/pipeline"
	"github.com/mfarrell/tractus/internal/watch"
	"github.com/mfarrell/tractus/pkg/models"
)

// StatesMsg carries a fresh stage inspection.
type StatesMsg struct {
	States []pipeline.StageState
	At     time.Time
}

// changedMsg is sent when the watcher sees a marker change.
type changedMsg struct{}

// StatusApp is the bubbletea model behind `tractus status --watch`. It
// re-reads the run directory's markers whenever the watcher fires.
type StatusApp struct {
	runDir      string
	gate        marker.Gate
	allMeasures bool
	watcher     *watch.Watcher

	states    []pipeline.StageState
	refreshed time.Time
	spinner   spinner.Model
	quitting  bool

	headerStyle   lipgloss.Style
	stageStyle    lipgloss.Style
	completeStyle lipgloss.Style
	runningStyle  lipgloss.Style
	pendingStyle  lipgloss.Style
	failedStyle   lipgloss.Style
	footerStyle   lipgloss.Style
}

// NewStatusApp creates the status board for a run directory.
func NewStatusApp(runDir string, gate marker.Gate, allMeasures bool, watcher *watch.Watcher) *StatusApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &StatusApp{
		runDir:      runDir,
		gate:        gate,
		allMeasures: allMeasures,
		watcher:     watcher,
		spinner:     s,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		stageStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Width(12),

		completeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		runningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		pendingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		failedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *StatusApp) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.inspect, a.listen)
}

// inspect re-reads the markers.
func (a *StatusApp) inspect() tea.Msg {
	return StatesMsg{
		States: pipeline.Inspect(a.runDir, a.gate, a.allMeasures),
		At:     time.Now(),
	}
}

// listen blocks on the next watcher signal.
func (a *StatusApp) listen() tea.Msg {
	if a.watcher == nil {
		return nil
	}
	if _, ok := <-a.watcher.Changes(); !ok {
		return nil
	}
	return changedMsg{}
}

// Update implements tea.Model.
func (a *StatusApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "r":
			return a, a.inspect
		}

	case StatesMsg:
		a.states = msg.States
		a.refreshed = msg.At

	case changedMsg:
		return a, tea.Batch(a.inspect, a.listen)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// View implements tea.Model.
func (a *StatusApp) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(a.headerStyle.Render("Run: " + a.runDir))
	b.WriteString("\n")

	if len(a.states) == 0 {
		b.WriteString(a.spinner.View())
		b.WriteString(" reading markers...\n")
		return b.String()
	}

	for _, st := range a.states {
		b.WriteString("  ")
		b.WriteString(a.stageStyle.Render(string(st.Stage)))
		b.WriteString(a.renderStatus(st.Status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	footer := fmt.Sprintf("refreshed %s  ·  r refresh  q quit",
		a.refreshed.Format("15:04:05"))
	b.WriteString(a.footerStyle.Render(footer))
	b.WriteString("\n")

	return b.String()
}

func (a *StatusApp) renderStatus(s models.StageStatus) string {
	switch s {
	case models.StageComplete:
		return a.completeStyle.Render("✓ complete")
	case models.StageRunning:
		return a.runningStyle.Render(a.spinner.View() + "running")
	case models.StageFailed:
		return a.failedStyle.Render("✗ failed")
	default:
		return a.pendingStyle.Render("· pending")
	}
}

// NewStatusProgram creates a Bubbletea program for the status board.
func NewStatusProgram(runDir string, gate marker.Gate, allMeasures bool, watcher *watch.Watcher) (*tea.Program, *StatusApp) {
	app := NewStatusApp(runDir, gate, allMeasures, watcher)
	p := tea.NewProgram(app)
	return p, app
}
