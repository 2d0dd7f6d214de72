package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mfarrell/tractus/internal/marker"
	"github.com/mfarrell/tractus/internal/pipeline"
	"github.com/mfarrell/tractus/pkg/models"
)

func newTestApp(t *testing.T) *StatusApp {
	t.Helper()
	return NewStatusApp(t.TempDir(), &marker.FSGate{}, false, nil)
}

func TestStatesMsgUpdatesBoard(t *testing.T) {
	app := newTestApp(t)

	msg := StatesMsg{
		States: []pipeline.StageState{
			{Stage: models.StageCopy, Status: models.StageComplete},
			{Stage: models.StageStats, Status: models.StagePending},
		},
		At: time.Now(),
	}
	model, _ := app.Update(msg)
	app = model.(*StatusApp)

	view := app.View()
	if !strings.Contains(view, "copy") || !strings.Contains(view, "complete") {
		t.Errorf("view missing completed stage:\n%s", view)
	}
	if !strings.Contains(view, "stats") || !strings.Contains(view, "pending") {
		t.Errorf("view missing pending stage:\n%s", view)
	}
}

func TestQuitKey(t *testing.T) {
	app := newTestApp(t)

	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	app = model.(*StatusApp)

	if !app.quitting {
		t.Error("q did not set quitting")
	}
	if cmd == nil {
		t.Error("q did not produce a quit command")
	}
	if app.View() != "" {
		t.Error("quitting view should be empty")
	}
}

func TestInspectReadsMarkers(t *testing.T) {
	app := newTestApp(t)

	msg := app.inspect()
	states, ok := msg.(StatesMsg)
	if !ok {
		t.Fatalf("inspect returned %T", msg)
	}
	if len(states.States) != 8 {
		t.Errorf("got %d stage states, want 8", len(states.States))
	}
}
