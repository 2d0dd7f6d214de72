package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mfarrell/tractus/internal/marker"
	"github.com/mfarrell/tractus/internal/pipeline"
	"github.com/mfarrell/tractus/internal/state"
	"github.com/mfarrell/tractus/internal/tui"
	"github.com/mfarrell/tractus/internal/watch"
	"github.com/mfarrell/tractus/pkg/models"
)

var (
	statusAllMeasures bool
	statusWatch       bool
)

var statusCmd = &cobra.Command{
	Use:   "status [run-dir]",
	Short: "Show a run directory's stage markers",
	Long: `Inspect the markers of a run directory and report each stage as
complete, running, or pending. The report is derived purely from the
filesystem, so it is accurate even for runs driven from another
machine.

With --watch, a live view refreshes whenever a marker changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusAllMeasures, "all-measures", false, "Include the AD/MD/RD measures in the report")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Live view, refreshed on marker changes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	runDir := "."
	if len(args) > 0 {
		runDir = args[0]
	}
	if _, err := os.Stat(runDir); err != nil {
		return fmt.Errorf("run directory: %w", err)
	}
	gate := marker.NewGate()

	if statusWatch {
		w, err := watch.New(runDir)
		if err != nil {
			return fmt.Errorf("watch run directory: %w", err)
		}
		defer w.Close()

		p, _ := tui.NewStatusProgram(runDir, gate, statusAllMeasures, w)
		_, err = p.Run()
		return err
	}

	fmt.Printf("Run: %s\n", runDir)
	for _, st := range pipeline.Inspect(runDir, gate, statusAllMeasures) {
		printStage(st)
	}

	return displayLedger(runDir)
}

func printStage(st pipeline.StageState) {
	switch st.Status {
	case models.StageComplete:
		printStatus("✓", string(st.Stage), color.FgGreen)
	case models.StageRunning:
		printStatus("…", string(st.Stage), color.FgYellow)
	case models.StageFailed:
		printStatus("✗", string(st.Stage), color.FgRed)
	default:
		printStatus("·", string(st.Stage), color.FgWhite)
	}
}

// displayLedger prints the audit trail if the run keeps one.
func displayLedger(runDir string) error {
	if _, err := os.Stat(state.LedgerPath(runDir)); os.IsNotExist(err) {
		return nil
	}

	ledger, err := state.OpenLedger(runDir)
	if err != nil {
		// The ledger is advisory; a corrupt one is not a status failure.
		return nil
	}
	defer ledger.Close()

	runs, err := ledger.Runs()
	if err != nil || len(runs) == 0 {
		return nil
	}

	fmt.Println("\nRecorded runs:")
	for i, r := range runs {
		if i >= 5 {
			break
		}
		age := formatDuration(time.Since(r.StartedAt))
		line := fmt.Sprintf("  %s: %s (%s ago)", r.ID, r.Status, age)
		if r.Error != "" {
			line += " " + color.RedString(r.Error)
		}
		fmt.Println(line)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
