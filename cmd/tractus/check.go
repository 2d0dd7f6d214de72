package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mfarrell/tractus/internal/config"
	"github.com/mfarrell/tractus/internal/imaging"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the environment before a long run",
	Long: `Check that the imaging toolkit is installed, the configured data
root exists, and the batch scheduler commands resolve. Run this before
submitting an overnight analysis.`,
	RunE: runEnvCheck,
}

func runEnvCheck(cmd *cobra.Command, args []string) error {
	failed := false

	if err := imaging.Check(); err != nil {
		printStatus("✗", "imaging toolkit not found in PATH", color.FgRed)
		failed = true
	} else {
		printStatus("✓", "imaging toolkit found", color.FgGreen)
	}

	cfg, err := config.Load()
	if err != nil {
		printStatus("✗", fmt.Sprintf("config: %v", err), color.FgRed)
		return err
	}
	if err := cfg.Validate(); err != nil {
		printStatus("✗", fmt.Sprintf("config: %v", err), color.FgRed)
		failed = true
	} else {
		printStatus("✓", fmt.Sprintf("config valid (threshold %g, %d permutations)",
			cfg.Pipeline.Threshold, cfg.Pipeline.Permutations), color.FgGreen)
	}

	if cfg.Data.Root == "" {
		printStatus("⚠", "data.root not set (pass --data to run/designs)", color.FgYellow)
	} else if _, err := os.Stat(cfg.Data.Root); err != nil {
		printStatus("✗", fmt.Sprintf("data root %s not accessible", cfg.Data.Root), color.FgRed)
		failed = true
	} else {
		printStatus("✓", "data root "+cfg.Data.Root, color.FgGreen)
	}

	if cfg.Scheduler.SubmitCommand == "" {
		printStatus("⚠", "no scheduler configured, jobs run as local processes", color.FgYellow)
	} else {
		for _, c := range []string{cfg.Scheduler.SubmitCommand, cfg.Scheduler.WaitCommand} {
			if c == "" {
				printStatus("✗", "scheduler.wait_command not set", color.FgRed)
				failed = true
				continue
			}
			if _, err := exec.LookPath(c); err != nil {
				printStatus("✗", c+" not found in PATH", color.FgRed)
				failed = true
			} else {
				printStatus("✓", c+" found", color.FgGreen)
			}
		}
	}

	if failed {
		return fmt.Errorf("environment check failed")
	}
	fmt.Printf("\n%s Ready to run.\n", color.GreenString("✓"))
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
