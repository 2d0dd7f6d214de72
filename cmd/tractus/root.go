package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tractus",
	Short: "Resumable TBSS pipeline orchestrator",
	Long: `Tractus drives tract-based spatial statistics over diffusion MRI
cohorts: it stages subject images, runs the registration and
skeletonisation steps, submits permutation tests to a batch scheduler,
and fills significant results for visualisation.

Every stage leaves a marker file in the run directory. A re-run skips
everything whose marker exists and retries exactly the stage that
failed, so interrupted analyses resume instead of starting over.

Core commands:
  run      execute one pipeline run against a subject list
  designs  validate a design hierarchy and submit one run per design
  status   inspect a run directory's stage markers
  check    verify the environment before a long run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(designsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}
