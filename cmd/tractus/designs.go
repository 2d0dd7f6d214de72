package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mfarrell/tractus/internal/config"
	"github.com/mfarrell/tractus/internal/design"
	"github.com/mfarrell/tractus/internal/logging"
	"github.com/mfarrell/tractus/internal/scheduler"
	"github.com/mfarrell/tractus/pkg/models"
)

var (
	designsRoot        string
	designsConfig      string
	designsData        string
	designsTemplate    string
	designsAllMeasures bool
	designsCheck       bool
	designsDryRun      bool
)

var designsCmd = &cobra.Command{
	Use:   "designs",
	Short: "Submit one pipeline run per design",
	Long: `Walk a two-level design hierarchy (<root>/<group>/<design>), resolve
each design's subject list against the data root, and submit one
scheduler job per design. Jobs go out back-to-back; designs never wait
for each other.

Every design is validated before anything is submitted: an unreadable
subject list, an empty resolved set, or (with --check) a design matrix
whose row count disagrees with the resolved subject count aborts the
whole enumeration with nothing launched.

A designs.yaml file given with --config overrides directory discovery.`,
	RunE: runDesigns,
}

func init() {
	designsCmd.Flags().StringVar(&designsRoot, "root", "", "Design hierarchy root (required)")
	designsCmd.Flags().StringVar(&designsConfig, "config", "", "Explicit designs.yaml instead of directory discovery")
	designsCmd.Flags().StringVar(&designsData, "data", "", "Subject data root (default from config)")
	designsCmd.Flags().StringVar(&designsTemplate, "template", "", "Registration template")
	designsCmd.Flags().BoolVar(&designsAllMeasures, "all-measures", false, "Also analyse the AD/MD/RD measures")
	designsCmd.Flags().BoolVar(&designsCheck, "check", false, "Require matrix row counts to match resolved subject counts")
	designsCmd.Flags().BoolVar(&designsDryRun, "dry-run", false, "Validate and list designs without submitting")

	designsCmd.MarkFlagRequired("root")
}

func runDesigns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dataRoot := cfg.Data.Root
	if designsData != "" {
		dataRoot = designsData
	}
	if dataRoot == "" {
		return fmt.Errorf("no data root: set --data or data.root in config")
	}

	var designs []models.Design
	if designsConfig != "" {
		designs, err = design.LoadFile(designsConfig, designsRoot)
	} else {
		designs, err = design.Discover(designsRoot)
	}
	if err != nil {
		return err
	}
	if len(designs) == 0 {
		return fmt.Errorf("no designs under %s", designsRoot)
	}

	if designsDryRun {
		for _, d := range designs {
			fmt.Printf("  %s (%s)\n", d.QualifiedName(), d.MatrixFile)
		}
		fmt.Printf("%d designs, nothing submitted\n", len(designs))
		return nil
	}

	// Each scheduler job re-invokes this binary's run command.
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own executable: %w", err)
	}

	sub, err := scheduler.New(cfg.Scheduler)
	if err != nil {
		return err
	}

	log, err := logging.New(filepath.Join(designsRoot, "enumerate.log"))
	if err != nil {
		log = logging.Nop()
	}
	defer log.Close()

	template := cfg.Data.Template
	if designsTemplate != "" {
		template = designsTemplate
	}

	e := &design.Enumerator{
		DataRoot:         dataRoot,
		Executable:       exe,
		Submitter:        sub,
		Resources:        cfg.Scheduler,
		Log:              log,
		Template:         template,
		Threshold:        cfg.Pipeline.Threshold,
		Permutations:     cfg.Pipeline.Permutations,
		AllMeasures:      designsAllMeasures || cfg.Pipeline.AllMeasures,
		CheckConsistency: designsCheck,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	submitted, err := e.Enumerate(ctx, designs)
	for _, s := range submitted {
		id := s.Handle.JobID
		if id == "" {
			id = "local"
		}
		fmt.Printf("  %s %s → job %s\n", color.GreenString("✓"), s.Design.QualifiedName(), id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d designs submitted\n", len(submitted))
	return nil
}
