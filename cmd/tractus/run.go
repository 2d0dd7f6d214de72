package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfarrell/tractus/internal/config"
	"github.com/mfarrell/tractus/internal/design"
	"github.com/mfarrell/tractus/internal/imaging"
	"github.com/mfarrell/tractus/internal/logging"
	"github.com/mfarrell/tractus/internal/pipeline"
	"github.com/mfarrell/tractus/internal/scheduler"
	"github.com/mfarrell/tractus/internal/state"
)

var (
	runOutput       string
	runData         string
	runSubjects     string
	runMatrix       string
	runContrast     string
	runTemplate     string
	runThreshold    float64
	runPermutations int
	runAllMeasures  bool
	runCheck        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run",
	Long: `Run the full stage sequence for one subject cohort: copy, the
preprocessing block (preproc, registration, post-registration,
prestats), permutation statistics, and fill.

The run directory is the only progress record. Stages whose output
markers already exist are skipped, so re-running the same command
resumes an interrupted analysis. Note that the preprocessing block is
gated as one unit on the stats directory: if stats/ exists, all four
preprocessing steps are assumed complete.

Subjects are read from the given list and resolved against the data
root; subjects whose FA image is missing are omitted with a log entry
rather than failing the run. With --check the design matrix row count
must match the resolved subject count exactly.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runOutput, "output", "", "Run directory (required)")
	runCmd.Flags().StringVar(&runData, "data", "", "Subject data root (required)")
	runCmd.Flags().StringVar(&runSubjects, "subjects", "", "Subject list file (required)")
	runCmd.Flags().StringVar(&runMatrix, "matrix", "", "Design matrix file (required)")
	runCmd.Flags().StringVar(&runContrast, "contrast", "", "Design contrast file (required)")
	runCmd.Flags().StringVar(&runTemplate, "template", "", "Registration template (default: toolkit standard space)")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "Mean-skeleton threshold (default from config)")
	runCmd.Flags().IntVar(&runPermutations, "permutations", 0, "Permutation count (default from config)")
	runCmd.Flags().BoolVar(&runAllMeasures, "all-measures", false, "Also analyse the AD/MD/RD measures")
	runCmd.Flags().BoolVar(&runCheck, "check", false, "Require the matrix row count to match the subject count")

	runCmd.MarkFlagRequired("output")
	runCmd.MarkFlagRequired("data")
	runCmd.MarkFlagRequired("subjects")
	runCmd.MarkFlagRequired("matrix")
	runCmd.MarkFlagRequired("contrast")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := imaging.Check(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	for _, f := range []struct{ name, path string }{
		{"subject list", runSubjects},
		{"design matrix", runMatrix},
		{"design contrast", runContrast},
	} {
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}

	log := logging.NewForRun(runOutput)
	defer log.Close()

	ids, err := design.ReadSubjectList(runSubjects)
	if err != nil {
		return err
	}
	resolver := &design.Resolver{DataRoot: runData, Log: log}
	subjects, omitted := resolver.Resolve(ids)
	if len(omitted) > 0 {
		fmt.Printf("omitted %d of %d subjects (missing FA images, see log)\n", len(omitted), len(ids))
	}
	if len(subjects) == 0 {
		return fmt.Errorf("no subjects resolved under %s", runData)
	}

	if runCheck {
		if err := design.CheckConsistency(runMatrix, len(subjects)); err != nil {
			return err
		}
	}

	sub, err := scheduler.New(cfg.Scheduler)
	if err != nil {
		return err
	}

	params := pipeline.Params{
		RunDir:       runOutput,
		Subjects:     subjects,
		MatrixFile:   runMatrix,
		ContrastFile: runContrast,
		Template:     cfg.Data.Template,
		Threshold:    cfg.Pipeline.Threshold,
		Permutations: cfg.Pipeline.Permutations,
		AllMeasures:  cfg.Pipeline.AllMeasures,
	}
	if runTemplate != "" {
		params.Template = runTemplate
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithResources(cfg.Scheduler),
	}

	// The ledger is an audit trail only; a broken database never blocks
	// an analysis.
	if ledger, err := state.OpenLedger(runOutput); err == nil {
		defer ledger.Close()
		opts = append(opts, pipeline.WithRecorder(ledger))
	} else {
		log.Log("ledger unavailable, continuing without audit: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(params, sub, opts...)
	fmt.Printf("run %s: %d subjects, output %s\n", p.RunID(), len(subjects), runOutput)

	if err := p.Run(ctx); err != nil {
		return err
	}
	fmt.Println("run complete")
	return nil
}

// applyRunFlags folds explicit flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("threshold") {
		cfg.Pipeline.Threshold = runThreshold
	}
	if cmd.Flags().Changed("permutations") {
		cfg.Pipeline.Permutations = runPermutations
	}
	if cmd.Flags().Changed("all-measures") {
		cfg.Pipeline.AllMeasures = runAllMeasures
	}
}
