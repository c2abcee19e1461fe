package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/chemio"
	"github.com/cwbudde/eemfit/internal/eem"
	"github.com/cwbudde/eemfit/internal/fit"
	"github.com/cwbudde/eemfit/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	sdfPath    string
	chgPath    string
	parOut     string
	chgOut     string
	reportPath string
	atomTypes  string
	noStore    bool

	popSize      int
	threads      int
	seed         int64
	sampler      string
	boundsMode   string
	method       string
	partialIters int
	finalIters   int
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Fit EEM parameters against reference charges",
	Long: `Runs the guided minimization on a training set (SDF structures plus
reference charges) and writes the fitted parameters. The run is saved to the
run store together with its phase trace.`,
	RunE: runParams,
}

func init() {
	paramsCmd.Flags().StringVar(&sdfPath, "sdf", "", "Training set structures, SDF V2000/V3000, optionally gzipped (required)")
	paramsCmd.Flags().StringVar(&chgPath, "chg", "", "Reference charges (required)")
	paramsCmd.Flags().StringVar(&parOut, "par", "eemfit.par", "Output parameter file")
	paramsCmd.Flags().StringVar(&chgOut, "chg-out", "", "Write charges of the fitted parameters to this file")
	paramsCmd.Flags().StringVar(&reportPath, "report", "", "Write a statistics report to this file")
	paramsCmd.Flags().BoolVar(&noStore, "no-store", false, "Do not save the run")
	addTypeFlag(paramsCmd)

	paramsCmd.Flags().IntVar(&popSize, "pop", 0, "Population size")
	paramsCmd.Flags().IntVar(&threads, "threads", 0, "Worker threads")
	paramsCmd.Flags().Int64Var(&seed, "seed", 0, "Random seed")
	paramsCmd.Flags().StringVar(&sampler, "sampler", "", "Population sampler: uniform, lhs")
	paramsCmd.Flags().StringVar(&boundsMode, "bounds", "", "Parameter bounds: fixed, broad")
	paramsCmd.Flags().StringVar(&method, "method", "", "Local minimizer: coordinate, nelder-mead")
	paramsCmd.Flags().IntVar(&partialIters, "partial-iters", 0, "Local search budget of promising candidates")
	paramsCmd.Flags().IntVar(&finalIters, "final-iters", 0, "Local search budget of the best candidate")

	paramsCmd.MarkFlagRequired("sdf")
	paramsCmd.MarkFlagRequired("chg")
	rootCmd.AddCommand(paramsCmd)
}

func addTypeFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&atomTypes, "atom-types", "", "Atom type classification: Element, ElemBond")
}

// applyFitFlags copies explicitly set flags over the loaded configuration
func applyFitFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("atom-types") {
		cfg.AtomTypes = atomTypes
	}
	if flags.Changed("pop") {
		cfg.Optimizer.PopulationSize = popSize
	}
	if flags.Changed("threads") {
		cfg.Optimizer.Threads = threads
	}
	if flags.Changed("seed") {
		cfg.Optimizer.Seed = seed
	}
	if flags.Changed("sampler") {
		cfg.Optimizer.Sampler = sampler
	}
	if flags.Changed("bounds") {
		cfg.Optimizer.Bounds = boundsMode
	}
	if flags.Changed("method") {
		cfg.Local.Method = method
	}
	if flags.Changed("partial-iters") {
		cfg.Optimizer.PartialIterations = partialIters
	}
	if flags.Changed("final-iters") {
		cfg.Optimizer.FinalIterations = finalIters
	}
	return cfg.Validate()
}

func runParams(cmd *cobra.Command, args []string) error {
	if err := applyFitFlags(cmd); err != nil {
		return err
	}
	cls, err := cfg.Classification()
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	ts, err := chemio.LoadTrainingSet(sdfPath, chgPath, cls)
	if err != nil {
		return err
	}
	solver, err := eem.NewSolver(ts)
	if err != nil {
		return err
	}
	engine, err := fit.NewEngine(ts, solver, opts)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	var trace *store.TraceWriter
	if !noStore {
		trace, err = store.NewTraceWriter(cfg.Store.DataDir, runID, false)
		if err != nil {
			return err
		}
		defer trace.Close()
	}

	var last fit.PhaseEvent
	engine.OnPhase(func(ev fit.PhaseEvent) {
		last = ev
		if trace != nil {
			if err := trace.Write(store.NewTraceEntry(ev)); err != nil {
				slog.Warn("Failed to write trace entry", "run_id", runID, "error", err)
			}
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("Starting guided minimization",
		"run_id", runID,
		"population", opts.PopulationSize,
		"threads", opts.Threads,
		"bounds", string(opts.BoundsMode),
		"method", string(opts.Minimizer.Method),
	)

	start := time.Now()
	best, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := writeFile(parOut, func(f *os.File) error {
		return chemio.WriteParameters(f, ts, best.Params)
	}); err != nil {
		return err
	}
	if err := writeResults(ts, best, chgOut, reportPath); err != nil {
		return err
	}

	if !noStore {
		runs, err := openStore()
		if err != nil {
			return err
		}
		defer store.CloseIfSupported(runs)

		rec := store.NewRunRecord(runID, last.PopulationID, ts, best, last.Minimized, cfg.RunConfig(sdfPath, chgPath), start)
		if err := runs.SaveRun(rec); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
	}

	slog.Info("Guided minimization complete",
		"run_id", runID,
		"elapsed", elapsed,
		"r", best.Stats.R,
		"r2", best.Stats.R2,
		"rmsd", best.Stats.RMSD,
		"minimized", last.Minimized,
	)

	fmt.Printf("Wrote %s (R2: %.4f, RMSD: %.4f, %d candidates minimized, run %s)\n",
		parOut, best.Stats.R2, best.Stats.RMSD, last.Minimized, runID)
	return nil
}

// writeResults writes the charges and the statistics report of an evaluated
// candidate. Empty paths are skipped.
func writeResults(ts *chem.TrainingSet, c *fit.Candidate, chgOut, reportPath string) error {
	if chgOut != "" {
		if err := writeFile(chgOut, func(f *os.File) error {
			return chemio.WriteCharges(f, ts, c.Charges)
		}); err != nil {
			return err
		}
	}
	if reportPath != "" {
		if err := writeFile(reportPath, func(f *os.File) error {
			return chemio.WriteReport(f, ts, c)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
