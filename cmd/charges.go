package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cwbudde/eemfit/internal/chem"
	"github.com/cwbudde/eemfit/internal/chemio"
	"github.com/cwbudde/eemfit/internal/eem"
	"github.com/cwbudde/eemfit/internal/fit"
	"github.com/cwbudde/eemfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	chargesSDF    string
	chargesRefs   string
	chargesPar    string
	chargesRun    string
	chargesOut    string
	chargesReport string
)

var chargesCmd = &cobra.Command{
	Use:   "charges",
	Short: "Compute EEM charges with existing parameters",
	Long: `Computes partial charges for an SDF set from a parameter file or a
stored run. When reference charges are given, a statistics report comparing
both is written as well.`,
	RunE: runCharges,
}

func init() {
	chargesCmd.Flags().StringVar(&chargesSDF, "sdf", "", "Structures, SDF V2000/V3000, optionally gzipped (required)")
	chargesCmd.Flags().StringVar(&chargesRefs, "chg", "", "Reference charges for statistics")
	chargesCmd.Flags().StringVar(&chargesPar, "par", "", "Parameter file (looked up in $"+chemio.ParPathEnv+" if not found)")
	chargesCmd.Flags().StringVar(&chargesRun, "run", "", "Use the parameters of a stored run")
	chargesCmd.Flags().StringVar(&chargesOut, "out", "charges.chg", "Output charge file")
	chargesCmd.Flags().StringVar(&chargesReport, "report", "", "Statistics report, requires --chg")
	addTypeFlag(chargesCmd)

	chargesCmd.MarkFlagRequired("sdf")
	chargesCmd.MarkFlagsOneRequired("par", "run")
	chargesCmd.MarkFlagsMutuallyExclusive("par", "run")
	rootCmd.AddCommand(chargesCmd)
}

func runCharges(cmd *cobra.Command, args []string) error {
	if chargesReport != "" && chargesRefs == "" {
		return errors.New("--report requires reference charges (--chg)")
	}
	if err := applyFitFlags(cmd); err != nil {
		return err
	}

	var rec *store.RunRecord
	if chargesRun != "" {
		runs, err := openStore()
		if err != nil {
			return err
		}
		defer store.CloseIfSupported(runs)

		if rec, err = runs.LoadRun(chargesRun); err != nil {
			return err
		}
		// Stored parameters only apply to their own atom typing
		if !cmd.Flags().Changed("atom-types") {
			cfg.AtomTypes = rec.Config.AtomTypes
		}
	}

	cls, err := cfg.Classification()
	if err != nil {
		return err
	}
	ts, err := chemio.LoadTrainingSet(chargesSDF, chargesRefs, cls)
	if err != nil {
		return err
	}

	var p fit.Params
	if rec != nil {
		p, err = runParameters(rec, ts)
	} else {
		p, err = fileParameters(chargesPar, ts)
	}
	if err != nil {
		return err
	}

	solver, err := eem.NewSolver(ts)
	if err != nil {
		return err
	}
	c := fit.NewCandidate(ts)
	c.SetParams(p)

	if chargesRefs != "" {
		if err := fit.Evaluate(ts, solver, c); err != nil {
			return err
		}
		slog.Info("Charges compared with reference",
			"r", c.Stats.R,
			"r2", c.Stats.R2,
			"rmsd", c.Stats.RMSD,
			"degenerate", c.Stats.Degenerate,
		)
	} else if err := solver.CalculateCharges(ts, p, c.Charges, c.Conditions); err != nil {
		return err
	}

	if err := writeResults(ts, c, chargesOut, chargesReport); err != nil {
		return err
	}
	fmt.Printf("Wrote charges of %d molecules to %s\n", ts.MoleculeCount(), chargesOut)
	return nil
}

func typeLabels(ts *chem.TrainingSet) []string {
	labels := make([]string, len(ts.AtomTypes))
	for i, at := range ts.AtomTypes {
		labels[i] = at.Label()
	}
	return labels
}

func runParameters(rec *store.RunRecord, ts *chem.TrainingSet) (fit.Params, error) {
	if err := rec.IsCompatible(string(ts.Classification), typeLabels(ts)); err != nil {
		return fit.Params{}, fmt.Errorf("run %s cannot be applied: %w", rec.RunID, err)
	}
	return rec.Parameters.Params(ts)
}

func fileParameters(path string, ts *chem.TrainingSet) (fit.Params, error) {
	f, err := chemio.OpenParameters(path)
	if err != nil {
		return fit.Params{}, err
	}
	defer f.Close()

	p, missing, err := chemio.ReadParameters(f, path, ts)
	if err != nil {
		return p, err
	}
	if len(missing) > 0 {
		return p, fmt.Errorf("%s has no parameters for atom types: %s", path, strings.Join(missing, ", "))
	}
	return p, nil
}
