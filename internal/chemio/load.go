package chemio

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/eemfit/internal/chem"
)

// LoadTrainingSet reads an SDF file and, when chgPath is set, its reference
// charges. With reference charges, molecules lacking a record are dropped.
func LoadTrainingSet(sdfPath, chgPath string, cls chem.Classification) (*chem.TrainingSet, error) {
	molecules, err := ReadSDFFile(sdfPath)
	if err != nil {
		return nil, err
	}

	if chgPath != "" {
		if err := ReadChargesFile(chgPath, molecules); err != nil {
			return nil, err
		}
		kept := molecules[:0]
		for _, m := range molecules {
			if !m.HasCharges {
				slog.Warn("Dropping molecule without reference charges", "name", m.Name)
				continue
			}
			kept = append(kept, m)
		}
		molecules = kept
	}

	ts, err := chem.NewTrainingSet(molecules, cls)
	if err != nil {
		return nil, fmt.Errorf("failed to build training set from %s: %w", sdfPath, err)
	}

	slog.Info("Training set ready",
		"molecules", ts.MoleculeCount(),
		"atoms", ts.AtomCount(),
		"atomTypes", ts.TypeCount(),
		"classification", ts.Classification)
	return ts, nil
}
