package results

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"

	"promethium-examples/runner/pkg/models"
)

const (
	// HartreeToKcal converts Hartree to kcal/mol.
	HartreeToKcal = 627.509474
	// gasConstant in kcal/(mol K).
	gasConstant = 0.0019872036
	// RoomTemperature in Kelvin.
	RoomTemperature = 298.15
)

// ErrNoConformers is returned when a result has no conformers artifact.
var ErrNoConformers = errors.New("result has no conformers")

// ConformerSummary describes the energy landscape of a conformer set.
type ConformerSummary struct {
	Count        int
	LowestEnergy float64 // Hartree
	// RelativeEnergies are in kcal/mol relative to the lowest conformer.
	RelativeEnergies []float64
	// Populations are Boltzmann weights at Temperature and sum to 1.
	Populations []float64
	Temperature float64
}

// Summarize decodes the conformers artifact of result and summarizes it at
// room temperature.
func Summarize(result *models.WorkflowResult) (*ConformerSummary, error) {
	if _, ok := result.Artifact(models.ArtifactConformers); !ok {
		return nil, ErrNoConformers
	}
	conformers, err := result.Conformers()
	if err != nil {
		return nil, err
	}
	if len(conformers) == 0 {
		return nil, ErrNoConformers
	}

	energies := make([]float64, len(conformers))
	for i, c := range conformers {
		energies[i] = c.Energy
	}
	return SummarizeEnergies(energies, RoomTemperature)
}

// SummarizeEnergies computes relative energies and Boltzmann populations
// for energies given in Hartree.
func SummarizeEnergies(energies []float64, temperature float64) (*ConformerSummary, error) {
	if len(energies) == 0 {
		return nil, ErrNoConformers
	}
	if temperature <= 0 {
		return nil, fmt.Errorf("temperature must be positive, got %g", temperature)
	}

	lowest := floats.Min(energies)

	rel := make([]float64, len(energies))
	copy(rel, energies)
	floats.AddConst(-lowest, rel)
	floats.Scale(HartreeToKcal, rel)

	logWeights := make([]float64, len(rel))
	copy(logWeights, rel)
	floats.Scale(-1/(gasConstant*temperature), logWeights)
	norm := floats.LogSumExp(logWeights)

	pops := make([]float64, len(rel))
	for i, lw := range logWeights {
		pops[i] = math.Exp(lw - norm)
	}

	return &ConformerSummary{
		Count:            len(energies),
		LowestEnergy:     lowest,
		RelativeEnergies: rel,
		Populations:      pops,
		Temperature:      temperature,
	}, nil
}

// String renders the summary as a table.
func (s *ConformerSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d conformers, lowest energy %.6f Eh\n", s.Count, s.LowestEnergy)
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tdE (kcal/mol)\tpopulation\t")
	for i := range s.RelativeEnergies {
		fmt.Fprintf(tw, "%d\t%.3f\t%.4f\t\n", i, s.RelativeEnergies[i], s.Populations[i])
	}
	tw.Flush()
	return b.String()
}
