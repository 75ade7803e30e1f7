package hybrid

import (
	"math"

	"github.com/san-kum/hybridsim/internal/model"
)

// Partition decides for every species whether it is integrated
// continuously or updated by discrete firings over the next step of
// length tau. It depends only on its arguments.
//
// Species with a fixed user mode keep it. A dynamic species with SwitchMin
// set is continuous while its population is at least SwitchMin. Otherwise
// the population over the step is estimated as
//
//	mean = x + sum_r d_rs * p_r * tau
//	sd   = sqrt(sum_r d_rs^2 * p_r * tau)
//
// and the species is continuous when mean > 0 and sd/mean < SwitchTol.
func Partition(m *model.Model, populations, propensities []float64, tau float64) []model.Mode {
	modes := make([]model.Mode, m.NumSpecies())
	for s, sp := range m.Species {
		switch sp.UserMode {
		case model.Continuous, model.Discrete:
			modes[s] = sp.UserMode
			continue
		}

		if sp.SwitchMin > 0 {
			if populations[s] >= float64(sp.SwitchMin) {
				modes[s] = model.Continuous
			} else {
				modes[s] = model.Discrete
			}
			continue
		}

		mean := populations[s]
		variance := 0.0
		for r, rxn := range m.Reactions {
			d := float64(rxn.Delta[s])
			if d == 0 {
				continue
			}
			mean += d * propensities[r] * tau
			variance += d * d * propensities[r] * tau
		}

		modes[s] = model.Discrete
		if mean > 0 && math.Sqrt(variance)/mean < sp.SwitchTol {
			modes[s] = model.Continuous
		}
	}
	return modes
}
