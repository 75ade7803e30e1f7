package analysis

import (
	"errors"
	"math"

	"github.com/san-kum/hybridsim/internal/trajectory"
)

var ErrNoTrajectories = errors.New("analysis: no completed trajectories")

// Summary holds ensemble statistics indexed [sample][species].
type Summary struct {
	Timeline []float64
	Species  []string
	Mean     [][]float64
	StdDev   [][]float64
	// N is the number of trajectories the statistics cover.
	N int
}

// Ensemble computes the sample mean and standard deviation of every species
// at every output time. Only completed trajectories are included.
func Ensemble(s *trajectory.Store) (*Summary, error) {
	var rows []int
	for i, done := range s.Completed {
		if done {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoTrajectories
	}

	sum := &Summary{
		Timeline: append([]float64(nil), s.Timeline...),
		Species:  append([]string(nil), s.Species...),
		Mean:     make([][]float64, s.NumSamples()),
		StdDev:   make([][]float64, s.NumSamples()),
		N:        len(rows),
	}

	n := float64(len(rows))
	for i := 0; i < s.NumSamples(); i++ {
		mean := make([]float64, s.NumSpecies())
		sd := make([]float64, s.NumSpecies())
		for _, tr := range rows {
			for sp, v := range s.Sample(tr, i) {
				mean[sp] += v
			}
		}
		for sp := range mean {
			mean[sp] /= n
		}
		if len(rows) > 1 {
			for _, tr := range rows {
				for sp, v := range s.Sample(tr, i) {
					d := v - mean[sp]
					sd[sp] += d * d
				}
			}
			for sp := range sd {
				sd[sp] = math.Sqrt(sd[sp] / (n - 1))
			}
		}
		sum.Mean[i] = mean
		sum.StdDev[i] = sd
	}
	return sum, nil
}

// MeanSeries returns the mean time course of one species.
func (s *Summary) MeanSeries(species int) []float64 {
	out := make([]float64, len(s.Mean))
	for i, row := range s.Mean {
		out[i] = row[species]
	}
	return out
}

// Final returns the mean and standard deviation at the last output time.
func (s *Summary) Final() (mean, sd []float64) {
	last := len(s.Mean) - 1
	return s.Mean[last], s.StdDev[last]
}
