// Package trajectory holds the pre-allocated output of a hybrid run.
package trajectory

import (
	"fmt"
	"math"
)

// Store is the dense [trajectory][sample][species] output buffer. It is
// allocated once before any trajectory runs; each trajectory writes only its
// own row, so rows can be filled concurrently.
type Store struct {
	EndTime   float64
	Increment float64
	Timeline  []float64
	Species   []string

	Data      [][][]float64
	Completed []bool
	// Canceled is set when the run stopped before every trajectory ran.
	Canceled bool
}

// NumSamples returns the number of evenly spaced output points needed to
// cover [0, endTime] with the given increment.
func NumSamples(endTime, increment float64) (int, error) {
	if increment <= 0 || math.IsNaN(increment) || math.IsInf(increment, 0) {
		return 0, fmt.Errorf("trajectory: increment must be positive, got %g", increment)
	}
	if endTime < 0 || math.IsNaN(endTime) || math.IsInf(endTime, 0) {
		return 0, fmt.Errorf("trajectory: end time must be non-negative, got %g", endTime)
	}
	return int(math.Round(endTime/increment)) + 1, nil
}

func New(species []string, trajectories int, endTime, increment float64) (*Store, error) {
	if trajectories < 0 {
		return nil, fmt.Errorf("trajectory: negative trajectory count %d", trajectories)
	}
	n, err := NumSamples(endTime, increment)
	if err != nil {
		return nil, err
	}

	s := &Store{
		EndTime:   endTime,
		Increment: increment,
		Timeline:  make([]float64, n),
		Species:   append([]string(nil), species...),
		Data:      make([][][]float64, trajectories),
		Completed: make([]bool, trajectories),
	}
	for i := range s.Timeline {
		s.Timeline[i] = float64(i) * increment
	}

	// One backing array keeps the buffer contiguous.
	flat := make([]float64, trajectories*n*len(species))
	for tr := range s.Data {
		s.Data[tr] = make([][]float64, n)
		for i := range s.Data[tr] {
			off := (tr*n + i) * len(species)
			s.Data[tr][i] = flat[off : off+len(species) : off+len(species)]
		}
	}
	return s, nil
}

func (s *Store) NumTrajectories() int { return len(s.Data) }
func (s *Store) NumSamples() int      { return len(s.Timeline) }
func (s *Store) NumSpecies() int      { return len(s.Species) }

// Record copies x into sample i of trajectory traj.
func (s *Store) Record(traj, i int, x []float64) {
	copy(s.Data[traj][i], x[:len(s.Species)])
}

// Sample returns the species values of trajectory traj at sample i.
func (s *Store) Sample(traj, i int) []float64 {
	return s.Data[traj][i]
}

// Series returns the time course of one species in one trajectory.
func (s *Store) Series(traj, species int) []float64 {
	out := make([]float64, len(s.Timeline))
	for i := range s.Timeline {
		out[i] = s.Data[traj][i][species]
	}
	return out
}

// Complete reports whether every trajectory finished.
func (s *Store) Complete() bool {
	if s.Canceled {
		return false
	}
	for _, c := range s.Completed {
		if !c {
			return false
		}
	}
	return true
}

// CompletedCount returns how many trajectories finished.
func (s *Store) CompletedCount() int {
	n := 0
	for _, c := range s.Completed {
		if c {
			n++
		}
	}
	return n
}
