package dynamo

import (
	"math"
	"time"
)

// State is a flat integration vector. The hybrid solver lays it out as
// [concentrations | reaction offsets].
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Derivative writes dy/dt for state y at time t into dydt.
// Implementations must not retain y or dydt and must not have side effects.
type Derivative func(y State, t float64, dydt State)

// Integrator advances an opaque state vector towards a target time.
// An instance may keep internal memory (step size history) between calls;
// Reset drops it. Instances are not safe for concurrent use.
type Integrator interface {
	// Advance integrates y from t to at most tTarget and returns the time
	// reached together with a fresh state vector. y is not modified.
	Advance(f Derivative, y State, t, tTarget float64) (float64, State, error)
	Reset()
}

// Tolerances are the absolute and relative error bounds of an adaptive
// integrator.
type Tolerances struct {
	Abs float64
	Rel float64
}

const (
	DefaultAbsTol = 1e-5
	DefaultRelTol = 1e-5
)

func DefaultTolerances() Tolerances {
	return Tolerances{Abs: DefaultAbsTol, Rel: DefaultRelTol}
}

func (t Tolerances) Valid() bool {
	return t.Abs > 0 && t.Rel > 0 && !math.IsInf(t.Abs, 0) && !math.IsInf(t.Rel, 0)
}

// Observer receives trajectory progress from the solver. Calls for a
// single trajectory are sequential, calls for different trajectories may
// be concurrent when the solver runs with several workers.
type Observer interface {
	OnSample(traj int, t float64, x State)
	OnTrajectoryDone(traj int, stats TrajectoryStats)
}

// TrajectoryStats summarises one trajectory run.
type TrajectoryStats struct {
	Steps   int
	Retries int
	Firings int
	Elapsed time.Duration
}
