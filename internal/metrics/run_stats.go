package metrics

import (
	"sync"
	"time"

	"github.com/san-kum/hybridsim/internal/dynamo"
)

// RunStats accumulates solver work across trajectories. Its Value is the
// number of rejected steps per accepted step.
type RunStats struct {
	name string

	mu           sync.Mutex
	trajectories int
	steps        int
	retries      int
	firings      int
	elapsed      time.Duration
}

func NewRunStats() *RunStats {
	return &RunStats{name: "retry_ratio"}
}

func (r *RunStats) Name() string { return r.name }

func (r *RunStats) OnSample(int, float64, dynamo.State) {}

func (r *RunStats) OnTrajectoryDone(traj int, stats dynamo.TrajectoryStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trajectories++
	r.steps += stats.Steps
	r.retries += stats.Retries
	r.firings += stats.Firings
	r.elapsed += stats.Elapsed
}

// Totals returns the summed statistics and the number of trajectories they
// cover.
func (r *RunStats) Totals() (dynamo.TrajectoryStats, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return dynamo.TrajectoryStats{
		Steps:   r.steps,
		Retries: r.retries,
		Firings: r.firings,
		Elapsed: r.elapsed,
	}, r.trajectories
}

func (r *RunStats) Value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.steps == 0 {
		return 0
	}
	return float64(r.retries) / float64(r.steps)
}

func (r *RunStats) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trajectories, r.steps, r.retries, r.firings = 0, 0, 0, 0
	r.elapsed = 0
}
