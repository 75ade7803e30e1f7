package metrics

import (
	"math"
	"sync"

	"github.com/san-kum/hybridsim/internal/dynamo"
)

// MassBalance tracks the worst relative drift of a weighted species total
// from its value at the first sample of each trajectory. With weights that
// form a conservation law of the network the value stays near zero.
type MassBalance struct {
	name    string
	weights []float64

	mu       sync.Mutex
	initial  map[int]float64
	maxDrift float64
}

func NewMassBalance(weights []float64) *MassBalance {
	return &MassBalance{
		name:    "mass_balance",
		weights: append([]float64(nil), weights...),
		initial: make(map[int]float64),
	}
}

func (m *MassBalance) Name() string { return m.name }

func (m *MassBalance) total(x dynamo.State) float64 {
	sum := 0.0
	for i, w := range m.weights {
		if i < len(x) {
			sum += w * x[i]
		}
	}
	return sum
}

func (m *MassBalance) OnSample(traj int, t float64, x dynamo.State) {
	total := m.total(x)

	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.initial[traj]
	if !ok {
		m.initial[traj] = total
		return
	}
	drift := math.Abs(total - ref)
	if ref != 0 {
		drift /= math.Abs(ref)
	}
	m.maxDrift = math.Max(m.maxDrift, drift)
}

func (m *MassBalance) OnTrajectoryDone(int, dynamo.TrajectoryStats) {}

func (m *MassBalance) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxDrift
}

func (m *MassBalance) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initial = make(map[int]float64)
	m.maxDrift = 0
}
