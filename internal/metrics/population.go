package metrics

import (
	"math"
	"sync"

	"github.com/san-kum/hybridsim/internal/dynamo"
)

// MinPopulation is the smallest species value seen in any sample.
type MinPopulation struct {
	name string

	mu      sync.Mutex
	min     float64
	samples int
}

func NewMinPopulation() *MinPopulation {
	return &MinPopulation{name: "min_population", min: math.Inf(1)}
}

func (p *MinPopulation) Name() string { return p.name }

func (p *MinPopulation) OnSample(traj int, t float64, x dynamo.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range x {
		p.min = math.Min(p.min, v)
	}
	p.samples++
}

func (p *MinPopulation) OnTrajectoryDone(int, dynamo.TrajectoryStats) {}

func (p *MinPopulation) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.samples == 0 {
		return 0
	}
	return p.min
}

func (p *MinPopulation) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.min = math.Inf(1)
	p.samples = 0
}

// Extinction counts trajectories whose final sample has a species at zero.
type Extinction struct {
	name    string
	species int

	mu      sync.Mutex
	last    map[int]float64
	extinct int
	done    int
}

func NewExtinction(species int) *Extinction {
	return &Extinction{name: "extinction", species: species, last: make(map[int]float64)}
}

func (e *Extinction) Name() string { return e.name }

func (e *Extinction) OnSample(traj int, t float64, x dynamo.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last[traj] = x[e.species]
}

func (e *Extinction) OnTrajectoryDone(traj int, _ dynamo.TrajectoryStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done++
	if e.last[traj] <= 0 {
		e.extinct++
	}
	delete(e.last, traj)
}

// Value is the extinct fraction of finished trajectories.
func (e *Extinction) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == 0 {
		return 0
	}
	return float64(e.extinct) / float64(e.done)
}

func (e *Extinction) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = make(map[int]float64)
	e.extinct = 0
	e.done = 0
}
