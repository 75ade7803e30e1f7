package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/integrators"
	"github.com/san-kum/hybridsim/internal/metrics"
	"github.com/san-kum/hybridsim/internal/model"
)

// IntegratorFactory builds a fresh integrator for the given tolerances.
// Fixed-step integrators ignore them.
type IntegratorFactory func(tol dynamo.Tolerances) dynamo.Integrator

type Registry struct {
	integrators map[string]IntegratorFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]IntegratorFactory),
	}

	r.integrators["rk45"] = func(tol dynamo.Tolerances) dynamo.Integrator { return integrators.NewRK45(tol) }
	r.integrators["rk4"] = func(dynamo.Tolerances) dynamo.Integrator { return integrators.NewRK4(integrators.DefaultMaxStep) }
	r.integrators["euler"] = func(dynamo.Tolerances) dynamo.Integrator { return integrators.NewEuler(integrators.DefaultMaxStep) }

	return r
}

// Register adds or replaces an integrator.
func (r *Registry) Register(name string, f IntegratorFactory) {
	r.integrators[name] = f
}

// GetIntegrator returns a constructor the solver calls once per trajectory.
func (r *Registry) GetIntegrator(name string, tol dynamo.Tolerances) (func() dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return func() dynamo.Integrator { return fn(tol) }, nil
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics picks the metrics that make sense for m. Mass balance over
// the total molecule count is only tracked when every reaction conserves it.
func (r *Registry) DefaultMetrics(m *model.Model) []metrics.Metric {
	ms := []metrics.Metric{
		metrics.NewRunStats(),
		metrics.NewMinPopulation(),
	}
	if conservesCount(m) {
		weights := make([]float64, m.NumSpecies())
		for i := range weights {
			weights[i] = 1
		}
		ms = append(ms, metrics.NewMassBalance(weights))
	}
	return ms
}

func conservesCount(m *model.Model) bool {
	if m.NumReactions() == 0 {
		return false
	}
	for _, rxn := range m.Reactions {
		sum := 0
		for _, d := range rxn.Delta {
			sum += d
		}
		if sum != 0 {
			return false
		}
	}
	return true
}
