// Package propensity evaluates reaction rates from a population snapshot.
//
// Three entry points serve the different solvers: [Evaluator.Evaluate] for
// exact stochastic simulation over unsigned counts, [Evaluator.TauEvaluate]
// for tau-leaping over signed counts and [Evaluator.ODE] for continuous
// concentrations. The hybrid solver only uses ODE.
package propensity

import (
	"math"

	"github.com/san-kum/hybridsim/internal/model"
)

// Evaluator returns the non-negative propensity of reaction r. Evaluators
// must be read-only so they can be shared between trajectories.
type Evaluator interface {
	Evaluate(r int, state []uint) float64
	TauEvaluate(r int, state []int) float64
	ODE(r int, state []float64) float64
}

// Dependent is implemented by evaluators that can name the species a
// reaction's propensity reads. A nil result means any species may be read.
type Dependent interface {
	Reads(r int) []int
}

// Reads lists the species eval reads for reaction r, falling back to every
// species when eval cannot tell.
func Reads(eval Evaluator, r int, numSpecies int) []int {
	if d, ok := eval.(Dependent); ok {
		if reads := d.Reads(r); reads != nil {
			return reads
		}
	}
	all := make([]int, numSpecies)
	for s := range all {
		all[s] = s
	}
	return all
}

type term struct {
	species int
	count   int
}

// MassAction implements mass-action kinetics from a model's rates and
// reactant molecularities.
type MassAction struct {
	rates []float64
	terms [][]term
}

func NewMassAction(m *model.Model) *MassAction {
	ma := &MassAction{
		rates: make([]float64, m.NumReactions()),
		terms: make([][]term, m.NumReactions()),
	}
	for i, r := range m.Reactions {
		ma.rates[i] = r.Rate
		for s := 0; s < m.NumSpecies(); s++ {
			if c, ok := r.Reactants[s]; ok && c > 0 {
				ma.terms[i] = append(ma.terms[i], term{species: s, count: c})
			}
		}
	}
	return ma
}

// Reads returns the reactant species of reaction r.
func (ma *MassAction) Reads(r int) []int {
	reads := make([]int, len(ma.terms[r]))
	for i, t := range ma.terms[r] {
		reads[i] = t.species
	}
	return reads
}

// Evaluate returns k * prod C(x_s, m_s).
func (ma *MassAction) Evaluate(r int, state []uint) float64 {
	p := ma.rates[r]
	for _, t := range ma.terms[r] {
		p *= choose(float64(state[t.species]), t.count)
	}
	return p
}

func (ma *MassAction) TauEvaluate(r int, state []int) float64 {
	p := ma.rates[r]
	for _, t := range ma.terms[r] {
		x := state[t.species]
		if x < 0 {
			return 0
		}
		p *= choose(float64(x), t.count)
	}
	return p
}

// ODE returns k * prod x_s^m_s / m_s!. Negative concentrations contribute 0.
func (ma *MassAction) ODE(r int, state []float64) float64 {
	p := ma.rates[r]
	for _, t := range ma.terms[r] {
		x := state[t.species]
		if x <= 0 {
			return 0
		}
		p *= math.Pow(x, float64(t.count)) / factorial(t.count)
	}
	return p
}

func choose(x float64, k int) float64 {
	if x < float64(k) {
		return 0
	}
	c := 1.0
	for i := 0; i < k; i++ {
		c *= (x - float64(i)) / float64(i+1)
	}
	return c
}

func factorial(k int) float64 {
	f := 1.0
	for i := 2; i <= k; i++ {
		f *= float64(i)
	}
	return f
}

// Func adapts plain functions to Evaluator. A nil Discrete or Tau falls
// back to ODE on the converted state. Without Species every reaction is
// assumed to read every species.
type Func struct {
	Discrete   func(r int, state []uint) float64
	Tau        func(r int, state []int) float64
	Continuous func(r int, state []float64) float64
	// Species lists, per reaction, the species the functions read.
	Species [][]int
}

func (f Func) Reads(r int) []int {
	if r >= len(f.Species) || f.Species[r] == nil {
		return nil
	}
	return f.Species[r]
}

func (f Func) Evaluate(r int, state []uint) float64 {
	if f.Discrete != nil {
		return nonNegative(f.Discrete(r, state))
	}
	x := make([]float64, len(state))
	for i, v := range state {
		x[i] = float64(v)
	}
	return f.ODE(r, x)
}

func (f Func) TauEvaluate(r int, state []int) float64 {
	if f.Tau != nil {
		return nonNegative(f.Tau(r, state))
	}
	x := make([]float64, len(state))
	for i, v := range state {
		x[i] = float64(v)
	}
	return f.ODE(r, x)
}

func (f Func) ODE(r int, state []float64) float64 {
	if f.Continuous == nil {
		return 0
	}
	return nonNegative(f.Continuous(r, state))
}

func nonNegative(p float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	return p
}
