package hybrid

import (
	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/model"
	"github.com/san-kum/hybridsim/internal/propensity"
)

// Codec maps a model onto the integration vector
//
//	[ concentrations (0..S) | reaction offsets (S..S+R) ]
//
// and provides the derivative the integrator calls.
type Codec struct {
	numSpecies   int
	numReactions int
	eval         propensity.Evaluator

	// changes[r] lists the non-zero stoichiometric coefficients of reaction r.
	changes [][]change
	// stoichRates scales contributions by the coefficient instead of its sign.
	stoichRates bool
}

type change struct {
	species int
	delta   int
}

type CodecOption func(*Codec)

// WithStoichiometricRates makes each reaction contribute d*p_r to a species
// instead of sign(d)*p_r.
func WithStoichiometricRates() CodecOption {
	return func(c *Codec) { c.stoichRates = true }
}

func NewCodec(m *model.Model, eval propensity.Evaluator, opts ...CodecOption) *Codec {
	c := &Codec{
		numSpecies:   m.NumSpecies(),
		numReactions: m.NumReactions(),
		eval:         eval,
		changes:      make([][]change, m.NumReactions()),
	}
	for r, rxn := range m.Reactions {
		for s, d := range rxn.Delta {
			if d != 0 {
				c.changes[r] = append(c.changes[r], change{species: s, delta: d})
			}
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) NumSpecies() int   { return c.numSpecies }
func (c *Codec) NumReactions() int { return c.numReactions }
func (c *Codec) Len() int          { return c.numSpecies + c.numReactions }

func (c *Codec) OffsetIndex(r int) int { return c.numSpecies + r }

// Concentrations returns the species part of y without copying.
func (c *Codec) Concentrations(y dynamo.State) dynamo.State { return y[:c.numSpecies] }

// Offsets returns the reaction-offset part of y without copying.
func (c *Codec) Offsets(y dynamo.State) dynamo.State { return y[c.numSpecies:c.Len()] }

// Derivative computes dy/dt with every reaction moving its species
// continuously. It only reads y and writes dydt, so the integrator may call
// it any number of times per step.
func (c *Codec) Derivative(y dynamo.State, t float64, dydt dynamo.State) {
	c.derivative(y, dydt, nil)
}

// PartitionedDerivative returns the derivative for a step in which only the
// reactions with continuous[r] set move their species. The remaining
// reactions only advance their offsets, and stop doing so while a species
// they consume is short of one firing. continuous is read on every call.
func (c *Codec) PartitionedDerivative(continuous []bool) dynamo.Derivative {
	return func(y dynamo.State, t float64, dydt dynamo.State) {
		c.derivative(y, dydt, continuous)
	}
}

func (c *Codec) derivative(y, dydt dynamo.State, continuous []bool) {
	conc := y[:c.numSpecies]
	for s := 0; s < c.numSpecies; s++ {
		dydt[s] = 0
	}

	for r := 0; r < c.numReactions; r++ {
		p := c.eval.ODE(r, conc)

		if continuous != nil && !continuous[r] {
			if !c.canFire(r, conc) {
				p = 0
			}
			dydt[c.numSpecies+r] = p
			continue
		}

		dydt[c.numSpecies+r] = p
		for _, ch := range c.changes[r] {
			if c.stoichRates {
				dydt[ch.species] += p * float64(ch.delta)
			} else if ch.delta > 0 {
				dydt[ch.species] += p
			} else {
				dydt[ch.species] -= p
			}
		}
	}
}

func (c *Codec) canFire(r int, conc []float64) bool {
	for _, ch := range c.changes[r] {
		if ch.delta < 0 && conc[ch.species]+float64(ch.delta) < 0 {
			return false
		}
	}
	return true
}

// ReactionModes sets out[r] when reaction r only changes continuous
// species. Such a reaction is integrated; any other reaction fires
// discretely and moves all of its species by whole firings.
func (c *Codec) ReactionModes(species []model.Mode, out []bool) {
	for r := range out {
		out[r] = true
		for _, ch := range c.changes[r] {
			if species[ch.species] != model.Continuous {
				out[r] = false
				break
			}
		}
	}
}

// Propensities evaluates every reaction against conc into out.
func (c *Codec) Propensities(conc []float64, out []float64) {
	for r := 0; r < c.numReactions; r++ {
		out[r] = c.eval.ODE(r, conc)
	}
}
