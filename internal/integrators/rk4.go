package integrators

import (
	"math"

	"github.com/san-kum/hybridsim/internal/dynamo"
)

const epsilon = 2.220446049250313e-16

// DefaultMaxStep is the sub-step length used by the fixed-step integrators.
const DefaultMaxStep = 1e-3

// RK4 is a classic fourth-order Runge-Kutta integrator. Advance splits the
// requested interval into equal sub-steps no longer than MaxStep.
type RK4 struct {
	MaxStep float64

	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4(maxStep float64) *RK4 {
	return &RK4{MaxStep: maxStep}
}

func (r *RK4) Reset() {}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) Advance(f dynamo.Derivative, y dynamo.State, t, tTarget float64) (float64, dynamo.State, error) {
	steps, h, err := substeps(f, t, tTarget, r.MaxStep)
	if err != nil {
		return t, nil, err
	}

	x := y.Clone()
	n := len(x)
	r.ensureScratch(n)

	for s := 0; s < steps; s++ {
		ts := t + float64(s)*h

		f(x, ts, r.k1)
		if !r.k1.IsValid() {
			return ts, x, &dynamo.IntegratorError{Status: dynamo.StatusRHSFailure, Time: ts}
		}

		for i := 0; i < n; i++ {
			r.scratch[i] = x[i] + h*0.5*r.k1[i]
		}
		f(r.scratch, ts+h*0.5, r.k2)

		for i := 0; i < n; i++ {
			r.scratch[i] = x[i] + h*0.5*r.k2[i]
		}
		f(r.scratch, ts+h*0.5, r.k3)

		for i := 0; i < n; i++ {
			r.scratch[i] = x[i] + h*r.k3[i]
		}
		f(r.scratch, ts+h, r.k4)

		h6 := h / 6.0
		for i := 0; i < n; i++ {
			x[i] += h6 * (r.k1[i] + 2*r.k2[i] + 2*r.k3[i] + r.k4[i])
		}
	}

	if !x.IsValid() {
		return tTarget, x, &dynamo.IntegratorError{Status: dynamo.StatusRHSFailure, Time: tTarget}
	}
	return tTarget, x, nil
}

// Euler is the explicit first-order method with fixed sub-steps.
type Euler struct {
	MaxStep float64

	dx dynamo.State
}

func NewEuler(maxStep float64) *Euler {
	return &Euler{MaxStep: maxStep}
}

func (e *Euler) Reset() {}

func (e *Euler) Advance(f dynamo.Derivative, y dynamo.State, t, tTarget float64) (float64, dynamo.State, error) {
	steps, h, err := substeps(f, t, tTarget, e.MaxStep)
	if err != nil {
		return t, nil, err
	}

	x := y.Clone()
	if len(e.dx) != len(x) {
		e.dx = make(dynamo.State, len(x))
	}

	for s := 0; s < steps; s++ {
		ts := t + float64(s)*h
		f(x, ts, e.dx)
		if !e.dx.IsValid() {
			return ts, x, &dynamo.IntegratorError{Status: dynamo.StatusRHSFailure, Time: ts}
		}
		for i := range x {
			x[i] += h * e.dx[i]
		}
	}
	return tTarget, x, nil
}

// substeps validates the arguments of a fixed-step Advance and returns the
// number and length of equal sub-steps covering [t, tTarget].
func substeps(f dynamo.Derivative, t, tTarget, maxStep float64) (int, float64, error) {
	if f == nil {
		return 0, 0, &dynamo.IntegratorError{Status: dynamo.StatusMemNull, Time: t}
	}
	if maxStep <= 0 || math.IsNaN(t) || math.IsNaN(tTarget) || tTarget < t {
		return 0, 0, &dynamo.IntegratorError{Status: dynamo.StatusIllInput, Time: t}
	}
	span := tTarget - t
	if span == 0 {
		return 0, 0, nil
	}
	steps := int(math.Ceil(span / maxStep))
	if steps > DefaultMaxSteps {
		return 0, 0, &dynamo.IntegratorError{Status: dynamo.StatusTooMuchWork, Time: t}
	}
	return steps, span / float64(steps), nil
}
