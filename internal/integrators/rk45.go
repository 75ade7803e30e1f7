package integrators

import (
	"math"

	"github.com/san-kum/hybridsim/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// DefaultMaxSteps bounds the internal steps of a single Advance call.
const DefaultMaxSteps = 500000

// RK45 is an adaptive Dormand-Prince integrator. It remembers the last
// accepted step size between Advance calls.
type RK45 struct {
	tol      dynamo.Tolerances
	maxSteps int
	safety   float64
	minScale float64
	maxScale float64

	h                          float64
	k1, k2, k3, k4, k5, k6, k7 dynamo.State
	tmp, xNew                  dynamo.State
}

func NewRK45(tol dynamo.Tolerances) *RK45 {
	return &RK45{
		tol:      tol,
		maxSteps: DefaultMaxSteps,
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

// WithMaxSteps overrides the per-call internal step budget.
func (r *RK45) WithMaxSteps(n int) *RK45 {
	r.maxSteps = n
	return r
}

func (r *RK45) Reset() {
	r.h = 0
}

func (r *RK45) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.k5 = make(dynamo.State, n)
		r.k6 = make(dynamo.State, n)
		r.k7 = make(dynamo.State, n)
		r.tmp = make(dynamo.State, n)
		r.xNew = make(dynamo.State, n)
		r.h = 0
	}
}

func (r *RK45) Advance(f dynamo.Derivative, y dynamo.State, t, tTarget float64) (float64, dynamo.State, error) {
	if f == nil {
		return t, nil, &dynamo.IntegratorError{Status: dynamo.StatusMemNull, Time: t}
	}
	if !r.tol.Valid() || r.maxSteps <= 0 || math.IsNaN(t) || math.IsNaN(tTarget) || tTarget < t {
		return t, nil, &dynamo.IntegratorError{Status: dynamo.StatusIllInput, Time: t}
	}

	x := y.Clone()
	if tTarget == t || len(x) == 0 {
		return tTarget, x, nil
	}

	n := len(x)
	r.ensureScratch(n)

	h := r.h
	if h <= 0 || h > tTarget-t {
		h = tTarget - t
	}

	for steps := 0; t < tTarget; steps++ {
		if steps >= r.maxSteps {
			return t, x, &dynamo.IntegratorError{Status: dynamo.StatusTooMuchWork, Time: t}
		}

		tiny := 16 * epsilon * math.Max(math.Abs(t), 1)
		if tTarget-t <= tiny {
			t = tTarget
			break
		}

		last := false
		if t+h >= tTarget {
			h = tTarget - t
			last = true
		}
		if h <= tiny {
			return t, x, &dynamo.IntegratorError{Status: dynamo.StatusConvFailure, Time: t}
		}

		f(x, t, r.k1)
		if !r.k1.IsValid() {
			return t, x, &dynamo.IntegratorError{Status: dynamo.StatusRHSFailure, Time: t}
		}

		errRatio := r.trial(f, x, t, h)

		if errRatio <= 1 {
			if last {
				t = tTarget
			} else {
				t += h
			}
			copy(x, r.xNew)

			scale := r.maxScale
			if errRatio > 0 {
				scale = math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
			}
			h *= scale
			continue
		}

		scale := r.minScale
		if !math.IsInf(errRatio, 1) {
			scale = math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
		}
		h *= scale
	}

	r.h = h
	return t, x, nil
}

// trial computes a step of size h from x into r.xNew and returns the
// weighted RMS error ratio against the tolerances. k1 must already hold
// f(x, t). A non-finite stage yields +Inf.
func (r *RK45) trial(f dynamo.Derivative, x dynamo.State, t, h float64) float64 {
	n := len(x)
	k1, k2, k3, k4, k5, k6, k7 := r.k1, r.k2, r.k3, r.k4, r.k5, r.k6, r.k7

	for i := 0; i < n; i++ {
		r.tmp[i] = x[i] + h*b21*k1[i]
	}
	f(r.tmp, t+a2*h, k2)

	for i := 0; i < n; i++ {
		r.tmp[i] = x[i] + h*(b31*k1[i]+b32*k2[i])
	}
	f(r.tmp, t+a3*h, k3)

	for i := 0; i < n; i++ {
		r.tmp[i] = x[i] + h*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	f(r.tmp, t+a4*h, k4)

	for i := 0; i < n; i++ {
		r.tmp[i] = x[i] + h*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	f(r.tmp, t+a5*h, k5)

	for i := 0; i < n; i++ {
		r.tmp[i] = x[i] + h*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	f(r.tmp, t+h, k6)

	for i := 0; i < n; i++ {
		r.xNew[i] = x[i] + h*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}
	f(r.xNew, t+h, k7)

	sum := 0.0
	for i := 0; i < n; i++ {
		errEst := h * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
		sc := r.tol.Abs + r.tol.Rel*math.Max(math.Abs(x[i]), math.Abs(r.xNew[i]))
		e := errEst / sc
		sum += e * e
	}
	ratio := math.Sqrt(sum / float64(n))
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return math.Inf(1)
	}
	return ratio
}
