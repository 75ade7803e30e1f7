// Package dynamo provides the core primitives shared by the hybrid
// reaction solver and its integrators.
//
//   - [State]: flat integration vector
//   - [Derivative]: right-hand side dy/dt = f(y, t)
//   - [Integrator]: black-box "advance to time T" capability
//   - [Observer]: per-trajectory progress hook
//
// Integrators report failures as [*IntegratorError] carrying a [Status]
// code; the solver wraps anything fatal in a [*SimulationError] that names
// the trajectory and time at which it happened. Both match the package
// sentinels with errors.Is.
//
// # Example
//
//	integ := integrators.NewRK45(dynamo.DefaultTolerances())
//	t, y, err := integ.Advance(f, y0, 0, 1)
//	if errors.Is(err, dynamo.ErrIntegrator) {
//	    // inspect err.(*dynamo.IntegratorError).Status
//	}
package dynamo
