// Package hybrid implements a hybrid stochastic/deterministic solver for
// chemical reaction networks.
//
// Every species is either integrated as a continuous concentration or
// updated by discrete reaction firings. Each reaction carries an offset in
// the integration vector that starts at log(U) and grows with the
// reaction's propensity; an offset crossing zero is a firing. A reaction
// that only changes continuous species is integrated; any other reaction
// fires and moves all of its species by whole firings. After every
// integrator step the solver counts firings, applies them and rejects the
// step, halving it, if any population would go negative.
//
// # Example
//
//	m, _ := model.New([]string{"A", "B"}, []uint{100, 0}, []string{"convert"},
//	    model.WithChange("convert", "A", -1),
//	    model.WithChange("convert", "B", 1),
//	)
//	s := hybrid.NewSolver(m, propensity.NewMassAction(m), func() dynamo.Integrator {
//	    return integrators.NewRK45(dynamo.DefaultTolerances())
//	}, hybrid.DefaultOptions())
//	store, err := s.Run(ctx, hybrid.RunConfig{EndTime: 10, Increment: 1, Trajectories: 1})
package hybrid
