// Package analysis summarises trajectory stores.
//
//   - [Ensemble]: per-sample mean and standard deviation over trajectories
//   - [PowerSpectrum], [DominantPeriod]: oscillation analysis of one series
//   - [NewPhasePortrait]: species-against-species plot of one trajectory
//   - [Crossings]: upward threshold crossings of one series
//
// # Oscillations
//
// Predator-prey networks oscillate; the dominant period of the prey series
// is a quick check that a run reproduces the expected cycle:
//
//	period := analysis.DominantPeriod(store.Series(0, prey), store.Increment)
package analysis
