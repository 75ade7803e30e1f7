package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/model"
	"github.com/san-kum/hybridsim/internal/propensity"
	"github.com/san-kum/hybridsim/internal/trajectory"
)

const (
	DefaultMaxRetries        = 32
	DefaultMinStepFraction   = 1e-9
	DefaultNegativeTolerance = 1e-9
	DefaultMaxFirings        = 100000
)

type Options struct {
	// MaxRetries bounds consecutive step halvings before a trajectory fails.
	MaxRetries int
	// MinStep is the smallest tau allowed; zero means
	// DefaultMinStepFraction * Increment.
	MinStep float64
	// NegativeTolerance is how far below zero a continuous concentration may
	// dip before the step is rejected. Smaller dips are clamped to zero.
	NegativeTolerance float64
	// MaxFirings bounds the firings of one reaction within a single step;
	// exceeding it rejects the step.
	MaxFirings int
	// StoichiometricRates scales derivative contributions by the
	// stoichiometric coefficient instead of its sign.
	StoichiometricRates bool

	Observers []dynamo.Observer
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:        DefaultMaxRetries,
		NegativeTolerance: DefaultNegativeTolerance,
		MaxFirings:        DefaultMaxFirings,
	}
}

type RunConfig struct {
	EndTime      float64
	Increment    float64
	Trajectories int
	Seed         int64
	// Workers is the number of trajectories run concurrently; values below
	// two run them sequentially.
	Workers int
}

func (c RunConfig) validate() error {
	if c.Increment <= 0 {
		return fmt.Errorf("increment must be positive, got %g", c.Increment)
	}
	if c.EndTime < 0 {
		return fmt.Errorf("end time must be non-negative, got %g", c.EndTime)
	}
	if c.Trajectories < 0 {
		return fmt.Errorf("trajectories must be non-negative, got %d", c.Trajectories)
	}
	return nil
}

// Solver runs hybrid trajectories of a model. A Solver holds no per-run
// state and may be reused; every trajectory gets its own integrator from
// newIntegrator and its own random stream.
type Solver struct {
	model         *model.Model
	codec         *Codec
	newIntegrator func() dynamo.Integrator
	opts          Options
	log           *slog.Logger

	// readers[s] lists the reactions whose propensity reads species s.
	readers [][]int
	// affected[r] lists the reactions whose propensity a firing of r changes.
	affected [][]int
}

func NewSolver(m *model.Model, eval propensity.Evaluator, newIntegrator func() dynamo.Integrator, opts Options) *Solver {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.NegativeTolerance <= 0 {
		opts.NegativeTolerance = DefaultNegativeTolerance
	}
	if opts.MaxFirings <= 0 {
		opts.MaxFirings = DefaultMaxFirings
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var codecOpts []CodecOption
	if opts.StoichiometricRates {
		codecOpts = append(codecOpts, WithStoichiometricRates())
	}

	readers := make([][]int, m.NumSpecies())
	for r := range m.Reactions {
		for _, sp := range propensity.Reads(eval, r, m.NumSpecies()) {
			readers[sp] = append(readers[sp], r)
		}
	}

	affected := make([][]int, m.NumReactions())
	for r, rxn := range m.Reactions {
		seen := make(map[int]bool)
		for sp, d := range rxn.Delta {
			if d == 0 {
				continue
			}
			for _, a := range readers[sp] {
				if !seen[a] {
					seen[a] = true
					affected[r] = append(affected[r], a)
				}
			}
		}
		sort.Ints(affected[r])
	}

	return &Solver{
		model:         m,
		codec:         NewCodec(m, eval, codecOpts...),
		newIntegrator: newIntegrator,
		opts:          opts,
		log:           logger,
		readers:       readers,
		affected:      affected,
	}
}

func (s *Solver) Codec() *Codec { return s.codec }

// Run simulates cfg.Trajectories trajectories into a freshly allocated
// store. Cancellation of ctx is only observed between trajectories: the
// store comes back with Canceled set, finished rows intact and a nil error.
// Integrator failures and exhausted retries abort the run with a
// *dynamo.SimulationError.
func (s *Solver) Run(ctx context.Context, cfg RunConfig) (*trajectory.Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store, err := trajectory.New(s.model.SpeciesNames(), cfg.Trajectories, cfg.EndTime, cfg.Increment)
	if err != nil {
		return nil, err
	}

	s.log.Debug("hybrid run starting",
		"species", s.model.NumSpecies(),
		"reactions", s.model.NumReactions(),
		"trajectories", cfg.Trajectories,
		"end_time", cfg.EndTime,
		"increment", cfg.Increment,
		"seed", cfg.Seed,
	)

	err = dynamo.ParallelFor(ctx, cfg.Trajectories, cfg.Workers, func(i int) error {
		return s.runTrajectory(i, cfg, store)
	})
	if err != nil {
		s.log.Error("hybrid run failed", "error", err)
		return store, err
	}

	if ctx.Err() != nil && store.CompletedCount() < cfg.Trajectories {
		store.Canceled = true
		s.log.Info("hybrid run canceled",
			"completed", store.CompletedCount(),
			"trajectories", cfg.Trajectories,
		)
	}
	return store, nil
}

// trajectoryRun is the mutable state of one trajectory.
type trajectoryRun struct {
	*Solver
	traj  int
	rng   *rand.Rand
	integ dynamo.Integrator

	y       dynamo.State
	pops    []float64
	modes   []model.Mode
	// continuous[r] is set when reaction r is integrated this step.
	continuous []bool
	deriv      dynamo.Derivative
	props      []float64
	changes []int
	offsets []float64
	stale   []bool
	fired   []bool

	stats dynamo.TrajectoryStats
}

func (s *Solver) runTrajectory(traj int, cfg RunConfig, store *trajectory.Store) error {
	start := time.Now()
	numSpecies, numReactions := s.codec.NumSpecies(), s.codec.NumReactions()

	tr := &trajectoryRun{
		Solver:  s,
		traj:       traj,
		rng:        rand.New(rand.NewSource(cfg.Seed + int64(traj))),
		y:          make(dynamo.State, s.codec.Len()),
		pops:       s.model.InitialPopulations(),
		modes:      make([]model.Mode, numSpecies),
		continuous: make([]bool, numReactions),
		props:      make([]float64, numReactions),
		changes:    make([]int, numSpecies),
		offsets:    make([]float64, numReactions),
		stale:      make([]bool, numReactions),
		fired:      make([]bool, numReactions),
	}
	tr.deriv = s.codec.PartitionedDerivative(tr.continuous)

	copy(tr.y, tr.pops)
	for r := 0; r < numReactions; r++ {
		tr.y[s.codec.OffsetIndex(r)] = tr.logUniform()
	}
	tr.record(store, 0, 0)

	n := store.NumSamples()
	if numReactions == 0 {
		for i := 1; i < n; i++ {
			tr.record(store, i, store.Timeline[i])
		}
		return tr.finish(store, start)
	}

	tr.integ = s.newIntegrator()
	defer tr.integ.Reset()

	s.codec.Propensities(tr.y[:numSpecies], tr.props)

	end := math.Max(cfg.EndTime, store.Timeline[n-1])
	eps := 1e-12 * math.Max(1, end)
	minStep := s.opts.MinStep
	if minStep <= 0 {
		minStep = DefaultMinStepFraction * cfg.Increment
	}

	cur := 0.0
	tau := cfg.Increment
	nextSample := 1
	retries := 0

	for end-cur > eps {
		tr.repartition(tau)

		target := cur + tau
		if nextSample < n && target > store.Timeline[nextSample] {
			target = store.Timeline[nextSample]
		}
		if target > end {
			target = end
		}

		tReached, yNext, err := tr.integ.Advance(tr.deriv, tr.y, cur, target)
		if err != nil {
			return tr.fail(cur, fmt.Errorf("advance to t=%g: %w", target, err))
		}
		if !yNext.IsValid() {
			return tr.fail(cur, dynamo.ErrInvalidState)
		}

		if !tr.reconcile(yNext) {
			retries++
			tr.stats.Retries++
			// Halve the step actually proposed; tau may exceed it after
			// clamping to a sample time.
			tau = (target - cur) / 2
			tr.integ.Reset()

			if retries > s.opts.MaxRetries {
				return tr.fail(cur, dynamo.ErrRetriesExhausted)
			}
			if tau < minStep || cur+tau == cur {
				return tr.fail(cur, fmt.Errorf("%w: tau=%g", dynamo.ErrStepTooSmall, tau))
			}
			continue
		}

		retries = 0
		tr.accept(yNext)
		cur = tReached
		tr.stats.Steps++
		tau = math.Min(2*tau, cfg.Increment)

		for nextSample < n && store.Timeline[nextSample] <= cur+eps {
			tr.record(store, nextSample, store.Timeline[nextSample])
			nextSample++
		}

		tr.refreshPropensities()
	}

	for ; nextSample < n; nextSample++ {
		tr.record(store, nextSample, store.Timeline[nextSample])
	}
	return tr.finish(store, start)
}

func (tr *trajectoryRun) logUniform() float64 {
	u := tr.rng.Float64()
	for u == 0 {
		u = tr.rng.Float64()
	}
	return math.Log(u)
}

func (tr *trajectoryRun) record(store *trajectory.Store, i int, t float64) {
	store.Record(tr.traj, i, tr.y)
	for _, o := range tr.opts.Observers {
		o.OnSample(tr.traj, t, store.Sample(tr.traj, i))
	}
}

func (tr *trajectoryRun) finish(store *trajectory.Store, start time.Time) error {
	tr.stats.Elapsed = time.Since(start)
	store.Completed[tr.traj] = true
	for _, o := range tr.opts.Observers {
		o.OnTrajectoryDone(tr.traj, tr.stats)
	}
	tr.log.Debug("trajectory finished",
		"trajectory", tr.traj,
		"steps", tr.stats.Steps,
		"retries", tr.stats.Retries,
		"firings", tr.stats.Firings,
		"elapsed", tr.stats.Elapsed,
	)
	return nil
}

func (tr *trajectoryRun) fail(t float64, err error) error {
	tr.log.Error("trajectory failed", "trajectory", tr.traj, "time", t, "error", err)
	return &dynamo.SimulationError{
		Trajectory: tr.traj,
		Step:       tr.stats.Steps,
		Time:       t,
		State:      tr.y.Clone(),
		Wrapped:    err,
	}
}

// repartition recomputes species and reaction modes for the next step.
// Values are kept as they are: a species that turns discrete keeps any
// fractional part and moves by whole firings from there.
func (tr *trajectoryRun) repartition(tau float64) {
	copy(tr.modes, Partition(tr.model, tr.pops, tr.props, tau))
	tr.codec.ReactionModes(tr.modes, tr.continuous)
}

// reconcile counts the firings implied by the offsets in yNext. Each
// non-negative offset of a discrete reaction fires it and is pushed back by
// a fresh log-uniform draw until it is negative again; a firing moves every
// species the reaction changes. Offsets of integrated reactions are only
// redrawn once they cross zero. It reports whether the resulting state is
// valid: no discrete population below zero and no continuous concentration
// below -NegativeTolerance. Nothing is applied.
func (tr *trajectoryRun) reconcile(yNext dynamo.State) bool {
	numSpecies := tr.codec.NumSpecies()
	for sp := range tr.changes {
		tr.changes[sp] = 0
	}

	firings := 0
	for r := range tr.offsets {
		off := yNext[numSpecies+r]
		tr.fired[r] = false
		if tr.continuous[r] {
			if off >= 0 {
				off = tr.logUniform()
			}
			tr.offsets[r] = off
			continue
		}

		count := 0
		for off >= 0 {
			if count >= tr.opts.MaxFirings {
				return false
			}
			for _, ch := range tr.codec.changes[r] {
				tr.changes[ch.species] += ch.delta
			}
			off += tr.logUniform()
			count++
		}
		tr.offsets[r] = off
		if count > 0 {
			tr.fired[r] = true
			firings += count
		}
	}

	for sp := 0; sp < numSpecies; sp++ {
		if tr.modes[sp] == model.Discrete {
			if tr.pops[sp]+float64(tr.changes[sp]) < 0 {
				return false
			}
		} else if yNext[sp]+float64(tr.changes[sp]) < -tr.opts.NegativeTolerance {
			return false
		}
	}

	tr.stats.Firings += firings
	return true
}

// accept commits a reconciled step: continuous species take their
// integrated values plus any firings, discrete species take their
// populations plus the firings, offsets take their post-firing values.
func (tr *trajectoryRun) accept(yNext dynamo.State) {
	numSpecies := tr.codec.NumSpecies()
	copy(tr.y, yNext)

	for sp := 0; sp < numSpecies; sp++ {
		if tr.modes[sp] == model.Discrete {
			tr.pops[sp] += float64(tr.changes[sp])
			tr.y[sp] = tr.pops[sp]
			continue
		}
		v := tr.y[sp] + float64(tr.changes[sp])
		if v < 0 {
			v = 0
		}
		tr.y[sp] = v
		tr.pops[sp] = v
		tr.markReaders(sp)
	}

	copy(tr.y[numSpecies:], tr.offsets)

	for r, fired := range tr.fired {
		if !fired {
			continue
		}
		for _, a := range tr.affected[r] {
			tr.stale[a] = true
		}
	}
}

func (tr *trajectoryRun) markReaders(sp int) {
	for _, r := range tr.readers[sp] {
		tr.stale[r] = true
	}
}

// refreshPropensities re-evaluates only the reactions marked stale since the
// last refresh.
func (tr *trajectoryRun) refreshPropensities() {
	conc := tr.y[:tr.codec.NumSpecies()]
	for r, stale := range tr.stale {
		if stale {
			tr.props[r] = tr.codec.eval.ODE(r, conc)
			tr.stale[r] = false
		}
	}
}
