package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/hybridsim/internal/config"
	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/hybrid"
	"github.com/san-kum/hybridsim/internal/metrics"
	"github.com/san-kum/hybridsim/internal/model"
	"github.com/san-kum/hybridsim/internal/propensity"
	"github.com/san-kum/hybridsim/internal/trajectory"
)

// Experiment is one configured hybrid run: a model built from a run file,
// a solver for it and the metrics observing it.
type Experiment struct {
	cfg     *config.Config
	model   *model.Model
	solver  *hybrid.Solver
	metrics []metrics.Metric
}

func New(cfg *config.Config) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := cfg.Model.BuildModel()
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", cfg.Model.Name, err)
	}
	return &Experiment{cfg: cfg, model: m}, nil
}

// Setup builds the solver. Extra observers are attached after the
// registry's default metrics.
func (e *Experiment) Setup(reg *Registry, logger *slog.Logger, extra ...dynamo.Observer) error {
	newIntegrator, err := reg.GetIntegrator(e.cfg.Integrator, e.cfg.Tolerances())
	if err != nil {
		return err
	}

	e.metrics = reg.DefaultMetrics(e.model)
	opts := hybrid.DefaultOptions()
	if e.cfg.MaxRetries > 0 {
		opts.MaxRetries = e.cfg.MaxRetries
	}
	opts.StoichiometricRates = e.cfg.StoichiometricRates
	opts.Observers = append(metrics.Observers(e.metrics...), extra...)
	opts.Logger = logger

	e.solver = hybrid.NewSolver(e.model, propensity.NewMassAction(e.model), newIntegrator, opts)
	return nil
}

func (e *Experiment) RunConfig() hybrid.RunConfig {
	return hybrid.RunConfig{
		EndTime:      e.cfg.EndTime,
		Increment:    e.cfg.Increment,
		Trajectories: e.cfg.Trajectories,
		Seed:         e.cfg.Seed,
		Workers:      e.cfg.Workers,
	}
}

func (e *Experiment) Run(ctx context.Context) (*trajectory.Store, error) {
	if e.solver == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.solver.Run(ctx, e.RunConfig())
}

func (e *Experiment) Config() *config.Config    { return e.cfg }
func (e *Experiment) Model() *model.Model       { return e.model }
func (e *Experiment) Metrics() []metrics.Metric { return e.metrics }

// MetricValues returns the current value of every metric by name.
func (e *Experiment) MetricValues() map[string]float64 {
	out := make(map[string]float64, len(e.metrics))
	for _, m := range e.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}
