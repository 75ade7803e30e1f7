package hybrid_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/hybrid"
	"github.com/san-kum/hybridsim/internal/integrators"
	"github.com/san-kum/hybridsim/internal/model"
	"github.com/san-kum/hybridsim/internal/propensity"
)

func rk45() dynamo.Integrator {
	return integrators.NewRK45(dynamo.DefaultTolerances())
}

func newSolver(m *model.Model, newIntegrator func() dynamo.Integrator, opts hybrid.Options) *hybrid.Solver {
	return hybrid.NewSolver(m, propensity.NewMassAction(m), newIntegrator, opts)
}

func birthDeath(opts ...model.Option) *model.Model {
	opts = append([]model.Option{
		model.WithChange("birth", "A", 1),
		model.WithChange("death", "A", -1),
		model.WithRate("birth", 5),
		model.WithRate("death", 0.5),
	}, opts...)
	m, err := model.New([]string{"A"}, []uint{10}, []string{"birth", "death"}, opts...)
	Expect(err).NotTo(HaveOccurred())
	return m
}

// negativeIntegrator always drives species 0 below zero.
type negativeIntegrator struct{}

func (negativeIntegrator) Advance(f dynamo.Derivative, y dynamo.State, t, tTarget float64) (float64, dynamo.State, error) {
	out := y.Clone()
	out[0] = -1
	return tTarget, out, nil
}

func (negativeIntegrator) Reset() {}

type failingIntegrator struct{}

func (failingIntegrator) Advance(f dynamo.Derivative, y dynamo.State, t, tTarget float64) (float64, dynamo.State, error) {
	return t, nil, &dynamo.IntegratorError{Status: dynamo.StatusTooMuchWork, Time: t}
}

func (failingIntegrator) Reset() {}

// choosyIntegrator keeps the state unchanged but drives species 0 negative
// on any step it considers too long, logging every step it is asked for.
type choosyIntegrator struct {
	log *[]proposal
}

type proposal struct {
	t, step  float64
	rejected bool
}

func (c choosyIntegrator) Advance(f dynamo.Derivative, y dynamo.State, t, tTarget float64) (float64, dynamo.State, error) {
	step := tTarget - t
	tooLong := step > 0.75 || (t > 0 && step > 0.2)
	*c.log = append(*c.log, proposal{t: t, step: step, rejected: tooLong})

	out := y.Clone()
	if tooLong {
		out[0] = -1
	}
	return tTarget, out, nil
}

func (choosyIntegrator) Reset() {}

type recorder struct {
	mu     sync.Mutex
	times  map[int][]float64
	done   map[int]dynamo.TrajectoryStats
	onDone func(traj int)
}

func newRecorder() *recorder {
	return &recorder{times: map[int][]float64{}, done: map[int]dynamo.TrajectoryStats{}}
}

func (r *recorder) OnSample(traj int, t float64, x dynamo.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times[traj] = append(r.times[traj], t)
}

func (r *recorder) OnTrajectoryDone(traj int, stats dynamo.TrajectoryStats) {
	r.mu.Lock()
	r.done[traj] = stats
	r.mu.Unlock()
	if r.onDone != nil {
		r.onDone(traj)
	}
}

var _ = Describe("Solver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("continuous conversion", func() {
		It("conserves mass and moves monotonically", func() {
			m := conversion(100, 0,
				model.WithRate("convert", 0.1),
				model.WithAllModes(model.Continuous),
			)
			store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, hybrid.RunConfig{
				EndTime: 10, Increment: 1, Trajectories: 1, Seed: 7,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Complete()).To(BeTrue())
			Expect(store.NumSamples()).To(Equal(11))

			for i := 0; i < store.NumSamples(); i++ {
				x := store.Sample(0, i)
				Expect(x[0]+x[1]).To(BeNumerically("~", 100, 1e-9))
				if i > 0 {
					prev := store.Sample(0, i-1)
					Expect(x[0]).To(BeNumerically("<", prev[0]))
					Expect(x[1]).To(BeNumerically(">", prev[1]))
				}
			}
		})

		It("conserves mass with dynamic partitioning", func() {
			m := conversion(100, 0, model.WithRate("convert", 0.1))
			store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, hybrid.RunConfig{
				EndTime: 10, Increment: 1, Trajectories: 20,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Complete()).To(BeTrue())

			for tr := 0; tr < store.NumTrajectories(); tr++ {
				for i := 0; i < store.NumSamples(); i++ {
					x := store.Sample(tr, i)
					Expect(x[0]+x[1]).To(BeNumerically("~", 100, 1e-6), "trajectory %d sample %d", tr, i)
					Expect(x[0]).To(BeNumerically(">=", 0))
					if i > 0 {
						prev := store.Sample(tr, i-1)
						Expect(x[0]).To(BeNumerically("<=", prev[0]))
						Expect(x[1]).To(BeNumerically(">=", prev[1]))
					}
				}
			}
		})

		It("applies firings to continuous species of a discrete reaction", func() {
			m := conversion(100, 0,
				model.WithRate("convert", 0.3),
				model.WithMode("A", model.Continuous),
				model.WithMode("B", model.Discrete),
			)
			store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, hybrid.RunConfig{
				EndTime: 5, Increment: 0.5, Trajectories: 4, Seed: 9,
			})
			Expect(err).NotTo(HaveOccurred())

			for tr := 0; tr < store.NumTrajectories(); tr++ {
				final := store.Sample(tr, store.NumSamples()-1)
				Expect(final[0] + final[1]).To(BeNumerically("~", 100, 1e-9))
				Expect(final[1]).To(BeNumerically(">", 0))
				Expect(math.Mod(final[1], 1)).To(BeZero())
			}
		})

		It("tracks the analytic decay at sample times", func() {
			m := conversion(100, 0,
				model.WithRate("convert", 0.1),
				model.WithAllModes(model.Continuous),
			)
			store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, hybrid.RunConfig{
				EndTime: 10, Increment: 1, Trajectories: 1,
			})
			Expect(err).NotTo(HaveOccurred())

			for i, t := range store.Timeline {
				Expect(store.Sample(0, i)[0]).To(BeNumerically("~", 100*math.Exp(-0.1*t), 1e-2))
			}
		})
	})

	It("holds populations of a network without reactions", func() {
		m, err := model.New([]string{"X"}, []uint{42}, nil)
		Expect(err).NotTo(HaveOccurred())

		store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, hybrid.RunConfig{
			EndTime: 5, Increment: 1, Trajectories: 3,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Complete()).To(BeTrue())
		for tr := 0; tr < 3; tr++ {
			for i := 0; i < store.NumSamples(); i++ {
				Expect(store.Sample(tr, i)).To(Equal([]float64{42}))
			}
		}
	})

	Describe("discrete birth-death", func() {
		cfg := hybrid.RunConfig{EndTime: 5, Increment: 0.5, Trajectories: 6, Seed: 11}

		It("keeps populations whole and non-negative", func() {
			m := birthDeath(model.WithAllModes(model.Discrete))
			store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())

			for tr := 0; tr < store.NumTrajectories(); tr++ {
				Expect(store.Sample(tr, 0)).To(Equal([]float64{10}))
				for _, v := range store.Series(tr, 0) {
					Expect(v).To(BeNumerically(">=", 0))
					Expect(math.Mod(v, 1)).To(BeZero())
				}
			}
		})

		It("is reproducible for a fixed seed", func() {
			m := birthDeath(model.WithAllModes(model.Discrete))
			s := newSolver(m, rk45, hybrid.DefaultOptions())

			a, err := s.Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			b, err := s.Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Data).To(Equal(a.Data))
		})

		It("gives the same result with parallel workers", func() {
			m := birthDeath(model.WithAllModes(model.Discrete))
			s := newSolver(m, rk45, hybrid.DefaultOptions())

			seq, err := s.Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())

			par := cfg
			par.Workers = 4
			got, err := s.Run(ctx, par)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Data).To(Equal(seq.Data))
		})

		It("produces distinct trajectories from distinct seeds", func() {
			m := birthDeath(model.WithAllModes(model.Discrete))
			store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())

			same := true
			for tr := 1; tr < store.NumTrajectories(); tr++ {
				if !slices.Equal(store.Series(0, 0), store.Series(tr, 0)) {
					same = false
				}
			}
			Expect(same).To(BeFalse())
		})

		It("runs with dynamic partitioning", func() {
			m := birthDeath()
			store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Complete()).To(BeTrue())
			for tr := 0; tr < store.NumTrajectories(); tr++ {
				for _, v := range store.Series(tr, 0) {
					Expect(v).To(BeNumerically(">=", 0))
				}
			}
		})
	})

	It("reports every sample and trajectory to observers", func() {
		rec := newRecorder()
		opts := hybrid.DefaultOptions()
		opts.Observers = []dynamo.Observer{rec}

		m := birthDeath(model.WithAllModes(model.Discrete))
		store, err := newSolver(m, rk45, opts).Run(ctx, hybrid.RunConfig{
			EndTime: 2, Increment: 0.5, Trajectories: 2,
		})
		Expect(err).NotTo(HaveOccurred())

		for tr := 0; tr < 2; tr++ {
			Expect(rec.times[tr]).To(Equal(store.Timeline))
			Expect(rec.done).To(HaveKey(tr))
			Expect(rec.done[tr].Steps).To(BeNumerically(">", 0))
		}
	})

	It("samples past a non-multiple end time", func() {
		m := birthDeath(model.WithAllModes(model.Discrete))
		store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, hybrid.RunConfig{
			EndTime: 1, Increment: 0.4, Trajectories: 1,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.NumSamples()).To(Equal(4))
		Expect(store.Complete()).To(BeTrue())
	})

	Describe("failures", func() {
		It("gives up after the retry budget", func() {
			m := conversion(10, 0, model.WithAllModes(model.Continuous))
			opts := hybrid.DefaultOptions()
			opts.MaxRetries = 5

			store, err := newSolver(m, func() dynamo.Integrator { return negativeIntegrator{} }, opts).
				Run(ctx, hybrid.RunConfig{EndTime: 1, Increment: 1, Trajectories: 2})
			Expect(err).To(MatchError(dynamo.ErrRetriesExhausted))
			Expect(store.Completed[0]).To(BeFalse())

			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Trajectory).To(Equal(0))
			Expect(simErr.Time).To(BeZero())
		})

		It("stops once tau falls below the minimum step", func() {
			m := conversion(10, 0, model.WithAllModes(model.Continuous))
			opts := hybrid.DefaultOptions()
			opts.MaxRetries = 100
			opts.MinStep = 0.1

			_, err := newSolver(m, func() dynamo.Integrator { return negativeIntegrator{} }, opts).
				Run(ctx, hybrid.RunConfig{EndTime: 1, Increment: 1, Trajectories: 1})
			Expect(errors.Is(err, dynamo.ErrStepTooSmall)).To(BeTrue())
		})

		It("shortens every retried step", func() {
			m := conversion(10, 0, model.WithAllModes(model.Continuous))
			var log []proposal
			store, err := newSolver(m, func() dynamo.Integrator { return choosyIntegrator{log: &log} }, hybrid.DefaultOptions()).
				Run(ctx, hybrid.RunConfig{EndTime: 1, Increment: 1, Trajectories: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Complete()).To(BeTrue())

			retried := 0
			for i := 0; i+1 < len(log); i++ {
				if !log[i].rejected {
					continue
				}
				retried++
				Expect(log[i+1].t).To(Equal(log[i].t))
				Expect(log[i+1].step).To(BeNumerically("<", log[i].step), "retry at t=%g", log[i].t)
			}
			Expect(retried).To(BeNumerically(">=", 2))
		})

		It("propagates integrator failures", func() {
			m := conversion(10, 0)
			_, err := newSolver(m, func() dynamo.Integrator { return failingIntegrator{} }, hybrid.DefaultOptions()).
				Run(ctx, hybrid.RunConfig{EndTime: 1, Increment: 1, Trajectories: 1})

			Expect(errors.Is(err, dynamo.ErrIntegrator)).To(BeTrue())
			var integErr *dynamo.IntegratorError
			Expect(errors.As(err, &integErr)).To(BeTrue())
			Expect(integErr.Status).To(Equal(dynamo.StatusTooMuchWork))
		})

		It("rejects a bad run configuration", func() {
			m := conversion(10, 0)
			_, err := newSolver(m, rk45, hybrid.DefaultOptions()).
				Run(ctx, hybrid.RunConfig{EndTime: 1, Increment: 0, Trajectories: 1})
			Expect(err).To(HaveOccurred())
		})
	})

	It("shares one model between concurrent solvers", func() {
		m := birthDeath(model.WithAllModes(model.Discrete))
		before := slices.Clone(m.Reactions)
		cfg := hybrid.RunConfig{EndTime: 2, Increment: 0.5, Trajectories: 2, Seed: 4}

		results := make([][][][]float64, 4)
		var wg sync.WaitGroup
		for i := range results {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				store, err := newSolver(m, rk45, hybrid.DefaultOptions()).Run(ctx, cfg)
				Expect(err).NotTo(HaveOccurred())
				results[i] = store.Data
			}()
		}
		wg.Wait()

		Expect(m.Reactions).To(Equal(before))
		for _, r := range results[1:] {
			Expect(r).To(Equal(results[0]))
		}
	})

	Describe("cancellation", func() {
		It("returns an empty canceled store when already canceled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			m := birthDeath(model.WithAllModes(model.Discrete))
			store, err := newSolver(m, rk45, hybrid.DefaultOptions()).
				Run(cctx, hybrid.RunConfig{EndTime: 1, Increment: 0.5, Trajectories: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Canceled).To(BeTrue())
			Expect(store.CompletedCount()).To(BeZero())
		})

		It("keeps trajectories finished before the cancel", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()

			rec := newRecorder()
			rec.onDone = func(int) { cancel() }
			opts := hybrid.DefaultOptions()
			opts.Observers = []dynamo.Observer{rec}

			m := birthDeath(model.WithAllModes(model.Discrete))
			store, err := newSolver(m, rk45, opts).
				Run(cctx, hybrid.RunConfig{EndTime: 1, Increment: 0.5, Trajectories: 3, Workers: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Canceled).To(BeTrue())
			Expect(store.Completed).To(Equal([]bool{true, false, false}))
			Expect(store.Complete()).To(BeFalse())
		})
	})
})
