package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/san-kum/hybridsim/internal/analysis"
	"github.com/san-kum/hybridsim/internal/config"
	"github.com/san-kum/hybridsim/internal/experiment"
	"github.com/san-kum/hybridsim/internal/metrics"
	"github.com/san-kum/hybridsim/internal/optim"
	"github.com/san-kum/hybridsim/internal/storage"
	"github.com/san-kum/hybridsim/internal/trajectory"
	"github.com/san-kum/hybridsim/internal/viz"
)

// loadConfig resolves the run file from --config or a preset, then applies
// every flag the user set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		name := "decay"
		if len(args) > 0 {
			name = args[0]
		}
		variants := config.ListPresets(name)
		if variants == nil {
			return nil, fmt.Errorf("unknown network %q (available: %s)", name, strings.Join(config.ListNetworks(), ", "))
		}
		variant := preset
		if variant == "" {
			variant = variants[0]
		}
		cfg = config.GetPreset(name, variant)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q for %s (available: %s)", variant, name, strings.Join(variants, ", "))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("time") {
		cfg.EndTime = endTime
	}
	if flags.Changed("increment") {
		cfg.Increment = increment
	}
	if flags.Changed("trajectories") {
		cfg.Trajectories = trajectories
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("abs-tol") {
		cfg.AbsTol = absTol
	}
	if flags.Changed("rel-tol") {
		cfg.RelTol = relTol
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = maxRetries
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("stoich-rates") {
		cfg.StoichiometricRates = stoichRates
	}
	return cfg, cfg.Validate()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	if err := exp.Setup(experiment.NewRegistry(), slog.Default()); err != nil {
		return err
	}

	slog.Info("starting run",
		"network", cfg.Model.Name,
		"integrator", cfg.Integrator,
		"trajectories", cfg.Trajectories,
		"end_time", cfg.EndTime,
		"seed", cfg.Seed,
	)
	traj, err := exp.Run(ctx)
	if err != nil {
		return err
	}

	runID, err := saveRun(ctx, cfg, traj, exp.MetricValues())
	if err != nil {
		return err
	}

	printRunReport(exp, traj, runID)

	if showPlot {
		if sum, err := analysis.Ensemble(traj); err == nil {
			fmt.Println()
			fmt.Println(plotSummary(sum, "ensemble mean"))
		}
	}
	return nil
}

func watchSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}

	progress := viz.NewProgress(256)
	// The terminal belongs to the watch view while the run is going.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := exp.Setup(experiment.NewRegistry(), quiet, progress); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	type result struct {
		traj *trajectory.Store
		err  error
	}
	done := make(chan result, 1)
	go func() {
		traj, err := exp.Run(ctx)
		progress.Finish(traj, err)
		done <- result{traj, err}
	}()

	title := fmt.Sprintf("%s · %s", cfg.Model.Name, cfg.Integrator)
	watch := viz.NewWatch(title, exp.Model().SpeciesNames(), cfg.Trajectories, progress, cancel)
	if _, err := tea.NewProgram(watch).Run(); err != nil {
		cancel()
		progress.Stop()
		<-done
		return err
	}
	progress.Stop()

	res := <-done
	if res.err != nil {
		return res.err
	}
	runID, err := saveRun(cmd.Context(), cfg, res.traj, exp.MetricValues())
	if err != nil {
		return err
	}
	printRunReport(exp, res.traj, runID)
	return nil
}

func saveRun(ctx context.Context, cfg *config.Config, traj *trajectory.Store, values map[string]float64) (string, error) {
	st, idx, err := openStore(ctx)
	if err != nil {
		return "", err
	}
	defer idx.Close()

	return st.Save(ctx, storage.RunMetadata{
		Network:    cfg.Model.Name,
		Seed:       cfg.Seed,
		Integrator: cfg.Integrator,
		Metrics:    values,
	}, traj)
}

func printRunReport(exp *experiment.Experiment, traj *trajectory.Store, runID string) {
	completed := traj.CompletedCount()
	if traj.Canceled {
		slog.Warn("run canceled", "completed", completed, "trajectories", traj.NumTrajectories())
	}

	for _, m := range exp.Metrics() {
		if rs, ok := m.(*metrics.RunStats); ok {
			totals, n := rs.Totals()
			fmt.Printf("%s trajectories, %s steps, %s retries, %s firings in %s\n",
				humanize.Comma(int64(n)),
				humanize.Comma(int64(totals.Steps)),
				humanize.Comma(int64(totals.Retries)),
				humanize.Comma(int64(totals.Firings)),
				totals.Elapsed.Round(time.Millisecond),
			)
		}
	}

	if sum, err := analysis.Ensemble(traj); err == nil {
		fmt.Println(viz.RenderSummary(exp.Config().Model.Name, sum, exp.MetricValues()))
	} else {
		slog.Warn("no ensemble summary", "err", err)
	}
	fmt.Printf("run saved: %s\n", runID)
}

func plotSummary(sum *analysis.Summary, caption string) string {
	series := make([][]float64, len(sum.Species))
	for i := range sum.Species {
		series[i] = sum.MeanSeries(i)
	}
	return viz.PlotSeries(sum.Species, series, 70, 15, caption)
}

func sweepRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	reactions := make([]string, 0, len(sweepRates))
	ranges := make([][]float64, 0, len(sweepRates))
	for _, grid := range sweepRates {
		name, values, err := parseRateGrid(grid)
		if err != nil {
			return err
		}
		reactions = append(reactions, name)
		ranges = append(ranges, values)
	}

	g := optim.NewGridSearch(reactions, ranges)
	points, best, err := g.Search(cmd.Context(), cfg, experiment.NewRegistry(), sweepMetric, slog.Default())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(reactions, "\t")), strings.ToUpper(sweepMetric))
	for _, p := range points {
		for _, name := range reactions {
			fmt.Fprintf(w, "%g\t", p.Rates[name])
		}
		fmt.Fprintf(w, "%.6g\n", p.Value)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nbest %s=%.6g at", sweepMetric, best.Value)
	for _, name := range reactions {
		fmt.Printf(" %s=%g", name, best.Rates[name])
	}
	fmt.Println()
	return nil
}

// parseRateGrid reads "reaction=v1,v2,...".
func parseRateGrid(grid string) (string, []float64, error) {
	name, list, ok := strings.Cut(grid, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("bad --rate %q, want reaction=v1,v2", grid)
	}
	parts := strings.Split(list, ",")
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return "", nil, fmt.Errorf("bad rate %q for %s: %w", p, name, err)
		}
		if v < 0 {
			return "", nil, fmt.Errorf("rate for %s must be non-negative, got %g", name, v)
		}
		values[i] = v
	}
	return name, values, nil
}
