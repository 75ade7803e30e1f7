package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/hybridsim/internal/analysis"
	"github.com/san-kum/hybridsim/internal/config"
	"github.com/san-kum/hybridsim/internal/experiment"
	"github.com/san-kum/hybridsim/internal/export"
	"github.com/san-kum/hybridsim/internal/storage"
	"github.com/san-kum/hybridsim/internal/trajectory"
	"github.com/san-kum/hybridsim/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, idx, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	runs, err := idx.List(ctx, network)
	if err != nil {
		slog.Warn("run index unavailable, scanning data directory", "err", err)
		if runs, err = st.List(); err != nil {
			return err
		}
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNETWORK\tINTEGRATOR\tTRAJ\tEND\tSEED\tWHEN")
	for _, run := range runs {
		if network != "" && run.Network != network {
			continue
		}
		traj := fmt.Sprintf("%d/%d", run.Completed, run.Trajectories)
		if run.Canceled {
			traj += " (canceled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%d\t%s\n",
			shortID(run.ID), run.Network, run.Integrator, traj, run.EndTime, run.Seed,
			humanize.Time(run.Timestamp))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// loadRun accepts a full run id or a unique prefix of one.
func loadRun(id string) (*storage.RunMetadata, *trajectory.Store, error) {
	st := storage.New(dataDir)
	meta, traj, err := st.LoadTrajectories(id)
	if err == nil {
		return meta, traj, nil
	}
	if !os.IsNotExist(err) {
		return nil, nil, err
	}

	runs, listErr := st.List()
	if listErr != nil {
		return nil, nil, listErr
	}
	var match string
	for _, run := range runs {
		if strings.HasPrefix(run.ID, id) {
			if match != "" {
				return nil, nil, fmt.Errorf("run id %q is ambiguous", id)
			}
			match = run.ID
		}
	}
	if match == "" {
		return nil, nil, fmt.Errorf("run %q not found", id)
	}
	return st.LoadTrajectories(match)
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}

	if trajIndex < 0 {
		sum, err := analysis.Ensemble(traj)
		if err != nil {
			return err
		}
		fmt.Println(plotSummary(sum, fmt.Sprintf("%s: mean of %d trajectories", meta.Network, sum.N)))
		series := make([][]float64, len(sum.Species))
		for i := range series {
			series[i] = sum.MeanSeries(i)
		}
		return writeSVG(export.TimeSeriesSVG(sum.Timeline, sum.Species, series, 800, 400))
	}

	if trajIndex >= traj.NumTrajectories() {
		return fmt.Errorf("trajectory %d out of range (run has %d)", trajIndex, traj.NumTrajectories())
	}
	if !traj.Completed[trajIndex] {
		return fmt.Errorf("trajectory %d did not complete", trajIndex)
	}
	series := make([][]float64, traj.NumSpecies())
	for i := range series {
		series[i] = traj.Series(trajIndex, i)
	}
	fmt.Println(viz.PlotSeries(traj.Species, series, 70, 15, fmt.Sprintf("%s: trajectory %d", meta.Network, trajIndex)))
	return writeSVG(export.TimeSeriesSVG(traj.Timeline, traj.Species, series, 800, 400))
}

func writeSVG(doc string) error {
	if svgPath == "" {
		return nil
	}
	if err := os.WriteFile(svgPath, []byte(doc), 0644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", svgPath)
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}

	sum, err := analysis.Ensemble(traj)
	if err != nil {
		return err
	}
	fmt.Println(viz.RenderSummary(meta.Network, sum, meta.Metrics))

	idx := 0
	if species != "" {
		idx = indexOf(sum.Species, species)
		if idx < 0 {
			return fmt.Errorf("unknown species %q", species)
		}
	}
	name := sum.Species[idx]
	mean := sum.MeanSeries(idx)

	level := 0.0
	for _, v := range mean {
		level += v
	}
	level /= float64(len(mean))

	crossings := analysis.Crossings(sum.Timeline, mean, level)
	fmt.Printf("\n%s: mean level %.4g, %d upward crossings\n", name, level, len(crossings))
	if period := analysis.DominantPeriod(mean, traj.Increment); period > 0 {
		fmt.Printf("dominant period: %.4g\n", period)
	} else {
		fmt.Println("no dominant period")
	}

	ps := analysis.PowerSpectrum(mean)
	if len(ps) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(ps[1:],
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption(name+" power spectrum"),
		))
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if traj.NumSpecies() < 2 {
		return fmt.Errorf("run %s has a single species", shortID(meta.ID))
	}

	x, y := 0, 1
	if xSpecies != "" {
		if x = indexOf(traj.Species, xSpecies); x < 0 {
			return fmt.Errorf("unknown species %q", xSpecies)
		}
	}
	if ySpecies != "" {
		if y = indexOf(traj.Species, ySpecies); y < 0 {
			return fmt.Errorf("unknown species %q", ySpecies)
		}
	}
	if trajIndex >= 0 && trajIndex < traj.NumTrajectories() && !traj.Completed[trajIndex] {
		return fmt.Errorf("trajectory %d did not complete", trajIndex)
	}

	portrait, err := analysis.NewPhasePortrait(traj, trajIndex, x, y)
	if err != nil {
		return err
	}
	fmt.Println(viz.HeaderStyle.Render(fmt.Sprintf("%s vs %s (trajectory %d)", traj.Species[y], traj.Species[x], trajIndex)))
	fmt.Println(analysis.PhasePortraitToASCII(portrait, 60, 20))
	return writeSVG(export.PhaseSVG(portrait, 600, 600, "#00ff00"))
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if outPath == "" {
		return storage.WriteCSV(os.Stdout, traj)
	}
	if err := storage.ExportCSV(outPath, traj); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d trajectories to %s\n", traj.CompletedCount(), outPath)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if outPath == "" {
		return storage.ExportJSONStdout(*meta, traj)
	}
	if err := storage.ExportJSON(outPath, *meta, traj); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported run %s to %s\n", shortID(meta.ID), outPath)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NETWORK\tVARIANT\tSPECIES\tREACTIONS\tTRAJ\tEND")
	for _, name := range config.ListNetworks() {
		for _, variant := range config.ListPresets(name) {
			cfg := config.GetPreset(name, variant)
			species := make([]string, len(cfg.Model.Species))
			for i, sp := range cfg.Model.Species {
				species[i] = sp.Name
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%g\n",
				name, variant, strings.Join(species, ","), len(cfg.Model.Reactions),
				cfg.Trajectories, cfg.EndTime)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nintegrators: %s\n", strings.Join(experiment.NewRegistry().ListIntegrators(), ", "))
	return nil
}
