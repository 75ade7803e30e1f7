package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/san-kum/hybridsim/internal/storage"
)

var (
	dataDir  string
	logLevel string

	configFile   string
	preset       string
	endTime      float64
	increment    float64
	trajectories int
	seed         int64
	integrator   string
	absTol       float64
	relTol       float64
	maxRetries   int
	workers      int
	stoichRates  bool
	showPlot     bool

	network   string
	trajIndex int
	species   string
	outPath   string
	xSpecies  string
	ySpecies  string
	svgPath   string

	sweepRates  []string
	sweepMetric string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "hybridsim",
		Short:         "hybrid stochastic/deterministic reaction network simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".hybridsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [network]",
		Short: "simulate a reaction network and save the run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&showPlot, "plot", false, "plot the ensemble mean after the run")

	watchCmd := &cobra.Command{
		Use:   "watch [network]",
		Short: "simulate with a live progress view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  watchSimulation,
	}
	addRunFlags(watchCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}
	listCmd.Flags().StringVar(&network, "network", "", "only runs of this network")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&trajIndex, "traj", -1, "trajectory to plot (-1 for the ensemble mean)")
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the plot to an svg file")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "ensemble statistics and oscillation analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&species, "species", "", "species for spectrum analysis (default first)")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "plot one species against another",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&xSpecies, "x", "", "species on the x axis (default first)")
	phaseCmd.Flags().StringVar(&ySpecies, "y", "", "species on the y axis (default second)")
	phaseCmd.Flags().IntVar(&trajIndex, "traj", 0, "trajectory")
	phaseCmd.Flags().StringVar(&svgPath, "svg", "", "also write the portrait to an svg file")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export trajectories as csv",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a run as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in networks, variants and integrators",
		RunE:  listPresets,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [network]",
		Short: "grid search reaction rates for the smallest metric value",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepRun,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepRates, "rate", nil, "reaction=v1,v2,... (repeatable)")
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "min_population", "metric to minimise")
	sweepCmd.MarkFlagRequired("rate")

	rootCmd.AddCommand(runCmd, watchCmd, sweepCmd, listCmd, plotCmd, analyzeCmd, phaseCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "run file (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset variant of the network")
	cmd.Flags().Float64Var(&endTime, "time", 10, "end time")
	cmd.Flags().Float64Var(&increment, "increment", 0.1, "output sampling interval")
	cmd.Flags().IntVar(&trajectories, "trajectories", 1, "number of trajectories")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed; trajectory i uses seed+i")
	cmd.Flags().StringVar(&integrator, "integrator", "rk45", "integrator (rk45, rk4, euler)")
	cmd.Flags().Float64Var(&absTol, "abs-tol", 1e-5, "absolute tolerance")
	cmd.Flags().Float64Var(&relTol, "rel-tol", 1e-5, "relative tolerance")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 32, "step halvings before a trajectory fails")
	cmd.Flags().IntVar(&workers, "workers", 1, "trajectories run in parallel")
	cmd.Flags().BoolVar(&stoichRates, "stoich-rates", false, "scale derivatives by stoichiometric coefficients")
}

func setupLogging(level string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
	return nil
}

// openStore opens the run directory store with its sqlite index attached.
func openStore(ctx context.Context) (*storage.Store, *storage.SQLiteIndex, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, nil, err
	}
	idx := storage.NewSQLiteIndex(filepath.Join(dataDir, "index.db"))
	if err := idx.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("open run index: %w", err)
	}
	st.AttachIndex(idx)
	return st, idx, nil
}
