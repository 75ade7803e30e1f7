// Package viz renders hybrid runs in the terminal.
//
//   - Static output: [PlotSeries] line charts and [RenderSummary] tables
//   - Live output: [WatchModel], a bubbletea program fed by a [Progress]
//     observer attached to the solver
//
// # Watching a run
//
//	progress := viz.NewProgress(256)
//	go func() {
//	    store, err := solver.Run(ctx, cfg)
//	    progress.Finish(store, err)
//	}()
//	tea.NewProgram(viz.NewWatch("decay", species, n, progress, cancel)).Run()
package viz
