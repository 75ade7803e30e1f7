// Package optim searches reaction rate grids for the setting that minimises
// a run metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/hybridsim/internal/config"
	"github.com/san-kum/hybridsim/internal/experiment"
)

var ErrNoPoints = errors.New("optim: empty grid")

// Point is one evaluated grid point.
type Point struct {
	Rates map[string]float64
	Value float64
}

// GridSearch evaluates every combination of candidate rates for the named
// reactions.
type GridSearch struct {
	reactions []string
	ranges    [][]float64
}

func NewGridSearch(reactions []string, ranges [][]float64) *GridSearch {
	return &GridSearch{reactions: reactions, ranges: ranges}
}

// Search runs base once per grid point with the point's rates substituted
// and returns every point together with the one whose metric is smallest.
// A grid point that fails to build or run aborts the search.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, reg *experiment.Registry, metricName string, logger *slog.Logger) ([]Point, Point, error) {
	if len(g.reactions) != len(g.ranges) {
		return nil, Point{}, fmt.Errorf("optim: %d reactions but %d ranges", len(g.reactions), len(g.ranges))
	}
	for i, r := range g.ranges {
		if len(r) == 0 {
			return nil, Point{}, fmt.Errorf("%w: no values for %q", ErrNoPoints, g.reactions[i])
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var points []Point
	best := Point{Value: math.Inf(1)}
	err := g.searchRecursive(ctx, 0, map[string]float64{}, func(rates map[string]float64) error {
		val, err := evaluate(ctx, base, reg, metricName, rates, logger)
		if err != nil {
			return err
		}
		p := Point{Rates: rates, Value: val}
		points = append(points, p)
		logger.Debug("grid point", "rates", rates, metricName, val)
		if val < best.Value || best.Rates == nil {
			best = p
		}
		return nil
	})
	if err != nil {
		return points, best, err
	}
	if len(points) == 0 {
		return nil, Point{}, ErrNoPoints
	}
	return points, best, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.reactions) {
		return visit(current)
	}

	name := g.reactions[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[name] = val
		if err := g.searchRecursive(ctx, depth+1, next, visit); err != nil {
			return err
		}
	}
	return nil
}

func evaluate(ctx context.Context, base *config.Config, reg *experiment.Registry, metricName string, rates map[string]float64, logger *slog.Logger) (float64, error) {
	cfg := base.Clone()
	for name, rate := range rates {
		if !setRate(&cfg.Model, name, rate) {
			return 0, fmt.Errorf("optim: model %q has no reaction %q", cfg.Model.Name, name)
		}
	}

	exp, err := experiment.New(cfg)
	if err != nil {
		return 0, err
	}
	if err := exp.Setup(reg, logger); err != nil {
		return 0, err
	}
	traj, err := exp.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("rates %v: %w", rates, err)
	}
	if traj.Canceled {
		return 0, context.Canceled
	}

	val, ok := exp.MetricValues()[metricName]
	if !ok {
		return 0, fmt.Errorf("optim: unknown metric %q", metricName)
	}
	return val, nil
}

func setRate(mc *config.ModelConfig, reaction string, rate float64) bool {
	for i := range mc.Reactions {
		if mc.Reactions[i].Name == reaction {
			mc.Reactions[i].Rate = rate
			return true
		}
	}
	return false
}
