// Package export renders trajectories as standalone SVG documents.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/hybridsim/internal/analysis"
)

var palette = []string{"#00bcd4", "#ffc107", "#4caf50", "#e040fb", "#f44336", "#2196f3"}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func (b *bounds) add(x, y float64) {
	b.minX = math.Min(b.minX, x)
	b.maxX = math.Max(b.maxX, x)
	b.minY = math.Min(b.minY, y)
	b.maxY = math.Max(b.maxY, y)
}

// pad widens the box by 10% on every side and gives flat ranges a unit span.
func (b *bounds) pad() {
	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	b.minX -= rangeX * 0.1
	b.maxX += rangeX * 0.1
	b.minY -= rangeY * 0.1
	b.maxY += rangeY * 0.1
}

func (b bounds) project(x, y float64, width, height int) (float64, float64) {
	px := (x - b.minX) / (b.maxX - b.minX) * float64(width)
	py := float64(height) - (y-b.minY)/(b.maxY-b.minY)*float64(height)
	return px, py
}

func newBounds() bounds {
	return bounds{
		minX: math.Inf(1), maxX: math.Inf(-1),
		minY: math.Inf(1), maxY: math.Inf(-1),
	}
}

func header(sb *strings.Builder, width, height int) {
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))
}

func writePath(sb *strings.Builder, b bounds, xs, ys []float64, width, height int, color string) {
	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="`, color))
	for i := range xs {
		x, y := b.project(xs[i], ys[i], width, height)
		if i == 0 {
			sb.WriteString(fmt.Sprintf("M%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}
	sb.WriteString("\"/>\n")
}

// TimeSeriesSVG draws one line per species against the shared timeline,
// with a legend in the top left corner. Series shorter than the timeline
// are drawn as far as they go.
func TimeSeriesSVG(timeline []float64, names []string, series [][]float64, width, height int) string {
	if len(timeline) < 2 || len(series) == 0 {
		return ""
	}

	b := newBounds()
	for _, s := range series {
		for i, v := range s[:min(len(s), len(timeline))] {
			b.add(timeline[i], v)
		}
	}
	b.pad()

	var sb strings.Builder
	header(&sb, width, height)
	for k, s := range series {
		n := min(len(s), len(timeline))
		if n < 2 {
			continue
		}
		writePath(&sb, b, timeline[:n], s[:n], width, height, palette[k%len(palette)])
	}
	for k, name := range names {
		sb.WriteString(fmt.Sprintf(`<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16+14*k, palette[k%len(palette)], escape(name)))
	}
	sb.WriteString("</svg>")
	return sb.String()
}

// PhaseSVG draws a phase portrait as a single path.
func PhaseSVG(portrait *analysis.PhasePortrait2D, width, height int, strokeColor string) string {
	if portrait == nil || len(portrait.Points) < 2 {
		return ""
	}

	b := newBounds()
	xs := make([]float64, len(portrait.Points))
	ys := make([]float64, len(portrait.Points))
	for i, p := range portrait.Points {
		xs[i], ys[i] = p.X, p.Y
		b.add(p.X, p.Y)
	}
	b.pad()

	var sb strings.Builder
	header(&sb, width, height)
	writePath(&sb, b, xs, ys, width, height, strokeColor)
	sb.WriteString("</svg>")
	return sb.String()
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escape(s string) string { return escaper.Replace(s) }
