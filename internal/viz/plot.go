package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/hybridsim/internal/analysis"
)

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Cyan,
	asciigraph.Yellow,
	asciigraph.Green,
	asciigraph.Magenta,
	asciigraph.Red,
	asciigraph.Blue,
}

// PlotSeries draws one line per named series on a shared axis.
func PlotSeries(names []string, series [][]float64, width, height int, caption string) string {
	if len(series) == 0 {
		return ""
	}

	colors := make([]asciigraph.AnsiColor, len(series))
	legend := make([]string, len(series))
	for i := range series {
		colors[i] = seriesColors[i%len(seriesColors)]
		name := fmt.Sprintf("s%d", i)
		if i < len(names) {
			name = names[i]
		}
		legend[i] = fmt.Sprintf("%s%s%s", colors[i], name, asciigraph.Default)
	}

	graph := asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(caption),
	)
	return graph + "\n" + strings.Join(legend, "  ")
}

// RenderSummary tabulates the final ensemble mean and spread of every
// species together with run metrics.
func RenderSummary(title string, sum *analysis.Summary, metrics map[string]float64) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(title))
	b.WriteString("\n")

	mean, sd := sum.Final()
	nameWidth := 7
	for _, name := range sum.Species {
		nameWidth = max(nameWidth, len(name))
	}
	label := MetricLabel.Width(nameWidth + 2)

	b.WriteString(Subtle.Render(fmt.Sprintf("t=%g  n=%d", sum.Timeline[len(sum.Timeline)-1], sum.N)))
	b.WriteString("\n")
	for i, name := range sum.Species {
		b.WriteString(label.Render(name))
		b.WriteString(MetricValue.Render(fmt.Sprintf("%12.4f", mean[i])))
		b.WriteString(Subtle.Render(fmt.Sprintf(" ± %.4f", sd[i])))
		b.WriteString("\n")
	}

	if len(metrics) > 0 {
		b.WriteString(Separator(nameWidth + 28))
		b.WriteString("\n")
		for _, name := range sortedKeys(metrics) {
			b.WriteString(label.Render(name))
			b.WriteString(MetricValue.Render(fmt.Sprintf("%12.4g", metrics[name])))
			b.WriteString("\n")
		}
	}

	return Panel.Render(strings.TrimRight(b.String(), "\n"))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
