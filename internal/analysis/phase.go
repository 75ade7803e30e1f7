package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/hybridsim/internal/trajectory"
)

type Point struct{ X, Y float64 }

// PhasePortrait2D is one trajectory plotted as species Y against species X.
type PhasePortrait2D struct {
	XIndex, YIndex int
	Points         []Point
}

// NewPhasePortrait collects the samples of trajectory traj as points.
func NewPhasePortrait(s *trajectory.Store, traj, xIdx, yIdx int) (*PhasePortrait2D, error) {
	if traj < 0 || traj >= s.NumTrajectories() {
		return nil, fmt.Errorf("analysis: trajectory %d out of range", traj)
	}
	if xIdx < 0 || xIdx >= s.NumSpecies() || yIdx < 0 || yIdx >= s.NumSpecies() {
		return nil, fmt.Errorf("analysis: species index out of range (%d, %d)", xIdx, yIdx)
	}

	portrait := &PhasePortrait2D{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]Point, s.NumSamples()),
	}
	for i := range portrait.Points {
		x := s.Sample(traj, i)
		portrait.Points[i] = Point{X: x[xIdx], Y: x[yIdx]}
	}
	return portrait, nil
}

// PhasePortraitToASCII renders the portrait on a width x height grid with
// 10% padding on every side. Axes are drawn where zero is visible.
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 {
		return ""
	}

	minX, maxX := portrait.Points[0].X, portrait.Points[0].X
	minY, maxY := portrait.Points[0].Y, portrait.Points[0].Y

	for _, p := range portrait.Points {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	for _, p := range portrait.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))

		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '*'
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Crossings returns the interpolated times at which series rises through
// threshold.
func Crossings(timeline, series []float64, threshold float64) []float64 {
	var out []float64
	for i := 1; i < len(series) && i < len(timeline); i++ {
		prev, cur := series[i-1], series[i]
		if prev < threshold && cur >= threshold {
			frac := (threshold - prev) / (cur - prev)
			out = append(out, timeline[i-1]+frac*(timeline[i]-timeline[i-1]))
		}
	}
	return out
}
