package tui

import (
	"strings"

	"github.com/NimbleMarkets/ntcharts/canvas"
	"github.com/NimbleMarkets/ntcharts/canvas/graph"
	"github.com/charmbracelet/lipgloss"

	"github.com/recera/pactrend/pkg/trend/series"
)

// Style definitions
var (
	primaryColor = lipgloss.Color("#3b82f6")
	mutedColor   = lipgloss.Color("#94a3b8")
	gridColor    = lipgloss.Color("#475569")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtitleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	labelStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	lineStyle     = lipgloss.NewStyle().Foreground(primaryColor)
	gridStyle     = lipgloss.NewStyle().Foreground(gridColor)
	statusStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)

// View renders the whole screen
func (m *Model) View() string {
	if m.cols == 0 {
		return "\n  " + m.spinner.View() + " starting"
	}

	sc := m.chart.Scene()
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(m.subtitle))
	b.WriteString("\n")

	plot := m.plotLines(sc)
	labels := valueLabels(sc, m.rows)
	for r := 0; r < m.rows; r++ {
		b.WriteString(labelStyle.Render(padLeft(labels[r], labelWidth-1)))
		b.WriteString(" ")
		if r < len(plot) {
			b.WriteString(plot[r])
		}
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat(" ", labelWidth))
	b.WriteString(labelStyle.Render(timeAxis(sc, m.cols)))
	b.WriteString("\n")
	if !m.loaded {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(statusStyle.Render(m.statusLine(sc)))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// plotLines draws grid and series into a canvas and returns its rows
func (m *Model) plotLines(sc series.Scene) []string {
	c := canvas.New(m.cols, m.rows)
	w := float64(m.cols * cellWidth)
	h := float64(m.rows * cellHeight)

	grid := graph.NewBrailleGrid(m.cols, m.rows, 0, w, 0, h)
	for _, g := range sc.Grid {
		for x := sc.Plot.X0; x <= sc.Plot.X1; x += 2 * cellWidth {
			grid.Set(grid.GridPoint(canvas.Float64Point{X: x, Y: flip(g.Y, h)}))
		}
	}
	graph.DrawBraillePatterns(&c, canvas.Point{}, grid.BraillePatterns(), gridStyle)

	if !m.loaded || sc.Empty {
		msg := "no data"
		if !m.loaded {
			msg = "loading"
		}
		c.SetStringWithStyle(canvas.Point{X: max(0, (m.cols-len(msg))/2), Y: m.rows / 2}, msg, labelStyle)
		return strings.Split(c.View(), "\n")
	}

	line := graph.NewBrailleGrid(m.cols, m.rows, 0, w, 0, h)
	for i := 0; i+1 < len(sc.Points); i++ {
		a, b, ok := clipSegment(sc.Points[i], sc.Points[i+1], sc.Plot.X0, sc.Plot.X1)
		if !ok {
			continue
		}
		p1 := line.GridPoint(canvas.Float64Point{X: a.X, Y: flip(a.Y, h)})
		p2 := line.GridPoint(canvas.Float64Point{X: b.X, Y: flip(b.Y, h)})
		for _, p := range graph.GetLinePoints(p1, p2) {
			line.Set(p)
		}
	}
	graph.DrawBraillePatterns(&c, canvas.Point{}, line.BraillePatterns(), lineStyle)
	return strings.Split(c.View(), "\n")
}

// flip turns a y-down surface coordinate into the grid's y-up space,
// clamped to the surface
func flip(y, h float64) float64 {
	v := h - y
	if v < 0 {
		return 0
	}
	if v > h {
		return h
	}
	return v
}

// clipSegment cuts the segment a-b to the horizontal band [x0, x1]
func clipSegment(a, b series.Point, x0, x1 float64) (series.Point, series.Point, bool) {
	if a.X > b.X {
		a, b = b, a
	}
	if b.X < x0 || a.X > x1 {
		return a, b, false
	}
	at := func(x float64) series.Point {
		if b.X == a.X {
			return series.Point{X: x, Y: a.Y}
		}
		t := (x - a.X) / (b.X - a.X)
		return series.Point{X: x, Y: a.Y + t*(b.Y-a.Y)}
	}
	if a.X < x0 {
		a = at(x0)
	}
	if b.X > x1 {
		b = at(x1)
	}
	return a, b, true
}

// valueLabels places grid labels on the row their line falls in
func valueLabels(sc series.Scene, rows int) []string {
	labels := make([]string, rows)
	for _, g := range sc.Grid {
		r := int(g.Y / cellHeight)
		if r >= rows {
			r = rows - 1
		}
		if r < 0 {
			r = 0
		}
		labels[r] = g.Label
	}
	return labels
}

// timeAxis lays time labels along a row of cols cells, centred on their
// sample, pushed inside at the edges and skipped when they would overlap
func timeAxis(sc series.Scene, cols int) string {
	row := []rune(strings.Repeat(" ", cols))
	next := 0
	for _, l := range sc.TimeLabels {
		text := []rune(l.Text)
		if len(text) > cols {
			continue
		}
		start := int(l.X/cellWidth) - len(text)/2
		start = max(0, min(start, cols-len(text)))
		if start < next {
			continue
		}
		copy(row[start:], text)
		next = start + len(text) + 1
	}
	return strings.TrimRight(string(row), " ")
}

func padLeft(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}
