// Package tui is the terminal front end of a trend chart. The same viewport
// engine and gesture recognizer as the browser chart sit behind it; the
// plot is drawn with braille cells, two surface pixels wide and four high.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/recera/pactrend/pkg/components/trendchart"
	"github.com/recera/pactrend/pkg/trend/gesture"
	"github.com/recera/pactrend/pkg/trend/series"
)

// Braille resolution of one terminal cell.
const (
	cellWidth  = 2
	cellHeight = 4
)

// Screen areas outside the plot.
const (
	labelWidth = 7 // value labels left of the plot
	headerRows = 2 // title, subtitle
	footerRows = 3 // time axis, status, help
	minCols    = 10
	minRows    = 3
)

// panStep is how far one arrow key moves the view, in cells
const panStep = 4

// Source delivers sample batches; Subscribe replays the latest one
type Source interface {
	Subscribe(fn func([]series.Sample)) (cancel func())
}

// KeyMap defines the chart shortcuts
type KeyMap struct {
	ZoomIn  key.Binding
	ZoomOut key.Binding
	Reset   key.Binding
	Left    key.Binding
	Right   key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var DefaultKeyMap = KeyMap{
	ZoomIn: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "zoom in"),
	),
	ZoomOut: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "zoom out"),
	),
	Reset: key.NewBinding(
		key.WithKeys("0"),
		key.WithHelp("0", "reset"),
	),
	Left: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "earlier"),
	),
	Right: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "later"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "q", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ZoomIn, k.ZoomOut, k.Reset, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ZoomIn, k.ZoomOut, k.Reset},
		{k.Left, k.Right},
		{k.Help, k.Quit},
	}
}

// Messages
type batchMsg []series.Sample

// Options configures the model
type Options struct {
	Title    string
	Subtitle string
	Chart    *trendchart.Chart
	// Source is optional; without it the chart shows what it already holds
	Source Source
}

// Model is the bubbletea model of one chart
type Model struct {
	chart    *trendchart.Chart
	title    string
	subtitle string

	source  Source
	batches chan []series.Sample
	cancel  func()

	width, height int
	cols, rows    int

	loaded  bool
	updated time.Time
	drag    bool
	// hover is the surface x under the mouse, negative when outside the plot
	hover float64

	keys    KeyMap
	help    help.Model
	spinner spinner.Model
}

// ChartOptions adapts browser chart options to terminal pixels: insets
// shrink to a cell and time labels sit closer together.
func ChartOptions(opts trendchart.Options) trendchart.Options {
	opts.Viewport.Padding = cellWidth
	opts.Series.Padding = 1
	opts.Series.TopPadding = 0
	opts.Series.MinLabelSpacing = 8 * cellWidth
	return opts
}

// New builds the model. The chart should be created with ChartOptions.
func New(opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	m := &Model{
		chart:    opts.Chart,
		title:    opts.Title,
		subtitle: opts.Subtitle,
		source:   opts.Source,
		keys:     DefaultKeyMap,
		help:     help.New(),
		spinner:  s,
		loaded:   opts.Chart.Samples() != nil,
		hover:    -1,
	}
	if opts.Source != nil {
		m.batches = make(chan []series.Sample, 1)
	}
	return m
}

// Init subscribes to the source and starts the spinner
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.source != nil {
		m.cancel = m.source.Subscribe(m.offer)
		cmds = append(cmds, m.waitForBatch())
	}
	return tea.Batch(cmds...)
}

// offer keeps only the newest undelivered batch
func (m *Model) offer(batch []series.Sample) {
	for {
		select {
		case m.batches <- batch:
			return
		default:
		}
		select {
		case <-m.batches:
		default:
		}
	}
}

func (m *Model) waitForBatch() tea.Cmd {
	ch := m.batches
	return func() tea.Msg {
		return batchMsg(<-ch)
	}
}

// Close drops the source subscription
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Update handles terminal and data messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case batchMsg:
		m.chart.SetSamples(msg)
		m.loaded = true
		m.updated = time.Now()
		return m, m.waitForBatch()

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case spinner.TickMsg:
		if m.loaded {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return tea.Quit
	case key.Matches(msg, m.keys.ZoomIn):
		m.chart.ZoomIn()
	case key.Matches(msg, m.keys.ZoomOut):
		m.chart.ZoomOut()
	case key.Matches(msg, m.keys.Reset):
		m.chart.Reset()
	case key.Matches(msg, m.keys.Left):
		// Earlier samples lie left, so the content moves right.
		m.chart.Pan(panStep * cellWidth)
	case key.Matches(msg, m.keys.Right):
		m.chart.Pan(-panStep * cellWidth)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize(m.width, m.height)
	}
	return nil
}

// handleMouse maps mouse input to pointer and wheel gestures. Drag pans;
// ctrl+wheel zooms like the browser chart.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	x, inside := m.surfaceX(msg.X, msg.Y)

	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if inside {
			m.drag = true
			m.chart.Handle(gesture.Event{Kind: gesture.PointerDown, X: x})
		}
	case msg.Action == tea.MouseActionMotion && m.drag:
		m.chart.Handle(gesture.Event{Kind: gesture.PointerMove, X: x})
	case msg.Action == tea.MouseActionMotion:
		m.hover = -1
		if inside {
			m.hover = x
		}
	case msg.Action == tea.MouseActionRelease && m.drag:
		m.drag = false
		m.chart.Handle(gesture.Event{Kind: gesture.PointerUp, X: x})
	case msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown:
		if !inside {
			return
		}
		delta := -1.0
		if msg.Button == tea.MouseButtonWheelDown {
			delta = 1
		}
		m.chart.Handle(gesture.Event{Kind: gesture.Wheel, DeltaY: delta, Modifier: msg.Ctrl})
	}
}

// surfaceX converts a terminal column to surface pixels at the cell centre
func (m *Model) surfaceX(col, row int) (float64, bool) {
	c := col - labelWidth
	r := row - headerRows
	inside := c >= 0 && c < m.cols && r >= 0 && r < m.rows
	return float64(c)*cellWidth + cellWidth/2, inside
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.help.Width = width

	footer := footerRows
	if m.help.ShowAll {
		footer += len(m.keys.FullHelp()[0]) - 1
	}
	m.cols = max(minCols, width-labelWidth)
	m.rows = max(minRows, height-headerRows-footer)
	m.chart.Resize(float64(m.cols*cellWidth), float64(m.rows*cellHeight))
}

// Size returns the plot size in cells
func (m *Model) Size() (cols, rows int) { return m.cols, m.rows }

func (m *Model) statusLine(sc series.Scene) string {
	status := fmt.Sprintf("zoom %.2fx", sc.Scale)
	if n := len(m.chart.Samples()); n > 0 {
		status = fmt.Sprintf("%d samples  %s", n, status)
	}
	if !m.updated.IsZero() {
		status += "  updated " + m.updated.Format("15:04:05")
	}
	if st := m.chart.GestureState(); st != "idle" {
		status += "  " + st
	} else if m.hover >= 0 {
		if readout, ok := m.chart.Readout(m.hover); ok {
			status += "  " + readout
		}
	}
	return status
}
