// Package series turns a time-ordered sample batch plus the current viewport
// transform into a drawable description: a polyline, value grid lines and a
// decimated set of time-axis labels.
//
// Render is a pure function. It never mutates the samples or the view.
package series

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/recera/pactrend/pkg/trend/viewport"
)

// ErrEmptySeries is returned alongside a valid, pathless Scene when fewer
// than two samples are available. Hosts treat it as "nothing to draw".
var ErrEmptySeries = errors.New("series: fewer than two samples")

// Sample is one (timestamp, value) reading.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Ordered reports whether samples are non-decreasing in timestamp.
func Ordered(samples []Sample) bool {
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// Overflow decides what happens to values outside [0, MaxValue].
type Overflow uint8

const (
	// OverflowExtend grows the value axis to the next ValueStep multiple that
	// fits the largest sample. The axis never extends below zero, so negative
	// values are drawn on the baseline.
	OverflowExtend Overflow = iota
	// OverflowClamp pins values to the axis range.
	OverflowClamp
	// OverflowNone draws values as given, possibly outside the plot box.
	OverflowNone
)

func (o Overflow) String() string {
	switch o {
	case OverflowExtend:
		return "extend"
	case OverflowClamp:
		return "clamp"
	case OverflowNone:
		return "none"
	}
	return "unknown"
}

// ParseOverflow maps a config string to an Overflow policy.
func ParseOverflow(s string) (Overflow, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "extend":
		return OverflowExtend, true
	case "clamp":
		return OverflowClamp, true
	case "none":
		return OverflowNone, true
	}
	return OverflowExtend, false
}

// Options configures a render. Zero fields take defaults.
type Options struct {
	// Padding is the bottom inset of the plot box in pixels.
	Padding float64
	// TopPadding is the top inset. Zero lets the maximum value touch the top edge.
	TopPadding float64
	// MaxValue is the nominal top of the value axis. Zero or negative derives
	// it from the data.
	MaxValue float64
	// ValueStep is the grid spacing. Zero picks a 1-2-5 step giving about five lines.
	ValueStep float64
	// MinLabelSpacing is the minimum on-screen distance between time labels.
	MinLabelSpacing float64
	// PreciseAbove switches time labels to seconds precision when the scale
	// exceeds it.
	PreciseAbove float64
	Location     *time.Location
	Overflow     Overflow
	Language     language.Tag
}

const (
	DefaultPadding         = 40
	DefaultMinLabelSpacing = 60
	DefaultPreciseAbove    = 3
)

func (o Options) withDefaults() Options {
	if o.Padding <= 0 {
		o.Padding = DefaultPadding
	}
	if o.TopPadding < 0 {
		o.TopPadding = 0
	}
	if o.MinLabelSpacing <= 0 {
		o.MinLabelSpacing = DefaultMinLabelSpacing
	}
	if o.PreciseAbove <= 0 {
		o.PreciseAbove = DefaultPreciseAbove
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Language == language.Und {
		o.Language = language.English
	}
	return o
}

// View is the read side of the viewport engine the renderer needs.
type View interface {
	Transform() viewport.Transform
	Dimensions() viewport.Dimensions
	XStep(dataCount int) float64
	DataIndexToPixel(index float64, dataCount int) float64
}

// Point is one sample mapped to screen space.
type Point struct {
	Index int
	X, Y  float64
	Sample
}

// GridLine is a horizontal value level.
type GridLine struct {
	Value float64
	Y     float64
	Label string
}

// TimeLabel is a time-axis label anchored at a sample.
type TimeLabel struct {
	Index int
	X     float64
	Text  string
}

// Rect is the plot box.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Scene is the render description consumed by SVG and terminal frontends.
type Scene struct {
	Width, Height float64
	MaxValue      float64
	Scale         float64
	Offset        float64
	Plot          Rect
	Points        []Point
	Path          string
	Grid          []GridLine
	TimeLabels    []TimeLabel
	// Empty is set when there is no polyline to draw.
	Empty bool
}

// Render builds the scene for samples under the view's current transform.
// The returned error is ErrEmptySeries or viewport.ErrInvalidDimensions; in
// both cases the Scene is still safe to draw.
func Render(samples []Sample, view View, opts Options) (Scene, error) {
	opts = opts.withDefaults()
	dims := view.Dimensions()
	tr := view.Transform()

	sc := Scene{
		Width:  dims.Width,
		Height: dims.Height,
		Scale:  tr.Scale,
		Offset: tr.Offset,
		Empty:  true,
	}
	if !dims.Valid() {
		return sc, viewport.ErrInvalidDimensions
	}

	axisMax, step := axis(samples, opts)
	sc.MaxValue = axisMax

	bottom := dims.Height - opts.Padding
	top := opts.TopPadding
	plotH := bottom - top
	if plotH < 0 {
		plotH = 0
	}
	yOf := func(v float64) float64 {
		return bottom - v*plotH/axisMax
	}

	padX := view.DataIndexToPixel(0, 0) - tr.Offset
	sc.Plot = Rect{X0: padX, Y0: top, X1: dims.Width - padX, Y1: bottom}

	sc.Grid = grid(axisMax, step, yOf, message.NewPrinter(opts.Language))

	n := len(samples)
	sc.Points = make([]Point, n)
	for i, s := range samples {
		v := s.Value
		if !finite(v) {
			v = 0
		}
		switch opts.Overflow {
		case OverflowExtend:
			v = math.Max(v, 0)
		case OverflowClamp:
			v = math.Max(0, math.Min(axisMax, v))
		}
		sc.Points[i] = Point{
			Index:  i,
			X:      view.DataIndexToPixel(float64(i), n),
			Y:      yOf(v),
			Sample: s,
		}
	}
	sc.TimeLabels = timeLabels(sc.Points, view.XStep(n)*tr.Scale, opts, tr.Scale)

	if n < 2 {
		return sc, ErrEmptySeries
	}
	sc.Path = path(sc.Points)
	sc.Empty = false
	return sc, nil
}

// axis resolves the effective axis maximum and grid step.
func axis(samples []Sample, opts Options) (top, step float64) {
	peak := 0.0
	for _, s := range samples {
		if finite(s.Value) && s.Value > peak {
			peak = s.Value
		}
	}

	derived := !finite(opts.MaxValue) || opts.MaxValue <= 0
	top = opts.MaxValue
	if derived {
		top = peak
	}
	if top <= 0 {
		top = 1
	}

	step = opts.ValueStep
	if !finite(step) || step <= 0 {
		step = niceStep(top / 5)
	}

	if derived || (opts.Overflow == OverflowExtend && peak > top) {
		top = math.Max(top, math.Ceil(math.Max(peak, top)/step-1e-9)*step)
	}
	return top, step
}

// niceStep rounds raw up to 1, 2 or 5 times a power of ten.
func niceStep(raw float64) float64 {
	if raw <= 0 || !finite(raw) {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if raw <= m*mag {
			return m * mag
		}
	}
	return 10 * mag
}

func grid(top, step float64, yOf func(float64) float64, p *message.Printer) []GridLine {
	count := int(math.Floor(top/step+1e-9)) + 1
	lines := make([]GridLine, 0, count)
	for i := 0; i < count; i++ {
		v := float64(i) * step
		lines = append(lines, GridLine{
			Value: v,
			Y:     yOf(v),
			Label: p.Sprint(number.Decimal(v, number.MaxFractionDigits(2))),
		})
	}
	return lines
}

// LabelInterval returns how many indices apart time labels are placed so that
// adjacent labels sit at least minSpacing pixels apart on screen.
func LabelInterval(minSpacing, scaledStep float64) int {
	if scaledStep <= 0 || !finite(scaledStep) {
		return 1
	}
	k := int(math.Ceil(minSpacing/scaledStep - 1e-9))
	if k < 1 {
		k = 1
	}
	return k
}

// TimeFormat returns the label layout for a scale: seconds once the scale
// exceeds preciseAbove, minutes otherwise.
func TimeFormat(scale, preciseAbove float64) string {
	if scale > preciseAbove {
		return "15:04:05"
	}
	return "15:04"
}

func timeLabels(points []Point, scaledStep float64, opts Options, scale float64) []TimeLabel {
	n := len(points)
	if n == 0 {
		return nil
	}
	interval := LabelInterval(opts.MinLabelSpacing, scaledStep)
	layout := TimeFormat(scale, opts.PreciseAbove)

	idx := make([]int, 0, n/interval+2)
	for i := 0; i < n; i += interval {
		idx = append(idx, i)
	}
	// The final sample is always labelled, even when it crowds the regular one before it.
	if last := n - 1; idx[len(idx)-1] != last {
		idx = append(idx, last)
	}

	labels := make([]TimeLabel, len(idx))
	for j, i := range idx {
		labels[j] = TimeLabel{
			Index: i,
			X:     points[i].X,
			Text:  points[i].Timestamp.In(opts.Location).Format(layout),
		}
	}
	return labels
}

func path(points []Point) string {
	var b strings.Builder
	b.Grow(len(points) * 16)
	for i, p := range points {
		if i == 0 {
			b.WriteString("M ")
		} else {
			b.WriteString(" L ")
		}
		b.WriteString(FormatFloat(p.X))
		b.WriteByte(',')
		b.WriteString(FormatFloat(p.Y))
	}
	return b.String()
}

// FormatFloat prints v with at most two decimals and no trailing zeros.
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
