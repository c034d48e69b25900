package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recera/pactrend/pkg/trend/viewport"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func engine(t *testing.T, width, height float64) *viewport.Engine {
	t.Helper()
	e := viewport.New(viewport.Config{Padding: 40})
	require.NoError(t, e.SetDimensions(width, height))
	return e
}

func ramp(n int, step time.Duration, value func(i int) float64) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Timestamp: epoch.Add(time.Duration(i) * step), Value: value(i)}
	}
	return out
}

func TestRender_Scenario(t *testing.T) {
	e := engine(t, 600, 200)
	samples := []Sample{
		{Timestamp: epoch, Value: 0},
		{Timestamp: epoch.Add(time.Second), Value: 150},
		{Timestamp: epoch.Add(2 * time.Second), Value: 300},
	}

	sc, err := Render(samples, e, Options{Padding: 15, MaxValue: 300, Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, sc.Points, 3)

	wantY := []float64{185, 92.5, 0}
	wantX := []float64{40, 300, 560}
	for i, p := range sc.Points {
		assert.InDelta(t, wantY[i], p.Y, 1e-9)
		assert.InDelta(t, wantX[i], p.X, 1e-9)
	}
	assert.Equal(t, "M 40,185 L 300,92.5 L 560,0", sc.Path)
	assert.False(t, sc.Empty)
	assert.Equal(t, 300.0, sc.MaxValue)
	assert.Equal(t, Rect{X0: 40, Y0: 0, X1: 560, Y1: 185}, sc.Plot)
}

func TestRender_Grid(t *testing.T) {
	e := engine(t, 600, 200)
	samples := ramp(3, time.Minute, func(i int) float64 { return float64(i) * 100 })

	sc, err := Render(samples, e, Options{Padding: 15, MaxValue: 300})
	require.NoError(t, err)

	labels := make([]string, len(sc.Grid))
	for i, g := range sc.Grid {
		labels[i] = g.Label
	}
	assert.Equal(t, []string{"0", "100", "200", "300"}, labels)
	assert.InDelta(t, 185, sc.Grid[0].Y, 1e-9)
	assert.InDelta(t, 0, sc.Grid[3].Y, 1e-9)

	sc, err = Render(samples, e, Options{Padding: 15, MaxValue: 1, ValueStep: 0.25, Overflow: OverflowClamp})
	require.NoError(t, err)
	labels = labels[:0]
	for _, g := range sc.Grid {
		labels = append(labels, g.Label)
	}
	assert.Equal(t, []string{"0", "0.25", "0.5", "0.75", "1"}, labels)
}

func TestRender_EmptySeries(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		labels  int
	}{
		{name: "nil", samples: nil, labels: 0},
		{name: "single", samples: ramp(1, time.Second, func(int) float64 { return 42 }), labels: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := engine(t, 600, 200)
			sc, err := Render(tt.samples, e, Options{MaxValue: 100})
			assert.ErrorIs(t, err, ErrEmptySeries)
			assert.True(t, sc.Empty)
			assert.Empty(t, sc.Path)
			assert.Len(t, sc.TimeLabels, tt.labels)
			assert.NotEmpty(t, sc.Grid)
		})
	}
}

func TestRender_InvalidDimensions(t *testing.T) {
	e := viewport.New(viewport.Config{})
	sc, err := Render(ramp(5, time.Second, func(int) float64 { return 1 }), e, Options{})
	assert.ErrorIs(t, err, viewport.ErrInvalidDimensions)
	assert.True(t, sc.Empty)
	assert.Empty(t, sc.Points)
}

func TestRender_Overflow(t *testing.T) {
	samples := []Sample{
		{Timestamp: epoch, Value: -20},
		{Timestamp: epoch.Add(time.Second), Value: 120},
		{Timestamp: epoch.Add(2 * time.Second), Value: 420},
	}
	tests := []struct {
		name     string
		opts     Options
		wantMax  float64
		wantLast float64
		wantNeg  float64
	}{
		{
			name:     "extend grows axis and pins negatives to the baseline",
			opts:     Options{Padding: 20, MaxValue: 300, ValueStep: 50},
			wantMax:  450,
			wantLast: 180 - 420*180.0/450,
			wantNeg:  180,
		},
		{
			name:     "clamp pins to plot box",
			opts:     Options{Padding: 20, MaxValue: 300, ValueStep: 50, Overflow: OverflowClamp},
			wantMax:  300,
			wantLast: 0,
			wantNeg:  180,
		},
		{
			name:     "none draws outside",
			opts:     Options{Padding: 20, MaxValue: 300, ValueStep: 50, Overflow: OverflowNone},
			wantMax:  300,
			wantLast: 180 - 420*180.0/300,
			wantNeg:  180 + 20*180.0/300,
		},
		{
			name:     "derived from data",
			opts:     Options{Padding: 20},
			wantMax:  500,
			wantLast: 180 - 420*180.0/500,
			wantNeg:  180,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := engine(t, 600, 200)
			sc, err := Render(samples, e, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, sc.MaxValue)
			assert.InDelta(t, tt.wantNeg, sc.Points[0].Y, 1e-9)
			assert.InDelta(t, tt.wantLast, sc.Points[2].Y, 1e-9)
		})
	}
}

func TestRender_NonFiniteValuesDrawAtZero(t *testing.T) {
	e := engine(t, 600, 200)
	samples := ramp(3, time.Second, func(i int) float64 { return float64(i) })
	samples[1].Value = nanValue()

	sc, err := Render(samples, e, Options{Padding: 10, MaxValue: 10})
	require.NoError(t, err)
	assert.InDelta(t, 190, sc.Points[1].Y, 1e-9)
	assert.NotContains(t, sc.Path, "NaN")
}

func TestRender_LabelDecimation(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		zoom     float64
		interval int
	}{
		{name: "unit scale", count: 53, zoom: 1, interval: 6},
		{name: "zoomed in", count: 53, zoom: 2, interval: 3},
		{name: "fully zoomed", count: 53, zoom: 5, interval: 2},
		{name: "zoomed out", count: 53, zoom: 0.5, interval: 12},
		{name: "sparse", count: 4, zoom: 1, interval: 1},
		{name: "dense zoomed out", count: 200, zoom: 0.5, interval: 46},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := engine(t, 600, 200)
			require.NoError(t, e.ZoomBy(tt.zoom))
			samples := ramp(tt.count, time.Minute, func(i int) float64 { return float64(i) })

			sc, _ := Render(samples, e, Options{MinLabelSpacing: 60, Location: time.UTC})
			require.NotEmpty(t, sc.TimeLabels)

			last := sc.TimeLabels[len(sc.TimeLabels)-1]
			assert.Equal(t, tt.count-1, last.Index)

			// Regular labels keep their spacing; only the final one may crowd.
			regular := sc.TimeLabels[:len(sc.TimeLabels)-1]
			for i, l := range regular {
				assert.Zero(t, l.Index%tt.interval, "label %d off the interval", i)
				if i > 0 {
					gap := l.X - regular[i-1].X
					assert.GreaterOrEqual(t, gap, 60-1e-9, "labels %d and %d too close", i-1, i)
				}
			}
			assert.Equal(t, 0, sc.TimeLabels[0].Index)
			if tt.interval > 1 && len(sc.TimeLabels) > 2 {
				assert.Equal(t, tt.interval, sc.TimeLabels[1].Index-sc.TimeLabels[0].Index)
			}
		})
	}
}

func TestRender_LastLabelIsAppended(t *testing.T) {
	tests := []struct {
		name    string
		width   float64
		zoom    float64
		count   int
		spacing float64
		want    []int
	}{
		{name: "interval leaves a gap", width: 600, zoom: 1, count: 10, spacing: 200, want: []int{0, 4, 8, 9}},
		{name: "interval exceeds count", width: 100, zoom: 0.5, count: 2, spacing: 60, want: []int{0, 1}},
		{name: "last on the interval", width: 600, zoom: 1, count: 9, spacing: 200, want: []int{0, 4, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := engine(t, tt.width, 200)
			require.NoError(t, e.ZoomBy(tt.zoom))
			samples := ramp(tt.count, time.Minute, func(i int) float64 { return float64(i) })

			sc, err := Render(samples, e, Options{MinLabelSpacing: tt.spacing, Location: time.UTC})
			require.NoError(t, err)
			got := make([]int, len(sc.TimeLabels))
			for i, l := range sc.TimeLabels {
				got[i] = l.Index
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLabelInterval(t *testing.T) {
	tests := []struct {
		spacing, step float64
		want          int
	}{
		{spacing: 60, step: 10, want: 6},
		{spacing: 60, step: 7, want: 9},
		{spacing: 60, step: 100, want: 1},
		{spacing: 60, step: 0, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LabelInterval(tt.spacing, tt.step))
	}
}

func TestRender_TimeLabelPrecision(t *testing.T) {
	samples := []Sample{
		{Timestamp: time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC), Value: 1},
		{Timestamp: time.Date(2024, 3, 1, 14, 7, 31, 0, time.UTC), Value: 2},
	}
	tests := []struct {
		name string
		zoom float64
		want string
	}{
		{name: "overview", zoom: 1, want: "14:07"},
		{name: "at threshold", zoom: 3, want: "14:07"},
		{name: "zoomed in", zoom: 4, want: "14:07:31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := engine(t, 600, 200)
			require.NoError(t, e.ZoomBy(tt.zoom))
			sc, err := Render(samples, e, Options{MaxValue: 2, Location: time.UTC})
			require.NoError(t, err)
			last := sc.TimeLabels[len(sc.TimeLabels)-1]
			assert.Equal(t, tt.want, last.Text)
		})
	}
}

func TestRender_FollowsTransform(t *testing.T) {
	e := engine(t, 600, 200)
	samples := ramp(11, time.Second, func(i int) float64 { return 5 })

	require.NoError(t, e.ZoomAt(2, 300))
	e.PanBy(-40, e.Offset())
	sc, err := Render(samples, e, Options{MaxValue: 10})
	require.NoError(t, err)

	for i, p := range sc.Points {
		assert.InDelta(t, e.DataIndexToPixel(float64(i), 11), p.X, 1e-9)
	}
	assert.Equal(t, e.Scale(), sc.Scale)
	assert.Equal(t, e.Offset(), sc.Offset)
}

func TestFormatFloat(t *testing.T) {
	tests := map[float64]string{
		185:     "185",
		92.5:    "92.5",
		1.0 / 3: "0.33",
		-0.001:  "0",
		-12.75:  "-12.75",
		0:       "0",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatFloat(in), "FormatFloat(%v)", in)
	}
}

func TestParseOverflow(t *testing.T) {
	tests := []struct {
		in   string
		want Overflow
		ok   bool
	}{
		{in: "", want: OverflowExtend, ok: true},
		{in: "Clamp", want: OverflowClamp, ok: true},
		{in: " none ", want: OverflowNone, ok: true},
		{in: "wrap", want: OverflowExtend, ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseOverflow(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.NotEqual(t, "unknown", got.String())
		}
	}
}

func TestOrdered(t *testing.T) {
	s := ramp(4, time.Second, func(int) float64 { return 0 })
	assert.True(t, Ordered(s))
	assert.True(t, Ordered(nil))
	s[2].Timestamp = epoch.Add(-time.Hour)
	assert.False(t, Ordered(s))
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}
