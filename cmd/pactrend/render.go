package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/recera/pactrend/internal/config"
	"github.com/recera/pactrend/internal/dashboard"
	"github.com/recera/pactrend/internal/feed"
	"github.com/recera/pactrend/pkg/components"
	"github.com/recera/pactrend/pkg/renderer/html"
	"github.com/recera/pactrend/pkg/server"
	"github.com/recera/pactrend/pkg/trend/series"
	"github.com/recera/pactrend/pkg/vango/vdom"
	"github.com/recera/pactrend/pkg/vex/builder"
)

type renderOptions struct {
	metric string
	file   string
	output string
	width  float64
	height float64
	zoom   float64
	focal  float64
	pan    float64
}

func newRenderCommand(g *globals) *cobra.Command {
	opts := renderOptions{}

	cmd := &cobra.Command{
		Use:   "render [machine]",
		Short: "Render a trend chart to SVG",
		Long: `Render one trend to a standalone SVG file. Samples come from the
history API for the given machine, or from a JSON file holding either an
array of {timestamp, value} objects or an /api/machines/{id}/{metric}
response. With --metric all both histories of the machine are fetched at
once and --output names a directory.`,
		Example: `  pactrend render 7 --metric speed -o speed-7.svg
  pactrend render 7 --metric all -o charts/
  pactrend render --file history.json --zoom 4 --pan -300`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			machine := ""
			if len(args) == 1 {
				machine = args[0]
			}
			return runRender(cmd.Context(), g.cfg, machine, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.metric, "metric", "m", config.MetricSpeed, "Metric to chart (speed, oee, all)")
	flags.StringVarP(&opts.file, "file", "f", "", "Read samples from a JSON file instead of the API")
	flags.StringVarP(&opts.output, "output", "o", "", "Output file (default stdout)")
	flags.Float64Var(&opts.width, "width", 0, "Surface width in px")
	flags.Float64Var(&opts.height, "height", 0, "Surface height in px (default from config)")
	flags.Float64Var(&opts.zoom, "zoom", 1, "Zoom factor")
	flags.Float64Var(&opts.focal, "focal", -1, "Zoom focal x in px (default surface centre)")
	flags.Float64Var(&opts.pan, "pan", 0, "Pan by px after zooming; negative shows later samples")
	return cmd
}

// metricAll renders every metric of a machine from one concurrent fetch
const metricAll = "all"

// fetchTimeout bounds the API calls of one render
const fetchTimeout = 30 * time.Second

func runRender(ctx context.Context, cfg *config.Config, machine string, opts renderOptions, stdout, stderr io.Writer) error {
	if machine == "" && opts.file == "" {
		return fmt.Errorf("render needs a machine id or --file")
	}
	if machine != "" && !server.ValidID(machine) {
		return fmt.Errorf("invalid machine id %q", machine)
	}
	if opts.metric == metricAll {
		return renderAll(ctx, cfg, machine, opts, stderr)
	}

	samples, err := loadSamples(ctx, cfg, machine, opts)
	if err != nil {
		return err
	}

	id := machine
	if id == "" {
		id = "file"
	}
	svg, sc, err := renderSVG(cfg, id, opts.metric, samples, opts)
	if err != nil {
		return err
	}

	target := opts.output
	if target != "" {
		if err := os.WriteFile(target, svg, 0644); err != nil {
			return err
		}
	} else {
		target = "stdout"
		if _, err := stdout.Write(svg); err != nil {
			return err
		}
	}
	report(stderr, cfg.Charts[opts.metric].Title, len(samples), sc, target)
	return nil
}

// renderAll writes one SVG per metric into the --output directory, named
// after the chart id
func renderAll(ctx context.Context, cfg *config.Config, machine string, opts renderOptions, stderr io.Writer) error {
	if machine == "" {
		return fmt.Errorf("--metric %s needs a machine id", metricAll)
	}
	client, err := feed.NewClient(cfg.API, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(orBackground(ctx), fetchTimeout)
	defer cancel()
	speed, oee, err := client.FetchAll(ctx, machine)
	if err != nil {
		return err
	}

	dir := opts.output
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	batches := []struct {
		metric  string
		samples []series.Sample
	}{
		{config.MetricSpeed, speed},
		{config.MetricOEE, oee},
	}
	for _, b := range batches {
		svg, sc, err := renderSVG(cfg, machine, b.metric, b.samples, opts)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, dashboard.ChartID(machine, b.metric)+".svg")
		if err := os.WriteFile(target, svg, 0644); err != nil {
			return err
		}
		report(stderr, cfg.Charts[b.metric].Title, len(b.samples), sc, target)
	}
	return nil
}

// renderSVG lays out one chart under the size and view flags
func renderSVG(cfg *config.Config, machine, metric string, samples []series.Sample, opts renderOptions) ([]byte, series.Scene, error) {
	chart, err := dashboard.NewChart(cfg, machine, metric)
	if err != nil {
		return nil, series.Scene{}, err
	}
	chart.SetSamples(samples)

	if opts.width > 0 || opts.height > 0 {
		sc := chart.Scene()
		w, h := sc.Width, sc.Height
		if opts.width > 0 {
			w = opts.width
		}
		if opts.height > 0 {
			h = opts.height
		}
		if !chart.Resize(w, h) {
			return nil, series.Scene{}, fmt.Errorf("invalid size %gx%g", w, h)
		}
	}
	if opts.zoom != 1 {
		focal := opts.focal
		if focal < 0 {
			focal = chart.Scene().Width / 2
		}
		if !chart.ZoomAt(opts.zoom, focal) {
			return nil, series.Scene{}, fmt.Errorf("invalid zoom %g", opts.zoom)
		}
	}
	if opts.pan != 0 {
		chart.Pan(opts.pan)
	}

	svg, err := standaloneSVG(chart.Render())
	if err != nil {
		return nil, series.Scene{}, err
	}
	return svg, chart.Scene(), nil
}

func report(w io.Writer, title string, count int, sc series.Scene, target string) {
	summary := color.New(color.FgGreen, color.Bold)
	detail := color.New(color.FgCyan)
	summary.Fprintf(w, "✓ %s ", title)
	detail.Fprintf(w, "%d samples, zoom %.2fx, offset %.0fpx", count, sc.Scale, sc.Offset)
	fmt.Fprintf(w, " -> %s\n", target)
}

// loadSamples reads the batch to chart
func loadSamples(ctx context.Context, cfg *config.Config, machine string, opts renderOptions) ([]series.Sample, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, err
		}
		return decodeSamples(data)
	}

	client, err := feed.NewClient(cfg.API, nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(orBackground(ctx), fetchTimeout)
	defer cancel()
	return client.FetchHistory(ctx, machine, opts.metric)
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// decodeSamples accepts a bare sample array or an API samples response
func decodeSamples(data []byte) ([]series.Sample, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var samples []series.Sample
		if err := json.Unmarshal(data, &samples); err != nil {
			return nil, fmt.Errorf("decode samples: %w", err)
		}
		return samples, nil
	}

	var resp struct {
		Samples []series.Sample `json:"samples"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	if resp.Samples == nil {
		return nil, fmt.Errorf("decode samples: no \"samples\" field")
	}
	return resp.Samples, nil
}

// standaloneSVG cuts the svg out of the chart card and embeds the theme
// stylesheet so it renders outside the dashboard
func standaloneSVG(card *vdom.VNode) ([]byte, error) {
	svg := card.Find(func(n *vdom.VNode) bool { return n.Tag == "svg" })
	if svg == nil {
		return nil, fmt.Errorf("chart has no svg")
	}
	style := builder.El("style").Text(components.Theme.CSS).Build()
	svg.Kids = append([]vdom.VNode{*style}, svg.Kids...)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	if err := html.RenderTo(&buf, svg); err != nil {
		return nil, err
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}
