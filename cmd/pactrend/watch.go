package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/recera/pactrend/internal/cache"
	"github.com/recera/pactrend/internal/config"
	"github.com/recera/pactrend/internal/dashboard"
	"github.com/recera/pactrend/internal/feed"
	"github.com/recera/pactrend/internal/tui"
	"github.com/recera/pactrend/pkg/components/trendchart"
	"github.com/recera/pactrend/pkg/server"
)

func newWatchCommand(g *globals) *cobra.Command {
	var metric string

	cmd := &cobra.Command{
		Use:   "watch <machine>",
		Short: "Follow a machine trend in the terminal",
		Long: `Follow one trend in the terminal. The chart refreshes at the poll
interval; drag or use the arrow keys to pan and +/- or ctrl+wheel to zoom.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(g.cfg, args[0], metric)
		},
	}

	cmd.Flags().StringVarP(&metric, "metric", "m", config.MetricSpeed, "Metric to chart (speed, oee)")
	return cmd
}

func runWatch(cfg *config.Config, machine, metric string) error {
	if !server.ValidID(machine) {
		return fmt.Errorf("invalid machine id %q", machine)
	}
	cc, ok := cfg.Charts[metric]
	if !ok {
		return fmt.Errorf("%w: %q", feed.ErrUnknownMetric, metric)
	}

	// The alternate screen owns the terminal; logs would tear it.
	logFile, err := os.CreateTemp("", "pactrend-watch-*.log")
	if err != nil {
		return err
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	if _, err := config.SetupLogging(logFile, cfg.Log.Level); err != nil {
		return err
	}

	var store *cache.Cache
	if !cfg.Cache.Disabled {
		if store, err = cache.New(cfg.Cache.CacheOptions()); err != nil {
			return err
		}
		defer store.Close()
	}
	client, err := feed.NewClient(cfg.API, nil)
	if err != nil {
		return err
	}
	hub := feed.NewHub(client, store, cfg.Poll.Interval)
	defer hub.Close()

	chart := trendchart.New(tui.ChartOptions(trendchart.Options{
		ID:       dashboard.ChartID(machine, metric),
		Title:    cc.Title,
		Viewport: cc.ViewportConfig(),
		Series:   cc.SeriesOptions(),
		Logger:   slog.Default(),
	}))

	m := tui.New(tui.Options{
		Title:    cc.Title,
		Subtitle: "Machine " + machine,
		Chart:    chart,
		Source:   hub.Source(machine, metric),
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "log written to %s\n", logFile.Name())
	return nil
}
