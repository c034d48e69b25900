package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/recera/pactrend/internal/cache"
	"github.com/recera/pactrend/internal/config"
)

func newCacheCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the snapshot cache",
		Long: `The snapshot cache keeps the last good batch of every trend so the
dashboard can draw before its first poll. These commands work on the
directory named by cache.dir.`,
	}

	action := func(use, short string, run func(c *cache.Cache, out io.Writer) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCache(g.cfg, func(c *cache.Cache) error {
					return run(c, cmd.OutOrStdout())
				})
			},
		}
	}

	cmd.AddCommand(
		action("list", "List cached snapshots", cacheList),
		action("stats", "Show cache usage", cacheStats),
		action("prune", "Drop expired snapshots", cachePrune),
		action("clear", "Drop every snapshot", cacheClear),
	)
	return cmd
}

func withCache(cfg *config.Config, fn func(c *cache.Cache) error) error {
	if cfg.Cache.Disabled {
		return fmt.Errorf("cache is disabled (cache.disabled)")
	}
	c, err := cache.New(cfg.Cache.CacheOptions())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func cacheList(c *cache.Cache, out io.Writer) error {
	entries := c.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(out, "cache is empty")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("TREND", "SAMPLES", "SIZE", "AGE", "READS")
	for _, e := range entries {
		t.Row(e.Key, strconv.Itoa(e.Samples), byteSize(e.Size),
			time.Since(e.Created).Round(time.Second).String(), strconv.Itoa(e.AccessCount))
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func cacheStats(c *cache.Cache, out io.Writer) error {
	s := c.GetStats()
	fmt.Fprintf(out, "entries:   %d\n", s.EntryCount)
	fmt.Fprintf(out, "size:      %s\n", byteSize(s.TotalSize))
	fmt.Fprintf(out, "evictions: %d\n", s.Evictions)
	return nil
}

func cachePrune(c *cache.Cache, out io.Writer) error {
	fmt.Fprintf(out, "%s pruned %d expired snapshots\n", okMark(), c.Prune())
	return nil
}

func cacheClear(c *cache.Cache, out io.Writer) error {
	n := c.GetStats().EntryCount
	if err := c.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s removed %d snapshots\n", okMark(), n)
	return nil
}

func okMark() string {
	return color.New(color.FgGreen, color.Bold).Sprint("✓")
}

func byteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
