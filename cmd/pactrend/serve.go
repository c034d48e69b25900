package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recera/pactrend/internal/cache"
	"github.com/recera/pactrend/internal/config"
	"github.com/recera/pactrend/internal/dashboard"
	"github.com/recera/pactrend/internal/feed"
	"github.com/recera/pactrend/pkg/live"
)

func newServeCommand(g *globals) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard",
		Long: `Serve the machine list, the chart pages and the live sessions that
stream chart updates to the browser. The config file is watched and
reloaded while the server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(g, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Override server.host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	return cmd
}

func runServe(g *globals, host string, port int) error {
	watcher, err := config.NewWatcher(g.configPath, 0)
	if err != nil {
		return err
	}
	if err := watcher.UseEnv(os.LookupEnv); err != nil {
		return err
	}
	cfg := watcher.Current()

	var store *cache.Cache
	if !cfg.Cache.Disabled {
		store, err = cache.New(cfg.Cache.CacheOptions())
		if err != nil {
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

	bridge := live.NewSchedulerBridge()
	bridge.Start()
	defer bridge.Stop()

	app := dashboard.New(cfg, client, hub, bridge)
	defer app.Shutdown()
	watcher.OnChange(app.SetConfig)

	addr := cfg.Addr()
	if host != "" || port != 0 {
		addr = overrideAddr(cfg, host, port)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return watcher.Run(ctx)
	})
	group.Go(func() error {
		log.Printf("[Serve] Dashboard on http://%s (feed %s, poll %s)", addr, cfg.API.BaseURL, cfg.Poll.Interval)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Printf("[Serve] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func overrideAddr(cfg *config.Config, host string, port int) string {
	if host == "" {
		host = cfg.Server.Host
	}
	if port == 0 {
		port = cfg.Server.Port
	}
	return fmt.Sprintf("%s:%d", host, port)
}
