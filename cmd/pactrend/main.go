package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/recera/pactrend/internal/config"
	"github.com/recera/pactrend/pkg/scheduler"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// globals holds the persistent flags and what they load
type globals struct {
	configPath string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "pactrend",
		Short: "pactrend - zoomable machine trend charts",
		Long: `pactrend serves live speed and OEE trend charts for packaging machines.
Charts pan and zoom in the browser or the terminal while the history
feed keeps them current.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", config.FileName, "Config file")
	flags.StringVar(&g.envFile, "env-file", ".env", "Environment file read before the config")
	flags.StringVar(&g.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand(g))
	rootCmd.AddCommand(newRenderCommand(g))
	rootCmd.AddCommand(newWatchCommand(g))
	rootCmd.AddCommand(newCacheCommand(g))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// load reads the env file, the config and PACTREND_* overrides, then
// installs the logger
func (g *globals) load() error {
	if err := loadEnvFile(g.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	logger, err := config.SetupLogging(os.Stderr, cfg.Log.Level)
	if err != nil {
		return err
	}
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		scheduler.SetDebugLog(debugFunc(logger))
	}

	g.cfg = cfg
	g.logger = logger
	return nil
}

// debugFunc adapts logger to the scheduler's print-style debug hook
func debugFunc(logger *slog.Logger) func(args ...interface{}) {
	return func(args ...interface{}) {
		logger.Debug(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
	}
}

// loadEnvFile sets variables from path without overriding the process
// environment. A missing file is fine.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config needed to print a version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pactrend %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		},
	}
}
