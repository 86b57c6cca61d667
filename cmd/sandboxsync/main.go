package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/sandboxsync/internal/config"
	"github.com/schaermu/sandboxsync/internal/faults"
	"github.com/schaermu/sandboxsync/internal/metrics"
	"github.com/schaermu/sandboxsync/internal/poller"
	"github.com/schaermu/sandboxsync/internal/sandbox"
	"github.com/schaermu/sandboxsync/internal/session"
	"github.com/schaermu/sandboxsync/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
	jsonOut   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(faults.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "sandboxsync",
	Short: "Keep Integrity sandboxes checked out and in sync",
	Long: `sandboxsync reconciles a local sandbox directory against the sandbox registry of
an Integrity server, then resyncs its members and writes a change log.

It can run as a oneshot checkout on a build agent or as a long-running daemon
that polls the server for member changes and accepts signed sync triggers.`,
	SilenceUsage: true,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Reconcile the sandbox and resync its content",
	Long: `Checkout makes sure the configured directory holds a sandbox of the configured
project, variant or revision. A matching sandbox is reused, a conflicting one is
dropped and recreated. The sandbox is then resynced with the configured policy
and the changes are written to the change log.`,
	RunE: runCheckout,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the polling daemon",
	Long: `Serve performs an initial checkout, then polls the server for member changes
every poll interval and checks out again when something changed. POST /trigger
with a signed body forces a checkout. /healthz and /metrics are served as well.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "sandboxsync %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/sandboxsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	checkoutCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	changesCmd.Flags().BoolVar(&jsonOut, "json", false, "print the change log as JSON")

	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(terminateCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runCheckout(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	client, err := newSandboxClient(cfg, nil, logger)
	if err != nil {
		return err
	}

	engine := sync.NewEngine(cfg, client, nil, logger, dryRun)

	logger.Info("starting checkout operation")
	res, err := engine.Run(ctx)
	if err != nil {
		logger.Error("checkout failed", "error", err)
		return err
	}

	if res.DryRun {
		action := "reconcile"
		if res.Reused {
			action = "reuse"
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s pending=%t\n", action, res.Dir, res.Pending)
		return nil
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s changes=%d\n", res.Dir, len(res.Changes))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if !cfg.Serve.Enabled {
		return faults.New(faults.Config, "serve.enabled is false")
	}

	recorder := metrics.NewRecorder()
	client, err := newSandboxClient(cfg, recorder, logger)
	if err != nil {
		return err
	}

	engine := sync.NewEngine(cfg, client, recorder, logger, false)
	server, err := poller.NewServer(cfg, engine, recorder, logger)
	if err != nil {
		return faults.Wrap(faults.Config, err, "failed to create server")
	}

	if err := server.Start(ctx); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}

	// Best effort shutdown of the local client
	client.Terminate(context.Background())
	return nil
}

func newSandboxClient(cfg *config.Config, recorder *metrics.Recorder, logger *slog.Logger) (*sandbox.Client, error) {
	shellCfg, err := cfg.ShellConfig()
	if err != nil {
		return nil, faults.Wrap(faults.Config, err, "invalid server configuration")
	}
	return sandbox.NewClient(session.ShellFactory(shellCfg, logger), cfg.MatchMode(), recorder, logger), nil
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Logs go to stderr; stdout carries command results
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, faults.Wrap(faults.Config, err, "failed to get user home directory")
		}
		configPath = filepath.Join(home, ".config", "sandboxsync", "config.yaml")
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, faults.Wrap(faults.Config, err, "failed to load config")
	}

	logger.Debug("configuration loaded",
		"server", cfg.Server.Hostname,
		"port", cfg.Server.Port,
		"project", cfg.Sandbox.Project,
		"workspace", cfg.Sandbox.Workspace,
		"changelog", cfg.Resync.ChangeLog)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
