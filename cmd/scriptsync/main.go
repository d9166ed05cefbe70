package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rmmtools/scriptsync/internal/config"
	"github.com/rmmtools/scriptsync/internal/gitrepo"
	"github.com/rmmtools/scriptsync/internal/rmm"
	"github.com/rmmtools/scriptsync/internal/syncer"
	"github.com/rmmtools/scriptsync/internal/webhook"
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

	// Sync command flags
	dryRun      bool
	noPull      bool
	noPush      bool
	noWriteback bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scriptsync",
	Short: "Synchronize Tactical RMM scripts and snippets with a Git repository",
	Long: `scriptsync keeps three representations of your Tactical RMM scripts and
snippets consistent: the RMM API, an editable local tree (one code file per
definition) and a raw JSON snapshot tree, persisted in a Git repository.

Each run pulls the repository, pushes locally edited scripts back to the API,
exports the current remote state into both trees, prunes entries that no
longer exist remotely, and commits the result with a generated summary.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Perform a one-time sync between the RMM API and the Git working tree",
	Long: `Sync hard-resets the working tree to its remote tracking branch, writes any
locally edited script back to the API, exports all user-defined scripts and
snippets into the scripts/, scriptsraw/, snippets/ and snippetsraw/ folders,
prunes files for definitions deleted remotely, and commits and pushes the
result.

Local edits win over remote state for exactly one run: they are pushed to the
API before the export overwrites the working tree.`,
	RunE: runSync,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a webhook server that syncs on push events",
	Long: `Serve starts a long-running HTTP server that listens for push webhooks from
the Git host and triggers a sync when the configured repository is updated.
Syncs are debounced and run one at a time; the listener can be inherited from
systemd socket activation.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scriptsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/scriptsync/config.yaml, falls back to DOMAIN/API_TOKEN/SCRIPTPATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without touching files, git or the API")
	syncCmd.Flags().BoolVar(&noPull, "no-pull", false, "skip the git pull stage")
	syncCmd.Flags().BoolVar(&noPush, "no-push", false, "skip the git commit and push stage")
	syncCmd.Flags().BoolVar(&noWriteback, "no-writeback", false, "print drifted payloads instead of updating the API")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	gateway := rmm.NewClient(cfg.API.Domain, cfg.API.Token, logger)
	repo := gitrepo.NewShellRepo(cfg.Paths.Root, logger)

	engine := syncer.NewEngine(cfg, gateway, repo, runMode(), logger, os.Stdout)

	report, err := engine.Run(ctx)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	printReport(report)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Serve.Enabled {
		return fmt.Errorf("serve is not enabled in the configuration")
	}

	gateway := rmm.NewClient(cfg.API.Domain, cfg.API.Token, logger)
	repo := gitrepo.NewShellRepo(cfg.Paths.Root, logger)

	server, err := webhook.NewServer(cfg, gateway, repo, logger)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}

// runMode builds the run mode from the sync command flags.
func runMode() config.RunMode {
	mode := config.DefaultRunMode()
	if dryRun {
		return config.RunMode{}
	}
	if noPull {
		mode.Pull = false
	}
	if noPush {
		mode.Push = false
	}
	if noWriteback {
		mode.Writeback = false
	}
	return mode
}

func printReport(report *syncer.Report) {
	fmt.Printf("Total number of definitions exported: %d\n", report.Exported)
	if len(report.ShellTally) == 0 {
		return
	}
	fmt.Println("Shell summary:")
	shells := make([]string, 0, len(report.ShellTally))
	for shell := range report.ShellTally {
		shells = append(shells, shell)
	}
	sort.Strings(shells)
	for _, shell := range shells {
		fmt.Printf("  %s: %d\n", shell, report.ShellTally[shell])
	}
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

	if logFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidate := fmt.Sprintf("%s/.config/scriptsync/config.yaml", home)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
			}
		}
	}

	if configPath == "" {
		logger.Info("no config file, using environment")
	} else {
		logger.Info("loading configuration", "path", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"domain", cfg.API.Domain,
		"root", cfg.Paths.Root)

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
