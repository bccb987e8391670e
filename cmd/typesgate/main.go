package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schaermu/typesgate/internal/config"
	"github.com/schaermu/typesgate/internal/depgraph"
	"github.com/schaermu/typesgate/internal/deprecation"
	"github.com/schaermu/typesgate/internal/gate"
	"github.com/schaermu/typesgate/internal/git"
	"github.com/schaermu/typesgate/internal/registry"
	"github.com/schaermu/typesgate/internal/typings"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile    string
	repoPath   string
	baseBranch string
	logLevel   string
	logFormat  string

	// Select command flags
	selection string
	match     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "typesgate",
	Short: "Select affected typings packages and validate not-needed records",
	Long: `typesgate runs as a pre-merge gate for a directory-per-package type
definitions repository.

It diffs the working tree against a baseline branch (fetching the baseline
when the checkout is shallow), decides which packages need to be tested, and
verifies that packages moved to the not-needed manifest are replaced by a
newer release on the registry.`,
	SilenceUsage: true,
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Print the packages to test as JSON",
	Long: `Select computes the set of typings packages to process and prints it as
{"packageNames": [...], "dependents": [...]} on stdout.

With --selection all every package is selected, with --selection affected the
packages changed by the diff plus everything depending on changed or deleted
packages, and with --match only packages whose name matches the pattern.

If the diff touches the not-needed manifest, its records are validated first
and any failure aborts without printing a selection.`,
	RunE: runSelect,
}

var checkCmd = &cobra.Command{
	Use:   "check-deprecations",
	Short: "Validate not-needed records implied by the diff",
	Long: `Check-deprecations verifies that every deleted file belongs to a typings
package, that no package is both present and listed as not needed, and that
every not-needed record points at a published replacement newer than the
typings it replaces.`,
	RunE: runCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("typesgate %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <repo>/"+config.FileName+" if present)")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", "", "path to the repository checkout (overrides repo.path)")
	rootCmd.PersistentFlags().StringVar(&baseBranch, "base", "", "baseline branch to diff against (overrides repo.base_branch)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Select command flags
	selectCmd.Flags().StringVar(&selection, "selection", "all", "which packages to select (all, affected)")
	selectCmd.Flags().StringVar(&match, "match", "", "select packages whose name matches this regular expression")

	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	mode, err := gate.ParseMode(selection, match)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	sel, err := engine.Select(ctx, mode)
	if err != nil {
		logger.Error("selection failed", "error", err)
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sel)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	if err := engine.CheckDeprecations(ctx); err != nil {
		logger.Error("not-needed validation failed", "error", err)
		return err
	}
	return nil
}

// newEngine wires the collaborators of a gate run from cfg
func newEngine(cfg *config.Config, logger *slog.Logger) (*gate.Engine, error) {
	catalog, err := typings.LoadCatalog(cfg.TypesDir(), cfg.NotNeededPath(), cfg.Registry.TypesScope)
	if err != nil {
		return nil, fmt.Errorf("failed to load typings catalog: %w", err)
	}
	logger.Info("loaded typings catalog", "packages", catalog.Len())

	client, err := registry.NewHTTPClient(cfg.Registry.URL, cfg.Registry.Timeout, cfg.Registry.CacheSize, logger)
	if err != nil {
		return nil, err
	}

	resolver := typings.NewLayoutResolver(cfg.Layout.TypesDir)
	validator := deprecation.NewValidator(catalog, resolver, client, cfg.Registry.Concurrency, logger)
	diff := git.NewResolver(git.NewShellRunner(logger), cfg.Repo.Remote)

	return gate.NewEngine(cfg, diff, catalog, resolver, depgraph.New(catalog.All()), validator, logger), nil
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

	// stdout is reserved for the selection output
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
	root := repoPath
	if root == "" {
		root = "."
	}

	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)
		cfg, err = config.Load(cfgFile)
	} else {
		path := filepath.Join(root, config.FileName)
		logger.Debug("looking for configuration", "path", path)
		cfg, err = config.LoadOptional(path)
	}
	if err != nil {
		return nil, err
	}

	// Flags win over the config file
	if repoPath != "" {
		cfg.Repo.Path = repoPath
	}
	if baseBranch != "" {
		cfg.Repo.BaseBranch = baseBranch
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration loaded",
		"repo", cfg.RepoDir(),
		"base", cfg.Repo.BaseBranch,
		"types_dir", cfg.Layout.TypesDir,
		"registry", cfg.Registry.URL)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
