// Package cmd provides the CLI commands for Phasergun.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/phasergun/phasergun/internal/cache"
	"github.com/phasergun/phasergun/internal/config"
	"github.com/phasergun/phasergun/internal/embed"
	"github.com/phasergun/phasergun/internal/logging"
	"github.com/phasergun/phasergun/internal/parser"
	"github.com/phasergun/phasergun/internal/retrieval"
	"github.com/phasergun/phasergun/pkg/version"
)

// Persistent flags shared by all commands.
var (
	projectFlag        string
	primaryContextFlag string
	debugMode          bool
	loggingCleanup     func()
)

// NewRootCmd creates the root command for the phasergun CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phasergun",
		Short: "Retrieval and cache core for regulatory documentation",
		Long: `Phasergun indexes a project's Procedures and Context trees into a
deterministic local vector cache and assembles retrieval-augmented
context for regulatory document generation.

Run it from a project directory containing Procedures/ and Context/.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("phasergun version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", ".", "Project root directory")
	cmd.PersistentFlags().StringVar(&primaryContextFlag, "primary-context", "", "Primary context document (role instructions)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.phasergun/logs/")

	cmd.PersistentPreRunE = setupEnvironment
	cmd.PersistentPostRunE = teardownEnvironment

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// setupEnvironment loads .env overrides and optional debug logging.
func setupEnvironment(_ *cobra.Command, _ []string) error {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug logging enabled",
			slog.String("logFile", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

// teardownEnvironment flushes logging.
func teardownEnvironment(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// projectRoot resolves the --project flag to an absolute path.
func projectRoot() (string, error) {
	abs, err := filepath.Abs(projectFlag)
	if err != nil {
		return "", fmt.Errorf("resolve project root %q: %w", projectFlag, err)
	}
	return abs, nil
}

// primaryContextPath resolves the --primary-context flag, empty when unset.
func primaryContextPath() (string, error) {
	if primaryContextFlag == "" {
		return "", nil
	}
	abs, err := filepath.Abs(primaryContextFlag)
	if err != nil {
		return "", fmt.Errorf("resolve primary context %q: %w", primaryContextFlag, err)
	}
	return abs, nil
}

// stack is the wired retrieval pipeline for one invocation.
type stack struct {
	cfg         config.Config
	embedder    embed.Embedder
	coordinator *cache.Coordinator
	retriever   *retrieval.Retriever
	root        string
	primary     string
}

// newStack loads configuration and wires the pipeline for the project.
func newStack() (*stack, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}
	primary, err := primaryContextPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	embedder := embed.NewCachedEmbedder(embed.NewHashEmbedder(), cfg.Embedding.LRUSize)
	coordinator := cache.NewCoordinator(cfg, embedder, parser.NewRegistry())

	return &stack{
		cfg:         cfg,
		embedder:    embedder,
		coordinator: coordinator,
		retriever:   retrieval.New(coordinator, embedder),
		root:        root,
		primary:     primary,
	}, nil
}
