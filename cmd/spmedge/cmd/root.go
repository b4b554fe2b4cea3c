// Package cmd implements the CLI commands for spmedge.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spm-edge/spmedge/internal/config"
	"github.com/spm-edge/spmedge/internal/db"
	"github.com/spm-edge/spmedge/internal/input"
	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/provider"
	"github.com/spm-edge/spmedge/internal/rag"
)

// Exit codes: 0 success, 1 configuration error, 2 every document in the
// run failed. Partial failures exit 0 with counts in the log.
var errAllFailed = errors.New("all documents failed")

var (
	cfgPath   string
	limitFlag int
	verbose   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "spmedge",
	Short:         "SPM document processing pipeline",
	Long:          "spmedge drives sales-performance documents through the INPUT, LOAD, CLEAN, PROCESS and INDEX stages.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		if cfgPath != "" {
			cfg, err = config.Load(cfgPath)
		} else {
			cfg, err = config.LoadDefault()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default config.yaml)")
	rootCmd.PersistentFlags().IntVarP(&limitFlag, "limit", "l", 0, "max documents per stage run (0 uses the batch.size setting)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command and maps errors to exit codes.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		if errors.Is(err, errAllFailed) || errors.Is(err, input.ErrAllFailed) {
			return 2
		}
		return 1
	}
	return 0
}

// openStore connects to the state store.
func openStore(ctx context.Context) (*db.DB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is not configured")
	}
	return db.New(ctx, cfg.Database.URL)
}

// dataDirs resolves and creates the stage directory layout.
func dataDirs() (pipeline.Dirs, error) {
	dirs := pipeline.NewDirs(cfg.DataDir)
	if err := dirs.EnsureAll(); err != nil {
		return dirs, err
	}
	return dirs, nil
}

// buildRegistry registers every configured chat provider.
func buildRegistry() *provider.Registry {
	reg := provider.NewRegistry()
	for name, pc := range cfg.Providers {
		reg.Register(provider.NewOpenAIProvider(name, pc.URL, pc.APIKey, cfg.Processor.RequestTimeout.Std()))
	}
	return reg
}

// indexDir resolves the vector-store persistence directory.
func indexDir() string {
	if cfg.Index.Dir != "" {
		return cfg.Index.Dir
	}
	return filepath.Join(cfg.DataDir, "index")
}

// openVectorStore loads the persisted store, or creates an empty one when
// nothing has been indexed yet.
func openVectorStore(engine rag.Engine) (*rag.VectorStore, error) {
	dir := indexDir()
	dims := cfg.Embedding.Dimensions
	if dims <= 0 {
		dims = engine.Dimensions()
	}
	if _, err := os.Stat(dir); err == nil {
		vstore, err := rag.LoadVectorStore(dir, cfg.Index.Kind, dims)
		if err == nil {
			return vstore, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return rag.NewVectorStore(cfg.Index.Kind, dims)
}

// checkSummary converts an all-failed stage run into the exit-2 error.
func checkSummary(sum *pipeline.Summary) error {
	if sum != nil && sum.Failed > 0 && sum.Succeeded == 0 {
		return fmt.Errorf("%s stage: %w", sum.Stage, errAllFailed)
	}
	return nil
}
