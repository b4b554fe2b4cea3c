package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spm-edge/spmedge/internal/cleaner"
	"github.com/spm-edge/spmedge/internal/input"
	"github.com/spm-edge/spmedge/internal/loader"
	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/processor"
	"github.com/spm-edge/spmedge/internal/rag"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

var scheduleFlag string

var watchCmd = &cobra.Command{
	Use:   "watch <doc_type>",
	Short: "Run the full pipeline on a schedule",
	Long:  "watch registers whatever lands in unprocessed/ and drives it through every stage on a cron schedule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		docType := args[0]

		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		dirs, err := dataDirs()
		if err != nil {
			return err
		}

		model := processorModel(c.Context(), store)
		if model == "" {
			return fmt.Errorf("no model configured: set processor.model or the %s setting", spmedge.SettingProcessorModel)
		}
		engine, err := rag.NewEngine(cfg.Embedding)
		if err != nil {
			return err
		}
		vstore, err := openVectorStore(engine)
		if err != nil {
			return err
		}

		mgr := input.New(store, dirs)
		cl := cleaner.New(store, dirs)
		cl.Refine = refineFunc()
		orch := pipeline.NewOrchestrator(
			loader.New(store, dirs),
			cl,
			processor.New(store, dirs, buildRegistry(), model),
			rag.New(store, dirs, engine, vstore, indexDir()),
		)

		watcher, err := pipeline.NewWatcher(scheduleFlag, func(ctx context.Context) {
			if _, err := mgr.ProcessBatch(ctx, docType, input.Options{Archive: true}); err != nil {
				slog.Error("input stage failed", "type", docType, "err", err)
				return
			}
			summaries, err := orch.RunAll(ctx, limitFlag)
			if err != nil {
				slog.Error("pipeline run failed", "err", err)
				return
			}
			for _, sum := range summaries {
				slog.Info("stage finished", "stage", sum.Stage, "succeeded", sum.Succeeded, "failed", sum.Failed)
			}
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		slog.Info("watching", "type", docType, "schedule", scheduleFlag)
		watcher.Start(ctx)
		slog.Info("watch stopped")
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&scheduleFlag, "schedule", "*/10 * * * *", "cron schedule")
	rootCmd.AddCommand(watchCmd)
}
