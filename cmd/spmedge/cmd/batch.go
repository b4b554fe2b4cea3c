package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spm-edge/spmedge/internal/cleaner"
	"github.com/spm-edge/spmedge/internal/input"
	"github.com/spm-edge/spmedge/internal/loader"
	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/processor"
	"github.com/spm-edge/spmedge/internal/rag"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch lifecycle operations",
}

var (
	archiveFlag    bool
	deleteFlag     bool
	batchSizeFlag  int
	resetStageFlag string
	resetBatchFlag string
)

var batchProcessCmd = &cobra.Command{
	Use:   "process <doc_type>",
	Short: "Register unprocessed files as a new batch (INPUT stage)",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		dirs, err := dataDirs()
		if err != nil {
			return err
		}

		mgr := input.New(store, dirs)
		opts := input.Options{Archive: archiveFlag, Delete: deleteFlag, MaxFiles: batchSizeFlag}
		batchID, err := mgr.ProcessBatch(c.Context(), args[0], opts)
		if err != nil {
			return err
		}
		if batchID == "" {
			fmt.Println("no files to process")
			return nil
		}
		fmt.Printf("batch %s created\n", batchID)
		return nil
	},
}

var batchRunAllCmd = &cobra.Command{
	Use:   "run-all <doc_type>",
	Short: "Run every pipeline stage in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		dirs, err := dataDirs()
		if err != nil {
			return err
		}

		mgr := input.New(store, dirs)
		opts := input.Options{Archive: archiveFlag, Delete: deleteFlag, MaxFiles: batchSizeFlag}
		batchID, err := mgr.ProcessBatch(c.Context(), args[0], opts)
		if err != nil {
			return err
		}
		if batchID == "" {
			fmt.Println("no files to process")
		}

		engine, err := rag.NewEngine(cfg.Embedding)
		if err != nil {
			return err
		}
		vstore, err := openVectorStore(engine)
		if err != nil {
			return err
		}

		model := processorModel(c.Context(), store)
		if model == "" {
			return fmt.Errorf("no model configured: set --model, processor.model or the %s setting", spmedge.SettingProcessorModel)
		}
		cl := cleaner.New(store, dirs)
		cl.Refine = refineFunc()
		orch := pipeline.NewOrchestrator(
			loader.New(store, dirs),
			cl,
			processor.New(store, dirs, buildRegistry(), model),
			rag.New(store, dirs, engine, vstore, indexDir()),
		)
		summaries, err := orch.RunAll(c.Context(), limitFlag)
		if err != nil {
			return err
		}
		for _, sum := range summaries {
			fmt.Printf("%-8s succeeded=%d failed=%d\n", sum.Stage, sum.Succeeded, sum.Failed)
			if err := checkSummary(sum); err != nil {
				return err
			}
		}
		return nil
	},
}

var batchResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stage records so documents re-run",
	RunE: func(c *cobra.Command, _ []string) error {
		if resetStageFlag == "" {
			return fmt.Errorf("--stage is required")
		}
		stage, err := spmedge.ParseStage(resetStageFlag)
		if err != nil {
			return err
		}
		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.ResetStage(c.Context(), stage, resetBatchFlag)
		if err != nil {
			return err
		}
		removed := 0
		if stage != spmedge.StageIndex {
			dirs, err := dataDirs()
			if err != nil {
				return err
			}
			removed, err = pipeline.RemoveStageFiles(dirs.Stage(stage), stage, spmedge.ShortID(resetBatchFlag))
			if err != nil {
				return err
			}
		}
		fmt.Printf("reset %d %s records, removed %d artifacts\n", n, stage, removed)
		return nil
	},
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show batches",
	RunE: func(c *cobra.Command, _ []string) error {
		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		batches, err := store.ListBatches(c.Context())
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			fmt.Println("no batches")
			return nil
		}
		fmt.Printf("%-36s  %-32s  %-8s  %-9s  %s\n", "ID", "NAME", "STAGE", "STATUS", "DOCS")
		for _, b := range batches {
			fmt.Printf("%-36s  %-32s  %-8s  %-9s  %d\n", b.ID, b.Name, b.Stage, b.Status, b.DocumentCount)
		}
		return nil
	},
}

var batchCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned documents and empty batches",
	RunE: func(c *cobra.Command, _ []string) error {
		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		docs, batches, err := store.CleanupOrphans(c.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d documents, %d batches\n", docs, batches)
		return nil
	},
}

var batchStatusCmd = &cobra.Command{
	Use:   "status <batch_id>",
	Short: "Show per-stage document counts for a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		batch, err := store.GetBatch(c.Context(), args[0])
		if err != nil {
			return err
		}
		counts, err := store.BatchStageCounts(c.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("batch %s (%s): %s/%s, %d documents\n", batch.ID, batch.Name, batch.Stage, batch.Status, batch.DocumentCount)
		for _, sc := range counts {
			fmt.Printf("  %-8s completed=%d failed=%d processing=%d\n", sc.Stage, sc.Completed, sc.Failed, sc.Pending)
		}
		return nil
	},
}

func init() {
	batchProcessCmd.Flags().BoolVar(&archiveFlag, "archive", false, "copy originals to archive/ and remove them")
	batchProcessCmd.Flags().BoolVar(&deleteFlag, "delete", false, "remove originals after registration")
	batchProcessCmd.Flags().IntVar(&batchSizeFlag, "batch-size", 0, "max files per batch")
	batchRunAllCmd.Flags().BoolVar(&archiveFlag, "archive", false, "copy originals to archive/ and remove them")
	batchRunAllCmd.Flags().BoolVar(&deleteFlag, "delete", false, "remove originals after registration")
	batchRunAllCmd.Flags().IntVar(&batchSizeFlag, "batch-size", 0, "max files per batch")
	batchResetCmd.Flags().StringVar(&resetStageFlag, "stage", "", "stage to reset (input, load, clean, process, index)")
	batchResetCmd.Flags().StringVar(&resetBatchFlag, "batch", "", "restrict the reset to one batch")

	batchCmd.AddCommand(batchProcessCmd, batchRunAllCmd, batchResetCmd, batchListCmd, batchCleanupCmd, batchStatusCmd)
	rootCmd.AddCommand(batchCmd)
}
