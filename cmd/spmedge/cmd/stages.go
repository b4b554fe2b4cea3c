package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spm-edge/spmedge/internal/cleaner"
	"github.com/spm-edge/spmedge/internal/db"
	"github.com/spm-edge/spmedge/internal/loader"
	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/processor"
	"github.com/spm-edge/spmedge/internal/provider"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

var (
	loaderFormat string
	retryFlag    bool
	useAIFlag    bool
	modelFlag    string
	subBatchFlag int
)

// processorModel resolves the chat model: flag, then config, then the
// document_processor.model setting.
func processorModel(ctx context.Context, store *db.DB) string {
	if modelFlag != "" {
		return modelFlag
	}
	if cfg.Processor.Model != "" {
		return cfg.Processor.Model
	}
	model, _ := store.GetSetting(ctx, spmedge.SettingProcessorModel)
	return model
}

// runStage executes one stage and prints its summary.
func runStage(c *cobra.Command, r pipeline.StageRunner) error {
	sum, err := r.Run(c.Context(), limitFlag)
	if err != nil {
		return err
	}
	fmt.Printf("%s: succeeded=%d failed=%d\n", sum.Stage, sum.Succeeded, sum.Failed)
	return checkSummary(sum)
}

var loaderCmd = &cobra.Command{
	Use:   "loader",
	Short: "Extract registered documents (LOAD stage)",
	RunE: func(c *cobra.Command, _ []string) error {
		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		dirs, err := dataDirs()
		if err != nil {
			return err
		}

		r := loader.New(store, dirs)
		r.Format = loaderFormat
		r.RetryFailed = retryFlag
		return runStage(c, r)
	},
}

var cleanerCmd = &cobra.Command{
	Use:   "cleaner",
	Short: "Clean and section extracted documents (CLEAN stage)",
	RunE: func(c *cobra.Command, _ []string) error {
		store, err := openStore(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		dirs, err := dataDirs()
		if err != nil {
			return err
		}

		r := cleaner.New(store, dirs)
		r.UseAI = useAIFlag
		r.RetryFailed = retryFlag
		r.Refine = refineFunc()
		return runStage(c, r)
	},
}

// refineFunc builds the optional model-assisted text refinement used when
// AI cleaning is enabled. Without a configured model it stays nil and the
// cleaner works rules-only.
func refineFunc() cleaner.RefineFunc {
	model := cfg.Processor.Model
	if model == "" {
		return nil
	}
	reg := buildRegistry()
	return func(ctx context.Context, text string) (string, error) {
		p, name, err := reg.Resolve(model)
		if err != nil {
			return "", err
		}
		temp := 0.1
		resp, err := p.ChatCompletion(ctx, &provider.ChatRequest{
			Model: name,
			Messages: []provider.Message{
				{Role: provider.RoleSystem, Content: "You are a document cleanup assistant. Return only the cleaned text."},
				{Role: provider.RoleUser, Content: "Clean up the following document text. Fix broken lines and remove artifacts without changing the wording:\n\n" + text},
			},
			Temperature: &temp,
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
}

var processorCmd = &cobra.Command{
	Use:   "processor",
	Short: "Extract structured data with the LLM (PROCESS stage)",
	RunE: func(c *cobra.Command, _ []string) error {
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
			return fmt.Errorf("no model configured: set --model, processor.model or the %s setting", spmedge.SettingProcessorModel)
		}
		r := processor.New(store, dirs, buildRegistry(), model)
		r.MinInterval = cfg.Processor.MinInterval.Std()
		r.MaxRetries = cfg.Processor.MaxRetries
		r.BackoffBase = cfg.Processor.BackoffBase.Std()
		r.MaxContentLen = cfg.Processor.MaxContentLen
		r.RetryFailed = retryFlag
		if subBatchFlag > 0 {
			r.SubBatchSize = subBatchFlag
		} else {
			r.SubBatchSize = store.GetIntSetting(c.Context(), spmedge.SettingProcessorMaxDocs, cfg.Processor.BatchSize)
		}
		return runStage(c, r)
	},
}

func init() {
	loaderCmd.Flags().StringVar(&loaderFormat, "format", "json", "artifact format: json, text or markdown")
	loaderCmd.Flags().BoolVar(&retryFlag, "retry", false, "re-run documents whose stage previously failed")
	cleanerCmd.Flags().BoolVar(&useAIFlag, "use-ai", false, "force model-assisted refinement")
	cleanerCmd.Flags().BoolVar(&retryFlag, "retry", false, "re-run documents whose stage previously failed")
	processorCmd.Flags().StringVar(&modelFlag, "model", "", "chat model as provider/model")
	processorCmd.Flags().IntVar(&subBatchFlag, "batch-size", 0, "API sub-batch size")
	processorCmd.Flags().BoolVar(&retryFlag, "retry", false, "re-run documents whose stage previously failed")

	rootCmd.AddCommand(loaderCmd, cleanerCmd, processorCmd)
}
