package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spm-edge/spmedge/internal/rag"
)

var (
	queryK     int
	queryAlpha float64
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Vector index operations",
}

var ragIndexPipelineCmd = &cobra.Command{
	Use:   "index-pipeline",
	Short: "Index processed documents (INDEX stage)",
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
		engine, err := rag.NewEngine(cfg.Embedding)
		if err != nil {
			return err
		}
		vstore, err := openVectorStore(engine)
		if err != nil {
			return err
		}

		r := rag.New(store, dirs, engine, vstore, indexDir())
		r.RetryFailed = retryFlag
		return runStage(c, r)
	},
}

var ragIndexFrameworkCmd = &cobra.Command{
	Use:   "index-framework <dir>",
	Short: "Index a directory of reference documents",
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
		engine, err := rag.NewEngine(cfg.Embedding)
		if err != nil {
			return err
		}
		vstore, err := openVectorStore(engine)
		if err != nil {
			return err
		}

		r := rag.New(store, dirs, engine, vstore, indexDir())
		n, err := r.IndexDirectory(c.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d chunks from %s\n", n, args[0])
		return nil
	},
}

var ragAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Show vector index statistics",
	RunE: func(_ *cobra.Command, _ []string) error {
		engine, err := rag.NewEngine(cfg.Embedding)
		if err != nil {
			return err
		}
		vstore, err := openVectorStore(engine)
		if err != nil {
			return err
		}

		stats := rag.Analyze(vstore)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var ragQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Hybrid search over the index",
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
		engine, err := rag.NewEngine(cfg.Embedding)
		if err != nil {
			return err
		}
		vstore, err := openVectorStore(engine)
		if err != nil {
			return err
		}

		r := rag.New(store, dirs, engine, vstore, indexDir())
		results, err := r.Query(c.Context(), args[0], queryK, queryAlpha)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no results")
			return nil
		}
		for i, res := range results {
			fmt.Printf("%d. [%.4f] %s (%s)\n   %s\n", i+1, res.Score, res.ChunkID, res.DocumentID, snippet(res.Text, 160))
		}
		return nil
	},
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func init() {
	ragQueryCmd.Flags().IntVarP(&queryK, "top", "k", 5, "number of results")
	ragQueryCmd.Flags().Float64Var(&queryAlpha, "alpha", 0.5, "vector weight: 0 pure keyword, 1 pure vector")
	ragIndexPipelineCmd.Flags().BoolVar(&retryFlag, "retry", false, "re-run documents whose stage previously failed")

	ragCmd.AddCommand(ragIndexPipelineCmd, ragIndexFrameworkCmd, ragAnalyzeCmd, ragQueryCmd)
	rootCmd.AddCommand(ragCmd)
}
