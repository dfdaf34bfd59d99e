package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/config"
	"github.com/c360studio/ucc/embed"
	"github.com/c360studio/ucc/layout"
	"github.com/c360studio/ucc/pipeline"
)

var (
	compareThreshold float64
	compareEmbedder  string
)

var compareCmd = &cobra.Command{
	Use:   "compare <a.pdf> <b.pdf>",
	Short: "Compare two policy documents and print the result as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompare(cmd.Context(), args[0], args[1])
	},
}

func init() {
	compareCmd.Flags().Float64Var(&compareThreshold, "threshold", 0.72, "Similarity threshold for clause matching")
	compareCmd.Flags().StringVar(&compareEmbedder, "embedder", "auto", "Embedding backend: auto, local or remote")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(ctx context.Context, pathA, pathB string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	docA, err := loadDocument(pathA)
	if err != nil {
		return err
	}
	docB, err := loadDocument(pathB)
	if err != nil {
		return err
	}

	opts := clause.DefaultOptions()
	opts.SimilarityThreshold = compareThreshold
	opts.Embedder = compareEmbedder
	if err := opts.Validate(); err != nil {
		return err
	}

	embedder := embed.Select(embed.Settings{
		Backend:        opts.Embedder,
		Model:          cfg.Embedder.Model,
		OllamaEndpoint: cfg.Embedder.OllamaEndpoint,
		APIBaseURL:     cfg.Embedder.APIBaseURL,
		APIKey:         cfg.Embedder.APIKey,
	})
	stages := pipeline.NewStages(extractorFor(pathA), embedder)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Jobs.JobHardTimeout)
	defer cancel()

	start := time.Now()
	result, err := pipeline.NewComparer(stages, opts).Compare(runCtx, docA, docB)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "compared %s and %s in %s\n",
		filepath.Base(pathA), filepath.Base(pathB), time.Since(start).Round(time.Millisecond))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func loadDocument(path string) (clause.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return clause.Document{}, err
	}
	return clause.NewDocument(filepath.Base(path), data), nil
}

// extractorFor picks the text extractor for .txt fixtures and the PDF
// extractor otherwise.
func extractorFor(path string) layout.Extractor {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return layout.NewTextExtractor()
	}
	return layout.NewTabulaExtractor()
}
