package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360studio/ucc/classify"
	"github.com/c360studio/ucc/definitions"
	"github.com/c360studio/ucc/dna"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess <file.pdf>",
	Short: "Parse a single policy document and print its blocks as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreprocess(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(preprocessCmd)
}

func runPreprocess(ctx context.Context, path string) error {
	doc, err := loadDocument(path)
	if err != nil {
		return err
	}

	blocks, err := extractorFor(path).Extract(ctx, doc.DocID, doc.Bytes)
	if err != nil {
		return err
	}
	defs := definitions.Resolve(blocks)
	clauses := dna.Enrich(classify.Classify(blocks))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"doc_id":      doc.DocID,
		"file_name":   doc.FileName,
		"definitions": defs,
		"clauses":     clauses,
	})
}
