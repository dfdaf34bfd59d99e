package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/layout"
	"github.com/c360studio/ucc/summary"
)

// Comparer runs the whole pipeline in one call. The async orchestrator runs
// the same stages segment by segment; this path backs the synchronous
// endpoint and the CLI.
type Comparer struct {
	stages *Stages
	opts   clause.Options
}

// NewComparer builds a synchronous comparer.
func NewComparer(stages *Stages, opts clause.Options) *Comparer {
	return &Comparer{stages: stages, opts: opts}
}

// docSide is the per-document intermediate state.
type docSide struct {
	defs    []clause.Definition
	clauses []clause.Clause
}

// Compare turns two documents into a ComparisonResult. A single unparseable
// document becomes a warning; two unparseable documents are an error.
func (c *Comparer) Compare(ctx context.Context, docA, docB clause.Document) (*clause.ComparisonResult, error) {
	started := time.Now()
	result := &clause.ComparisonResult{
		Matches:   []clause.Match{},
		UnmappedA: []string{},
		UnmappedB: []string{},
		Warnings:  []string{},
	}

	sideA, tA, parseErrA := c.prepare(ctx, docA)
	result.TimingsMS.ParseA = tA
	sideB, tB, parseErrB := c.prepare(ctx, docB)
	result.TimingsMS.ParseB = tB

	for _, err := range []error{parseErrA, parseErrB} {
		if err != nil && !layout.IsParseError(err) {
			return nil, err
		}
	}
	if parseErrA != nil && parseErrB != nil {
		return nil, fmt.Errorf("both documents failed to parse: %w", parseErrA)
	}
	for _, err := range []error{parseErrA, parseErrB} {
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		}
	}
	if parseErrA == nil && CountOperational(sideA.clauses) == 0 {
		result.Warnings = append(result.Warnings, EmptyDocumentWarning)
	}
	if parseErrB == nil && CountOperational(sideB.clauses) == 0 {
		result.Warnings = append(result.Warnings, EmptyDocumentWarning)
	}

	alignStart := time.Now()
	aligned, err := c.stages.AlignPair(ctx, sideA.clauses, sideB.clauses, sideA.defs, sideB.defs, c.opts)
	if err != nil {
		return nil, err
	}
	result.TimingsMS.Align = time.Since(alignStart).Milliseconds()
	result.Warnings = append(result.Warnings, aligned.Warnings...)
	result.UnmappedA = append(result.UnmappedA, aligned.UnmappedA...)
	result.UnmappedB = append(result.UnmappedB, aligned.UnmappedB...)

	diffStart := time.Now()
	lookupA := Lookup(sideA.clauses)
	lookupB := Lookup(sideB.clauses)
	matches := c.stages.InterpretDeltas(aligned.Matches, lookupA, lookupB, c.opts)
	SortMatches(matches)
	result.Matches = matches
	result.TimingsMS.Diff = time.Since(diffStart).Milliseconds()

	result.Summary = summary.Summarize(matches, lookupA, lookupB)
	result.TimingsMS.Total = time.Since(started).Milliseconds()
	return result, nil
}

// prepare runs the per-document stages: layout, definitions, classification,
// DNA. A parse failure returns an empty side so the other document can still
// be reported against.
func (c *Comparer) prepare(ctx context.Context, doc clause.Document) (docSide, int64, error) {
	start := time.Now()
	side := docSide{}

	blocks, err := c.stages.ParseLayout(ctx, doc.DocID, doc.Bytes)
	if err != nil {
		return side, time.Since(start).Milliseconds(), err
	}
	side.defs = c.stages.ResolveDefinitions(blocks)
	side.clauses = c.stages.ExtractDNA(c.stages.ClassifyClauses(blocks))
	return side, time.Since(start).Milliseconds(), nil
}
