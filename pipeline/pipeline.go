// Package pipeline composes the analytical stages of the Universal Clause
// Comparer: layout, definitions, classification, DNA, alignment, delta
// interpretation and summarisation. The orchestrator drives the same stage
// functions segment by segment; Comparer chains them synchronously.
package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"github.com/c360studio/ucc/align"
	"github.com/c360studio/ucc/classify"
	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/definitions"
	"github.com/c360studio/ucc/delta"
	"github.com/c360studio/ucc/dna"
	"github.com/c360studio/ucc/embed"
	"github.com/c360studio/ucc/layout"
	"github.com/c360studio/ucc/retry"
)

// EmptyDocumentWarning is emitted when a side parses to zero operational
// clauses.
const EmptyDocumentWarning = "empty document"

// Stages bundles the pluggable pieces every stage call needs.
type Stages struct {
	Extractor layout.Extractor
	Embedder  embed.Embedder
	RetryCfg  retry.Config
	Logger    *slog.Logger

	// SelectEmbedder, when set, resolves a per-job backend override
	// ("local"/"remote") at the start of the alignment stage. Unset or
	// "auto" requests use Embedder.
	SelectEmbedder func(backend string) embed.Embedder
}

// NewStages wires defaults for anything left nil.
func NewStages(extractor layout.Extractor, embedder embed.Embedder) *Stages {
	s := &Stages{
		Extractor: extractor,
		Embedder:  embedder,
		RetryCfg:  retry.DefaultConfig(),
		Logger:    slog.Default(),
	}
	if s.Extractor == nil {
		s.Extractor = layout.NewTabulaExtractor()
	}
	if s.Embedder == nil {
		s.Embedder = embed.NewLexicalEmbedder()
	}
	return s
}

// ParseLayout runs the layout stage for one document.
func (s *Stages) ParseLayout(ctx context.Context, docID string, data []byte) ([]clause.Block, error) {
	return s.Extractor.Extract(ctx, docID, data)
}

// ResolveDefinitions runs the definitions stage.
func (s *Stages) ResolveDefinitions(blocks []clause.Block) []clause.Definition {
	return definitions.Resolve(blocks)
}

// ClassifyClauses runs the classification stage.
func (s *Stages) ClassifyClauses(blocks []clause.Block) []clause.Clause {
	return classify.Classify(blocks)
}

// ExtractDNA runs the DNA stage.
func (s *Stages) ExtractDNA(clauses []clause.Clause) []clause.Clause {
	return dna.Enrich(clauses)
}

// AlignPair runs the alignment stage across the two enriched documents.
func (s *Stages) AlignPair(ctx context.Context, clausesA, clausesB []clause.Clause, defsA, defsB []clause.Definition, opts clause.Options) (*align.Result, error) {
	embedder := s.Embedder
	if s.SelectEmbedder != nil && opts.Embedder != "" && opts.Embedder != clause.EmbedderAuto {
		if e := s.SelectEmbedder(opts.Embedder); e != nil {
			embedder = e
		}
	}
	aligner := align.New(embedder, opts,
		align.WithLogger(s.Logger),
		align.WithRetryConfig(s.RetryCfg))
	return aligner.Align(ctx, clausesA, clausesB, defsA, defsB)
}

// InterpretDeltas runs the delta stage over aligned matches.
func (s *Stages) InterpretDeltas(matches []clause.Match, lookupA, lookupB map[string]*clause.Clause, opts clause.Options) []clause.Match {
	return delta.NewInterpreter(opts).Interpret(matches, lookupA, lookupB)
}

// Lookup indexes clauses by block id for the delta and summary stages.
func Lookup(clauses []clause.Clause) map[string]*clause.Clause {
	m := make(map[string]*clause.Clause, len(clauses))
	for i := range clauses {
		m[clauses[i].ID] = &clauses[i]
	}
	return m
}

// SortMatches applies the result ordering: status rank, then materiality
// descending, then the surviving side's start page.
func SortMatches(matches []clause.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Status.Rank() != matches[j].Status.Rank() {
			return matches[i].Status.Rank() < matches[j].Status.Rank()
		}
		if matches[i].MaterialityScore != matches[j].MaterialityScore {
			return matches[i].MaterialityScore > matches[j].MaterialityScore
		}
		return survivingPage(matches[i]) < survivingPage(matches[j])
	})
}

func survivingPage(m clause.Match) int {
	if m.Status == clause.StatusRemoved {
		if m.Evidence.A != nil {
			return m.Evidence.A.PageStart
		}
		return 0
	}
	if m.Evidence.B != nil {
		return m.Evidence.B.PageStart
	}
	return 0
}

// CountOperational reports how many non-admin clauses a document produced.
func CountOperational(clauses []clause.Clause) int {
	n := 0
	for _, c := range clauses {
		if !c.IsAdmin && c.Type != clause.TypeAdmin {
			n++
		}
	}
	return n
}
