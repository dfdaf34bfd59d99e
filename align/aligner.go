package align

import (
	"context"
	"log/slog"
	"sort"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/definitions"
	"github.com/c360studio/ucc/embed"
	"github.com/c360studio/ucc/retry"
)

// FallbackWarning is appended to the result when no embedding backend could
// be reached and lexical similarity was used instead.
const FallbackWarning = "embedder fallback: lexical similarity"

// lowConfidenceFloor is the lowest similarity at which a candidate pair is
// still kept (as a low-confidence modified match). Below it the clauses
// dissolve into added/removed.
const lowConfidenceFloor = 0.55

// unchangedEpsilon: matched pairs with sim ≥ 1−ε are reported unchanged.
const unchangedEpsilon = 1e-4

// Reason strings recorded for unmapped blocks.
const ReasonAdmin = "admin"

// Result is the aligner's output: provisional matches awaiting delta
// interpretation, plus the blocks deliberately excluded from matching.
type Result struct {
	Matches   []clause.Match
	UnmappedA []string
	UnmappedB []string
	Warnings  []string
}

// Aligner computes candidate pairs and solves the assignment.
type Aligner struct {
	embedder embed.Embedder
	fallback embed.Embedder
	retryCfg retry.Config
	opts     clause.Options
	logger   *slog.Logger
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aligner) { a.logger = logger }
}

// WithRetryConfig sets the embedding retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(a *Aligner) { a.retryCfg = cfg }
}

// New builds an Aligner over the given embedder and comparison options.
func New(embedder embed.Embedder, opts clause.Options, options ...Option) *Aligner {
	a := &Aligner{
		embedder: embedder,
		fallback: embed.NewLexicalEmbedder(),
		retryCfg: retry.DefaultConfig(),
		opts:     opts,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// edge is one candidate pairing.
type edge struct {
	ai, bi int // indices into the operational clause slices
	sim    float64
}

// Align produces the initial match set between documents A and B. Admin
// blocks are excluded entirely and reported as unmapped. Definition
// expansion is applied to each side's text before embedding.
func (al *Aligner) Align(ctx context.Context, clausesA, clausesB []clause.Clause, defsA, defsB []clause.Definition) (*Result, error) {
	res := &Result{}

	opA := operational(clausesA, &res.UnmappedA)
	opB := operational(clausesB, &res.UnmappedB)

	vecsA, vecsB, warning, err := al.embedAll(ctx, opA, opB, defsA, defsB)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		res.Warnings = append(res.Warnings, warning)
	}

	edges := al.candidateEdges(opA, opB, vecsA, vecsB)

	matchedA := make([]bool, len(opA))
	matchedB := make([]bool, len(opB))
	for _, e := range edges {
		if matchedA[e.ai] || matchedB[e.bi] {
			continue
		}
		matchedA[e.ai] = true
		matchedB[e.bi] = true
		res.Matches = append(res.Matches, pairMatch(opA[e.ai], opB[e.bi], e.sim))
	}

	for i, c := range opA {
		if !matchedA[i] {
			res.Matches = append(res.Matches, sideMatch(c, clause.StatusRemoved))
		}
	}
	for i, c := range opB {
		if !matchedB[i] {
			res.Matches = append(res.Matches, sideMatch(c, clause.StatusAdded))
		}
	}
	return res, nil
}

// operational filters out admin clauses, recording their ids as unmapped.
func operational(clauses []clause.Clause, unmapped *[]string) []clause.Clause {
	var out []clause.Clause
	for _, c := range clauses {
		if c.IsAdmin || c.Type == clause.TypeAdmin {
			*unmapped = append(*unmapped, c.ID)
			continue
		}
		out = append(out, c)
	}
	return out
}

// embedAll embeds both sides' expanded texts, falling back to the lexical
// vectorizer when the backend stays down through the retry budget.
func (al *Aligner) embedAll(ctx context.Context, opA, opB []clause.Clause, defsA, defsB []clause.Definition) (vecsA, vecsB [][]float64, warning string, err error) {
	textsA := expandedTexts(opA, defsA)
	textsB := expandedTexts(opB, defsB)

	embedBoth := func(e embed.Embedder) error {
		var embedErr error
		vecsA, embedErr = e.EmbedBatch(ctx, textsA)
		if embedErr != nil {
			return embedErr
		}
		vecsB, embedErr = e.EmbedBatch(ctx, textsB)
		return embedErr
	}

	err = retry.Do(ctx, al.retryCfg, func() error { return embedBoth(al.embedder) })
	if err == nil {
		return vecsA, vecsB, "", nil
	}
	if ctx.Err() != nil {
		return nil, nil, "", ctx.Err()
	}

	al.logger.Warn("embedding backend unavailable, falling back to lexical similarity",
		"model", al.embedder.ModelID(), "error", err)
	if err := embedBoth(al.fallback); err != nil {
		return nil, nil, "", err
	}
	return vecsA, vecsB, FallbackWarning, nil
}

func expandedTexts(clauses []clause.Clause, defs []clause.Definition) []string {
	expander := definitions.NewExpander(defs)
	texts := make([]string, len(clauses))
	for i, c := range clauses {
		texts[i] = expander.Expand(c.Text)
	}
	return texts
}

// candidateEdges keeps each A-clause's top-K candidates above the
// low-confidence floor, sorted for deterministic greedy acceptance:
// descending similarity, then ascending A sequence, then ascending B
// sequence.
func (al *Aligner) candidateEdges(opA, opB []clause.Clause, vecsA, vecsB [][]float64) []edge {
	k := al.opts.MaxCandidatesPerClause
	if k < 1 {
		k = 1
	}
	floor := lowConfidenceFloor
	if al.opts.SimilarityThreshold < floor {
		floor = al.opts.SimilarityThreshold
	}

	var edges []edge
	for ai := range opA {
		var row []edge
		for bi := range opB {
			sim := similarity(&opA[ai], &opB[bi], vecsA[ai], vecsB[bi])
			if sim >= floor {
				row = append(row, edge{ai: ai, bi: bi, sim: sim})
			}
		}
		sort.Slice(row, func(i, j int) bool {
			if row[i].sim != row[j].sim {
				return row[i].sim > row[j].sim
			}
			return opB[row[i].bi].Sequence < opB[row[j].bi].Sequence
		})
		if len(row) > k {
			row = row[:k]
		}
		edges = append(edges, row...)
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].sim != edges[j].sim {
			return edges[i].sim > edges[j].sim
		}
		if opA[edges[i].ai].Sequence != opA[edges[j].ai].Sequence {
			return opA[edges[i].ai].Sequence < opA[edges[j].ai].Sequence
		}
		return opB[edges[i].bi].Sequence < opB[edges[j].bi].Sequence
	})
	return edges
}

func pairMatch(a, b clause.Clause, sim float64) clause.Match {
	status := clause.StatusModified
	if sim >= 1-unchangedEpsilon {
		status = clause.StatusUnchanged
	}
	s := sim
	return clause.Match{
		AID:        a.ID,
		BID:        b.ID,
		Status:     status,
		Similarity: &s,
		ClauseType: b.Type,
		Evidence: clause.Evidence{
			A: &clause.PageRange{PageStart: a.PageStart, PageEnd: a.PageEnd},
			B: &clause.PageRange{PageStart: b.PageStart, PageEnd: b.PageEnd},
		},
	}
}

func sideMatch(c clause.Clause, status clause.MatchStatus) clause.Match {
	m := clause.Match{
		Status:     status,
		ClauseType: c.Type,
	}
	pr := &clause.PageRange{PageStart: c.PageStart, PageEnd: c.PageEnd}
	if status == clause.StatusRemoved {
		m.AID = c.ID
		m.Evidence.A = pr
	} else {
		m.BID = c.ID
		m.Evidence.B = pr
	}
	return m
}
