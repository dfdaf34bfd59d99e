package delta

import (
	"math"

	"github.com/c360studio/ucc/align"
	"github.com/c360studio/ucc/clause"
)

// Materiality component weights. They sum to 1; calibration may retune them
// within [0,1].
type Weights struct {
	Polarity   float64
	Strictness float64
	CarveOut   float64
	Numeric    float64
	Token      float64
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{
		Polarity:   0.35,
		Strictness: 0.25,
		CarveOut:   0.20,
		Numeric:    0.10,
		Token:      0.10,
	}
}

// review thresholds.
const (
	reviewMateriality  = 0.7
	reviewNumericPct   = 25.0
	lowConfidenceFloor = 0.55
	strictnessDeltaMin = -2
	strictnessDeltaMax = 2
)

// Interpreter fills in the change-analysis fields of each match.
type Interpreter struct {
	weights Weights
	opts    clause.Options
}

// NewInterpreter builds an Interpreter with the given comparison options.
func NewInterpreter(opts clause.Options) *Interpreter {
	return &Interpreter{weights: DefaultWeights(), opts: opts}
}

// Interpret computes strictness delta, diffs, materiality and review flags
// for every match. lookupA/lookupB resolve block ids to their enriched
// clauses.
func (in *Interpreter) Interpret(matches []clause.Match, lookupA, lookupB map[string]*clause.Clause) []clause.Match {
	out := make([]clause.Match, len(matches))
	for i, m := range matches {
		out[i] = in.interpretOne(m, lookupA[m.AID], lookupB[m.BID])
	}
	return out
}

func (in *Interpreter) interpretOne(m clause.Match, a, b *clause.Clause) clause.Match {
	m.StrictnessDelta = strictnessDelta(m.Status, a, b)

	var tokensA, tokensB map[string]bool
	if a != nil {
		tokensA = Tokenize(a.Text)
	}
	if b != nil {
		tokensB = Tokenize(b.Text)
	}

	if m.Status == clause.StatusModified {
		added, removed := diffTokens(tokensA, tokensB)
		if in.opts.ReturnTokenDiffs {
			m.TokenDiff = &clause.TokenDiff{
				Added:   ensureSlice(added),
				Removed: ensureSlice(removed),
			}
		}
	}

	if m.Status == clause.StatusModified || m.Status == clause.StatusUnchanged {
		m.NumericDelta = numericDelta(a, b)
	}

	m.MaterialityScore = in.materiality(m, a, b, tokensA, tokensB)
	m.ReviewRequired = in.reviewRequired(m, a, b)
	return m
}

// strictnessDelta is rank(b) − rank(a); additions contribute +rank(b),
// removals −rank(a). Clamped to [−2, +2].
func strictnessDelta(status clause.MatchStatus, a, b *clause.Clause) int {
	var d int
	switch status {
	case clause.StatusAdded:
		d = b.DNA.Strictness.Rank()
	case clause.StatusRemoved:
		d = -a.DNA.Strictness.Rank()
	default:
		if a == nil || b == nil {
			return 0
		}
		d = b.DNA.Strictness.Rank() - a.DNA.Strictness.Rank()
	}
	if d < strictnessDeltaMin {
		d = strictnessDeltaMin
	}
	if d > strictnessDeltaMax {
		d = strictnessDeltaMax
	}
	return d
}

// numericDelta emits {a_value, b_value, delta_pct} for every canonical field
// present on either side. delta_pct is nil when the A value is absent or 0.
func numericDelta(a, b *clause.Clause) map[string]clause.FieldDelta {
	fields := make(map[string]bool)
	if a != nil {
		for f := range a.DNA.Numerics {
			fields[f] = true
		}
	}
	if b != nil {
		for f := range b.DNA.Numerics {
			fields[f] = true
		}
	}
	if len(fields) == 0 {
		return nil
	}

	out := make(map[string]clause.FieldDelta, len(fields))
	for f := range fields {
		var fd clause.FieldDelta
		if a != nil {
			if v, ok := a.DNA.Numerics[f]; ok {
				av := v
				fd.AValue = &av
			}
		}
		if b != nil {
			if v, ok := b.DNA.Numerics[f]; ok {
				bv := v
				fd.BValue = &bv
			}
		}
		if fd.AValue != nil && *fd.AValue != 0 && fd.BValue != nil {
			pct := (*fd.BValue - *fd.AValue) / *fd.AValue * 100
			fd.DeltaPct = &pct
		}
		out[f] = fd
	}
	return out
}

func (in *Interpreter) materiality(m clause.Match, a, b *clause.Clause, tokensA, tokensB map[string]bool) float64 {
	oneSided := m.Status == clause.StatusAdded || m.Status == clause.StatusRemoved

	var polarityChange float64
	if oneSided || (a != nil && b != nil && a.DNA.Polarity != b.DNA.Polarity) {
		polarityChange = 1
	}

	strictnessChange := math.Abs(float64(m.StrictnessDelta)) / 2

	var carveOutChange float64
	if oneSided {
		carveOutChange = 1
	} else if a != nil && b != nil {
		carveOutChange = 1 - align.Jaccard(a.DNA.CarveOuts, b.DNA.CarveOuts)
	}

	var numericChange float64
	for _, fd := range m.NumericDelta {
		var c float64
		switch {
		case fd.DeltaPct != nil:
			c = math.Min(math.Abs(*fd.DeltaPct)/100, 1)
		case (fd.AValue == nil) != (fd.BValue == nil):
			// A numeric constraint appearing or disappearing outright is a
			// full-scale change even though no percentage is computable.
			c = 1
		}
		if c > numericChange {
			numericChange = c
		}
	}

	var tokenChange float64
	switch m.Status {
	case clause.StatusModified:
		added, removed := diffTokens(tokensA, tokensB)
		total := len(tokensA) + len(tokensB)
		if total < 1 {
			total = 1
		}
		tokenChange = math.Min(float64(len(added)+len(removed))/float64(total), 1)
	case clause.StatusAdded, clause.StatusRemoved:
		tokenChange = 1
	}

	score := in.weights.Polarity*polarityChange +
		in.weights.Strictness*strictnessChange +
		in.weights.CarveOut*carveOutChange +
		in.weights.Numeric*numericChange +
		in.weights.Token*tokenChange

	return math.Max(0, math.Min(1, score))
}

func (in *Interpreter) reviewRequired(m clause.Match, a, b *clause.Clause) bool {
	if m.MaterialityScore >= reviewMateriality {
		return true
	}
	if a != nil && b != nil && a.DNA.Polarity != b.DNA.Polarity {
		return true
	}
	if m.Similarity != nil && *m.Similarity >= lowConfidenceFloor && *m.Similarity < in.opts.SimilarityThreshold {
		return true
	}
	for _, fd := range m.NumericDelta {
		if fd.DeltaPct != nil && math.Abs(*fd.DeltaPct) >= reviewNumericPct {
			return true
		}
	}
	if a != nil && b != nil && !a.DNA.BurdenShift && b.DNA.BurdenShift {
		return true
	}
	return false
}

func ensureSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
