package clause

// Polarity says whether a clause grants or removes cover.
type Polarity string

const (
	PolarityGrant   Polarity = "GRANT"
	PolarityRemove  Polarity = "REMOVE"
	PolarityNeutral Polarity = "NEUTRAL"
)

// Strictness says how hard a clause is to satisfy. ABSOLUTE is strictest.
type Strictness string

const (
	StrictnessAbsolute      Strictness = "ABSOLUTE"
	StrictnessConditional   Strictness = "CONDITIONAL"
	StrictnessDiscretionary Strictness = "DISCRETIONARY"
)

// Rank maps strictness onto an ordinal scale used by similarity and delta
// scoring: ABSOLUTE=2, CONDITIONAL=1, DISCRETIONARY=0.
func (s Strictness) Rank() int {
	switch s {
	case StrictnessAbsolute:
		return 2
	case StrictnessConditional:
		return 1
	default:
		return 0
	}
}

// TemporalRange is a structured duration constraint found in a clause,
// e.g. "within 48 hours".
type TemporalRange struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"` // hours, days, months, years
}

// DNA is the structured feature set of a clause used for similarity beyond
// raw text.
type DNA struct {
	Polarity        Polarity           `json:"polarity"`
	Strictness      Strictness         `json:"strictness"`
	Entities        []string           `json:"entities,omitempty"`
	CarveOuts       []string           `json:"carve_outs,omitempty"`
	ScopeConnectors []string           `json:"scope_connectors,omitempty"`
	BurdenShift     bool               `json:"burden_shift"`
	Temporal        *TemporalRange     `json:"temporal,omitempty"`
	Numerics        map[string]float64 `json:"numerics,omitempty"`
}

// Canonical numeric field names for DNA.Numerics.
const (
	FieldLimit      = "limit"
	FieldDeductible = "deductible"
	FieldPercentage = "percentage"
	FieldPeriod     = "period"
	FieldOther      = "other"
)
