package dna

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/c360studio/ucc/clause"
)

var (
	currencyPattern = regexp.MustCompile(`(?i)(?:A\$|AUD\s*|\$)\s*([\d,]+(?:\.\d+)?)`)
	percentPattern  = regexp.MustCompile(`([\d.]+)\s*%`)
	durationPattern = regexp.MustCompile(`(?i)\b(\d+)\s+(hours?|days?|months?|years?)\b`)
)

// context windows around a number decide its canonical field.
var (
	limitKeywords      = []string{"limit", "sum insured", "indemnity"}
	deductibleKeywords = []string{"excess", "deductible", "retention"}
)

// contextWindow is how many characters around a numeric token are searched
// for field keywords.
const contextWindow = 60

// ExtractNumerics parses currency amounts, percentages and durations out of a
// clause. Currencies are normalized to AUD (unqualified amounts are assumed
// AUD), percentages to [0,1], durations to days.
func ExtractNumerics(text string) map[string]float64 {
	lowered := strings.ToLower(text)
	out := make(map[string]float64)

	for _, loc := range currencyPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[2]:loc[3]]
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}
		field := classifyAmount(lowered, loc[0], loc[1])
		// First hit wins per field; later mentions usually restate the same
		// amount.
		if _, ok := out[field]; !ok {
			out[field] = value
		}
	}

	for _, loc := range percentPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[2]:loc[3]]
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if _, ok := out[clause.FieldPercentage]; !ok {
			out[clause.FieldPercentage] = value / 100
		}
	}

	for _, loc := range durationPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[2]:loc[3]]
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		unit := strings.ToLower(text[loc[4]:loc[5]])
		if _, ok := out[clause.FieldPeriod]; !ok {
			out[clause.FieldPeriod] = toDays(value, unit)
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// classifyAmount assigns a currency amount to the canonical field whose
// keyword sits closest to it; amounts with no keyword nearby go to "other".
func classifyAmount(lowered string, start, end int) string {
	fields := []struct {
		field    string
		keywords []string
	}{
		{clause.FieldLimit, limitKeywords},
		{clause.FieldDeductible, deductibleKeywords},
	}

	best := clause.FieldOther
	bestDist := contextWindow + 1
	for _, f := range fields {
		for _, kw := range f.keywords {
			for idx := 0; ; {
				rel := strings.Index(lowered[idx:], kw)
				if rel < 0 {
					break
				}
				kwStart := idx + rel
				kwEnd := kwStart + len(kw)
				dist := 0
				switch {
				case kwEnd <= start:
					dist = start - kwEnd
				case kwStart >= end:
					dist = kwStart - end
				}
				if dist < bestDist {
					bestDist = dist
					best = f.field
				}
				idx = kwEnd
			}
		}
	}
	return best
}

func toDays(value float64, unit string) float64 {
	switch {
	case strings.HasPrefix(unit, "hour"):
		return value / 24
	case strings.HasPrefix(unit, "month"):
		return value * 30
	case strings.HasPrefix(unit, "year"):
		return value * 365
	default:
		return value
	}
}
