// Package summary aggregates match counts and produces the short narrative
// bullet list for a comparison result.
package summary

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/c360studio/ucc/clause"
)

// maxBullets caps the narrative list.
const maxBullets = 12

// titleBudget is the clause-text excerpt length used in bullets.
const titleBudget = 80

// Summarize computes status counts and bullets over the final match list.
func Summarize(matches []clause.Match, lookupA, lookupB map[string]*clause.Clause) clause.Summary {
	s := clause.Summary{Bullets: []string{}}
	for _, m := range matches {
		switch m.Status {
		case clause.StatusAdded:
			s.Counts.Added++
		case clause.StatusRemoved:
			s.Counts.Removed++
		case clause.StatusModified:
			s.Counts.Modified++
		case clause.StatusUnchanged:
			s.Counts.Unchanged++
		}
	}

	var changed []clause.Match
	for _, m := range matches {
		if m.Status != clause.StatusUnchanged {
			changed = append(changed, m)
		}
	}
	sort.SliceStable(changed, func(i, j int) bool {
		if changed[i].MaterialityScore != changed[j].MaterialityScore {
			return changed[i].MaterialityScore > changed[j].MaterialityScore
		}
		if changed[i].Status.Rank() != changed[j].Status.Rank() {
			return changed[i].Status.Rank() < changed[j].Status.Rank()
		}
		return bPageStart(changed[i]) < bPageStart(changed[j])
	})
	if len(changed) > maxBullets {
		changed = changed[:maxBullets]
	}

	for _, m := range changed {
		s.Bullets = append(s.Bullets, bullet(m, lookupA, lookupB))
	}
	return s
}

func bullet(m clause.Match, lookupA, lookupB map[string]*clause.Clause) string {
	typeName := typeTitle(m.ClauseType)
	switch m.Status {
	case clause.StatusAdded:
		b := lookupB[m.BID]
		return fmt.Sprintf("Added %s: %s (p.%d)", typeName, excerpt(b), pageOf(b))
	case clause.StatusRemoved:
		a := lookupA[m.AID]
		return fmt.Sprintf("Removed %s: %s (p.%d)", typeName, excerpt(a), pageOf(a))
	default:
		return fmt.Sprintf("Modified %s: %s", typeName, modificationReason(m, lookupA[m.AID], lookupB[m.BID]))
	}
}

// modificationReason picks the most telling one-line explanation: polarity
// flip, then strictness change, then the dominant numeric move, then a
// generic wording note.
func modificationReason(m clause.Match, a, b *clause.Clause) string {
	if a != nil && b != nil && a.DNA.Polarity != b.DNA.Polarity {
		if b.DNA.Polarity == clause.PolarityRemove {
			return "became exclusion"
		}
		if b.DNA.Polarity == clause.PolarityGrant {
			return "became coverage"
		}
	}
	if m.StrictnessDelta < 0 {
		return "now more restrictive"
	}
	if m.StrictnessDelta > 0 {
		return "now less restrictive"
	}
	if field, fd := dominantNumeric(m.NumericDelta); field != "" {
		return fmt.Sprintf("%s changed from %s to %s", field, formatValue(fd.AValue), formatValue(fd.BValue))
	}
	return "wording changed"
}

func dominantNumeric(deltas map[string]clause.FieldDelta) (string, clause.FieldDelta) {
	var bestField string
	var best clause.FieldDelta
	bestPct := 0.0
	fields := make([]string, 0, len(deltas))
	for f := range deltas {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fd := deltas[f]
		if fd.DeltaPct == nil || *fd.DeltaPct == 0 {
			continue
		}
		if pct := math.Abs(*fd.DeltaPct); pct > bestPct {
			bestPct = pct
			bestField = f
			best = fd
		}
	}
	return bestField, best
}

func formatValue(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// excerpt returns the clause's first words within the title budget, broken
// at a word boundary.
func excerpt(c *clause.Clause) string {
	if c == nil {
		return "unknown clause"
	}
	text := strings.TrimSpace(c.Text)
	if len(text) <= titleBudget {
		return text
	}
	cut := text[:titleBudget]
	if idx := strings.LastIndex(cut, " "); idx > titleBudget*4/5 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func pageOf(c *clause.Clause) int {
	if c == nil {
		return 0
	}
	return c.PageStart
}

func bPageStart(m clause.Match) int {
	if m.Evidence.B != nil {
		return m.Evidence.B.PageStart
	}
	if m.Evidence.A != nil {
		return m.Evidence.A.PageStart
	}
	return 0
}

func typeTitle(t clause.ClauseType) string {
	s := string(t)
	if s == "" {
		return "Clause"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
