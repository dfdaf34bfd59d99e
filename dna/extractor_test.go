package dna

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ucc/clause"
)

func TestExtractPolarity(t *testing.T) {
	tests := []struct {
		name string
		text string
		want clause.Polarity
	}{
		{name: "grant", text: "We will pay for theft of contents.", want: clause.PolarityGrant},
		{name: "remove", text: "We will not pay for loss caused by flood.", want: clause.PolarityRemove},
		{name: "exclusion cues dominate a grant cue", text: "We will pay for storm but flood is excluded.", want: clause.PolarityRemove},
		{name: "neutral", text: "Notice must be given within 30 days.", want: clause.PolarityNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text).Polarity)
		})
	}
}

func TestExtractStrictness(t *testing.T) {
	tests := []struct {
		name string
		text string
		want clause.Strictness
	}{
		{name: "absolute", text: "We will pay for theft.", want: clause.StrictnessAbsolute},
		{name: "conditional provided that", text: "We will pay for theft, provided that a police report is filed.", want: clause.StrictnessConditional},
		{name: "conditional provided", text: "We will pay for theft, provided a police report is filed.", want: clause.StrictnessConditional},
		{name: "conditional unless", text: "Cover applies unless the premises are unoccupied.", want: clause.StrictnessConditional},
		{name: "discretionary may", text: "We may choose to repair or replace the property.", want: clause.StrictnessDiscretionary},
		{name: "discretionary reserve", text: "We reserve the right to decline renewal.", want: clause.StrictnessDiscretionary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text).Strictness)
		})
	}
}

func TestStrictnessRank(t *testing.T) {
	assert.Equal(t, 2, clause.StrictnessAbsolute.Rank())
	assert.Equal(t, 1, clause.StrictnessConditional.Rank())
	assert.Equal(t, 0, clause.StrictnessDiscretionary.Rank())
}

func TestExtractCarveOuts(t *testing.T) {
	d := Extract("We will not pay for water damage except where caused by a burst pipe. Claims other than for theft are handled separately.")
	assert.Contains(t, d.CarveOuts, "where caused by a burst pipe")
	assert.Contains(t, d.CarveOuts, "for theft are handled separately")
}

func TestExtractScopeConnectorsAndEntities(t *testing.T) {
	d := Extract("We will not pay for loss arising from flood or caused by storm.")
	assert.Contains(t, d.ScopeConnectors, "arising from")
	assert.Contains(t, d.ScopeConnectors, "caused by")
	assert.Contains(t, d.Entities, "flood")
	assert.Contains(t, d.Entities, "storm")
}

func TestExtractBurdenShiftAndTemporal(t *testing.T) {
	d := Extract("You must file a police report within 48 hours of discovering the theft.")
	assert.True(t, d.BurdenShift)
	require.NotNil(t, d.Temporal)
	assert.Equal(t, 48, d.Temporal.Value)
	assert.Equal(t, "hours", d.Temporal.Unit)

	assert.Nil(t, Extract("We will pay for theft.").Temporal)
	assert.False(t, Extract("We will pay for theft.").BurdenShift)
}

func TestEnrichSkipsAdmin(t *testing.T) {
	clauses := []clause.Clause{
		{Block: clause.Block{Text: "We will pay for theft.", IsAdmin: true}, Type: clause.TypeAdmin},
		{Block: clause.Block{Text: "We will pay for theft."}, Type: clause.TypeCoverage},
	}
	out := Enrich(clauses)
	assert.Empty(t, out[0].DNA.Polarity)
	assert.Equal(t, clause.PolarityGrant, out[1].DNA.Polarity)
}
