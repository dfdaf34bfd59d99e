// Package dna extracts the structured feature set of a clause: polarity,
// strictness, entities, carve-outs, temporal constraints and numeric values.
package dna

// Fixed lexicons. These mirror the cue grammar the classifier uses so
// polarity and classification stay consistent.

var grantCues = []string{
	"we will pay",
	"we will indemnify",
	"cover is provided",
	"we agree to pay",
	"is covered",
}

var removeCues = []string{
	"we will not pay",
	"is excluded",
	"excluded",
	"does not cover",
	"no cover",
	"exclusion",
}

var conditionalCues = []string{
	"unless",
	"provided that",
	"provided",
	"if",
	"except",
}

var discretionaryCues = []string{
	"may",
	"at our discretion",
	"we reserve",
}

var scopeConnectors = []string{
	"arising from",
	"caused by",
	"in respect of",
	"resulting from",
	"due to",
	"in connection with",
	"attributable to",
}

var carveOutTriggers = []string{
	"except",
	"other than",
	"save for",
	"but not",
}

// entityLexicon names the perils, property and parties that anchor clause
// meaning across differently-worded documents.
var entityLexicon = []string{
	"fire", "flood", "storm", "earthquake", "theft", "burglary", "water damage",
	"escape of liquid", "subsidence", "landslip", "impact", "riot", "vandalism",
	"malicious damage", "terrorism", "war", "nuclear", "cyber", "data breach",
	"machinery breakdown", "business interruption", "glass", "money", "stock",
	"contents", "buildings", "vehicle", "employee", "contractor", "insured",
	"insurer", "underwriter", "third party", "public liability",
	"professional indemnity", "pollution", "asbestos", "mould", "wear and tear",
	"police report",
}

var burdenShiftCues = []string{
	"you must",
	"the insured must",
	"the insured shall",
	"it is a condition that you",
	"you are required to",
	"notify us",
	"provide us with",
	"a police report",
}
