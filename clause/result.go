package clause

// Counts aggregates matches by status.
type Counts struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Total returns the number of matches the counts cover.
func (c Counts) Total() int {
	return c.Added + c.Removed + c.Modified + c.Unchanged
}

// Summary is the aggregate view of a comparison.
type Summary struct {
	Counts  Counts   `json:"counts"`
	Bullets []string `json:"bullets"`
}

// Timings records per-stage wall-clock milliseconds.
type Timings struct {
	ParseA int64 `json:"parse_a"`
	ParseB int64 `json:"parse_b"`
	Align  int64 `json:"align"`
	Diff   int64 `json:"diff"`
	Total  int64 `json:"total"`
}

// ComparisonResult is the final assembled output of the pipeline.
type ComparisonResult struct {
	Summary   Summary  `json:"summary"`
	Matches   []Match  `json:"matches"`
	UnmappedA []string `json:"unmapped_a"`
	UnmappedB []string `json:"unmapped_b"`
	Warnings  []string `json:"warnings"`
	TimingsMS Timings  `json:"timings_ms"`
}
