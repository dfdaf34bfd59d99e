package layout

import (
	"regexp"
	"strings"

	"github.com/c360studio/ucc/clause"
)

// adminSections are section names whose blocks are boilerplate rather than
// operational clauses. Matching is case-insensitive on the heading prefix.
var adminSections = []string{
	"schedule",
	"cover page",
	"policy schedule",
	"declaration",
	"index",
	"contact",
	"about us",
}

var (
	numberedHeading = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]?\s+\S`)
	letterHeading   = regexp.MustCompile(`^[A-Z][.)]\s+\S`)
)

// maxHeadingLen bounds how long a line can be and still read as a heading.
const maxHeadingLen = 80

// headingDepth reports whether line looks like a section heading and at what
// depth. Numbered prefixes set depth from their dotted components ("1." is
// depth 1, "1.1" depth 2); lettered prefixes ("A)") are depth 2 and short
// title-case lines are depth 1.
func headingDepth(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > maxHeadingLen {
		return 0, false
	}
	if m := numberedHeading.FindStringSubmatch(line); m != nil {
		return strings.Count(m[1], ".") + 1, true
	}
	if letterHeading.MatchString(line) {
		return 2, true
	}
	if isTitleCase(line) {
		return 1, true
	}
	return 0, false
}

// isTitleCase accepts short lines where every significant word starts with an
// upper-case letter, or the whole line is upper-case.
func isTitleCase(line string) bool {
	if strings.HasSuffix(line, ".") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 8 {
		return false
	}
	upper := 0
	letters := false
	for _, w := range words {
		r := rune(w[0])
		if r >= 'a' && r <= 'z' {
			// Minor words are allowed lower-case.
			switch strings.ToLower(w) {
			case "of", "and", "or", "the", "to", "for", "in", "a", "an":
				continue
			}
			return false
		}
		if r >= 'A' && r <= 'Z' {
			upper++
			letters = true
		}
	}
	return letters && upper >= 1
}

// sectionTracker maintains the current section path as headings are seen.
type sectionTracker struct {
	path   []string
	depths []int
}

func newSectionTracker() *sectionTracker {
	return &sectionTracker{}
}

// observe consumes a heading at the given depth: deeper entries are closed,
// the new heading becomes the path tail.
func (t *sectionTracker) observe(heading string, depth int) {
	for len(t.depths) > 0 && t.depths[len(t.depths)-1] >= depth {
		t.depths = t.depths[:len(t.depths)-1]
		t.path = t.path[:len(t.path)-1]
	}
	t.path = append(t.path, strings.TrimSpace(heading))
	t.depths = append(t.depths, depth)
}

// current returns the active section path, never empty.
func (t *sectionTracker) current() []string {
	if len(t.path) == 0 {
		return []string{clause.RootSection}
	}
	out := make([]string, len(t.path))
	copy(out, t.path)
	return out
}

// isAdminPath reports whether any component of the section path names an
// administrative section.
func isAdminPath(path []string) bool {
	for _, seg := range path {
		lowered := strings.ToLower(strings.TrimSpace(seg))
		for _, admin := range adminSections {
			if strings.HasPrefix(lowered, admin) {
				return true
			}
		}
	}
	return false
}
