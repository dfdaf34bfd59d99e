package layout

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/ucc/clause"
)

// TextExtractor reads plain UTF-8 text instead of PDF bytes: paragraphs are
// separated by blank lines and pages by form feeds. It backs the dev CLI for
// .txt inputs and the test suites, and rejects binary input the way the PDF
// reader rejects image-only scans.
type TextExtractor struct{}

// NewTextExtractor returns a plain-text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract implements Extractor.
func (x *TextExtractor) Extract(ctx context.Context, docID string, data []byte) ([]clause.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, &ParseError{DocID: docID, Reason: "no extractable text layer"}
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{DocID: docID, Reason: "empty document"}
	}

	tracker := newSectionTracker()
	var blocks []clause.Block
	seq := 0

	for pageIdx, page := range strings.Split(text, "\f") {
		pageNum := pageIdx + 1
		for _, para := range strings.Split(page, "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			// A paragraph that is a lone heading line adjusts the section
			// path instead of producing a block.
			if !strings.Contains(para, "\n") {
				if depth, ok := headingDepth(para); ok {
					tracker.observe(para, depth)
					continue
				}
			}
			body := normalizeWhitespace(para)
			path := tracker.current()
			blocks = append(blocks, clause.Block{
				ID:          clause.BlockID(docID, seq),
				Sequence:    seq,
				Text:        body,
				PageStart:   pageNum,
				PageEnd:     pageNum,
				SectionPath: path,
				IsAdmin:     isAdminPath(path),
			})
			seq++
		}
	}
	if len(blocks) == 0 {
		return nil, &ParseError{DocID: docID, Reason: "empty document"}
	}
	return blocks, nil
}
