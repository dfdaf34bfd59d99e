package layout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/model"

	"github.com/c360studio/ucc/clause"
)

// TabulaExtractor reads PDF bytes with the tabula layout analyzer. Headings
// detected by the analyzer (or by the numbering heuristic) open sections;
// paragraphs and lists become blocks.
type TabulaExtractor struct {
	// TempDir is where the PDF bytes are staged for the reader. Defaults to
	// the system temp dir.
	TempDir string
}

// NewTabulaExtractor returns a PDF extractor backed by tabula.
func NewTabulaExtractor() *TabulaExtractor {
	return &TabulaExtractor{}
}

// Extract implements Extractor.
func (x *TabulaExtractor) Extract(ctx context.Context, docID string, data []byte) ([]clause.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &ParseError{DocID: docID, Reason: "empty input"}
	}

	path, cleanup, err := x.stage(docID, data)
	if err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	defer cleanup()

	doc, _, err := tabula.Open(path).ExcludeHeadersAndFooters().Document()
	if err != nil {
		return nil, &ParseError{DocID: docID, Reason: err.Error()}
	}

	blocks := x.blocksFromDocument(docID, doc)
	if len(blocks) == 0 {
		return nil, &ParseError{DocID: docID, Reason: "no extractable text layer"}
	}
	return blocks, nil
}

func (x *TabulaExtractor) stage(docID string, data []byte) (string, func(), error) {
	dir := x.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "ucc-"+shortID(docID)+"-*.pdf")
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", nil, err
	}
	return path, func() { os.Remove(filepath.Clean(path)) }, nil
}

func (x *TabulaExtractor) blocksFromDocument(docID string, doc *model.Document) []clause.Block {
	tracker := newSectionTracker()
	var blocks []clause.Block
	seq := 0

	for _, page := range doc.Pages {
		for _, elem := range page.Elements {
			switch el := elem.(type) {
			case *model.Heading:
				text := strings.TrimSpace(el.Text)
				if text == "" {
					continue
				}
				depth := el.Level
				if d, ok := headingDepth(text); ok {
					depth = d
				}
				if depth < 1 {
					depth = 1
				}
				tracker.observe(text, depth)
			case *model.Paragraph:
				if b, ok := x.makeBlock(docID, &seq, el.Text, page.Number, tracker, bboxOf(el.BBox)); ok {
					blocks = append(blocks, b)
				}
			case *model.List:
				var items []string
				for _, item := range el.Items {
					if t := strings.TrimSpace(item.Text); t != "" {
						items = append(items, t)
					}
				}
				if b, ok := x.makeBlock(docID, &seq, strings.Join(items, "\n"), page.Number, tracker, bboxOf(el.BBox)); ok {
					blocks = append(blocks, b)
				}
			}
		}
	}
	return blocks
}

func (x *TabulaExtractor) makeBlock(docID string, seq *int, text string, page int, tracker *sectionTracker, bbox *clause.BBox) (clause.Block, bool) {
	text = normalizeWhitespace(text)
	if text == "" {
		return clause.Block{}, false
	}
	path := tracker.current()
	b := clause.Block{
		ID:          clause.BlockID(docID, *seq),
		Sequence:    *seq,
		Text:        text,
		PageStart:   page,
		PageEnd:     page,
		BBox:        bbox,
		SectionPath: path,
		IsAdmin:     isAdminPath(path),
	}
	*seq++
	return b, true
}

func bboxOf(b model.BBox) *clause.BBox {
	if b.Width == 0 && b.Height == 0 {
		return nil
	}
	return &clause.BBox{b.X, b.Y, b.Width, b.Height}
}

func shortID(docID string) string {
	if len(docID) > 12 {
		return docID[:12]
	}
	return docID
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
