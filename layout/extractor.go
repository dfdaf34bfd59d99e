// Package layout turns raw document bytes into ordered text blocks with page
// locations and best-effort section paths.
package layout

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/ucc/clause"
)

// Extractor converts document bytes into blocks in reading order.
type Extractor interface {
	// Extract returns the document's blocks. It fails with *ParseError when
	// the input has no extractable text layer.
	Extract(ctx context.Context, docID string, data []byte) ([]clause.Block, error)
}

// ParseError indicates a document without an extractable text layer.
type ParseError struct {
	DocID  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.DocID, e.Reason)
}

// IsParseError reports whether err is a text-layer parse failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
