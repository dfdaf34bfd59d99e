// Package clause defines the domain model for the Universal Clause Comparer:
// documents, text blocks, clause types, clause DNA, and comparison results.
package clause

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Document is an ingested PDF identified by the hash of its content.
type Document struct {
	DocID    string `json:"doc_id"`
	FileName string `json:"file_name"`
	Bytes    []byte `json:"-"`
}

// NewDocument builds a Document with a content-derived id.
func NewDocument(fileName string, data []byte) Document {
	return Document{
		DocID:    DocID(data),
		FileName: fileName,
		Bytes:    data,
	}
}

// DocID returns the content hash used as a document identifier.
func DocID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BlockID derives a stable block identifier from the document id and the
// block's position in reading order.
func BlockID(docID string, seq int) string {
	short := docID
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s-%d", short, seq)
}

// BBox is a page-space bounding box: x, y, width, height in points.
type BBox [4]float64

// Block is one text region of a document in reading order.
type Block struct {
	ID          string   `json:"id"`
	Sequence    int      `json:"sequence"`
	Text        string   `json:"text"`
	PageStart   int      `json:"page_start"`
	PageEnd     int      `json:"page_end"`
	BBox        *BBox    `json:"bbox,omitempty"`
	SectionPath []string `json:"section_path"`
	IsAdmin     bool     `json:"is_admin"`
}

// RootSection is the section path assigned to blocks outside any detected
// heading.
const RootSection = "(root)"

// Definition is a defined term and its expansion, with the block it came from.
type Definition struct {
	Term          string `json:"term"`
	Expansion     string `json:"expansion"`
	SourceBlockID string `json:"source_block_id"`
}

// ClauseType tags a block with its operational role in the policy.
type ClauseType string

const (
	TypeCoverage     ClauseType = "coverage"
	TypeExclusion    ClauseType = "exclusion"
	TypeCondition    ClauseType = "condition"
	TypeDefinition   ClauseType = "definition"
	TypeWarranty     ClauseType = "warranty"
	TypeExtension    ClauseType = "extension"
	TypeEndorsement  ClauseType = "endorsement"
	TypeSubjectivity ClauseType = "subjectivity"
	TypeDeductible   ClauseType = "deductible"
	TypeAdmin        ClauseType = "admin"
)

// Valid reports whether t is a known clause type.
func (t ClauseType) Valid() bool {
	switch t {
	case TypeCoverage, TypeExclusion, TypeCondition, TypeDefinition,
		TypeWarranty, TypeExtension, TypeEndorsement, TypeSubjectivity,
		TypeDeductible, TypeAdmin:
		return true
	}
	return false
}

// Clause is a block enriched with its classification and DNA.
type Clause struct {
	Block
	Type ClauseType `json:"clause_type"`
	DNA  DNA        `json:"dna"`
}
