// Package parser reads input documents into sections of text.
package parser

import (
	"context"
	"path/filepath"
	"strings"
)

// Section types.
const (
	// TypeLine marks a section that is exactly one input sentence and must
	// not be split further.
	TypeLine      = "line"
	TypeParagraph = "paragraph"
	TypeSection   = "section"
	TypeTable     = "table"
	TypeCell      = "cell"
)

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section // Ordered sections extracted from the document
	Method   string    // "native"
	Metadata map[string]string
}

// Section represents a logical section of a parsed document.
type Section struct {
	Heading    string
	Content    string
	Level      int // Heading level (1=top, 2=sub, etc.)
	PageNumber int
	Line       int // 1-based source line for TypeLine sections
	Type       string
	Metadata   map[string]string
}

// Presegmented reports whether the section already holds exactly one
// sentence.
func (s Section) Presegmented() bool {
	return s.Type == TypeLine
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// FormatOf returns the lower-cased extension of path without the dot.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
