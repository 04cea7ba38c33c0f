package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser handles plain text files holding one sentence per line.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "text"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	return &ParseResult{
		Sections: Lines(string(data)),
		Method:   "native",
	}, nil
}

// Lines splits text into one TypeLine section per line. Whitespace-only lines
// produce no section; Line keeps the 1-based position in the source so gaps
// are visible.
func Lines(text string) []Section {
	var sections []Section
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sections = append(sections, Section{
			Content: line,
			Line:    i + 1,
			Type:    TypeLine,
		})
	}
	return sections
}
