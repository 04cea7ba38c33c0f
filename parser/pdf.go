package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	sections := make([]Section, 0)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("parser: skipping unreadable pdf page", "path", path, "page", i, "error", err)
			continue
		}

		sections = append(sections, splitPageIntoSections(text, i)...)
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
		Metadata: map[string]string{"pages": fmt.Sprintf("%d", totalPages)},
	}, nil
}

// splitPageIntoSections breaks page text into sections at heading lines.
// Headings are kept on the section but never become sentence text.
func splitPageIntoSections(text string, pageNum int) []Section {
	var sections []Section
	var content strings.Builder
	var heading string
	level := 0

	flush := func() {
		body := strings.TrimSpace(content.String())
		if body != "" {
			sections = append(sections, Section{
				Heading:    heading,
				Content:    body,
				Level:      level,
				PageNumber: pageNum,
				Type:       classifySectionType(body),
			})
		}
		content.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if isLikelyHeading(trimmed) {
			flush()
			heading = trimmed
			level = detectHeadingLevel(trimmed)
			continue
		}

		// Lines of a page are joined with spaces: PDF line breaks are layout,
		// not sentence boundaries.
		if content.Len() > 0 {
			content.WriteString(" ")
		}
		content.WriteString(trimmed)
	}
	flush()

	return sections
}

func isLikelyHeading(line string) bool {
	if len(line) < 3 {
		return false
	}
	// All caps and short, with at least one letter
	if len(line) < 100 && line == strings.ToUpper(line) && line != strings.ToLower(line) {
		return true
	}
	if len(line) >= 120 {
		return false
	}
	// Numbered section like "1.", "1.1", "3.9.1" followed by a short title
	// without sentence punctuation at the end.
	if line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") &&
		!strings.HasSuffix(line, ".") {
		return true
	}
	lower := strings.ToLower(line)
	for _, prefix := range []string{"section ", "article ", "chapter ", "part ", "appendix "} {
		if strings.HasPrefix(lower, prefix) && !strings.HasSuffix(line, ".") {
			return true
		}
	}
	return false
}

func detectHeadingLevel(heading string) int {
	// Count dots in numbering to determine depth
	parts := strings.SplitN(heading, " ", 2)
	if len(parts) > 0 {
		numbering := strings.TrimSuffix(parts[0], ".")
		if numbering != "" && numbering[0] >= '0' && numbering[0] <= '9' {
			return strings.Count(numbering, ".") + 1
		}
	}
	// All-caps = top level
	if heading == strings.ToUpper(heading) {
		return 1
	}
	return 2
}

// classifySectionType separates running text from tabular layout. Tabs or
// pipes in quantity mean the content is a table.
func classifySectionType(content string) string {
	if strings.Count(content, "\t") > 3 || strings.Count(content, "|") > 3 {
		return TypeTable
	}
	return TypeSection
}
