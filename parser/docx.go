package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
)

// DOCXParser reads paragraphs and table cells from word/document.xml.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	data, err := fs.ReadFile(r, "word/document.xml")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}
	if err != nil {
		return nil, fmt.Errorf("reading document.xml: %w", err)
	}

	sections, err := parseDocxXML(data)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
	}, nil
}

// DOCX XML structures (simplified)
type docxBody struct {
	XMLName xml.Name    `xml:"body"`
	Paras   []docxPara  `xml:"p"`
	Tables  []docxTable `xml:"tbl"`
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxPara struct {
	XMLName xml.Name    `xml:"p"`
	PPr     *docxParaPr `xml:"pPr"`
	Runs    []docxRun   `xml:"r"`
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

// parseDocxXML groups body paragraphs under their nearest heading. Each
// paragraph stays a separate section since paragraph breaks are sentence
// boundaries. Table cells follow as TypeCell sections.
func parseDocxXML(data []byte) ([]Section, error) {
	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var sections []Section
	var currentHeading string
	currentLevel := 0

	for _, para := range doc.Body.Paras {
		text := strings.TrimSpace(extractParaText(para))
		if text == "" {
			continue
		}

		style := ""
		if para.PPr != nil && para.PPr.PStyle != nil {
			style = para.PPr.PStyle.Val
		}
		lower := strings.ToLower(style)

		if strings.HasPrefix(lower, "heading") || strings.HasPrefix(lower, "title") {
			currentHeading = text
			currentLevel = headingStyleLevel(style)
			continue
		}

		sections = append(sections, Section{
			Heading: currentHeading,
			Content: text,
			Level:   currentLevel,
			Type:    TypeParagraph,
		})
	}

	for t, tbl := range doc.Body.Tables {
		for r, row := range tbl.Rows {
			for c, cell := range row.Cells {
				var parts []string
				for _, p := range cell.Paras {
					if s := strings.TrimSpace(extractParaText(p)); s != "" {
						parts = append(parts, s)
					}
				}
				if len(parts) == 0 {
					continue
				}
				sections = append(sections, Section{
					Content: strings.Join(parts, " "),
					Type:    TypeCell,
					Metadata: map[string]string{
						"table": strconv.Itoa(t + 1),
						"row":   strconv.Itoa(r + 1),
						"col":   strconv.Itoa(c + 1),
					},
				})
			}
		}
	}

	return sections, nil
}

func extractParaText(para docxPara) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

// headingStyleLevel reads the level from styles such as "Heading2". Titles
// and unnumbered headings are level 1.
func headingStyleLevel(style string) int {
	digits := strings.TrimLeftFunc(style, func(r rune) bool { return r < '0' || r > '9' })
	if n, err := strconv.Atoi(digits); err == nil && n >= 1 && n <= 9 {
		return n
	}
	return 1
}
