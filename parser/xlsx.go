package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser turns every non-empty cell into its own section. Cells holding
// a single token (numbers, codes) are dropped since they cannot carry a
// dependency structure.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sections []Section

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}

		for r, row := range rows {
			for c, value := range row {
				value = strings.TrimSpace(value)
				if len(strings.Fields(value)) < 2 {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					continue
				}
				sections = append(sections, Section{
					Heading: sheet,
					Content: value,
					Type:    TypeCell,
					Level:   1,
					Metadata: map[string]string{
						"sheet_name": sheet,
						"cell":       cell,
					},
				})
			}
		}
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no text found in XLSX")
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
	}, nil
}
