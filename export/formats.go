// Package export serializes extracted triples as tab-separated text, JSON
// lines and RDF (N-Triples, Turtle, JSON-LD).
package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Format specifies the output serialization format.
type Format string

const (
	// FormatTSV writes subject, predicate and object separated by tabs.
	FormatTSV Format = "tsv"

	// FormatJSONL writes one JSON object per triple.
	FormatJSONL Format = "jsonl"

	// FormatNTriples produces N-Triples (.nt) output.
	FormatNTriples Format = "ntriples"

	// FormatTurtle produces Turtle (.ttl) output.
	FormatTurtle Format = "turtle"

	// FormatJSONLD produces JSON-LD (.jsonld) output.
	FormatJSONLD Format = "jsonld"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	Name        Format
	MIMEType    string
	Extension   string
	Description string

	// Streaming formats write each triple as it arrives. Others are
	// buffered until Flush.
	Streaming bool
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatTSV: {
		Name:        FormatTSV,
		MIMEType:    "text/tab-separated-values",
		Extension:   ".tsv",
		Description: "Tab-separated subject, predicate, object",
		Streaming:   true,
	},
	FormatJSONL: {
		Name:        FormatJSONL,
		MIMEType:    "application/x-ndjson",
		Extension:   ".jsonl",
		Description: "One JSON triple per line",
		Streaming:   true,
	},
	FormatNTriples: {
		Name:        FormatNTriples,
		MIMEType:    "application/n-triples",
		Extension:   ".nt",
		Description: "N-Triples - Line-based RDF format",
		Streaming:   true,
	},
	FormatTurtle: {
		Name:        FormatTurtle,
		MIMEType:    "text/turtle",
		Extension:   ".ttl",
		Description: "Turtle - Terse RDF Triple Language",
		Streaming:   true,
	},
	FormatJSONLD: {
		Name:        FormatJSONLD,
		MIMEType:    "application/ld+json",
		Extension:   ".jsonld",
		Description: "JSON-LD - JSON for Linked Data",
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat resolves a format name. The empty string selects TSV.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatTSV, nil
	}
	f := Format(strings.ToLower(s))
	switch f {
	case "nt":
		f = FormatNTriples
	case "ttl":
		f = FormatTurtle
	case "json-ld":
		f = FormatJSONLD
	}
	if _, ok := FormatRegistry[f]; !ok {
		return "", fmt.Errorf("unsupported format: %s", s)
	}
	return f, nil
}

// FormatForPath picks a format from the file extension of path.
func FormatForPath(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, info := range FormatRegistry {
		if info.Extension == ext {
			return info.Name, true
		}
	}
	return "", false
}

// Formats returns the supported format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}
