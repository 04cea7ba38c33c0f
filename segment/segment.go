// Package segment turns parsed document sections into the sentence lines
// fed to the dependency source.
package segment

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/brunobiangulo/depfacts/parser"
)

// Config controls sentence splitting.
type Config struct {
	// MaxChars drops sentences longer than this many runes. Zero keeps all.
	MaxChars int `json:"max_chars" yaml:"max_chars"`

	// MinWords drops sentences with fewer words. Zero keeps all.
	MinWords int `json:"min_words" yaml:"min_words"`

	// Abbreviations lists extra tokens (lower case, with trailing period)
	// after which a period does not end a sentence.
	Abbreviations []string `json:"abbreviations" yaml:"abbreviations"`
}

// Sentence is one line of input together with where it came from.
type Sentence struct {
	Text       string
	Section    int
	Heading    string
	PageNumber int
	Line       int
}

// Splitter splits section content into sentences.
type Splitter struct {
	cfg   Config
	abbrv map[string]bool
}

var defaultAbbreviations = []string{
	"mr.", "mrs.", "ms.", "dr.", "prof.", "sr.", "jr.", "st.",
	"e.g.", "i.e.", "vs.", "cf.", "approx.", "no.", "fig.", "inc.", "ltd.", "co.",
}

// bulletPattern matches list markers at the start of a line: "-", "*", "•",
// "1." or "a)".
var bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)]|[a-z][)])\s+`)

// New returns a Splitter with the given configuration.
func New(cfg Config) *Splitter {
	s := &Splitter{cfg: cfg, abbrv: make(map[string]bool)}
	for _, a := range defaultAbbreviations {
		s.abbrv[a] = true
	}
	for _, a := range cfg.Abbreviations {
		s.abbrv[strings.ToLower(a)] = true
	}
	return s
}

// Sentences flattens sections into sentences in document order. Sections
// marked presegmented are passed through untouched.
func (s *Splitter) Sentences(sections []parser.Section) []Sentence {
	var out []Sentence
	for i, sec := range sections {
		if sec.Presegmented() {
			out = append(out, Sentence{
				Text:       sec.Content,
				Section:    i,
				Heading:    sec.Heading,
				PageNumber: sec.PageNumber,
				Line:       sec.Line,
			})
			continue
		}
		for _, text := range s.Split(sec.Content) {
			out = append(out, Sentence{
				Text:       text,
				Section:    i,
				Heading:    sec.Heading,
				PageNumber: sec.PageNumber,
			})
		}
	}
	return out
}

// Split breaks text into sentences. Paragraph breaks always end a sentence;
// within a paragraph, '.', '?' or '!' followed by whitespace ends one unless
// the word is a known abbreviation or a single-letter initial.
func (s *Splitter) Split(text string) []string {
	var out []string
	for _, para := range splitParagraphs(text) {
		for _, sent := range s.splitSentences(para) {
			if s.keep(sent) {
				out = append(out, sent)
			}
		}
	}
	return out
}

func (s *Splitter) keep(sent string) bool {
	if s.cfg.MaxChars > 0 && len([]rune(sent)) > s.cfg.MaxChars {
		slog.Debug("segment: dropping long sentence", "chars", len([]rune(sent)))
		return false
	}
	if s.cfg.MinWords > 0 && len(strings.Fields(sent)) < s.cfg.MinWords {
		return false
	}
	return true
}

// splitParagraphs splits text on blank-line boundaries and strips list
// markers. Single line breaks inside a paragraph become spaces.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		var lines []string
		for _, line := range strings.Split(p, "\n") {
			line = strings.TrimSpace(bulletPattern.ReplaceAllString(line, ""))
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, " "))
		}
	}
	return out
}

func (s *Splitter) splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] != '.' && runes[i] != '?' && runes[i] != '!' {
			continue
		}
		if i+1 < len(runes) && !isSpace(runes[i+1]) {
			continue
		}
		if runes[i] == '.' && s.isAbbreviation(cur.String()) {
			continue
		}
		if sent := strings.TrimSpace(cur.String()); sent != "" {
			sentences = append(sentences, sent)
		}
		cur.Reset()
	}
	if sent := strings.TrimSpace(cur.String()); sent != "" {
		sentences = append(sentences, sent)
	}
	return sentences
}

// isAbbreviation reports whether the last word of cur, which ends in a
// period, is an abbreviation or initial.
func (s *Splitter) isAbbreviation(cur string) bool {
	fields := strings.Fields(cur)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(strings.TrimLeft(fields[len(fields)-1], "(\"'"))
	if s.abbrv[last] {
		return true
	}
	// Single letter initial such as "J."
	r := []rune(last)
	return len(r) == 2 && r[0] >= 'a' && r[0] <= 'z'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}
