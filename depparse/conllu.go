package depparse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/brunobiangulo/depfacts/extract"
)

// Token is one word line of a CoNLL-U sentence.
type Token struct {
	ID     string
	Form   string
	Lemma  string
	UPOS   string
	XPOS   string
	Feats  string
	Head   string
	DepRel string
	Deps   string
	Misc   string
}

// isWord reports whether the token is a regular word line, as opposed to a
// multiword range (1-2) or an empty node (8.1).
func (t Token) isWord() bool {
	return !strings.ContainsAny(t.ID, "-.")
}

// Sentence is one CoNLL-U sentence block.
type Sentence struct {
	ID     string
	Text   string
	Tokens []Token
}

// Edges converts the sentence into dependency edges in token order. The
// basic scheme reads HEAD/DEPREL; the enhanced schemes read DEPS, falling
// back to HEAD/DEPREL for tokens that have no DEPS value. Head 0 becomes the
// ROOT governor.
func (s Sentence) Edges(scheme string) []extract.Edge {
	forms := make(map[string]string, len(s.Tokens))
	for _, tok := range s.Tokens {
		if tok.isWord() {
			forms[tok.ID] = tok.Form
		}
	}
	governor := func(head string) (string, bool) {
		if head == "0" {
			return extract.RelRoot, true
		}
		form, ok := forms[head]
		return form, ok
	}
	relation := func(rel string) string {
		if rel == "root" {
			return extract.RelRoot
		}
		return rel
	}

	var edges []extract.Edge
	for _, tok := range s.Tokens {
		if !tok.isWord() {
			continue
		}

		if scheme != SchemeBasic && tok.Deps != "" && tok.Deps != "_" {
			for _, dep := range strings.Split(tok.Deps, "|") {
				head, rel, ok := strings.Cut(dep, ":")
				if !ok {
					continue
				}
				gov, ok := governor(head)
				if !ok {
					continue
				}
				edges = append(edges, extract.Edge{Governor: gov, Relation: relation(rel), Dependent: tok.Form})
			}
			continue
		}

		if tok.Head == "" || tok.Head == "_" {
			continue
		}
		gov, ok := governor(tok.Head)
		if !ok {
			continue
		}
		edges = append(edges, extract.Edge{Governor: gov, Relation: relation(tok.DepRel), Dependent: tok.Form})
	}
	return edges
}

// sentenceText returns the "# text =" comment or, when absent, the word forms
// joined by spaces.
func (s Sentence) sentenceText() string {
	if s.Text != "" {
		return s.Text
	}
	var words []string
	for _, tok := range s.Tokens {
		if tok.isWord() {
			words = append(words, tok.Form)
		}
	}
	return strings.Join(words, " ")
}

// ReadCoNLLU parses CoNLL-U formatted input into sentences.
func ReadCoNLLU(r io.Reader) ([]Sentence, error) {
	var (
		sentences []Sentence
		cur       Sentence
		lineNo    int
	)
	flush := func() {
		if len(cur.Tokens) > 0 {
			cur.Text = cur.sentenceText()
			sentences = append(sentences, cur)
		}
		cur = Sentence{}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case strings.HasPrefix(line, "#"):
			key, value, ok := strings.Cut(strings.TrimSpace(line[1:]), "=")
			if !ok {
				continue
			}
			switch strings.TrimSpace(key) {
			case "text":
				cur.Text = strings.TrimSpace(value)
			case "sent_id":
				cur.ID = strings.TrimSpace(value)
			}
		default:
			cols := strings.Split(line, "\t")
			if len(cols) != 10 {
				return nil, fmt.Errorf("conllu line %d: expected 10 columns, got %d", lineNo, len(cols))
			}
			cur.Tokens = append(cur.Tokens, Token{
				ID: cols[0], Form: cols[1], Lemma: cols[2], UPOS: cols[3], XPOS: cols[4],
				Feats: cols[5], Head: cols[6], DepRel: cols[7], Deps: cols[8], Misc: cols[9],
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading conllu: %w", err)
	}
	flush()
	return sentences, nil
}

// CoNLLU is a Source backed by a pre-annotated CoNLL-U corpus. Lookups match
// the sentence text with whitespace collapsed; the first sentence with a
// given text wins.
type CoNLLU struct {
	scheme    string
	sentences []Sentence
	byText    map[string]int
}

// NewCoNLLU builds a source from already parsed sentences.
func NewCoNLLU(sentences []Sentence, scheme string) *CoNLLU {
	if scheme == "" {
		scheme = SchemeEnhancedPlusPlus
	}
	c := &CoNLLU{
		scheme:    scheme,
		sentences: sentences,
		byText:    make(map[string]int, len(sentences)),
	}
	for i, s := range sentences {
		key := normalizeText(s.Text)
		if _, dup := c.byText[key]; !dup {
			c.byText[key] = i
		}
	}
	return c
}

// OpenCoNLLU reads a CoNLL-U file and returns a source over its sentences.
func OpenCoNLLU(path, scheme string) (*CoNLLU, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening conllu file: %w", err)
	}
	defer f.Close()

	sentences, err := ReadCoNLLU(f)
	if err != nil {
		return nil, err
	}
	return NewCoNLLU(sentences, scheme), nil
}

// Sentences returns the corpus sentences in file order.
func (c *CoNLLU) Sentences() []Sentence {
	return c.sentences
}

// Scheme returns the dependency scheme edges are read with.
func (c *CoNLLU) Scheme() string {
	return c.scheme
}

// Parse returns the edges annotated for text.
func (c *CoNLLU) Parse(ctx context.Context, text string) ([]extract.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i, ok := c.byText[normalizeText(text)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSentenceNotFound, truncate(text, 80))
	}
	return c.sentences[i].Edges(c.scheme), nil
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
