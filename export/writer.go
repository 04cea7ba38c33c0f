package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/brunobiangulo/depfacts/extract"
)

// Option configures a Writer.
type Option func(*Writer)

// WithSentenceColumn prefixes each TSV row with the sentence index. RDF
// formats mark sentence boundaries with comments instead.
func WithSentenceColumn(on bool) Option {
	return func(w *Writer) { w.sentences = on }
}

// WithNamespaces overrides the IRI namespaces used by RDF formats.
func WithNamespaces(ns Namespaces) Option {
	return func(w *Writer) {
		if ns.Term != "" {
			w.ns.Term = ns.Term
		}
		if ns.Local != "" {
			w.ns.Local = ns.Local
		}
	}
}

// Writer serializes triples to an io.Writer and implements extract.Sink.
// Streaming formats are written as triples arrive; JSON-LD is buffered until
// Flush. The first write error is kept and returned by Flush.
type Writer struct {
	out       io.Writer
	format    Format
	ns        Namespaces
	sentences bool

	buf          []extract.Triple
	count        int
	headerDone   bool
	lastSentence int
	err          error
}

// NewWriter creates a writer for the given format.
func NewWriter(out io.Writer, format Format, opts ...Option) (*Writer, error) {
	if _, ok := FormatRegistry[format]; !ok {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	w := &Writer{
		out:          out,
		format:       format,
		ns:           DefaultNamespaces(),
		lastSentence: -1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add writes or buffers one triple.
func (w *Writer) Add(t extract.Triple) {
	if w.err != nil {
		return
	}
	w.count++
	if w.format == FormatJSONLD {
		w.buf = append(w.buf, t)
		return
	}
	w.err = w.writeOne(t)
}

// Count returns the number of triples added.
func (w *Writer) Count() int {
	return w.count
}

// Flush writes buffered output and returns the first error seen.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.format == FormatJSONLD && len(w.buf) > 0 {
		data, err := json.MarshalIndent(buildJSONLD(w.ns, w.buf), "", "  ")
		if err != nil {
			w.err = err
			return err
		}
		data = append(data, '\n')
		if _, err := w.out.Write(data); err != nil {
			w.err = err
			return err
		}
		w.buf = w.buf[:0]
	}
	return nil
}

func (w *Writer) writeOne(t extract.Triple) error {
	switch w.format {
	case FormatTSV:
		line := t.String()
		if w.sentences {
			line = t.StringWithSentence()
		}
		_, err := io.WriteString(w.out, line+"\n")
		return err

	case FormatJSONL:
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		_, err = w.out.Write(append(data, '\n'))
		return err

	case FormatNTriples:
		if err := w.sentenceComment(t.Sentence); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w.out, "<%s> <%s> <%s> .\n",
			w.ns.TermIRI(t.Subject), w.ns.PredicateIRI(t.Predicate), w.ns.TermIRI(t.Object))
		return err

	case FormatTurtle:
		if !w.headerDone {
			prefixes := w.ns.prefixes()
			for _, p := range sortedPrefixes(prefixes) {
				if _, err := fmt.Fprintf(w.out, "@prefix %s: <%s> .\n", p, prefixes[p]); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w.out, "\n"); err != nil {
				return err
			}
			w.headerDone = true
		}
		if err := w.sentenceComment(t.Sentence); err != nil {
			return err
		}
		pred := "<" + w.ns.PredicateIRI(t.Predicate) + ">"
		if t.Predicate == extract.PredicateSubClassOf {
			pred = extract.PredicateSubClassOf
		}
		_, err := fmt.Fprintf(w.out, "<%s> %s <%s> .\n", w.ns.TermIRI(t.Subject), pred, w.ns.TermIRI(t.Object))
		return err
	}
	return fmt.Errorf("unsupported format: %s", w.format)
}

func (w *Writer) sentenceComment(sentence int) error {
	if !w.sentences || sentence == w.lastSentence {
		return nil
	}
	w.lastSentence = sentence
	_, err := fmt.Fprintf(w.out, "# sentence %d\n", sentence)
	return err
}

// WriteAll serializes triples in one call.
func WriteAll(out io.Writer, format Format, triples []extract.Triple, opts ...Option) error {
	w, err := NewWriter(out, format, opts...)
	if err != nil {
		return err
	}
	for _, t := range triples {
		w.Add(t)
	}
	return w.Flush()
}

// AppendFile opens path for appending, creating it if needed. Existing
// content is never truncated.
func AppendFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening output: %w", err)
	}
	return f, nil
}

// Truncate empties path, creating it if it does not exist.
func Truncate(path string) error {
	err := os.Truncate(path, 0)
	if errors.Is(err, os.ErrNotExist) {
		return os.WriteFile(path, nil, 0o644)
	}
	return err
}
