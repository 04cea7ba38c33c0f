// Package extract turns dependency edges into fact triples.
//
// Each sentence goes through two passes. The first folds modifier chains
// (compound, amod, nmod:poss, ...) into compound terms and emits
// rdfs:subClassOf triples. The second resolves connective edges (acl, appos,
// nmod:<prep>) into pairs of local:<connector> triples using the compound
// terms from the first pass. Both passes consume their worklist from the
// tail, so the output depends on the order the parser emitted the edges in.
package extract

import (
	"io"
	"log/slog"
)

// Phase is the processing state of a single sentence.
type Phase int

const (
	PhaseBuildingCompounds Phase = iota
	PhaseResolvingConnectives
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseBuildingCompounds:
		return "building_compounds"
	case PhaseResolvingConnectives:
		return "resolving_connectives"
	default:
		return "done"
	}
}

// Stats counts what happened to the edges of one or more sentences.
type Stats struct {
	Sentences  int `json:"sentences"`
	Edges      int `json:"edges"`
	Modifier   int `json:"modifier"`
	Connective int `json:"connective"`
	Skipped    int `json:"skipped"`
	Discarded  int `json:"discarded"`
	Malformed  int `json:"malformed"`
	SubClass   int `json:"subclass_triples"`
	Relations  int `json:"relation_triples"`
}

// Triples returns the total number of triples emitted.
func (s Stats) Triples() int {
	return s.SubClass + s.Relations
}

// Merge adds o into s.
func (s *Stats) Merge(o Stats) {
	s.Sentences += o.Sentences
	s.Edges += o.Edges
	s.Modifier += o.Modifier
	s.Connective += o.Connective
	s.Skipped += o.Skipped
	s.Discarded += o.Discarded
	s.Malformed += o.Malformed
	s.SubClass += o.SubClass
	s.Relations += o.Relations
}

// Observer is notified once per extracted sentence.
type Observer interface {
	ObserveSentence(stats Stats)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for debug tracing of edges and triples.
func WithLogger(l *slog.Logger) Option {
	return func(x *Extractor) {
		if l != nil {
			x.log = l
		}
	}
}

// WithObserver registers an observer for per-sentence statistics.
func WithObserver(o Observer) Option {
	return func(x *Extractor) { x.observers = append(x.observers, o) }
}

// Extractor applies the two-pass extraction to one sentence at a time. It
// holds no per-sentence state and may be shared between goroutines as long as
// each goroutine uses its own Sink.
type Extractor struct {
	log       *slog.Logger
	observers []Observer
}

// New returns an Extractor. Without WithLogger nothing is logged.
func New(opts ...Option) *Extractor {
	x := &Extractor{
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// ExtractSentence runs both passes over edges and sends the resulting triples
// to sink in emission order, each tagged with index. The edges slice is not
// modified.
func (x *Extractor) ExtractSentence(index int, edges []Edge, sink Sink) Stats {
	r := &sentenceRun{
		index: index,
		sink:  sink,
		log:   x.log,
		terms: make(TermMap),
		stats: Stats{Sentences: 1, Edges: len(edges)},
	}

	for _, e := range edges {
		x.log.Debug("extract: edge", "sentence", index, "edge", e.String())
	}

	r.buildCompounds(edges)
	r.advance(PhaseResolvingConnectives)
	r.resolveConnectives()
	r.advance(PhaseDone)

	for _, o := range x.observers {
		o.ObserveSentence(r.stats)
	}
	return r.stats
}

// sentenceRun holds the state that lives for exactly one sentence.
type sentenceRun struct {
	index int
	phase Phase
	sink  Sink
	log   *slog.Logger
	terms TermMap
	queue []Edge
	stats Stats
}

func (r *sentenceRun) advance(p Phase) {
	r.log.Debug("extract: phase", "sentence", r.index, "from", r.phase.String(), "to", p.String(),
		"queued", len(r.queue))
	r.phase = p
}

func (r *sentenceRun) emit(subject, predicate, object string) {
	t := Triple{Sentence: r.index, Subject: subject, Predicate: predicate, Object: object}
	if t.Kind() == KindSubClass {
		r.stats.SubClass++
	} else {
		r.stats.Relations++
	}
	r.log.Debug("extract: triple", "sentence", r.index, "triple", t.String())
	r.sink.Add(t)
}
