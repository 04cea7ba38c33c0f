package extract

// Sink receives triples in emission order.
type Sink interface {
	Add(t Triple)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(t Triple)

// Add calls f(t).
func (f SinkFunc) Add(t Triple) { f(t) }

// MemorySink accumulates triples in memory, preserving emission order.
// It is not safe for concurrent use; one document run owns one sink.
type MemorySink struct {
	triples []Triple
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Add appends t.
func (s *MemorySink) Add(t Triple) {
	s.triples = append(s.triples, t)
}

// Triples returns a copy of everything added so far.
func (s *MemorySink) Triples() []Triple {
	out := make([]Triple, len(s.triples))
	copy(out, s.triples)
	return out
}

// Since returns a copy of the triples added after the first n.
func (s *MemorySink) Since(n int) []Triple {
	if n >= len(s.triples) {
		return nil
	}
	out := make([]Triple, len(s.triples)-n)
	copy(out, s.triples[n:])
	return out
}

// Len returns the number of triples held.
func (s *MemorySink) Len() int {
	return len(s.triples)
}

// Reset drops all triples.
func (s *MemorySink) Reset() {
	s.triples = nil
}

// MultiSink forwards every triple to each sink in order.
type MultiSink []Sink

// Add forwards t.
func (m MultiSink) Add(t Triple) {
	for _, s := range m {
		s.Add(t)
	}
}
