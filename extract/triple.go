package extract

import (
	"strconv"
	"strings"
	"unicode"
)

// Predicates emitted by the extractor.
const (
	PredicateSubClassOf = "rdfs:subClassOf"
	LocalPrefix         = "local:"
)

// Triple kinds, used for statistics and metrics labels.
const (
	KindSubClass = "subclass"
	KindRelation = "relation"
)

// Triple is one extracted fact, tagged with the index of the sentence it
// came from.
type Triple struct {
	Sentence  int    `json:"sentence"`
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Kind reports whether the triple is a refinement or a local relation.
func (t Triple) Kind() string {
	if t.Predicate == PredicateSubClassOf {
		return KindSubClass
	}
	return KindRelation
}

// String renders subject, predicate and object separated by tabs.
func (t Triple) String() string {
	return t.Subject + "\t" + t.Predicate + "\t" + t.Object
}

// StringWithSentence prefixes String with the sentence index column.
func (t Triple) StringWithSentence() string {
	return strconv.Itoa(t.Sentence) + "\t" + t.String()
}

// LocalPredicate builds a "local:<left>_<right>" relation identifier.
func LocalPredicate(left, right string) string {
	return LocalPrefix + left + "_" + right
}

// stripSpaces removes every whitespace rune from s.
func stripSpaces(s string) string {
	if !strings.ContainsFunc(s, unicode.IsSpace) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
